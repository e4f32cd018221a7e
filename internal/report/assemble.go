// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sesame437/meeting-minutes/internal/ports"
)

const (
	awsLabel     = "[AWS Transcribe 转录]"
	whisperLabel = "[Whisper 转录]"
	funasrLabel  = "[FunASR 转录（含说话人标签）]"

	funasrBodyLimit = 60000
	dualSideLimit   = 60000
	singleBodyLimit = 120000
	globalSafetyCap = 200000
)

// ErrAllSourcesFailed is raised when every present transcript key fails to
// fetch or parse, leaving nothing to assemble.
var ErrAllSourcesFailed = errors.New("ALL_SOURCES_FAILED")

// transcriptAssembly is the composed ensemble transcript plus whatever
// segment-timing hints the Whisper and FunASR tracks reported, for the
// duration-resolution chain in Process.
type transcriptAssembly struct {
	Text       string
	WhisperEnd float64
	WhisperOK  bool
	FunASREnd  float64
	FunASROK   bool
}

// assembleTranscript fetches the present transcript sources concurrently
// (initiating each fetch before awaiting either, so one track's failure
// never blocks or skips another), composes the labelled ensemble
// transcript, and applies the three truncation modes plus the global
// safety cap.
func (s *Stage) assembleTranscript(ctx context.Context, transcribeKey, whisperKey, funasrKey string) (transcriptAssembly, error) {
	type fetchOutcome struct {
		text string
		end  float64
		ok   bool
	}

	var awsCh, whisperCh chan fetchOutcome

	if transcribeKey != "" {
		awsCh = make(chan fetchOutcome, 1)
		go func() {
			text, err := s.fetchAWSTranscriptText(ctx, transcribeKey)
			awsCh <- fetchOutcome{text: text, ok: err == nil}
		}()
	}
	if whisperKey != "" {
		whisperCh = make(chan fetchOutcome, 1)
		go func() {
			text, end, err := s.fetchASRText(ctx, whisperKey)
			whisperCh <- fetchOutcome{text: text, end: end, ok: err == nil}
		}()
	}

	var awsText, whisperText string
	var awsOK, whisperOK bool
	var whisperEnd float64
	if awsCh != nil {
		res := <-awsCh
		awsText, awsOK = res.text, res.ok
	}
	if whisperCh != nil {
		res := <-whisperCh
		whisperText, whisperEnd, whisperOK = res.text, res.end, res.ok
	}

	var funasrBlock string
	var funasrOK bool
	var funasrEnd float64
	if funasrKey != "" {
		block, end, err := s.fetchFunASRBlock(ctx, funasrKey)
		if err == nil {
			funasrBlock = block
			funasrEnd = end
			funasrOK = true
		}
	}

	var mainText string
	dual := awsOK && whisperOK
	switch {
	case dual:
		mainText = awsLabel + "\n" + truncateRunes(awsText, dualSideLimit) +
			"\n\n" + whisperLabel + "\n" + truncateRunes(whisperText, dualSideLimit)
	case awsOK:
		mainText = awsText
	case whisperOK:
		mainText = whisperText
	}

	var parts []string
	if mainText != "" {
		parts = append(parts, mainText)
	}
	if funasrOK {
		parts = append(parts, funasrBlock)
	}
	if len(parts) == 0 {
		return transcriptAssembly{}, ErrAllSourcesFailed
	}

	composed := strings.Join(parts, "\n\n")

	funasrOnly := funasrOK && !awsOK && !whisperOK
	if !dual && !funasrOnly {
		composed = truncateRunes(composed, singleBodyLimit)
	}

	composed = applyGlobalSafetyCap(composed)
	return transcriptAssembly{
		Text:       composed,
		WhisperEnd: whisperEnd,
		WhisperOK:  whisperOK,
		FunASREnd:  funasrEnd,
		FunASROK:   funasrOK,
	}, nil
}

// fetchAWSTranscriptText fetches the AWS-style transcript blob and extracts
// plain text: if it parses as {results:{transcripts:[{transcript:...}]}},
// the inner text is used; otherwise the raw payload is treated as text.
func (s *Stage) fetchAWSTranscriptText(ctx context.Context, key string) (string, error) {
	data, err := s.readBlob(ctx, key)
	if err != nil {
		return "", err
	}

	var envelope struct {
		Results struct {
			Transcripts []struct {
				Transcript string `json:"transcript"`
			} `json:"transcripts"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Results.Transcripts) > 0 {
		return envelope.Results.Transcripts[0].Transcript, nil
	}
	return string(data), nil
}

// fetchASRText fetches a Whisper-shaped ASR response and returns its text
// along with the last segment's end timestamp, if any segments were
// reported.
func (s *Stage) fetchASRText(ctx context.Context, key string) (string, float64, error) {
	data, err := s.readBlob(ctx, key)
	if err != nil {
		return "", 0, err
	}
	var resp ports.ASRResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", 0, fmt.Errorf("report: parsing ASR response at %s: %w", key, err)
	}
	return resp.Text, lastSegmentEnd(resp.Segments), nil
}

// fetchFunASRBlock fetches the FunASR response, coalesces adjacent segments
// sharing a speaker tag, renders "[<speaker>] <text>" lines, truncates to
// funasrBodyLimit, prefixes the FunASR label, and returns the last
// segment's end timestamp, if any segments were reported.
func (s *Stage) fetchFunASRBlock(ctx context.Context, key string) (string, float64, error) {
	data, err := s.readBlob(ctx, key)
	if err != nil {
		return "", 0, err
	}
	var resp ports.ASRResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", 0, fmt.Errorf("report: parsing FunASR response at %s: %w", key, err)
	}

	lines := coalesceSegments(resp.Segments)
	body := truncateRunes(strings.Join(lines, "\n"), funasrBodyLimit)
	return funasrLabel + "\n" + body, lastSegmentEnd(resp.Segments), nil
}

// lastSegmentEnd returns the final segment's end timestamp, or 0 if no
// segments were reported.
func lastSegmentEnd(segments []ports.ASRSegment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End
}

// coalesceSegments merges adjacent segments sharing a speaker tag and
// renders each merged group as one "[<speaker>] <text>" line.
func coalesceSegments(segments []ports.ASRSegment) []string {
	if len(segments) == 0 {
		return nil
	}
	var lines []string
	speaker := segments[0].Speaker
	var text strings.Builder
	text.WriteString(segments[0].Text)

	flush := func() {
		lines = append(lines, fmt.Sprintf("[%s] %s", speaker, text.String()))
	}

	for _, seg := range segments[1:] {
		if seg.Speaker == speaker {
			text.WriteString(seg.Text)
			continue
		}
		flush()
		speaker = seg.Speaker
		text.Reset()
		text.WriteString(seg.Text)
	}
	flush()
	return lines
}

func (s *Stage) readBlob(ctx context.Context, key string) ([]byte, error) {
	r, err := s.Blob.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// truncateRunes trims s to at most limit runes, preserving whole runes.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// applyGlobalSafetyCap is the backstop: when a transcript combining a
// dual AWS+Whisper side with a FunASR side still exceeds the LLM port's
// ~200k-character tolerance, trim from the oldest (first-composed)
// section first.
func applyGlobalSafetyCap(s string) string {
	runes := []rune(s)
	if len(runes) <= globalSafetyCap {
		return s
	}
	return string(runes[len(runes)-globalSafetyCap:])
}
