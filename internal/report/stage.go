// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package report implements the report-generation stage worker: it consumes
// TranscribeDone messages, assembles the ensemble transcript, drives the LLM
// to produce structured minutes, validates the result against the meeting
// type's schema, and hands off a ReportDone message to the export stage.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/sesame437/meeting-minutes/internal/glossary"
	"github.com/sesame437/meeting-minutes/internal/mediaprobe"
	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/pipeline"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

// Config bundles the report stage's tunables.
type Config struct {
	ExportQueueURL     string
	LLMMaxOutputTokens int
}

// DefaultConfig returns the report stage's recommended defaults.
func DefaultConfig() Config {
	return Config{LLMMaxOutputTokens: 16000}
}

// Stage is the report stage worker.
type Stage struct {
	Cfg Config

	Queue    ports.Queue
	Blob     ports.Blob
	Record   ports.Record
	LLM      ports.LLM
	Glossary *glossary.Cache
	Clock    ports.Clock
	Logger   *slog.Logger

	queueURL string
}

// New builds a Stage bound to queueURL.
func New(queueURL string, cfg Config) *Stage {
	return &Stage{Cfg: cfg, queueURL: queueURL, Clock: ports.SystemClock{}}
}

func (s *Stage) QueueURL() string { return s.queueURL }

func (s *Stage) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Stage) clock() ports.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return ports.SystemClock{}
}

// MarkFailed implements pipeline.FailureRecorder: a best-effort conditionless
// update of status/errorMessage, used by the controller when Process fails
// after a record key has been resolved.
func (s *Stage) MarkFailed(ctx context.Context, key model.RecordKey, message string) error {
	patch := &model.MeetingRecord{
		Status:       model.StatusFailed,
		Stage:        model.StageFailed,
		ErrorMessage: message,
		UpdatedAt:    s.clock().Now(),
	}
	return s.Record.Update(ctx, key, patch, []string{"status", "stage", "errorMessage", "updatedAt"}, "")
}

// Process parses TranscribeDone, assembles the ensemble transcript,
// resolves a duration hint, injects the glossary, prompts the LLM per
// meetingType, extracts and validates the JSON report, persists it,
// advances the record, and enqueues ReportDone.
func (s *Stage) Process(ctx context.Context, body []byte) error {
	var msg model.TranscribeDone
	if err := json.Unmarshal(body, &msg); err != nil {
		return pipeline.Wrap(pipeline.ErrValidation, fmt.Errorf("report: decoding TranscribeDone: %w", err))
	}
	if msg.MeetingID == "" {
		return pipeline.Wrap(pipeline.ErrValidation, fmt.Errorf("report: TranscribeDone missing meetingId"))
	}
	if msg.TranscribeKey == "" && msg.WhisperKey == "" && msg.FunasrKey == "" {
		return pipeline.Wrap(pipeline.ErrValidation, fmt.Errorf("report: TranscribeDone carries no transcript key"))
	}

	key := model.RecordKey{MeetingID: msg.MeetingID, CreatedAt: msg.CreatedAt}
	ctx = pipeline.WithRecordKey(ctx, key)

	generatingPatch := &model.MeetingRecord{Stage: model.StageGenerating, UpdatedAt: s.clock().Now()}
	if err := s.Record.Update(ctx, key, generatingPatch, []string{"stage", "updatedAt"}, ""); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("report: marking stage generating: %w", err))
	}

	mt := msg.MeetingType
	if !mt.IsValid() {
		mt = model.MeetingGeneral
	}

	asm, err := s.assembleTranscript(ctx, msg.TranscribeKey, msg.WhisperKey, msg.FunasrKey)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("report: assembling transcript: %w", err))
	}

	duration, durationOK := s.resolveDuration(ctx, key, asm)

	var terms []model.GlossaryTerm
	if s.Glossary != nil {
		terms, err = s.Glossary.Terms(ctx)
		if err != nil {
			s.log().With("error", err).Warn("glossary lookup failed; continuing without glossary notes")
			terms = nil
		}
	}

	prompt := buildPrompt(mt, asm.Text, terms, duration, durationOK)

	raw, err := s.LLM.Invoke(ctx, prompt, s.maxTokens())
	if err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("report: LLM invocation: %w", err))
	}

	candidate, err := ExtractJSON(raw)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("report: extracting JSON from LLM output: %w", err))
	}

	obj, canonical, err := ValidateReport(mt, candidate)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("report: validating LLM output: %w", err))
	}

	reportKey, err := s.Blob.Put(ctx, fmt.Sprintf("reports/%s/report.json", msg.MeetingID), canonical, "application/json")
	if err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("report: storing report: %w", err))
	}

	now := s.clock().Now()
	patch := &model.MeetingRecord{
		Status:    model.StatusReported,
		Stage:     model.StageExporting,
		ReportKey: reportKey,
		UpdatedAt: now,
	}
	fields := []string{"status", "stage", "reportKey", "updatedAt"}
	if durationOK {
		patch.DurationSeconds = duration
		fields = append(fields, "durationSeconds")
	}
	if err := s.Record.Update(ctx, key, patch, fields, ""); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("report: updating record: %w", err))
	}

	done := model.ReportDone{
		MeetingID:   msg.MeetingID,
		CreatedAt:   msg.CreatedAt,
		ReportKey:   reportKey,
		MeetingName: reportTitle(obj),
	}
	doneBody, err := json.Marshal(done)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("report: encoding ReportDone: %w", err))
	}
	if err := s.Queue.Send(ctx, s.Cfg.ExportQueueURL, doneBody); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("report: enqueuing ReportDone: %w", err))
	}

	return nil
}

// resolveDuration follows the duration-resolution priority chain: FunASR's
// last segment end (rounded up), then Whisper's last segment end, then a
// best-effort header probe of the raw source recording, then "unknown".
func (s *Stage) resolveDuration(ctx context.Context, key model.RecordKey, asm transcriptAssembly) (float64, bool) {
	if asm.FunASROK && asm.FunASREnd > 0 {
		return math.Ceil(asm.FunASREnd), true
	}
	if asm.WhisperOK && asm.WhisperEnd > 0 {
		return asm.WhisperEnd, true
	}

	rec, err := s.Record.Get(ctx, key)
	if err != nil || rec == nil || rec.S3Key == "" {
		return 0, false
	}
	r, err := s.Blob.Get(ctx, rec.S3Key)
	if err != nil {
		return 0, false
	}
	defer r.Close()

	d, err := mediaprobe.Duration(r)
	if err != nil {
		return 0, false
	}
	s.log().With("durationSeconds", d.Seconds()).Debug("probed recording duration from source media")
	return d.Seconds(), true
}

func (s *Stage) maxTokens() int {
	if s.Cfg.LLMMaxOutputTokens > 0 {
		return s.Cfg.LLMMaxOutputTokens
	}
	return DefaultConfig().LLMMaxOutputTokens
}
