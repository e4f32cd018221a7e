// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package report

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesame437/meeting-minutes/internal/glossary"
	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/pipeline"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

// buildWAV constructs a minimal valid mono 16-bit PCM WAV file, for
// exercising the media-probe fallback without a fixture file on disk.
func buildWAV(t *testing.T, sampleRate uint32, frames int) []byte {
	t.Helper()

	var data bytes.Buffer
	for i := 0; i < frames; i++ {
		var sample [2]byte
		binary.LittleEndian.PutUint16(sample[:], 0)
		data.Write(sample[:])
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	writeUint32(&buf, uint32(36+data.Len()))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(&buf, 16)
	writeUint16(&buf, 1) // PCM
	writeUint16(&buf, 1) // mono
	writeUint32(&buf, sampleRate)
	byteRate := sampleRate * 1 * 16 / 8
	writeUint32(&buf, byteRate)
	writeUint16(&buf, 2)  // block align
	writeUint16(&buf, 16) // bits per sample

	buf.WriteString("data")
	writeUint32(&buf, uint32(data.Len()))
	buf.Write(data.Bytes())

	return buf.Bytes()
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func newStage(t *testing.T, now time.Time) (*Stage, *fakeQueue, *fakeBlob, *fakeRecordStore) {
	q := &fakeQueue{}
	b := newFakeBlob()
	r := newFakeRecordStore()

	cfg := DefaultConfig()
	cfg.ExportQueueURL = "export-queue"

	st := New("report-queue", cfg)
	st.Queue = q
	st.Blob = b
	st.Record = r
	st.Clock = fakeClock{now}
	return st, q, b, r
}

const generalReportJSON = `{
  "summary": "Team discussed roadmap.",
  "keyTopics": ["Roadmap"],
  "highlights": ["Good momentum"],
  "lowlights": [],
  "decisions": ["Proceed with plan A"],
  "actions": [{"task": "Ship feature", "owner": "Alice", "deadline": "2026-01-10", "priority": "high"}],
  "participants": ["Alice", "Bob"],
  "duration": "30 minutes",
  "meetingType": "general"
}`

func TestProcess_HappyPath_WhisperOnly(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st, q, b, r := newStage(t, now)
	st.LLM = &fakeLLM{response: "Here is the JSON:\n" + generalReportJSON}

	createdAt := now.Add(-time.Hour)
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{
		MeetingID: "m1", CreatedAt: createdAt, Status: model.StatusTranscribed,
	}))
	{
		_, err := b.Put(context.Background(), "transcripts/m1/whisper.json",
			mustJSON(t, ports.ASRResponse{Text: "hello team, let's begin."}), "application/json")
		require.NoError(t, err)
	}

	msg := model.TranscribeDone{MeetingID: "m1", CreatedAt: createdAt, WhisperKey: "transcripts/m1/whisper.json", MeetingType: model.MeetingGeneral}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = st.Process(context.Background(), body)
	require.NoError(t, err)

	require.Len(t, q.sent, 1)
	assert.Equal(t, "export-queue", q.sent[0].queueURL)

	var done model.ReportDone
	require.NoError(t, json.Unmarshal(q.sent[0].body, &done))
	assert.Equal(t, "m1", done.MeetingID)
	assert.Empty(t, done.MeetingName)
	assert.Contains(t, b.store, done.ReportKey)

	rec, err := r.Get(context.Background(), model.RecordKey{MeetingID: "m1", CreatedAt: createdAt})
	require.NoError(t, err)
	assert.Equal(t, model.StatusReported, rec.Status)
	assert.Equal(t, model.StageExporting, rec.Stage)
}

func TestProcess_InjectsGlossaryAndSpeakerNote(t *testing.T) {
	now := time.Now()
	st, _, b, r := newStage(t, now)
	llm := &fakeLLM{response: generalReportJSON}
	st.LLM = llm
	src := &fakeGlossarySource{terms: []model.GlossaryTerm{{Term: "Sesame437", Definition: "internal codename"}}}
	st.Glossary = glossary.New(src, time.Minute)

	createdAt := now
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{MeetingID: "m2", CreatedAt: createdAt, Status: model.StatusTranscribed}))
	{
		_, err := b.Put(context.Background(), "transcripts/m2/funasr.json",
			mustJSON(t, ports.ASRResponse{Segments: []ports.ASRSegment{{Speaker: "SPEAKER_0", Text: "hi"}}}), "application/json")
		require.NoError(t, err)
	}

	msg := model.TranscribeDone{MeetingID: "m2", CreatedAt: createdAt, FunasrKey: "transcripts/m2/funasr.json", MeetingType: model.MeetingGeneral}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, st.Process(context.Background(), body))
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Sesame437")
	assert.Contains(t, llm.prompts[0], "speaker labels")
}

func TestProcess_AllSourcesFailed_IsPermanent(t *testing.T) {
	now := time.Now()
	st, q, _, r := newStage(t, now)
	st.LLM = &fakeLLM{response: generalReportJSON}

	createdAt := now
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{MeetingID: "m3", CreatedAt: createdAt, Status: model.StatusTranscribed}))

	msg := model.TranscribeDone{MeetingID: "m3", CreatedAt: createdAt, WhisperKey: "transcripts/m3/whisper.json", MeetingType: model.MeetingGeneral}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = st.Process(context.Background(), body)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrPermanent)
	assert.Empty(t, q.sent)
}

func TestProcess_MissingRequiredField_IsPermanent(t *testing.T) {
	now := time.Now()
	st, q, b, r := newStage(t, now)
	st.LLM = &fakeLLM{response: `{"title": "x", "summary": "y"}`}

	createdAt := now
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{MeetingID: "m4", CreatedAt: createdAt, Status: model.StatusTranscribed}))
	{
		_, err := b.Put(context.Background(), "transcripts/m4/whisper.json",
			mustJSON(t, ports.ASRResponse{Text: "content"}), "application/json")
		require.NoError(t, err)
	}

	msg := model.TranscribeDone{MeetingID: "m4", CreatedAt: createdAt, WhisperKey: "transcripts/m4/whisper.json", MeetingType: model.MeetingWeekly}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = st.Process(context.Background(), body)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrPermanent)
	assert.Empty(t, q.sent)
}

func TestProcess_DurationFromFunASRTakesPrecedenceOverWhisper(t *testing.T) {
	now := time.Now()
	st, _, b, r := newStage(t, now)
	st.LLM = &fakeLLM{response: generalReportJSON}

	createdAt := now
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{MeetingID: "m5", CreatedAt: createdAt, Status: model.StatusTranscribed}))
	{
		_, err := b.Put(context.Background(), "transcripts/m5/whisper.json",
			mustJSON(t, ports.ASRResponse{Text: "hi", Segments: []ports.ASRSegment{{End: 100}}}), "application/json")
		require.NoError(t, err)
	}
	{
		_, err := b.Put(context.Background(), "transcripts/m5/funasr.json",
			mustJSON(t, ports.ASRResponse{Segments: []ports.ASRSegment{{Speaker: "S0", Text: "hi", End: 42.3}}}), "application/json")
		require.NoError(t, err)
	}

	msg := model.TranscribeDone{
		MeetingID: "m5", CreatedAt: createdAt,
		WhisperKey: "transcripts/m5/whisper.json", FunasrKey: "transcripts/m5/funasr.json",
		MeetingType: model.MeetingGeneral,
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, st.Process(context.Background(), body))

	rec, err := r.Get(context.Background(), model.RecordKey{MeetingID: "m5", CreatedAt: createdAt})
	require.NoError(t, err)
	assert.Equal(t, float64(43), rec.DurationSeconds)
}

func TestProcess_DurationFallsBackToMediaProbe(t *testing.T) {
	now := time.Now()
	st, _, b, r := newStage(t, now)
	st.LLM = &fakeLLM{response: generalReportJSON}

	createdAt := now
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{
		MeetingID: "m6", CreatedAt: createdAt, Status: model.StatusTranscribed, S3Key: "inbox/m6/x.wav",
	}))
	{
		_, err := b.Put(context.Background(), "transcripts/m6/whisper.json",
			mustJSON(t, ports.ASRResponse{Text: "hi"}), "application/json")
		require.NoError(t, err)
	}
	{
		_, err := b.Put(context.Background(), "inbox/m6/x.wav", buildWAV(t, 8000, 16000), "audio/wav")
		require.NoError(t, err)
	}

	msg := model.TranscribeDone{MeetingID: "m6", CreatedAt: createdAt, WhisperKey: "transcripts/m6/whisper.json", MeetingType: model.MeetingGeneral}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, st.Process(context.Background(), body))

	rec, err := r.Get(context.Background(), model.RecordKey{MeetingID: "m6", CreatedAt: createdAt})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rec.DurationSeconds, 0.05)
}

func TestProcess_DurationOmittedWhenNoHintAvailable(t *testing.T) {
	now := time.Now()
	st, _, b, r := newStage(t, now)
	st.LLM = &fakeLLM{response: generalReportJSON}

	createdAt := now
	require.NoError(t, r.Put(context.Background(), &model.MeetingRecord{
		MeetingID: "m7", CreatedAt: createdAt, Status: model.StatusTranscribed, S3Key: "inbox/m7/x.mp4",
	}))
	{
		_, err := b.Put(context.Background(), "transcripts/m7/whisper.json",
			mustJSON(t, ports.ASRResponse{Text: "hi"}), "application/json")
		require.NoError(t, err)
	}

	msg := model.TranscribeDone{MeetingID: "m7", CreatedAt: createdAt, WhisperKey: "transcripts/m7/whisper.json", MeetingType: model.MeetingGeneral}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, st.Process(context.Background(), body))

	rec, err := r.Get(context.Background(), model.RecordKey{MeetingID: "m7", CreatedAt: createdAt})
	require.NoError(t, err)
	assert.Zero(t, rec.DurationSeconds)
}

func mustJSON(t *testing.T, v any) []byte {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
