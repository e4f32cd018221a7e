// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package model holds the wire and at-rest data shapes shared by every
// pipeline stage: the MeetingRecord, the glossary term, and the three queue
// message envelopes.
package model

import "time"

// Status is the coarse lifecycle state of a MeetingRecord.
type Status string

const (
	StatusCreated     Status = "created"
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusTranscribed Status = "transcribed"
	StatusReported    Status = "reported"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Stage is the fine-grained, UI-facing progress label of a MeetingRecord.
type Stage string

const (
	StageTranscribing Stage = "transcribing"
	StageReporting    Stage = "reporting"
	StageGenerating   Stage = "generating"
	StageExporting    Stage = "exporting"
	StageSending      Stage = "sending"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// MeetingType selects which LLM prompt template and report schema a job uses.
type MeetingType string

const (
	MeetingGeneral  MeetingType = "general"
	MeetingWeekly   MeetingType = "weekly"
	MeetingTech     MeetingType = "tech"
	MeetingCustomer MeetingType = "customer"
)

// IsValid reports whether mt is one of the four recognized meeting types.
func (mt MeetingType) IsValid() bool {
	switch mt {
	case MeetingGeneral, MeetingWeekly, MeetingTech, MeetingCustomer:
		return true
	}
	return false
}

// MeetingRecord is the durable record of a single job. Its primary key is
// the pair (MeetingID, CreatedAt); CreatedAt is set exactly once at creation
// and is never regenerated by any later stage.
type MeetingRecord struct {
	MeetingID   string    `dynamodbav:"meetingId"`
	CreatedAt   time.Time `dynamodbav:"createdAt"`
	Status      Status    `dynamodbav:"status"`
	Stage       Stage     `dynamodbav:"stage"`
	Title       string    `dynamodbav:"title,omitempty"`
	Filename    string    `dynamodbav:"filename"`
	MeetingType MeetingType `dynamodbav:"meetingType"`

	S3Key string `dynamodbav:"s3Key"`

	TranscribeKey string `dynamodbav:"transcribeKey,omitempty"`
	WhisperKey    string `dynamodbav:"whisperKey,omitempty"`
	FunasrKey     string `dynamodbav:"funasrKey,omitempty"`

	ReportKey string `dynamodbav:"reportKey,omitempty"`
	PdfKey    string `dynamodbav:"pdfKey,omitempty"`

	// DurationSeconds is a best-effort playback-duration hint, resolved by
	// the report stage from FunASR or Whisper segment timing, falling back
	// to a header probe of the source recording.
	DurationSeconds float64 `dynamodbav:"durationSeconds,omitempty"`

	RecipientEmails []string `dynamodbav:"recipientEmails,omitempty"`
	ErrorMessage    string   `dynamodbav:"errorMessage,omitempty"`

	UpdatedAt  time.Time  `dynamodbav:"updatedAt"`
	ExportedAt *time.Time `dynamodbav:"exportedAt,omitempty"`
}

// Key returns the composite primary key used by the record port.
func (r *MeetingRecord) Key() RecordKey {
	return RecordKey{MeetingID: r.MeetingID, CreatedAt: r.CreatedAt}
}

// RecordKey is the composite primary key (meetingId, createdAt).
type RecordKey struct {
	MeetingID string
	CreatedAt time.Time
}

// GlossaryTerm is a read-only domain vocabulary entry injected into LLM
// prompts to stabilize spelling of names, acronyms, and jargon.
type GlossaryTerm struct {
	TermID     string    `dynamodbav:"termId"`
	Term       string    `dynamodbav:"term"`
	Aliases    []string  `dynamodbav:"aliases,omitempty"`
	Definition string    `dynamodbav:"definition,omitempty"`
	CreatedAt  time.Time `dynamodbav:"createdAt"`
}
