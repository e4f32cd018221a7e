// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package ports declares the abstract external contracts the pipeline core
// depends on. Every stage worker is constructed from these interfaces only;
// concrete wrappers (AWS SDK clients, HTTP ASR/LLM clients, an SES client)
// live under internal/adapters and are wired together in cmd/.
package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sesame437/meeting-minutes/internal/model"
)

// ErrConditionFailed is returned by Record.Update when condition is
// non-empty and the stored item's Status does not match it — the signal
// the retry contract turns into a 409.
var ErrConditionFailed = errors.New("ports: conditional update failed")

// Message is one item received from a Queue.
type Message struct {
	Body          []byte
	ReceiptHandle string
}

// Queue is the at-least-once queue port. Visibility timeout governs retry:
// a received message that is not deleted becomes visible again for
// redelivery once the timeout elapses.
type Queue interface {
	Receive(ctx context.Context, queueURL string, max int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, queueURL string, receiptHandle string) error
	Send(ctx context.Context, queueURL string, body []byte) error
}

// Blob is the object-store port, keyed by an opaque string.
type Blob interface {
	// Get returns a reader for the object at key. Callers must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores bytes at key and returns the full key (including any
	// configured prefix) that Get must be called with.
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// QueryFilter narrows a secondary-index query to records whose attribute
// equals value (e.g. "s3Key", msg.S3Key for the transcription stage's
// dedup query).
type QueryFilter struct {
	Attribute string
	Value     string
}

// Record is the keyed record-store port. Key is the composite primary key
// (meetingId, createdAt); the secondary index is (status, createdAt).
type Record interface {
	Get(ctx context.Context, key model.RecordKey) (*model.MeetingRecord, error)
	Put(ctx context.Context, item *model.MeetingRecord) error
	// Update applies a partial update to the item at key. Fields is the set
	// of field names to write from patch; condition, if non-empty, names a
	// Status the stored item's Status must currently equal, or Update must
	// fail with ErrConditionFailed.
	Update(ctx context.Context, key model.RecordKey, patch *model.MeetingRecord, fields []string, condition model.Status) error
	// Query returns up to limit records whose Status equals status and,
	// when filter is non-nil, whose named attribute equals filter.Value.
	Query(ctx context.Context, status model.Status, filter *QueryFilter, limit int) ([]*model.MeetingRecord, error)
}

// Glossary is the read-only glossary-term table port, scanned in full (it is
// small by construction — a domain vocabulary, not a content table).
type Glossary interface {
	ScanAll(ctx context.Context) ([]model.GlossaryTerm, error)
}

// TranscriptionStatus is the external ASR job's lifecycle state.
type TranscriptionStatus string

const (
	TranscriptionInProgress TranscriptionStatus = "IN_PROGRESS"
	TranscriptionCompleted  TranscriptionStatus = "COMPLETED"
	TranscriptionFailed     TranscriptionStatus = "FAILED"
)

// TranscriptionJobState is the result of polling an external ASR job.
type TranscriptionJobState struct {
	Status         TranscriptionStatus
	FailureReason  string
	OutputLocation string
}

// TranscribeASR is the AWS-style external transcription job port.
type TranscribeASR interface {
	Start(ctx context.Context, jobName, mediaURI, languageCode string, vocabularyName string) error
	Get(ctx context.Context, jobName string) (TranscriptionJobState, error)
}

// ASRSegment is one diarized or plain segment returned by an HTTP ASR track.
type ASRSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// ASRResponse is the normalized response body of the Whisper/FunASR ports.
type ASRResponse struct {
	Text         string       `json:"text"`
	Segments     []ASRSegment `json:"segments,omitempty"`
	Language     string       `json:"language,omitempty"`
	SpeakerCount int          `json:"speaker_count,omitempty"`
}

// HTTPASR is the shared shape of the Whisper and FunASR HTTP ports: a 5s
// health probe and a POST that returns a normalized ASRResponse.
type HTTPASR interface {
	Healthy(ctx context.Context) bool
	Transcribe(ctx context.Context, bucket, key, language string) (ASRResponse, error)
}

// LLM is the prompt-in, JSON-out language model port.
type LLM interface {
	Invoke(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Email is the outbound email port.
type EmailMessage struct {
	From     string
	To       []string
	BCC      []string
	Subject  string
	HTMLBody string
}

type Email interface {
	SendHTML(ctx context.Context, msg EmailMessage) error
}

// PDFRenderer is declared for forward compatibility with a future delivery
// format; PDF rendering is out of scope for the core pipeline, and no
// adapter implements this port in this repository.
type PDFRenderer interface {
	Render(ctx context.Context, reportJSON []byte) ([]byte, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
