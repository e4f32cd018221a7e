// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package retry implements the pipeline's retry contract: a caller
// (the operator-facing retry-gateway, or an internal re-drive) asks to
// reprocess a failed meeting. The contract conditionally flips the record
// from failed back to processing and re-enqueues a NewJob reproducing the
// record's s3Key, filename, meetingType, and createdAt; a race against
// another retry or a concurrent stage advancing the same record surfaces as
// a 409-equivalent RaceError.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

// RaceError means the conditional update lost a race: the record's status
// was no longer "failed" at update time, so nothing was retried. Callers
// (an HTTP gateway, say) should map this to a 409.
type RaceError struct {
	Key model.RecordKey
}

func (e *RaceError) Error() string {
	return fmt.Sprintf("retry: record %s/%s is no longer failed", e.Key.MeetingID, e.Key.CreatedAt)
}

// Retrier re-drives a failed meeting record through the transcription
// queue.
type Retrier struct {
	Record ports.Record
	Queue  ports.Queue
	Clock  ports.Clock
	Logger *slog.Logger

	TranscriptionQueueURL string
}

func (r *Retrier) clock() ports.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return ports.SystemClock{}
}

func (r *Retrier) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Retry fetches the record, conditionally flips
// status failed -> processing (failing with RaceError on a lost race),
// then re-enqueue a NewJob. If enqueuing fails, the status flip is reverted
// best-effort and the original error is returned.
func (r *Retrier) Retry(ctx context.Context, key model.RecordKey) error {
	rec, err := r.Record.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("retry: loading record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("retry: no record for %s/%s", key.MeetingID, key.CreatedAt)
	}
	if rec.Status != model.StatusFailed {
		return &RaceError{Key: key}
	}

	now := r.clock().Now()
	patch := &model.MeetingRecord{
		Status:       model.StatusProcessing,
		Stage:        model.StageTranscribing,
		ErrorMessage: "",
		UpdatedAt:    now,
	}
	if err := r.Record.Update(ctx, key, patch, []string{"status", "stage", "errorMessage", "updatedAt"}, model.StatusFailed); err != nil {
		if errors.Is(err, ports.ErrConditionFailed) {
			return &RaceError{Key: key}
		}
		return fmt.Errorf("retry: flipping status to processing: %w", err)
	}

	createdAt := rec.CreatedAt
	job := model.NewJob{
		MeetingID:   rec.MeetingID,
		S3Key:       rec.S3Key,
		Filename:    rec.Filename,
		MeetingType: rec.MeetingType,
		CreatedAt:   &createdAt,
	}
	body, err := json.Marshal(job)
	if err != nil {
		r.revert(ctx, key, rec.ErrorMessage)
		return fmt.Errorf("retry: encoding NewJob: %w", err)
	}

	if err := r.Queue.Send(ctx, r.TranscriptionQueueURL, body); err != nil {
		r.revert(ctx, key, fmt.Sprintf("retry: enqueue failed: %v", err))
		return fmt.Errorf("retry: enqueuing NewJob: %w", err)
	}

	return nil
}

// revert best-effort restores status=failed when re-enqueuing did not
// happen, so the record does not get stuck in processing with nothing
// actually in flight.
func (r *Retrier) revert(ctx context.Context, key model.RecordKey, message string) {
	patch := &model.MeetingRecord{
		Status:       model.StatusFailed,
		Stage:        model.StageFailed,
		ErrorMessage: message,
		UpdatedAt:    r.clock().Now(),
	}
	if err := r.Record.Update(ctx, key, patch, []string{"status", "stage", "errorMessage", "updatedAt"}, model.StatusProcessing); err != nil {
		r.log().With("error", err).Error("failed to revert status after enqueue failure; record may be stuck in processing")
	}
}
