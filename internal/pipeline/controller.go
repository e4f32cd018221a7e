// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package pipeline implements the stage controller shared by every worker:
// the long-poll loop, per-message failure isolation, record failure
// write-back, and cooperative shutdown.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

const errKey = "error"

// Stage is the per-stage-specific behavior the controller drives: it names
// the queue to poll and processes one raw message body at a time. A stage
// that has resolved a record key attaches it to the context via
// WithRecordKey so a failure can be written back to that record.
type Stage interface {
	// QueueURL is the queue this stage's controller long-polls.
	QueueURL() string
	// Process parses and executes one message. A nil error means the
	// message is fully handled and must be deleted from the queue.
	Process(ctx context.Context, body []byte) error
}

// FailureRecorder marks a record failed best-effort when a message's
// processing raises a permanent or transient error. Stages that already
// resolved a record key attach it to the context via WithRecordKey so the
// controller's error handler can write back to it; stages that fail before
// resolving a key (e.g. parse failure) simply have no record to update.
type FailureRecorder interface {
	MarkFailed(ctx context.Context, key model.RecordKey, message string) error
}

// Controller runs Stage's long-poll loop against a Queue.
type Controller struct {
	Queue    ports.Queue
	Stage    Stage
	Recorder FailureRecorder
	Logger   *slog.Logger

	// ReceiveMax is the number of messages requested per long-poll
	// (1 is recommended).
	ReceiveMax int
	// WaitSeconds is the long-poll wait (20 is recommended).
	WaitSeconds int
	// EmptyPollSleep is the fixed sleep between empty polls (5s is
	// recommended).
	EmptyPollSleep time.Duration
}

// Run executes the poll loop until ctx is canceled. Shutdown is
// cooperative: the in-flight message (if any) finishes before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msgs, err := c.Queue.Receive(ctx, c.Stage.QueueURL(), c.ReceiveMax, c.WaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.With(errKey, err).Error("queue receive failed")
			c.sleepOrDone(ctx, c.EmptyPollSleep)
			continue
		}

		if len(msgs) == 0 {
			c.sleepOrDone(ctx, c.EmptyPollSleep)
			continue
		}

		for _, msg := range msgs {
			c.handleOne(ctx, log, msg)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// handleOne isolates one message's failure from the batch and the loop: a
// failure here never aborts processing of the remaining messages and never
// propagates out of Run.
func (c *Controller) handleOne(ctx context.Context, log *slog.Logger, msg ports.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.With("panic", r).Error("panic recovered while processing message; message left undeleted")
		}
	}()

	err := c.Stage.Process(ctx, msg.Body)
	if err == nil {
		if delErr := c.Queue.Delete(ctx, c.Stage.QueueURL(), msg.ReceiptHandle); delErr != nil {
			log.With(errKey, delErr).Error("failed to delete processed message")
		}
		return
	}

	if errors.Is(err, ErrValidation) {
		log.With(errKey, err).Info("message rejected by validation; deleting without record change")
		if delErr := c.Queue.Delete(ctx, c.Stage.QueueURL(), msg.ReceiptHandle); delErr != nil {
			log.With(errKey, delErr).Error("failed to delete invalid message")
		}
		return
	}

	// Transient and permanent failures both leave the message undeleted so
	// the queue's visibility timeout redelivers it, and both mark the record
	// failed best-effort when a record key is attached to the context.
	log.With(errKey, err).Error("message processing failed; leaving undeleted for redelivery")

	key, ok := recordKeyFromContext(ctx)
	if !ok || c.Recorder == nil {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.With("panic", r).Error("panic recovered while marking record failed; swallowed")
			}
		}()
		if markErr := c.Recorder.MarkFailed(ctx, key, err.Error()); markErr != nil {
			log.With(errKey, markErr).Error("failed to mark record failed; swallowed")
		}
	}()
}

func (c *Controller) sleepOrDone(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type recordKeyCtxKey struct{}

// WithRecordKey attaches a resolved record key to ctx so a later failure in
// the same message's processing can be written back by the controller.
func WithRecordKey(ctx context.Context, key model.RecordKey) context.Context {
	return context.WithValue(ctx, recordKeyCtxKey{}, key)
}

func recordKeyFromContext(ctx context.Context) (model.RecordKey, bool) {
	key, ok := ctx.Value(recordKeyCtxKey{}).(model.RecordKey)
	return key, ok
}
