// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package pipeline

import "errors"

// Error kinds partition every stage-boundary failure into a small taxonomy.
// The controller branches on these with errors.Is rather than on message
// text.
var (
	// ErrValidation means the message itself is malformed or a no-op by
	// policy (missing s3Key, ".keep" suffix, duplicate s3Key). The
	// controller deletes the message and makes no record change.
	ErrValidation = errors.New("pipeline: validation")

	// ErrTransient means a downstream dependency failed in a way that is
	// expected to succeed on redelivery (network blip, 5xx). The
	// controller leaves the message undeleted.
	ErrTransient = errors.New("pipeline: transient downstream failure")

	// ErrPermanent means a downstream dependency failed in a way that
	// will not self-heal on redelivery (malformed LLM JSON, a missing
	// blob key). The controller marks the record failed and, on first
	// occurrence, still leaves the message undeleted for operator
	// inspection; a DLQ (external concern) absorbs true poison messages.
	ErrPermanent = errors.New("pipeline: permanent downstream failure")
)

// Wrap annotates err with one of the sentinel kinds above so that
// errors.Is(wrapped, ErrTransient) etc. succeeds, while errors.Unwrap
// still reaches the original cause.
func Wrap(kind error, cause error) error {
	if cause == nil {
		return nil
	}
	return &kindError{kind: kind, cause: cause}
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Is(target error) bool { return target == e.kind }
func (e *kindError) Unwrap() error        { return e.cause }
