// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package transcribeasr adapts Amazon Transcribe to the ports.TranscribeASR
// interface: starting a batch transcription job and polling its state.
package transcribeasr

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"

	"github.com/sesame437/meeting-minutes/internal/ports"
)

// API is the subset of *transcribe.Client this adapter calls.
type API interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// Client wraps an Amazon Transcribe client. OutputBucket must be the same
// bucket the ports.Blob adapter reads from: Start directs Transcribe to
// write its result there under a deterministic key, so Get can report that
// key back as OutputLocation without depending on the vended
// TranscriptFileUri (an HTTPS URL Blob.Get cannot fetch).
type Client struct {
	API          API
	OutputBucket string
}

// New wraps client as a ports.TranscribeASR, writing job output into
// outputBucket.
func New(client API, outputBucket string) *Client { return &Client{API: client, OutputBucket: outputBucket} }

func outputKey(jobName string) string { return fmt.Sprintf("transcribe-raw/%s.json", jobName) }

// Start implements ports.TranscribeASR. vocabularyName is optional; an
// empty value omits the custom vocabulary setting.
func (c *Client) Start(ctx context.Context, jobName, mediaURI, languageCode, vocabularyName string) error {
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		LanguageCode:         types.LanguageCode(languageCode),
		Media:                &types.Media{MediaFileUri: aws.String(mediaURI)},
		OutputBucketName:     aws.String(c.OutputBucket),
		OutputKey:            aws.String(outputKey(jobName)),
	}
	if vocabularyName != "" {
		in.Settings = &types.Settings{VocabularyName: aws.String(vocabularyName)}
	}
	if _, err := c.API.StartTranscriptionJob(ctx, in); err != nil {
		return fmt.Errorf("transcribeasr: start %s: %w", jobName, err)
	}
	return nil
}

// Get implements ports.TranscribeASR.
func (c *Client) Get(ctx context.Context, jobName string) (ports.TranscriptionJobState, error) {
	out, err := c.API.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
	})
	if err != nil {
		return ports.TranscriptionJobState{}, fmt.Errorf("transcribeasr: get %s: %w", jobName, err)
	}

	job := out.TranscriptionJob
	state := ports.TranscriptionJobState{
		FailureReason: aws.ToString(job.FailureReason),
	}
	switch job.TranscriptionJobStatus {
	case types.TranscriptionJobStatusCompleted:
		state.Status = ports.TranscriptionCompleted
		state.OutputLocation = outputKey(jobName)
	case types.TranscriptionJobStatusFailed:
		state.Status = ports.TranscriptionFailed
	default:
		state.Status = ports.TranscriptionInProgress
	}
	return state, nil
}
