// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NewJob is the transcription queue's message shape. It arrives either from
// the upload collaborator (internal shape, every field already populated) or
// as a bucket-notification envelope from the object store (external shape,
// carrying only Records[0].s3.object.key).
type NewJob struct {
	MeetingID   string      `json:"meetingId"`
	S3Key       string      `json:"s3Key"`
	Filename    string      `json:"filename"`
	MeetingType MeetingType `json:"meetingType"`
	CreatedAt   *time.Time  `json:"createdAt,omitempty"`

	// External set when the message was synthesized from a bucket
	// notification rather than carrying all fields directly.
	External bool `json:"-"`
}

// bucketNotification mirrors the subset of a bucket-notification envelope
// this pipeline understands: Records[0].s3.object.key.
type bucketNotification struct {
	Records []struct {
		S3 struct {
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseNewJob decodes a transcription-queue message body, recognizing both
// the internal NewJob shape and the external bucket-notification envelope.
// For the external shape it synthesizes MeetingID as "meeting-<epoch-ms>"
// and MeetingType from the filename prefix ("weekly__" -> weekly,
// "tech__" -> tech, else general), per spec.
func ParseNewJob(body []byte, now time.Time) (NewJob, error) {
	var direct NewJob
	if err := json.Unmarshal(body, &direct); err == nil && direct.S3Key != "" {
		if direct.MeetingType == "" {
			direct.MeetingType = MeetingGeneral
		}
		return direct, nil
	}

	var env bucketNotification
	if err := json.Unmarshal(body, &env); err != nil {
		return NewJob{}, fmt.Errorf("model: unrecognized NewJob payload: %w", err)
	}
	if len(env.Records) == 0 || env.Records[0].S3.Object.Key == "" {
		return NewJob{}, fmt.Errorf("model: bucket notification missing Records[0].s3.object.key")
	}

	key := env.Records[0].S3.Object.Key
	createdAt := now
	job := NewJob{
		MeetingID:   fmt.Sprintf("meeting-%d", now.UnixMilli()),
		S3Key:       key,
		Filename:    filenameFromKey(key),
		MeetingType: meetingTypeFromFilename(key),
		CreatedAt:   &createdAt,
		External:    true,
	}
	return job, nil
}

func filenameFromKey(key string) string {
	if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
		return key[idx+1:]
	}
	return key
}

func meetingTypeFromFilename(key string) MeetingType {
	name := filenameFromKey(key)
	switch {
	case strings.HasPrefix(name, "weekly__"):
		return MeetingWeekly
	case strings.HasPrefix(name, "tech__"):
		return MeetingTech
	default:
		return MeetingGeneral
	}
}

// TranscribeDone is the report queue's message shape, carrying each track's
// blob key (empty string when that track did not run or did not succeed).
type TranscribeDone struct {
	MeetingID     string      `json:"meetingId"`
	CreatedAt     time.Time   `json:"createdAt"`
	TranscribeKey string      `json:"transcribeKey,omitempty"`
	WhisperKey    string      `json:"whisperKey,omitempty"`
	FunasrKey     string      `json:"funasrKey,omitempty"`
	MeetingType   MeetingType `json:"meetingType"`
}

// ReportDone is the export queue's message shape.
type ReportDone struct {
	MeetingID   string    `json:"meetingId"`
	CreatedAt   time.Time `json:"createdAt"`
	ReportKey   string    `json:"reportKey"`
	MeetingName string    `json:"meetingName,omitempty"`
}
