// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package transcribe implements the transcription stage worker: dedup,
// ensemble ASR fan-out, per-track artifact persistence, and the
// TranscribeDone handoff to the report stage.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/pipeline"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

// dedupStatuses are the statuses the dedup query
// checks, in order, stopping at the first hit.
var dedupStatuses = []model.Status{
	model.StatusPending,
	model.StatusProcessing,
	model.StatusReported,
	model.StatusCompleted,
}

// Config carries the queue URLs and per-track enablement the stage needs
// beyond its port dependencies.
type Config struct {
	ReportQueueURL   string
	EnableTranscribe bool
	EnableWhisper    bool
	EnableFunASR     bool
	S3Bucket         string

	ExternalJobPollInterval time.Duration
	ExternalJobMaxAttempts  int
	HealthProbeTimeout      time.Duration
	HTTPTrackTimeout        time.Duration
}

// DefaultConfig returns the recommended transcription-stage timeouts.
func DefaultConfig() Config {
	return Config{
		ExternalJobPollInterval: 10 * time.Second,
		ExternalJobMaxAttempts:  180,
		HealthProbeTimeout:      5 * time.Second,
		HTTPTrackTimeout:        30 * time.Minute,
	}
}

// Stage implements pipeline.Stage for the transcription queue.
type Stage struct {
	Cfg   Config
	Queue ports.Queue

	Blob   ports.Blob
	Record ports.Record

	TranscribeASR ports.TranscribeASR
	Whisper       ports.HTTPASR
	FunASR        ports.HTTPASR

	Clock  ports.Clock
	Logger *slog.Logger

	queueURL string
}

// New builds a Stage bound to the given transcription queue URL.
func New(queueURL string, cfg Config) *Stage {
	return &Stage{Cfg: cfg, queueURL: queueURL}
}

func (s *Stage) QueueURL() string { return s.queueURL }

func (s *Stage) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Process implements pipeline.Stage.
func (s *Stage) Process(ctx context.Context, body []byte) error {
	now := s.clock().Now()

	job, err := model.ParseNewJob(body, now)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrValidation, err)
	}
	if job.S3Key == "" || strings.HasSuffix(job.S3Key, ".keep") {
		return pipeline.Wrap(pipeline.ErrValidation, fmt.Errorf("missing s3Key or .keep suffix: %q", job.S3Key))
	}

	log := s.log().With("meetingId", job.MeetingID, "s3Key", job.S3Key)

	if job.External {
		dup, err := s.isDuplicate(ctx, job.S3Key)
		if err != nil {
			return pipeline.Wrap(pipeline.ErrTransient, err)
		}
		if dup {
			log.Info("duplicate external notification; skipping")
			return pipeline.Wrap(pipeline.ErrValidation, errors.New("duplicate s3Key"))
		}
	}

	createdAt, err := s.resolveCreatedAt(job, now)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, err)
	}
	key := model.RecordKey{MeetingID: job.MeetingID, CreatedAt: createdAt}
	ctx = pipeline.WithRecordKey(ctx, key)

	if job.External {
		rec := &model.MeetingRecord{
			MeetingID:   job.MeetingID,
			CreatedAt:   createdAt,
			Status:      model.StatusPending,
			Stage:       model.StageTranscribing,
			Filename:    job.Filename,
			MeetingType: job.MeetingType,
			S3Key:       job.S3Key,
			UpdatedAt:   now,
		}
		if err := s.Record.Put(ctx, rec); err != nil {
			return pipeline.Wrap(pipeline.ErrTransient, err)
		}
	}

	results := s.runTracks(ctx, job.MeetingID, job.S3Key, log)

	if results.transcribeKey == "" && results.whisperKey == "" && results.funasrKey == "" {
		return pipeline.Wrap(pipeline.ErrPermanent, errors.New("ALL_TRACKS_FAILED"))
	}

	patch := &model.MeetingRecord{
		Status:        model.StatusTranscribed,
		TranscribeKey: results.transcribeKey,
		WhisperKey:    results.whisperKey,
		FunasrKey:     results.funasrKey,
		UpdatedAt:     s.clock().Now(),
	}
	fields := []string{"status", "transcribeKey", "whisperKey", "funasrKey", "updatedAt"}
	if err := s.Record.Update(ctx, key, patch, fields, ""); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, err)
	}

	meetingType, err := s.resolveMeetingType(ctx, job, key)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, err)
	}

	done := model.TranscribeDone{
		MeetingID:     job.MeetingID,
		CreatedAt:     createdAt,
		TranscribeKey: results.transcribeKey,
		WhisperKey:    results.whisperKey,
		FunasrKey:     results.funasrKey,
		MeetingType:   meetingType,
	}
	body2, err := json.Marshal(done)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, err)
	}
	if err := s.Queue.Send(ctx, s.Cfg.ReportQueueURL, body2); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, err)
	}

	return nil
}

func (s *Stage) clock() ports.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return ports.SystemClock{}
}

// MarkFailed implements pipeline.FailureRecorder.
func (s *Stage) MarkFailed(ctx context.Context, key model.RecordKey, message string) error {
	patch := &model.MeetingRecord{
		Status:       model.StatusFailed,
		Stage:        model.StageFailed,
		ErrorMessage: message,
		UpdatedAt:    s.clock().Now(),
	}
	return s.Record.Update(ctx, key, patch, []string{"status", "stage", "errorMessage", "updatedAt"}, "")
}

// isDuplicate queries the (status, createdAt) index for each of the four
// "already in flight or done" statuses, stopping at the first hit.
func (s *Stage) isDuplicate(ctx context.Context, s3Key string) (bool, error) {
	filter := &ports.QueryFilter{Attribute: "s3Key", Value: s3Key}
	for _, status := range dedupStatuses {
		recs, err := s.Record.Query(ctx, status, filter, 1)
		if err != nil {
			return false, err
		}
		if len(recs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// resolveCreatedAt returns the createdAt that must be used for this job:
// the value synthesized or carried on the message. Internal messages are
// required to carry it (the upload/retry collaborators always populate it);
// a missing value on an internal message is a permanent validation defect.
func (s *Stage) resolveCreatedAt(job model.NewJob, now time.Time) (time.Time, error) {
	if job.CreatedAt != nil {
		return *job.CreatedAt, nil
	}
	if job.External {
		return now, nil
	}
	return time.Time{}, fmt.Errorf("internal NewJob for %s missing createdAt", job.MeetingID)
}

// resolveMeetingType applies the precedence: message value (if non-empty
// and not "general") > record lookup > general.
func (s *Stage) resolveMeetingType(ctx context.Context, job model.NewJob, key model.RecordKey) (model.MeetingType, error) {
	if job.MeetingType != "" && job.MeetingType != model.MeetingGeneral {
		return job.MeetingType, nil
	}
	rec, err := s.Record.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if rec != nil && rec.MeetingType != "" {
		return rec.MeetingType, nil
	}
	return model.MeetingGeneral, nil
}

// trackResults collects each enabled track's per-job blob key, empty when
// the track was disabled, unhealthy, or failed.
type trackResults struct {
	transcribeKey string
	whisperKey    string
	funasrKey     string
}

// runTracks fans out to every enabled ASR track in parallel. Each track is
// launched as its own goroutine before any blocking call begins, so one
// track's failure can never cancel or skip the others.
func (s *Stage) runTracks(ctx context.Context, meetingID, s3Key string, log *slog.Logger) trackResults {
	type trackOutcome struct {
		name string
		key  string
		err  error
	}

	outcomes := make(chan trackOutcome, 3)
	launched := 0

	if s.Cfg.EnableTranscribe && s.TranscribeASR != nil {
		launched++
		go func() {
			key, err := s.runTranscribeTrack(ctx, meetingID, s3Key)
			outcomes <- trackOutcome{"transcribe", key, err}
		}()
	}
	if s.Cfg.EnableWhisper && s.Whisper != nil {
		launched++
		go func() {
			key, err := s.runHTTPTrack(ctx, s.Whisper, "whisper", meetingID, s3Key, "")
			outcomes <- trackOutcome{"whisper", key, err}
		}()
	}
	if s.Cfg.EnableFunASR && s.FunASR != nil {
		launched++
		go func() {
			key, err := s.runHTTPTrack(ctx, s.FunASR, "funasr", meetingID, s3Key, "auto")
			outcomes <- trackOutcome{"funasr", key, err}
		}()
	}

	var results trackResults
	for i := 0; i < launched; i++ {
		o := <-outcomes
		if o.err != nil {
			log.With("track", o.name, "error", o.err).Warn("ASR track failed; continuing with remaining tracks")
			continue
		}
		switch o.name {
		case "transcribe":
			results.transcribeKey = o.key
		case "whisper":
			results.whisperKey = o.key
		case "funasr":
			results.funasrKey = o.key
		}
	}
	return results
}

// runTranscribeTrack starts an AWS-style transcription job and polls it to
// completion: poll every 10s, up to 180 attempts (30 min).
func (s *Stage) runTranscribeTrack(ctx context.Context, meetingID, s3Key string) (string, error) {
	jobName := meetingID + "-transcribe"
	mediaURI := fmt.Sprintf("s3://%s/%s", s.Cfg.S3Bucket, s3Key)

	if err := s.TranscribeASR.Start(ctx, jobName, mediaURI, "en-US", ""); err != nil {
		return "", err
	}

	interval := s.Cfg.ExternalJobPollInterval
	attempts := s.Cfg.ExternalJobMaxAttempts
	for attempt := 0; attempt < attempts; attempt++ {
		state, err := s.TranscribeASR.Get(ctx, jobName)
		if err != nil {
			return "", err
		}
		switch state.Status {
		case ports.TranscriptionCompleted:
			return s.copyTranscribeOutput(ctx, meetingID, state.OutputLocation)
		case ports.TranscriptionFailed:
			return "", fmt.Errorf("transcribe job %s failed: %s", jobName, state.FailureReason)
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", fmt.Errorf("transcribe job %s timed out after %d attempts", jobName, attempts)
}

// copyTranscribeOutput fetches the completed job's output and re-keys it
// under the canonical transcripts/<meetingId>/transcribe.json location.
func (s *Stage) copyTranscribeOutput(ctx context.Context, meetingID, outputLocation string) (string, error) {
	r, err := s.Blob.Get(ctx, outputLocation)
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("transcripts/%s/transcribe.json", meetingID)
	return s.Blob.Put(ctx, key, data, "application/json")
}

// runHTTPTrack executes the shared Whisper/FunASR shape: a 5s health probe,
// then a POST bounded by a 30-minute cancellation, storing the normalized
// response at the track's canonical blob key.
func (s *Stage) runHTTPTrack(ctx context.Context, track ports.HTTPASR, name, meetingID, s3Key, language string) (string, error) {
	healthCtx, cancel := context.WithTimeout(ctx, s.Cfg.HealthProbeTimeout)
	healthy := track.Healthy(healthCtx)
	cancel()
	if !healthy {
		return "", nil
	}

	postCtx, cancel := context.WithTimeout(ctx, s.Cfg.HTTPTrackTimeout)
	defer cancel()

	resp, err := track.Transcribe(postCtx, s.Cfg.S3Bucket, s3Key, language)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("transcripts/%s/%s.json", meetingID, name)
	return s.Blob.Put(ctx, key, data, "application/json")
}
