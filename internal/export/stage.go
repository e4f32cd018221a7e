// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package export implements the export stage worker: it consumes
// ReportDone messages, renders the stored report as an HTML email body,
// resolves recipients, sends the email, and advances the record to its
// terminal state.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/pipeline"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

// Config bundles the export stage's tunables.
type Config struct {
	FromEmail  string
	DefaultTo  string
	DefaultBCC string
}

// Stage is the export stage worker.
type Stage struct {
	Cfg Config

	Queue  ports.Queue
	Blob   ports.Blob
	Record ports.Record
	Email  ports.Email
	Clock  ports.Clock
	Logger *slog.Logger

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

// Process parses ReportDone, fetches the report JSON, renders it to an
// HTML body, resolves recipients, sends, and marks the record completed.
func (s *Stage) Process(ctx context.Context, body []byte) error {
	var msg model.ReportDone
	if err := json.Unmarshal(body, &msg); err != nil {
		return pipeline.Wrap(pipeline.ErrValidation, fmt.Errorf("export: decoding ReportDone: %w", err))
	}
	if msg.MeetingID == "" || msg.ReportKey == "" {
		return pipeline.Wrap(pipeline.ErrValidation, fmt.Errorf("export: ReportDone missing meetingId or reportKey"))
	}

	key := model.RecordKey{MeetingID: msg.MeetingID, CreatedAt: msg.CreatedAt}
	ctx = pipeline.WithRecordKey(ctx, key)

	sendingPatch := &model.MeetingRecord{Stage: model.StageSending, UpdatedAt: s.clock().Now()}
	if err := s.Record.Update(ctx, key, sendingPatch, []string{"stage", "updatedAt"}, ""); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("export: marking stage sending: %w", err))
	}

	rec, err := s.Record.Get(ctx, key)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("export: loading record: %w", err))
	}
	if rec == nil {
		return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("export: no record for meetingId %q", msg.MeetingID))
	}

	r, err := s.Blob.Get(ctx, msg.ReportKey)
	if err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("export: fetching report: %w", err))
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("export: reading report: %w", err))
	}

	var report map[string]any
	if err := json.Unmarshal(data, &report); err != nil {
		return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("export: parsing stored report: %w", err))
	}

	to, bcc, skip := s.resolveRecipients(rec.RecipientEmails)
	if !skip {
		html, err := renderHTML(report, msg.MeetingName)
		if err != nil {
			return pipeline.Wrap(pipeline.ErrPermanent, fmt.Errorf("export: rendering email body: %w", err))
		}

		subject := msg.MeetingName
		if subject == "" {
			subject = "Meeting minutes: " + msg.MeetingID
		}

		err = s.Email.SendHTML(ctx, ports.EmailMessage{
			From:     s.Cfg.FromEmail,
			To:       to,
			BCC:      bcc,
			Subject:  subject,
			HTMLBody: html,
		})
		if err != nil {
			return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("export: sending email: %w", err))
		}
	} else {
		s.log().With("meetingId", msg.MeetingID).Info("no recipients resolved; completing without sending email")
	}

	now := s.clock().Now()
	patch := &model.MeetingRecord{
		Status:     model.StatusCompleted,
		Stage:      model.StageDone,
		UpdatedAt:  now,
		ExportedAt: &now,
	}
	if err := s.Record.Update(ctx, key, patch, []string{"status", "stage", "updatedAt", "exportedAt"}, ""); err != nil {
		return pipeline.Wrap(pipeline.ErrTransient, fmt.Errorf("export: updating record: %w", err))
	}

	return nil
}

// resolveRecipients applies a three-branch rule: custom recipients on the
// record get the default BCC added; no custom recipients
// falls back to the configured default To address; neither present means
// the job still completes, just without sending.
func (s *Stage) resolveRecipients(custom []string) (to []string, bcc []string, skip bool) {
	if len(custom) > 0 {
		if s.Cfg.DefaultBCC != "" {
			return custom, []string{s.Cfg.DefaultBCC}, false
		}
		return custom, nil, false
	}
	if s.Cfg.DefaultTo != "" {
		return []string{s.Cfg.DefaultTo}, nil, false
	}
	return nil, nil, true
}

var bodyTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<body>
<h1>{{.Title}}</h1>
<p>{{.Summary}}</p>
{{if .Decisions}}<h2>Decisions</h2><ul>{{range .Decisions}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Actions}}<h2>Action Items</h2><ul>{{range .Actions}}<li><strong>{{.Owner}}</strong>: {{.Task}}{{if .Deadline}} (due {{.Deadline}}){{end}}{{if .Priority}} [{{.Priority}}]{{end}}</li>{{end}}</ul>{{end}}
{{if .Extra}}{{range $section, $items := .Extra}}<h2>{{$section}}</h2><ul>{{range $items}}<li>{{.}}</li>{{end}}</ul>{{end}}{{end}}
</body>
</html>
`))

type templateData struct {
	Title     string
	Summary   string
	Decisions []string
	Actions   []actionItemView
	Extra     map[string][]string
}

type actionItemView struct {
	Owner    string
	Task     string
	Deadline string
	Priority string
}

// renderHTML builds the export email body from the validated report object
// using html/template, whose contextual autoescaping is the correct
// defense here: the report's prose fields originate from an LLM and must
// never be interpreted as markup. None of the meetingType schemas carry a
// title field, so the subject line doubles as the heading; unrecognized
// string-array sections (keyTopics, highlights, techStack, and the like)
// fall through to a generic bulleted section, and the richer nested
// sections (teamKPI, customerInfo, projectReviews, ...) are skipped
// silently, matching the spec's "unknown sections are skipped" rule.
func renderHTML(report map[string]any, fallbackTitle string) (string, error) {
	data := templateData{Extra: map[string][]string{}}

	data.Title = fallbackTitle
	data.Summary = stringField(report, "summary")
	data.Decisions = stringSliceField(report, "decisions")
	data.Actions = append(data.Actions, actionEntries(report, "actions")...)
	data.Actions = append(data.Actions, actionEntries(report, "nextSteps")...)

	knownFields := map[string]bool{
		"summary": true, "decisions": true, "actions": true, "nextSteps": true,
	}
	for field, values := range report {
		if knownFields[field] {
			continue
		}
		if items, ok := values.([]any); ok {
			var strs []string
			for _, v := range items {
				if s, ok := v.(string); ok {
					strs = append(strs, s)
				}
			}
			if len(strs) > 0 {
				data.Extra[field] = strs
			}
		}
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// actionEntries extracts the {task,owner,deadline,priority} array at field,
// shared by the general/weekly/tech "actions" sections and the customer
// "nextSteps" section.
func actionEntries(report map[string]any, field string) []actionItemView {
	raw, ok := report[field].([]any)
	if !ok {
		return nil
	}
	var out []actionItemView
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, actionItemView{
			Owner:    stringField(m, "owner"),
			Task:     stringField(m, "task"),
			Deadline: stringField(m, "deadline"),
			Priority: stringField(m, "priority"),
		})
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
