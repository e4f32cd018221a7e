// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type fakeQueue struct{ mu sync.Mutex }

func (q *fakeQueue) Receive(ctx context.Context, queueURL string, max int, wait int) ([]ports.Message, error) {
	return nil, nil
}
func (q *fakeQueue) Delete(ctx context.Context, queueURL, receiptHandle string) error { return nil }
func (q *fakeQueue) Send(ctx context.Context, queueURL string, body []byte) error     { return nil }

type fakeBlob struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeBlob() *fakeBlob { return &fakeBlob{store: map[string][]byte{}} }

func (b *fakeBlob) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.store[key]
	if !ok {
		return nil, errors.New("not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlob) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store[key] = body
	return key, nil
}

type fakeRecordStore struct {
	mu    sync.Mutex
	byKey map[string]*model.MeetingRecord
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{byKey: map[string]*model.MeetingRecord{}}
}

func recKey(k model.RecordKey) string { return k.MeetingID + "|" + k.CreatedAt.String() }

func (r *fakeRecordStore) Get(ctx context.Context, key model.RecordKey) (*model.MeetingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byKey[recKey(key)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeRecordStore) Put(ctx context.Context, item *model.MeetingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *item
	r.byKey[recKey(item.Key())] = &copied
	return nil
}

func (r *fakeRecordStore) Update(ctx context.Context, key model.RecordKey, patch *model.MeetingRecord, fields []string, condition model.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byKey[recKey(key)]
	if !ok {
		return errors.New("no such record")
	}
	if condition != "" && rec.Status != condition {
		return ports.ErrConditionFailed
	}
	for _, f := range fields {
		switch f {
		case "status":
			rec.Status = patch.Status
		case "stage":
			rec.Stage = patch.Stage
		case "errorMessage":
			rec.ErrorMessage = patch.ErrorMessage
		case "updatedAt":
			rec.UpdatedAt = patch.UpdatedAt
		case "exportedAt":
			rec.ExportedAt = patch.ExportedAt
		}
	}
	return nil
}

func (r *fakeRecordStore) Query(ctx context.Context, status model.Status, filter *ports.QueryFilter, limit int) ([]*model.MeetingRecord, error) {
	return nil, nil
}

type sentEmail struct {
	msg ports.EmailMessage
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (e *fakeEmail) SendHTML(ctx context.Context, msg ports.EmailMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, sentEmail{msg})
	return nil
}
