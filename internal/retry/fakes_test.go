// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type sentMsg struct {
	queueURL string
	body     []byte
}

type fakeQueue struct {
	mu      sync.Mutex
	sent    []sentMsg
	sendErr error
}

func (q *fakeQueue) Receive(ctx context.Context, queueURL string, max int, wait int) ([]ports.Message, error) {
	return nil, nil
}
func (q *fakeQueue) Delete(ctx context.Context, queueURL, receiptHandle string) error { return nil }
func (q *fakeQueue) Send(ctx context.Context, queueURL string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, sentMsg{queueURL, body})
	return nil
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
		}
	}
	return nil
}

func (r *fakeRecordStore) Query(ctx context.Context, status model.Status, filter *ports.QueryFilter, limit int) ([]*model.MeetingRecord, error) {
	return nil, nil
}
