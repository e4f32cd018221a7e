// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package glossary

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sesame437/meeting-minutes/internal/model"
)

type fakeSource struct {
	calls int
	terms []model.GlossaryTerm
}

func (f *fakeSource) ScanAll(ctx context.Context) ([]model.GlossaryTerm, error) {
	f.calls++
	return f.terms, nil
}

func TestCache_RefreshesOnMissThenServesFromCache(t *testing.T) {
	src := &fakeSource{terms: []model.GlossaryTerm{{TermID: "t1", Term: "SLA"}}}
	c := New(src, 50*time.Millisecond)

	terms, err := c.Terms(context.Background())
	require.NoError(t, err)
	assert.Len(t, terms, 1)
	assert.Equal(t, 1, src.calls)

	_, err = c.Terms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second call within TTL must not hit the source")
}

func TestCache_RefreshesAfterExpiry(t *testing.T) {
	src := &fakeSource{terms: []model.GlossaryTerm{{TermID: "t1"}}}
	c := New(src, 20*time.Millisecond)

	_, err := c.Terms(context.Background())
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = c.Terms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "a stale entry must be refetched")
}
