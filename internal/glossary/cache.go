// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package glossary maintains the process-wide, TTL-bounded cache of
// glossary terms injected into LLM prompts. A stale read is acceptable
// since glossary terms only influence prompt hints, never correctness, so
// the cache is a single patrickmn/go-cache instance rather than anything
// coordinated across workers.
package glossary

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/sesame437/meeting-minutes/internal/model"
	"github.com/sesame437/meeting-minutes/internal/ports"
)

const allTermsKey = "all"

// Cache wraps a Glossary port with a single-entry TTL cache keyed on "all"
// (the whole term set is small and is always fetched together).
type Cache struct {
	source ports.Glossary
	store  *cache.Cache
}

// New builds a Cache with the given TTL. A TTL of zero falls back to a
// 10-minute default.
func New(source ports.Glossary, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		source: source,
		store:  cache.New(ttl, ttl/2),
	}
}

// Terms returns the full glossary term set, refreshing from the source on a
// cache miss or expiry. A concurrent refresh races harmlessly: at worst two
// goroutines both hit the source once.
func (c *Cache) Terms(ctx context.Context) ([]model.GlossaryTerm, error) {
	if cached, ok := c.store.Get(allTermsKey); ok {
		return cached.([]model.GlossaryTerm), nil
	}

	terms, err := c.source.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	c.store.SetDefault(allTermsKey, terms)
	return terms, nil
}
