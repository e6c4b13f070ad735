// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vecindex

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// queryCacheSize bounds the query-vector cache. Interactive sessions
// repeat phrasings constantly; 100 entries covers a session without
// holding meaningful memory.
const queryCacheSize = 100

// QueryCache memoizes query embedding vectors by normalized query text.
//
// # Description
//
// Keys are lowercased and whitespace-trimmed so trivial rephrasings
// ("Move X to done " vs "move x to done") share an entry. Values are the
// unit vectors the embedder returned; they are stored by reference and
// must not be mutated by callers.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying LRU locks internally.
type QueryCache struct {
	lru *lru.Cache[string, []float32]
}

// NewQueryCache creates a cache with the standard size.
func NewQueryCache() *QueryCache {
	// lru.New errors only on non-positive size.
	c, _ := lru.New[string, []float32](queryCacheSize)
	return &QueryCache{lru: c}
}

// Get returns the cached vector for query, if present.
func (c *QueryCache) Get(query string) ([]float32, bool) {
	return c.lru.Get(cacheKey(query))
}

// Put stores the vector for query, evicting the oldest entry when full.
func (c *QueryCache) Put(query string, vec []float32) {
	c.lru.Add(cacheKey(query), vec)
}

// Len reports the number of cached queries.
func (c *QueryCache) Len() int { return c.lru.Len() }

func cacheKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
