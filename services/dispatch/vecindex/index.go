// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vecindex holds the flat cosine-similarity index the matcher
// searches. One entry per catalog example phrase; the ranker collapses
// per-example hits into per-intent candidates.
package vecindex

import (
	"fmt"
	"sort"
)

// =============================================================================
// Types
// =============================================================================

// Entry is one indexed example phrase.
type Entry struct {
	// Intent is the owning intent's name.
	Intent string

	// Domain tags the backend the intent belongs to.
	Domain string

	// Example is the raw example phrase from the catalog.
	Example string
}

// Hit is one search result.
type Hit struct {
	// Entry is the matched example.
	Entry Entry

	// Score is cosine similarity clamped to [0, 1].
	Score float64

	// Position is the entry's insertion index; ties sort by it, so catalog
	// order decides between equal scores.
	Position int
}

// Index is an exact (brute-force) cosine index over unit vectors.
//
// # Description
//
// Catalogs hold tens to low hundreds of examples; a linear scan over that
// many dot products is microseconds and beats any approximate structure on
// both simplicity and recall. Vectors are stored unit-normalized, so
// similarity is a plain dot product clamped at zero.
//
// # Thread Safety
//
// Safe for concurrent reads after construction. The index is immutable.
type Index struct {
	dims    int
	entries []Entry
	vectors [][]float32
}

// =============================================================================
// Construction
// =============================================================================

// New assembles an index from parallel entry and vector slices.
//
// # Inputs
//
//   - dims: Expected vector width. Every vector must match.
//   - entries: Indexed examples, in catalog order.
//   - vectors: Unit-normalized vectors, parallel to entries.
//
// # Outputs
//
//   - *Index: Immutable index. Nil on error.
//   - error: Non-nil on length or dimension mismatch.
func New(dims int, entries []Entry, vectors [][]float32) (*Index, error) {
	if len(entries) != len(vectors) {
		return nil, fmt.Errorf("vecindex: %d entries but %d vectors", len(entries), len(vectors))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("vecindex: empty index")
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("vecindex: vector %d has %d dimensions, want %d", i, len(v), dims)
		}
	}
	return &Index{dims: dims, entries: entries, vectors: vectors}, nil
}

// =============================================================================
// Search
// =============================================================================

// Search returns the k best entries for a unit query vector, scored by
// cosine similarity, highest first. Equal scores keep insertion order.
//
// # Inputs
//
//   - query: Unit-normalized query vector. Width must equal Dims().
//   - k: Maximum results. k <= 0 or k > Len() returns all entries.
//
// # Outputs
//
//   - []Hit: Sorted hits. Never empty on success.
//   - error: Non-nil on dimension mismatch.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dims {
		return nil, fmt.Errorf("vecindex: query has %d dimensions, index has %d", len(query), ix.dims)
	}

	hits := make([]Hit, 0, len(ix.entries))
	for i, vec := range ix.vectors {
		var dot float64
		for j := range vec {
			dot += float64(query[j]) * float64(vec[j])
		}
		// Negative cosine carries no "this matches" signal for intent
		// phrases; clamp so scores stay comparable to the threshold scale.
		if dot < 0 {
			dot = 0
		}
		if dot > 1 {
			dot = 1 // float drift on near-identical vectors
		}
		hits = append(hits, Hit{Entry: ix.entries[i], Score: dot, Position: i})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Position < hits[b].Position
	})

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Dims reports the vector width the index was built with.
func (ix *Index) Dims() int { return ix.dims }

// Len reports the number of indexed examples.
func (ix *Index) Len() int { return len(ix.entries) }

// Entries exposes the indexed examples in insertion order. The returned
// slice is shared; callers must not mutate it.
func (ix *Index) Entries() []Entry { return ix.entries }
