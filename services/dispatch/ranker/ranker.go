// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ranker scores catalog intents against a user query and applies
// the confidence gate that decides accept, disambiguate, or no-match.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/embed"
	"github.com/AleutianAI/IntentBridge/services/dispatch/vecindex"
)

var rankerTracer = otel.Tracer("intentbridge.dispatch.ranker")

// =============================================================================
// Types
// =============================================================================

// Candidate is one intent ranked against a query.
type Candidate struct {
	// Intent is the matched catalog definition.
	Intent *catalog.IntentDefinition

	// Score is the intent's best example-level cosine similarity, in [0, 1].
	Score float64

	// Example is the catalog phrase that produced Score.
	Example string

	// Rank is 1-based position in the ranked list.
	Rank int
}

// Ranker embeds a query, searches the index, and collapses example-level
// hits into a per-intent ranking.
//
// # Thread Safety
//
// Safe for concurrent use after construction.
type Ranker struct {
	cat      *catalog.Catalog
	index    *vecindex.Index
	embedder embed.Embedder
	cache    *vecindex.QueryCache // nil disables query-vector caching
	logger   *slog.Logger
}

// New creates a Ranker.
//
// # Inputs
//
//   - cat: The catalog the index was built from.
//   - index: Built index over cat's examples.
//   - embedder: Must be the embedder (same model) the index was built with.
//   - cache: Optional query-vector cache. Nil disables caching.
//   - logger: Nil means slog.Default().
func New(cat *catalog.Catalog, index *vecindex.Index, embedder embed.Embedder, cache *vecindex.QueryCache, logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{cat: cat, index: index, embedder: embedder, cache: cache, logger: logger}
}

// =============================================================================
// Ranking
// =============================================================================

// Rank returns every catalog intent ordered by similarity to query.
//
// # Description
//
// The query vector comes from the cache when possible, otherwise from the
// embedder. All example hits are collapsed to one candidate per intent,
// keeping each intent's best-scoring example. Ordering is deterministic:
// score descending, then catalog insertion order, then intent name.
//
// An embedding failure is returned as an error — it means the scoring
// infrastructure is down, which the caller must not present as "no match".
//
// # Inputs
//
//   - ctx: Cancels the embedding call.
//   - query: Raw user utterance. Must be non-empty.
//
// # Outputs
//
//   - []Candidate: One entry per catalog intent, best first. Nil on error.
//   - error: Non-nil on empty query or embedding failure.
func (r *Ranker) Rank(ctx context.Context, query string) ([]Candidate, error) {
	ctx, span := rankerTracer.Start(ctx, "ranker.Ranker.Rank",
		trace.WithAttributes(attribute.Int("query.length", len(query))),
	)
	defer span.End()

	if query == "" {
		return nil, fmt.Errorf("ranker: empty query")
	}

	start := time.Now()
	qv, cached, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	if cached {
		rankCallsTotal.WithLabelValues("hit").Inc()
	} else {
		rankCallsTotal.WithLabelValues("miss").Inc()
	}

	hits, err := r.index.Search(qv, 0)
	if err != nil {
		return nil, fmt.Errorf("ranker: %w", err)
	}

	// Hits are sorted best-first, so the first hit seen for an intent is
	// that intent's best example.
	seen := make(map[string]bool, r.cat.Len())
	candidates := make([]Candidate, 0, r.cat.Len())
	for _, h := range hits {
		if seen[h.Entry.Intent] {
			continue
		}
		seen[h.Entry.Intent] = true
		candidates = append(candidates, Candidate{
			Intent:  r.cat.Intent(h.Entry.Intent),
			Score:   h.Score,
			Example: h.Entry.Example,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].Intent.Name < candidates[b].Intent.Name
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}

	if len(candidates) > 0 {
		topScoreHistogram.Observe(candidates[0].Score)
		span.SetAttributes(
			attribute.String("top.intent", candidates[0].Intent.Name),
			attribute.Float64("top.score", candidates[0].Score),
		)
	}
	rankLatencySeconds.Observe(time.Since(start).Seconds())

	r.logger.Debug("ranked query",
		slog.Int("candidates", len(candidates)),
		slog.Bool("cache_hit", cached),
		slog.Duration("elapsed", time.Since(start)),
	)
	return candidates, nil
}

// queryVector fetches the query embedding, consulting the cache first.
func (r *Ranker) queryVector(ctx context.Context, query string) ([]float32, bool, error) {
	if r.cache != nil {
		if vec, ok := r.cache.Get(query); ok {
			return vec, true, nil
		}
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("ranker: embedding query: %w", err)
	}
	if r.cache != nil {
		r.cache.Put(query, vec)
	}
	return vec, false, nil
}
