// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Candidate Ranking
// =============================================================================

var (
	// rankCallsTotal counts ranking passes by cache outcome.
	// Labels: cache (hit, miss)
	rankCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentbridge",
		Subsystem: "ranker",
		Name:      "rank_calls_total",
		Help:      "Total ranking passes by query-embedding cache outcome",
	}, []string{"cache"})

	// gateDecisionsTotal counts gate outcomes.
	// Labels: outcome (accept, ambiguous, no_match)
	gateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "intentbridge",
		Subsystem: "ranker",
		Name:      "gate_decisions_total",
		Help:      "Total confidence gate decisions by outcome",
	}, []string{"outcome"})

	// topScoreHistogram records the best candidate's similarity per query.
	topScoreHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intentbridge",
		Subsystem: "ranker",
		Name:      "top_score",
		Help:      "Best candidate cosine similarity per ranked query",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
	})

	// rankLatencySeconds measures end-to-end ranking latency including the
	// query embedding call on cache misses.
	rankLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "intentbridge",
		Subsystem: "ranker",
		Name:      "rank_latency_seconds",
		Help:      "End-to-end ranking latency including query embedding",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)
