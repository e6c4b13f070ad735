// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embed produces the dense vectors the intent index searches over.
//
// Two implementations ship: OpenAIEmbedder calls the /v1/embeddings API,
// and HashEmbedder produces cheap deterministic vectors for tests and
// offline runs. Callers treat any Embed error as an infrastructure
// failure, never as evidence that a query matches nothing.
package embed

import (
	"context"
	"errors"
	"math"
)

// ErrUnavailable marks an embedding backend that cannot be reached at all,
// as opposed to a transient per-request failure. Callers surface it
// distinctly so users can tell "service down" from "no match".
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder converts text into unit-normalized vectors.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed returns the vector for one text. The result is unit-normalized
	// so cosine similarity reduces to a dot product.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one round trip where the backend
	// supports it. Result order matches input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the vector width this embedder produces.
	Dimensions() int

	// Model identifies the embedding model, for cache invalidation.
	Model() string
}

// Normalize scales v to unit length in place and returns it. A zero
// vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
