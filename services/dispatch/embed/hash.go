// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// hashEmbedderDimensions keeps the vectors small; tests never need more.
const hashEmbedderDimensions = 64

// HashEmbedder produces deterministic pseudo-embeddings by hashing word
// n-grams into a fixed-width vector.
//
// # Description
//
// No network, no model. Texts sharing words land near each other, disjoint
// texts score near zero, and identical texts score 1.0 — enough structure
// for tests and for offline smoke runs of the full pipeline. Not a
// substitute for a real embedding model.
//
// # Thread Safety
//
// Safe for concurrent use; the embedder is stateless.
type HashEmbedder struct{}

// NewHashEmbedder returns the stateless hash embedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Embed hashes each lowercased word into two buckets of a fixed-width
// vector and unit-normalizes the result.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbedderDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?\"'()[]{}:;")
		if word == "" {
			continue
		}
		sum := sha256.Sum256([]byte(word))
		a := binary.BigEndian.Uint32(sum[0:4]) % hashEmbedderDimensions
		b := binary.BigEndian.Uint32(sum[4:8]) % hashEmbedderDimensions
		vec[a]++
		vec[b]++
	}
	return Normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions reports the fixed vector width.
func (h *HashEmbedder) Dimensions() int { return hashEmbedderDimensions }

// Model identifies this embedder for cache keys.
func (h *HashEmbedder) Model() string { return "hash-ngram-v1" }
