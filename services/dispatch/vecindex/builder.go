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
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/embed"
)

// buildBatchSize is how many example phrases go into one embeddings call.
const buildBatchSize = 64

// buildConcurrency is the number of parallel embedding calls during a
// build. Enough to hide round-trip latency without tripping API limits.
const buildConcurrency = 4

// Builder turns a catalog into a searchable index, consulting an optional
// persistent store before paying for embeddings.
//
// # Thread Safety
//
// Safe for concurrent use; Build holds no builder state.
type Builder struct {
	embedder embed.Embedder
	store    IndexStore // nil disables persistence
	logger   *slog.Logger
}

// NewBuilder creates a Builder.
//
// # Inputs
//
//   - embedder: Vector source. Must not be nil.
//   - store: Optional persistence. Nil means in-memory-only.
//   - logger: Build diagnostics. Nil means slog.Default().
func NewBuilder(embedder embed.Embedder, store IndexStore, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{embedder: embedder, store: store, logger: logger}
}

// Build embeds every example phrase of every intent and assembles the index.
//
// # Description
//
// The store is checked first: a snapshot under the catalog's corpus hash
// skips embedding entirely. On a miss, phrases are embedded in parallel
// batches, assembled in catalog order, and persisted back (persistence
// failure is logged, not returned — the index is already in memory).
//
// Unlike a best-effort warm-up, a failed batch fails the whole build:
// a partially indexed catalog would silently misroute queries whose
// intent happens to be in the missing part.
//
// # Inputs
//
//   - ctx: Cancels in-flight embedding calls.
//   - cat: Loaded catalog. Must contain at least one intent with examples.
//
// # Outputs
//
//   - *Index: Searchable index. Nil on error.
//   - error: Non-nil when any embedding batch fails or the catalog has no
//     examples. Embedding backend failures pass through embed.ErrUnavailable.
func (b *Builder) Build(ctx context.Context, cat *catalog.Catalog) (*Index, error) {
	var entries []Entry
	var docs []string
	for _, def := range cat.Intents() {
		for _, ex := range def.Examples {
			entries = append(entries, Entry{Intent: def.Name, Domain: def.Domain, Example: ex})
			docs = append(docs, catalog.EmbeddingDoc(def, ex))
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("vecindex: catalog has no examples to index")
	}

	hash := CorpusHash(cat, b.embedder.Model())
	if b.store != nil {
		cached, err := b.store.Load(ctx, hash)
		if err != nil {
			b.logger.Warn("index build: store load failed, re-embedding",
				slog.String("error", err.Error()),
			)
		} else if cached != nil {
			b.logger.Info("index build: loaded from store",
				slog.Int("examples", cached.Len()),
				slog.String("corpus_hash", shortHash(hash)),
			)
			return cached, nil
		}
	}

	start := time.Now()
	b.logger.Info("index build: embedding catalog examples",
		slog.Int("examples", len(docs)),
		slog.String("model", b.embedder.Model()),
	)

	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, buildConcurrency)

	for off := 0; off < len(docs); off += buildBatchSize {
		lo, hi := off, min(off+buildBatchSize, len(docs))
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			batch, err := b.embedder.EmbedBatch(gctx, docs[lo:hi])
			if err != nil {
				return fmt.Errorf("embedding batch [%d:%d]: %w", lo, hi, err)
			}
			copy(vectors[lo:hi], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("vecindex: %w", err)
	}

	ix, err := New(b.embedder.Dimensions(), entries, vectors)
	if err != nil {
		return nil, err
	}

	b.logger.Info("index build: complete",
		slog.Int("examples", ix.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)

	if b.store != nil {
		if err := b.store.Save(ctx, hash, ix); err != nil {
			b.logger.Warn("index build: persist failed, continuing in-memory",
				slog.String("error", err.Error()),
			)
		}
	}

	return ix, nil
}
