// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/embed"
	"github.com/AleutianAI/IntentBridge/services/dispatch/extract"
	"github.com/AleutianAI/IntentBridge/services/dispatch/pipeline"
	"github.com/AleutianAI/IntentBridge/services/dispatch/ranker"
	"github.com/AleutianAI/IntentBridge/services/dispatch/storage/badgerdb"
	"github.com/AleutianAI/IntentBridge/services/dispatch/vecindex"
)

// stack bundles everything a command needs to serve queries.
type stack struct {
	files     []catalog.DomainFile
	cat       *catalog.Catalog
	embedder  embed.Embedder
	extractor extract.Extractor
	builder   *vecindex.Builder
	rank      *ranker.Ranker
	pipe      *pipeline.Pipeline
	db        *badgerdb.DB // nil when persistence is disabled
	offline   bool
	logger    *slog.Logger
}

// buildStack loads the catalogs, picks the online or offline backends, and
// assembles the pipeline.
//
// # Description
//
// With OPENAI_API_KEY set, embeddings come from the OpenAI API and
// extraction from the chat model (with regex fallback). Without it, both
// fall back to fully offline deterministic implementations. The embedding
// index persists under cacheDir keyed by catalog content, so unchanged
// catalogs never re-embed.
func buildStack(ctx context.Context, files []catalog.DomainFile, cacheDir string, logger *slog.Logger) (*stack, error) {
	cat, err := catalog.LoadFiles(files)
	if err != nil {
		return nil, err
	}

	s := &stack{files: files, cat: cat, logger: logger}

	if os.Getenv("OPENAI_API_KEY") != "" {
		embedder, err := embed.NewOpenAIEmbedder(logger)
		if err != nil {
			return nil, err
		}
		extractor, err := extract.NewOpenAIExtractor(logger)
		if err != nil {
			return nil, err
		}
		s.embedder = embedder
		s.extractor = extractor
	} else {
		logger.Info("OPENAI_API_KEY not set, using offline stack")
		s.embedder = embed.NewHashEmbedder()
		s.extractor = extract.NewPatternExtractor()
		s.offline = true
	}

	var store vecindex.IndexStore
	if cacheDir != "" {
		db, err := badgerdb.Open(cacheDir, logger)
		if err != nil {
			logger.Warn("index cache unavailable, continuing in-memory",
				slog.String("dir", cacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			s.db = db
			store = vecindex.NewBadgerIndexStore(db, 0, logger)
		}
	}
	s.builder = vecindex.NewBuilder(s.embedder, store, logger)

	ix, err := s.builder.Build(ctx, cat)
	if err != nil {
		s.Close()
		return nil, err
	}

	gate := ranker.GateConfig{
		Threshold:   thresholdVal,
		Epsilon:     epsilonVal,
		Suggestions: suggestCount,
	}
	s.rank = ranker.New(cat, ix, s.embedder, vecindex.NewQueryCache(), logger)
	s.pipe = pipeline.New(cat, s.rank, s.extractor, gate, logger)
	return s, nil
}

// reload rebuilds the index for a freshly loaded catalog and swaps it into
// the running pipeline. Used by the repl's --watch mode.
func (s *stack) reload(ctx context.Context, cat *catalog.Catalog) error {
	ix, err := s.builder.Build(ctx, cat)
	if err != nil {
		return err
	}
	s.rank = ranker.New(cat, ix, s.embedder, vecindex.NewQueryCache(), s.logger)
	s.pipe.SetCatalog(cat, s.rank)
	s.cat = cat
	return nil
}

func (s *stack) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("failed to close index cache", slog.String("error", err.Error()))
		}
	}
}
