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

// =============================================================================
// IndexStore — Embedding Persistence
// =============================================================================
//
// Example vectors are the expensive part of startup: one embeddings API
// round trip per batch of catalog phrases. They change only when the
// catalog text or the embedding model changes. This store persists the
// built index in BadgerDB between restarts.
//
// Storage layout:
//
//	dispatch/index/v1/{corpusHash}  →  gob-encoded snapshot
//	                                    (dims + entries + unit vectors)
//	                                    TTL: 7 days
//
// The corpus hash is SHA256 over every intent's name, description, and
// examples plus the embedding model name, so any catalog edit or model
// swap is an automatic cache miss. Expired keys surface as ErrKeyNotFound,
// which the store reports as a miss.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/IntentBridge/services/dispatch/catalog"
	"github.com/AleutianAI/IntentBridge/services/dispatch/storage/badgerdb"
)

// indexStoreDefaultTTL keeps snapshots alive across weekends and short
// deployments without letting stale data pile up forever.
const indexStoreDefaultTTL = 7 * 24 * time.Hour

// indexStoreKeyPrefix versions the storage layout so future format changes
// cannot collide with old entries.
const indexStoreKeyPrefix = "dispatch/index/v1/"

// errStoreMiss distinguishes "key absent or expired" from a real storage
// failure inside Load.
var errStoreMiss = errors.New("index store miss")

// snapshot is the gob wire form of a built index.
type snapshot struct {
	Dims    int
	Entries []Entry
	Vectors [][]float32
}

// =============================================================================
// IndexStore Interface
// =============================================================================

// IndexStore persists built indexes across restarts, keyed by corpus hash.
//
// # Description
//
// Both methods are nil-safe at the caller: the Builder checks for a nil
// IndexStore and skips persistence, operating in in-memory-only mode.
// That is the correct behavior for tests and for hosts without a cache
// directory configured.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type IndexStore interface {
	// Load retrieves the snapshot for corpusHash.
	// Returns (nil, nil) on miss, (nil, error) on storage failure.
	Load(ctx context.Context, corpusHash string) (*Index, error)

	// Save persists the index under corpusHash with the store's TTL.
	// Failure is non-fatal to callers; the index is already in memory.
	Save(ctx context.Context, corpusHash string, ix *Index) error
}

// =============================================================================
// BadgerIndexStore
// =============================================================================

// BadgerIndexStore implements IndexStore on a shared BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerIndexStore struct {
	db     *badgerdb.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerIndexStore wraps an open DB. The caller owns the DB lifecycle.
//
// # Inputs
//
//   - db: Opened database. Must not be nil.
//   - ttl: Snapshot lifetime. Pass 0 for the 7-day default.
//   - logger: Hit/miss diagnostics. Nil means slog.Default().
func NewBadgerIndexStore(db *badgerdb.DB, ttl time.Duration, logger *slog.Logger) *BadgerIndexStore {
	if db == nil {
		panic("NewBadgerIndexStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = indexStoreDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerIndexStore{db: db, ttl: ttl, logger: logger}
}

// Load retrieves a cached index, or (nil, nil) on miss.
func (s *BadgerIndexStore) Load(ctx context.Context, corpusHash string) (*Index, error) {
	key := []byte(indexStoreKeyPrefix + corpusHash)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errStoreMiss
		}
		if err != nil {
			return fmt.Errorf("get index key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errStoreMiss) {
		s.logger.Debug("index store: miss", slog.String("hash", shortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index store load: %w", err)
	}

	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("index store decode: %w", err)
	}

	ix, err := New(snap.Dims, snap.Entries, snap.Vectors)
	if err != nil {
		return nil, fmt.Errorf("index store snapshot invalid: %w", err)
	}

	s.logger.Debug("index store: hit",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("examples", ix.Len()),
	)
	return ix, nil
}

// Save persists the index snapshot with the configured TTL.
func (s *BadgerIndexStore) Save(ctx context.Context, corpusHash string, ix *Index) error {
	var buf bytes.Buffer
	snap := snapshot{Dims: ix.dims, Entries: ix.entries, Vectors: ix.vectors}
	if err := gob.NewEncoder(&buf).Encode(&snap); err != nil {
		return fmt.Errorf("index store encode: %w", err)
	}

	key := []byte(indexStoreKeyPrefix + corpusHash)
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("index store save: %w", err)
	}

	s.logger.Debug("index store: saved",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("examples", ix.Len()),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// =============================================================================
// Corpus Hash
// =============================================================================

// CorpusHash digests everything that shapes the index vectors: each
// intent's name, description, and examples (in catalog order, which is
// part of index identity) plus the embedding model name.
func CorpusHash(cat *catalog.Catalog, model string) string {
	h := sha256.New()
	for _, def := range cat.Intents() {
		fmt.Fprintf(h, "%s\t%s\t%s\n", def.Domain, def.Name, def.Description)
		for _, ex := range def.Examples {
			fmt.Fprintf(h, "\t%s\n", ex)
		}
	}
	fmt.Fprintf(h, "model=%s\n", model)
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash trims a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}
