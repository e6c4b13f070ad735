// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerdb wraps a BadgerDB instance with context-aware transaction
// helpers. The DB is a process-global singleton opened at startup; callers
// share it and never close it themselves.
package badgerdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// gcInterval is how often the value-log garbage collector runs.
const gcInterval = 10 * time.Minute

// gcDiscardRatio reclaims a value-log file once half of it is stale.
const gcDiscardRatio = 0.5

// DB wraps *badger.DB with context checks around each transaction.
//
// # Thread Safety
//
// Safe for concurrent use. Badger transactions are per-goroutine.
type DB struct {
	db     *dgbadger.DB
	logger *slog.Logger
	stopGC chan struct{}
}

// Open opens (creating if needed) a BadgerDB at dir.
//
// # Inputs
//
//   - dir: Directory for the key and value logs. Created if absent.
//   - logger: Destination for GC diagnostics. Nil means slog.Default().
//
// # Outputs
//
//   - *DB: Open database with background GC running. Nil on error.
//   - error: Non-nil if the directory cannot be opened or is locked.
func Open(dir string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := dgbadger.DefaultOptions(dir).
		WithLogger(nil). // badger's own logger is too chatty for a cache
		WithCompactL0OnClose(true)

	inner, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerdb: opening %s: %w", dir, err)
	}

	d := &DB{db: inner, logger: logger, stopGC: make(chan struct{})}
	go d.runGC()
	return d, nil
}

// Close stops GC and closes the underlying database.
func (d *DB) Close() error {
	close(d.stopGC)
	return d.db.Close()
}

// WithTxn runs fn inside a read-write transaction.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// runGC reclaims value-log space periodically until Close.
func (d *DB) runGC() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when nothing was reclaimed;
			// that is the common, uninteresting case.
			if err := d.db.RunValueLogGC(gcDiscardRatio); err != nil && err != dgbadger.ErrNoRewrite {
				d.logger.Debug("badgerdb: value log GC", slog.String("error", err.Error()))
			}
		}
	}
}
