// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the write bursts editors produce when saving a
// file. Reload fires once the burst has been quiet this long.
const watchDebounce = 500 * time.Millisecond

// Watcher reloads a catalog whenever one of its source files changes on
// disk and hands each successfully loaded snapshot to a callback.
//
// # Thread Safety
//
// The callback is invoked from a single internal goroutine, never
// concurrently with itself. Watcher itself is not safe for concurrent use;
// create it and call Run from one goroutine.
type Watcher struct {
	files    []DomainFile
	onReload func(*Catalog)
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher watches the given catalog files for changes.
//
// # Inputs
//
//   - files: The same (domain, path) pairs given to LoadFiles.
//   - onReload: Called with each catalog that loads cleanly after a change.
//     Catalogs that fail to load are logged and skipped; the previous
//     snapshot stays in effect.
//   - logger: Destination for reload diagnostics. Nil means slog.Default().
//
// # Outputs
//
//   - *Watcher: Ready to Run. Nil on error.
//   - error: Non-nil if the filesystem watcher cannot be created or a path
//     cannot be watched.
func NewWatcher(files []DomainFile, onReload func(*Catalog), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := fsw.Add(f.Path); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return &Watcher{
		files:    files,
		onReload: onReload,
		logger:   logger,
		fsw:      fsw,
	}, nil
}

// Run blocks, reloading on changes until ctx is cancelled. It always
// returns nil after cleanup; watch errors are logged, not fatal.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Editors that rename-over the file drop the watch; re-add.
			if ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) {
				_ = w.fsw.Add(ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	start := time.Now()
	cat, err := LoadFiles(w.files)
	if err != nil {
		w.logger.Error("catalog reload failed, keeping previous snapshot",
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Info("catalog reloaded",
		slog.Int("intents", cat.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)
	w.onReload(cat)
}
