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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/anchorsave/pkg/ux"
	"github.com/AleutianAI/anchorsave/services/save/persistence"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report changes to the save files until interrupted",
		Long: `watch follows the save directory and prints a line whenever the
primary, backup or staging file is written, renamed or removed. It does
not open the save or the key store, so it can run next to the game.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defer logger.Close()

			saveCfg := cfg.Persistence(logger.Slog())
			if err := os.MkdirAll(saveCfg.Dir, 0o700); err != nil {
				return fmt.Errorf("create save directory: %w", err)
			}
			w, err := newSlotWatcher(saveCfg.Paths(), logger.Slog())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := opts.printer()
			out.Title("Watching " + saveCfg.Dir)
			w.Run(ctx, func(ev slotEvent) {
				out.Status(ev.icon(), fmt.Sprintf("%s %s", ev.Slot, ev.Op))
			})
			return nil
		},
	}
}

// slotEvent is a filesystem event on one of the save files.
type slotEvent struct {
	Slot string
	Op   fsnotify.Op
	Path string
}

func (e slotEvent) icon() ux.Icon {
	if e.Op.Has(fsnotify.Remove) {
		return ux.IconWarning
	}
	return ux.IconSuccess
}

// slotWatcher filters fsnotify events on the save directory down to the
// files a persistence manager owns.
type slotWatcher struct {
	watcher *fsnotify.Watcher
	slots   map[string]string
	logger  *slog.Logger
}

// newSlotWatcher starts watching the directory of paths.Primary. Watching
// the directory rather than the files keeps renames over the primary
// visible.
func newSlotWatcher(paths persistence.Paths, logger *slog.Logger) (*slotWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(paths.Primary)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &slotWatcher{
		watcher: watcher,
		slots: map[string]string{
			filepath.Clean(paths.Primary): string(persistence.SlotPrimary),
			filepath.Clean(paths.Backup):  string(persistence.SlotBackup),
			filepath.Clean(paths.Temp):    "staging",
		},
		logger: logger.With(slog.String("component", "watch")),
	}, nil
}

// Run delivers events to fn until ctx is done or the watcher closes, then
// releases the watcher.
func (w *slotWatcher) Run(ctx context.Context, fn func(slotEvent)) {
	defer w.watcher.Close()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			slot, tracked := w.slots[filepath.Clean(event.Name)]
			if !tracked {
				continue
			}
			fn(slotEvent{Slot: slot, Op: event.Op, Path: event.Name})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("save watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			return
		}
	}
}
