// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/anchorsave/services/save/savecrypto"
)

// commit serializes, encrypts and atomically replaces the primary file.
//
// Description:
//
//	The dirty flag is cleared before any work starts. A failed commit is not
//	retried by Tick; the next mutation, SaveNow or Close writes the
//	then-current tree. The unsaved flag is cleared only on success.
//
//	Steps:
//	  1. Serialize and protect the tree.
//	  2. Write the blob to the staging file, sync, close.
//	  3. If a primary exists, rename it over the backup slot.
//	  4. Rename the staging file to the primary slot.
//	  5. Sync the directory (failure is logged, not returned).
//
//	A failure in 1 or 2 leaves primary and backup untouched. A crash
//	between 3 and 4 leaves no primary and the previous primary in the
//	backup slot, which the next load picks up.
func (m *Manager) commit(ctx context.Context, trigger string) (err error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "anchorsave.Persistence.Commit",
		trace.WithAttributes(attribute.String("trigger", trigger)),
	)
	defer span.End()

	logger := loggerWithTrace(ctx, m.logger).With(
		slog.String("operation", "commit"),
		slog.String("trigger", trigger),
	)

	m.dirty = false
	m.metrics.pendingWrite.Set(0)

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
			logger.Error("commit failed", slog.String("error", err.Error()))
		}
		m.metrics.commitsTotal.WithLabelValues(trigger, status).Inc()
	}()

	m.tree.StampVersion()
	plaintext, err := m.serializer.Marshal(m.tree)
	if err != nil {
		return fmt.Errorf("serialize save: %w", err)
	}

	blob, err := m.protect(plaintext)
	if err != nil {
		return err
	}

	if err := m.writeStaging(blob, logger); err != nil {
		return err
	}

	if _, statErr := m.fs.Stat(m.paths.Primary); statErr == nil {
		if err := m.fs.Rename(m.paths.Primary, m.paths.Backup); err != nil {
			return ioError("backup", m.paths.Primary, err)
		}
	} else if !isNotExist(statErr) {
		return ioError("stat", m.paths.Primary, statErr)
	}

	if err := m.fs.Rename(m.paths.Temp, m.paths.Primary); err != nil {
		return ioError("rename", m.paths.Temp, err)
	}

	if err := m.fs.SyncDir(filepath.Dir(m.paths.Primary)); err != nil {
		logger.Warn("directory sync failed (save still written)",
			slog.String("error", err.Error()),
		)
	}

	m.unsaved = false
	duration := time.Since(start)
	m.metrics.commitDuration.Observe(duration.Seconds())
	m.metrics.commitBytes.Set(float64(len(blob)))
	span.SetAttributes(attribute.Int("blob_bytes", len(blob)))

	logger.Info("save committed",
		slog.Duration("duration", duration),
		slog.Int("blob_bytes", len(blob)),
	)
	return nil
}

// protect encrypts plaintext with the master key. The key is only
// decrypted for the duration of the call.
func (m *Manager) protect(plaintext []byte) ([]byte, error) {
	key, err := m.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open master key: %w", err)
	}
	defer key.Destroy()

	blob, err := savecrypto.Protect(plaintext, key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("protect save: %w", err)
	}
	return blob, nil
}

// writeStaging writes blob durably to the staging path. On failure the
// staging file is removed best effort and never renamed.
func (m *Manager) writeStaging(blob []byte, logger *slog.Logger) (err error) {
	path := m.paths.Temp
	f, err := m.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return ioError("create", path, err)
	}

	defer func() {
		if err == nil {
			return
		}
		if rmErr := m.fs.Remove(path); rmErr != nil && !isNotExist(rmErr) {
			logger.Warn("failed to remove abandoned staging file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}
	}()

	if _, err := f.Write(blob); err != nil {
		f.Close()
		return ioError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return ioError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		return ioError("close", path, err)
	}
	return nil
}
