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
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/anchorsave/services/save/savecrypto"
	"github.com/AleutianAI/anchorsave/services/save/state"
)

// Slot names a place the live tree can come from.
type Slot string

const (
	SlotPrimary Slot = "primary"
	SlotBackup  Slot = "backup"
	SlotFresh   Slot = "fresh"
)

// Failure reasons recorded for an unusable candidate.
const (
	ReasonMissing   = "missing"
	ReasonIO        = "io"
	ReasonFormat    = "format"
	ReasonIntegrity = "integrity"
	ReasonParse     = "parse"
)

// CandidateFailure describes why a slot could not be loaded.
type CandidateFailure struct {
	Slot   Slot
	Reason string
	Err    error
}

// RecoveryReport describes how the live tree was obtained.
type RecoveryReport struct {
	// Source is the slot the live tree came from.
	Source Slot

	// Failures lists the slots tried before Source, in order.
	Failures []CandidateFailure

	// VersionClamped is true when the stored format version was newer than
	// this build and was lowered.
	VersionClamped bool
}

// Recovered reports whether the load fell back from an unusable save. A
// first run, with no files at all, is not a recovery.
func (r RecoveryReport) Recovered() bool {
	if r.Source == SlotBackup {
		return true
	}
	for _, f := range r.Failures {
		if f.Reason != ReasonMissing {
			return true
		}
	}
	return false
}

// RecoveryHook receives a report whenever Recovered is true. It runs
// synchronously during Open. A panicking hook is recovered and logged; it
// never changes the load outcome.
type RecoveryHook func(RecoveryReport)

// load runs the recovery chain. It never fails.
func (m *Manager) load(ctx context.Context) (*state.Tree, RecoveryReport) {
	ctx, span := m.tracer.Start(ctx, "anchorsave.Persistence.Load")
	defer span.End()
	logger := loggerWithTrace(ctx, m.logger).With(slog.String("operation", "load"))

	var report RecoveryReport
	var tree *state.Tree

	for _, slot := range []Slot{SlotPrimary, SlotBackup} {
		t, err := m.LoadSlot(ctx, slot)
		if err == nil {
			tree = t
			report.Source = slot
			break
		}
		failure := CandidateFailure{Slot: slot, Reason: classify(err), Err: err}
		report.Failures = append(report.Failures, failure)
		m.metrics.loadFailures.WithLabelValues(string(slot), failure.Reason).Inc()
		if failure.Reason != ReasonMissing {
			logger.Warn("save candidate unusable",
				slog.String("slot", string(slot)),
				slog.String("reason", failure.Reason),
				slog.String("error", err.Error()),
			)
		}
	}

	if tree == nil {
		tree = state.New()
		report.Source = SlotFresh
	} else if tree.NormalizeVersion() {
		report.VersionClamped = true
		logger.Info("save written by a newer build, clamped format version",
			slog.Int("version", state.CurrentFormatVersion),
		)
	}

	m.metrics.loadsTotal.WithLabelValues(string(report.Source)).Inc()
	span.SetAttributes(
		attribute.String("source", string(report.Source)),
		attribute.Int("failures", len(report.Failures)),
	)
	logger.Info("save loaded", slog.String("source", string(report.Source)))

	if report.Recovered() {
		m.notifyRecovery(logger, report)
	}
	return tree, report
}

func (m *Manager) notifyRecovery(logger *slog.Logger, report RecoveryReport) {
	if m.hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovery hook panicked", slog.Any("panic", r))
		}
	}()
	m.hook(report)
}

// LoadSlot reads, authenticates and decodes one slot without touching the
// live tree. The version is not clamped.
func (m *Manager) LoadSlot(ctx context.Context, slot Slot) (*state.Tree, error) {
	plaintext, err := m.ReadSlot(ctx, slot)
	if err != nil {
		return nil, err
	}
	tree, err := m.serializer.Unmarshal(plaintext)
	if err != nil {
		return nil, &parseError{err: err}
	}
	return tree, nil
}

// ReadSlot returns the authenticated plaintext stored in a slot. File reads
// are not cancellable: a cancelled ctx must never make a good slot look
// unusable to the recovery chain.
func (m *Manager) ReadSlot(_ context.Context, slot Slot) ([]byte, error) {
	path, err := m.slotPath(slot)
	if err != nil {
		return nil, err
	}
	blob, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, ioError("read", path, err)
	}

	key, err := m.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open master key: %w", err)
	}
	defer key.Destroy()

	return savecrypto.Unprotect(blob, key.Bytes())
}

func (m *Manager) slotPath(slot Slot) (string, error) {
	switch slot {
	case SlotPrimary:
		return m.paths.Primary, nil
	case SlotBackup:
		return m.paths.Backup, nil
	default:
		return "", fmt.Errorf("slot %q has no file", slot)
	}
}

type parseError struct {
	err error
}

func (e *parseError) Error() string { return "parse save: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

func classify(err error) string {
	var perr *parseError
	switch {
	case isNotExist(err):
		return ReasonMissing
	case errors.Is(err, savecrypto.ErrFormat):
		return ReasonFormat
	case errors.Is(err, savecrypto.ErrIntegrity):
		return ReasonIntegrity
	case errors.As(err, &perr):
		return ReasonParse
	default:
		return ReasonIO
	}
}

// -----------------------------------------------------------------------------
// Verify
// -----------------------------------------------------------------------------

// SlotStatus is the health of one on-disk slot.
type SlotStatus struct {
	Slot          Slot
	Present       bool
	Size          int64
	FormatVersion int
	Reason        string
	Err           error
}

// OK reports whether the slot would load.
func (s SlotStatus) OK() bool {
	return s.Present && s.Err == nil
}

// VerifyReport summarizes every file the manager owns.
type VerifyReport struct {
	Slots     []SlotStatus
	StaleTemp bool
}

// Verify checks whether the primary and backup slots decrypt and parse. It
// does not modify any file or the live tree.
func (m *Manager) Verify(ctx context.Context) (VerifyReport, error) {
	if m.closed {
		return VerifyReport{}, ErrClosed
	}
	ctx, span := m.tracer.Start(ctx, "anchorsave.Persistence.Verify")
	defer span.End()

	var report VerifyReport
	for _, slot := range []Slot{SlotPrimary, SlotBackup} {
		path, _ := m.slotPath(slot)
		status := SlotStatus{Slot: slot}
		if info, err := m.fs.Stat(path); err == nil {
			status.Present = true
			status.Size = info.Size()
		}
		tree, err := m.LoadSlot(ctx, slot)
		if err != nil {
			status.Err = err
			status.Reason = classify(err)
		} else {
			status.FormatVersion = tree.FormatVersion()
		}
		report.Slots = append(report.Slots, status)
	}
	if _, err := m.fs.Stat(m.paths.Temp); err == nil {
		report.StaleTemp = true
	}
	return report, nil
}
