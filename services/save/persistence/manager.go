// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package persistence owns the lifecycle of the encrypted save file.
//
// A Manager holds the live state tree and the master key. Mutations on the
// tree mark it dirty and push a debounce deadline forward; the host calls
// Tick from its loop and the manager commits once the tree has been quiet
// for the debounce interval. SaveNow commits immediately.
//
// Commits write a fully formed staging file, sync it, move the current
// primary to the backup slot and rename the staging file into place. Loads
// try the primary, then the backup, then fall back to a fresh tree; a bad
// save never stops the game from starting.
//
// The manager is driven by a single goroutine. It takes no locks.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/anchorsave/services/save/keystore"
	"github.com/AleutianAI/anchorsave/services/save/state"
)

// tracerName is the instrumentation scope of persistence spans.
const tracerName = "anchorsave.persistence"

// loggerWithTrace returns a logger with trace context attached.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// Commit triggers, used as the "trigger" metric label.
const (
	triggerDebounce = "debounce"
	triggerNow      = "now"
	triggerReset    = "reset"
	triggerClose    = "close"
)

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the system clock. Used to drive debounce in tests.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithSerializer replaces the default JSON serializer.
func WithSerializer(s state.Serializer) Option {
	return func(m *Manager) { m.serializer = s }
}

// WithRecoveryHook registers a side channel for non-primary loads.
func WithRecoveryHook(h RecoveryHook) Option {
	return func(m *Manager) { m.hook = h }
}

func withFileSystem(fs fileSystem) Option {
	return func(m *Manager) { m.fs = fs }
}

type listener struct {
	id int
	fn func(state.Change)
}

// Manager is the single owner of the save file.
//
// Thread Safety: Not safe for concurrent use. Mutate the tree, call Tick,
// SaveNow and Reset from the same goroutine.
type Manager struct {
	config     Config
	paths      Paths
	key        *memguard.Enclave
	fs         fileSystem
	clock      Clock
	serializer state.Serializer
	hook       RecoveryHook
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics

	tree       *state.Tree
	detachTree func()
	listeners  []listener
	nextID     int
	dirty      bool
	unsaved    bool
	deadline   time.Time
	closed     bool
	lastReport RecoveryReport
}

// Open obtains the master key and loads the save.
//
// Description:
//
//	Reads the master key from keys, generating and storing one on first
//	run. Then runs the recovery chain: primary, backup, fresh default.
//	Unreadable saves are reported through logs, metrics and the recovery
//	hook, never through the returned error.
//
// Inputs:
//
//	ctx - Context for tracing and the key store. Reading the save files
//	      ignores cancellation.
//	cfg - Manager configuration. Validated.
//	keys - Host key store holding the master key. Must not be nil.
//	opts - Optional clock, serializer and recovery hook.
//
// Outputs:
//
//	*Manager - Ready to use. Call Close when done.
//	error - Invalid config, key store failure, or save directory creation
//	        failure.
func Open(ctx context.Context, cfg Config, keys keystore.Store, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persistence config: %w", err)
	}
	if keys == nil {
		return nil, ErrNoMasterKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}

	m := &Manager{
		config:     cfg,
		paths:      cfg.Paths(),
		fs:         osFS{},
		clock:      systemClock{},
		serializer: state.JSONSerializer{},
		logger:     cfg.Logger.With(slog.String("component", "persistence")),
		tracer:     cfg.TracerProvider.Tracer(tracerName),
		metrics:    newMetrics(cfg.Registerer),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.fs.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, ioError("mkdir", cfg.Dir, err)
	}

	key, created, err := keystore.LoadOrCreateMasterKey(ctx, keys, m.logger)
	if err != nil {
		return nil, err
	}
	m.key = key

	tree, report := m.load(ctx)
	m.lastReport = report
	m.attach(tree)

	m.logger.Info("persistence manager ready",
		slog.String("dir", cfg.Dir),
		slog.String("source", string(report.Source)),
		slog.Bool("new_key", created),
		slog.Duration("debounce", cfg.Debounce),
	)
	return m, nil
}

// attach makes tree the live tree and routes its changes through the
// manager.
func (m *Manager) attach(tree *state.Tree) {
	if m.detachTree != nil {
		m.detachTree()
	}
	m.tree = tree
	m.detachTree = tree.Subscribe(m.onChange)
}

func (m *Manager) onChange(c state.Change) {
	m.MarkDirty()
	m.publish(c)
}

func (m *Manager) publish(c state.Change) {
	ls := make([]listener, len(m.listeners))
	copy(ls, m.listeners)
	for _, l := range ls {
		l.fn(c)
	}
}

// State returns the live tree. Collaborators mutate it directly; every
// applied change marks the manager dirty.
func (m *Manager) State() *state.Tree {
	return m.tree
}

// Paths returns the files this manager owns.
func (m *Manager) Paths() Paths {
	return m.paths
}

// LastRecovery describes how the live tree was obtained at Open.
func (m *Manager) LastRecovery() RecoveryReport {
	return m.lastReport
}

// Subscribe registers fn for every applied change on the live tree. Unlike
// State().Subscribe, the registration survives Reset, which publishes a
// single change with Field state.FieldAll.
func (m *Manager) Subscribe(fn func(state.Change)) (unsubscribe func()) {
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	return func() {
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dirty reports whether a debounced write is pending.
func (m *Manager) Dirty() bool {
	return m.dirty
}

// Unsaved reports whether the live tree holds changes that no commit has
// written yet. Unlike Dirty it stays set after a failed commit.
func (m *Manager) Unsaved() bool {
	return m.unsaved
}

// Deadline returns the time at which a pending write becomes due. Zero when
// nothing is pending.
func (m *Manager) Deadline() time.Time {
	if !m.dirty {
		return time.Time{}
	}
	return m.deadline
}

// MarkDirty records a mutation and pushes the debounce deadline to now plus
// the debounce interval. Ignored after Close.
func (m *Manager) MarkDirty() {
	if m.closed {
		return
	}
	m.dirty = true
	m.unsaved = true
	m.deadline = m.clock.Now().Add(m.config.Debounce)
	m.metrics.dirtyMarksTotal.Inc()
	m.metrics.pendingWrite.Set(1)
}

// Tick commits if the tree is dirty and its deadline has passed.
//
// Outputs:
//
//	bool - True if a commit was attempted.
//	error - The commit failure, or ErrClosed.
func (m *Manager) Tick(ctx context.Context) (bool, error) {
	if m.closed {
		return false, ErrClosed
	}
	if !m.dirty || m.clock.Now().Before(m.deadline) {
		return false, nil
	}
	return true, m.commit(ctx, triggerDebounce)
}

// SaveNow commits immediately regardless of the debounce deadline.
func (m *Manager) SaveNow(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	return m.commit(ctx, triggerNow)
}

// Reset discards the live tree, optionally deletes every save file, and
// commits a fresh default tree.
//
// Description:
//
//	File deletion is best effort: a file that cannot be removed is logged
//	and left for the commit to overwrite. The commit result is returned.
func (m *Manager) Reset(ctx context.Context, deleteFiles bool) error {
	if m.closed {
		return ErrClosed
	}
	logger := loggerWithTrace(ctx, m.logger)

	if deleteFiles {
		for _, path := range []string{m.paths.Primary, m.paths.Backup, m.paths.Temp} {
			if err := m.fs.Remove(path); err != nil && !isNotExist(err) {
				logger.Warn("failed to delete save file",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	m.attach(state.New())
	m.unsaved = true
	m.publish(state.Change{Field: state.FieldAll})
	logger.Info("save reset", slog.Bool("delete_files", deleteFiles))

	return m.commit(ctx, triggerReset)
}

// Close commits any change not yet on disk, including one whose debounced
// commit failed, and releases the manager. Later calls return ErrClosed,
// except Close which returns nil.
func (m *Manager) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}
	var err error
	if m.dirty || m.unsaved {
		err = m.commit(ctx, triggerClose)
	}
	m.closed = true
	if m.detachTree != nil {
		m.detachTree()
		m.detachTree = nil
	}
	m.metrics.pendingWrite.Set(0)
	m.logger.Info("persistence manager closed")
	if err != nil {
		return fmt.Errorf("final commit: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
