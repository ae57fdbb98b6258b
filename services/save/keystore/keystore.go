// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package keystore persists the save master key.
//
// The key lives outside the save directory so that copying a save file to
// another machine does not carry the key with it. Three backends exist:
//
//	badger  - embedded key-value store (default)
//	sqlite  - single-file preferences table
//	memory  - process-local, for tests and one-shot tools
package keystore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"
)

// MasterKeyName is the preference name the master key is stored under.
const MasterKeyName = "SAVE_MASTER_KEY_B64"

// MasterKeySize is the length of a decoded master key in bytes.
const MasterKeySize = 32

// Driver names accepted by Open.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

var (
	// ErrUnknownDriver is returned by Open for an unrecognised driver name.
	ErrUnknownDriver = errors.New("unknown keystore driver")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("keystore closed")
)

// Store is a small string preference store.
//
// Thread Safety: Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value for name and whether it exists.
	Get(ctx context.Context, name string) (string, bool, error)

	// Set stores value under name, replacing any existing value.
	Set(ctx context.Context, name, value string) error

	// Delete removes name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases the backend.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Driver is one of DriverBadger, DriverSQLite or DriverMemory.
	Driver string

	// Path is the badger directory or sqlite file. Unused for memory.
	Path string

	// Logger receives backend diagnostics. Optional.
	Logger *slog.Logger
}

// Open returns the backend named by cfg.Driver.
//
// Inputs:
//
//	ctx - Used for schema setup on backends that need it.
//	cfg - Backend selection. Path is required for badger and sqlite.
//
// Outputs:
//
//	Store - The opened store. Caller must Close it.
//	error - ErrUnknownDriver, or a backend open failure.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverBadger, "":
		store, err := OpenBadger(BadgerConfig{Path: cfg.Path, SyncWrites: true, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverSQLite:
		store, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// LoadOrCreateMasterKey returns the master key sealed in an enclave.
//
// Description:
//
//	Reads MasterKeyName from store. A value that is not valid base64 or
//	does not decode to MasterKeySize bytes is logged and replaced by a
//	fresh random key, which is written back before returning. The decoded
//	bytes never leave guarded memory.
//
// Inputs:
//
//	ctx - Passed to the store.
//	store - Where the key lives.
//	logger - Receives a warning when a stored key is replaced. May be nil.
//
// Outputs:
//
//	*memguard.Enclave - Encrypted-at-rest key. Open it for each use.
//	bool - True when a new key was generated.
//	error - Store read or write failures.
func LoadOrCreateMasterKey(ctx context.Context, store Store, logger *slog.Logger) (*memguard.Enclave, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "keystore"))

	encoded, ok, err := store.Get(ctx, MasterKeyName)
	if err != nil {
		return nil, false, fmt.Errorf("reading master key: %w", err)
	}
	if ok {
		raw, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr == nil && len(raw) == MasterKeySize {
			return memguard.NewEnclave(raw), false, nil
		}
		memguard.WipeBytes(raw)
		logger.Warn("stored master key is invalid, generating a new one",
			slog.Int("decoded_len", len(raw)),
			slog.Bool("base64_ok", decodeErr == nil),
		)
	}

	buf := memguard.NewBufferRandom(MasterKeySize)
	if err := store.Set(ctx, MasterKeyName, base64.StdEncoding.EncodeToString(buf.Bytes())); err != nil {
		buf.Destroy()
		return nil, false, fmt.Errorf("writing master key: %w", err)
	}
	logger.Info("generated new master key")
	return buf.Seal(), true, nil
}
