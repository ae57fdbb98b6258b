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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the Manager.
type Config struct {
	// Dir is the save directory. Primary, backup and staging files all live
	// here so that renames stay on one filesystem.
	Dir string

	// FileName is the primary file name. Backup and staging names derive
	// from it. Default: save.dat.
	FileName string

	// Debounce is how long the tree must stay quiet after the last mutation
	// before a tick commits it. Default: 1s.
	Debounce time.Duration

	// Logger for persistence operations. Default: slog.Default().
	Logger *slog.Logger

	// Registerer receives the manager's metrics. Nil uses a private
	// registry, so several managers can coexist in one process.
	Registerer prometheus.Registerer

	// TracerProvider creates the manager's spans. Default: the global
	// provider from otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	dir := ".anchorsave"
	if d, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(d, "anchorsave")
	}
	return Config{
		Dir:      dir,
		FileName: "save.dat",
		Debounce: time.Second,
		Logger:   slog.Default(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir must not be empty")
	}
	if c.FileName == "" {
		return errors.New("file_name must not be empty")
	}
	if strings.ContainsAny(c.FileName, `/\`) {
		return fmt.Errorf("file_name must be a bare name, got %q", c.FileName)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", c.Debounce)
	}
	return nil
}

// Paths are the three files a manager owns.
type Paths struct {
	Primary string
	Backup  string
	Temp    string
}

// Paths derives the file set from the configuration.
func (c *Config) Paths() Paths {
	primary := filepath.Join(c.Dir, c.FileName)
	return Paths{
		Primary: primary,
		Backup:  primary + ".bak",
		Temp:    primary + ".tmp",
	}
}

// -----------------------------------------------------------------------------
// Clock
// -----------------------------------------------------------------------------

// Clock supplies the time for debounce deadlines.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now includes the monotonic reading, so deadline comparisons ignore
// wall-clock jumps.
func (systemClock) Now() time.Time {
	return time.Now()
}
