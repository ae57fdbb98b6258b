// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the anchorsave CLI configuration.
//
// Values come from three layers, later ones winning: built-in defaults, the
// YAML file (created with defaults on first run) and ANCHORSAVE_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/anchorsave/pkg/logging"
	"github.com/AleutianAI/anchorsave/services/save/keystore"
	"github.com/AleutianAI/anchorsave/services/save/persistence"
)

var configValidate = validator.New()

// Config is the root of anchorsave.yaml.
type Config struct {
	Save     SaveConfig     `yaml:"save"`
	Keystore KeystoreConfig `yaml:"keystore"`
	Log      LogConfig      `yaml:"log"`
	Shop     ShopConfig     `yaml:"shop"`
}

// SaveConfig locates the save file and sets the autosave debounce.
type SaveConfig struct {
	Dir      string        `yaml:"dir" env:"ANCHORSAVE_SAVE_DIR" validate:"required"`
	FileName string        `yaml:"file_name" env:"ANCHORSAVE_SAVE_FILE_NAME" validate:"required"`
	Debounce time.Duration `yaml:"debounce" env:"ANCHORSAVE_SAVE_DEBOUNCE" validate:"gte=0"`
}

// KeystoreConfig selects where the master key lives.
//
// An empty Path puts the store next to the save file: a "keystore"
// directory for badger, "keystore.db" for sqlite.
type KeystoreConfig struct {
	Driver string `yaml:"driver" env:"ANCHORSAVE_KEYSTORE_DRIVER" validate:"oneof=badger sqlite memory"`
	Path   string `yaml:"path,omitempty" env:"ANCHORSAVE_KEYSTORE_PATH"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" env:"ANCHORSAVE_LOG_LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty" env:"ANCHORSAVE_LOG_DIR"`
	JSON  bool   `yaml:"json" env:"ANCHORSAVE_LOG_JSON"`
}

// ShopConfig points at a catalog file. Empty uses the built-in catalog.
type ShopConfig struct {
	Catalog string `yaml:"catalog,omitempty" env:"ANCHORSAVE_SHOP_CATALOG"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	save := persistence.DefaultConfig()
	return Config{
		Save: SaveConfig{
			Dir:      save.Dir,
			FileName: save.FileName,
			Debounce: save.Debounce,
		},
		Keystore: KeystoreConfig{Driver: keystore.DriverBadger},
		Log:      LogConfig{Level: "info"},
	}
}

// Validate checks struct tags, then the persistence rules the tags cannot
// express.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	save := c.Persistence(nil)
	if err := save.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Persistence converts the save section for persistence.Open.
func (c *Config) Persistence(logger *slog.Logger) persistence.Config {
	return persistence.Config{
		Dir:      expandHome(c.Save.Dir),
		FileName: c.Save.FileName,
		Debounce: c.Save.Debounce,
		Logger:   logger,
	}
}

// KeystorePath resolves the store location for the configured driver.
func (c *Config) KeystorePath() string {
	if c.Keystore.Path != "" {
		return expandHome(c.Keystore.Path)
	}
	dir := expandHome(c.Save.Dir)
	switch c.Keystore.Driver {
	case keystore.DriverSQLite:
		return filepath.Join(dir, "keystore.db")
	case keystore.DriverMemory:
		return ""
	default:
		return filepath.Join(dir, "keystore")
	}
}

// Keys converts the keystore section for keystore.Open.
func (c *Config) Keys(logger *slog.Logger) keystore.Config {
	return keystore.Config{
		Driver: c.Keystore.Driver,
		Path:   c.KeystorePath(),
		Logger: logger,
	}
}

// Logging converts the log section for logging.New. An unparseable level
// has already been rejected by Validate and falls back to Info.
func (c *Config) Logging() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Log.Dir,
		Service: "anchorsave",
		JSON:    c.Log.JSON,
	}
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
