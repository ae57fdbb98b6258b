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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strawHat = "HAT_STRAW_HAT_92AC3E1F"

// cliFixture runs commands against a save directory and a sqlite key store
// inside a temp dir, with machine output.
type cliFixture struct {
	t          *testing.T
	dir        string
	configPath string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "anchorsave.yaml")
	body := "save:\n" +
		"  dir: " + filepath.Join(dir, "saves") + "\n" +
		"keystore:\n" +
		"  driver: sqlite\n" +
		"  path: " + filepath.Join(dir, "keys.db") + "\n" +
		"log:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o644))
	return &cliFixture{t: t, dir: dir, configPath: configPath}
}

func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", f.configPath, "--output", "machine"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (f *cliFixture) mustRun(args ...string) string {
	f.t.Helper()
	out, err := f.run(args...)
	require.NoError(f.t, err, "anchorsave %v", args)
	return out
}

func (f *cliFixture) primary() string {
	return filepath.Join(f.dir, "saves", "save.dat")
}

func TestCLI_FirstRunCreatesConfigAndShowsDefaults(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "conf", "anchorsave.yaml")
	t.Setenv("ANCHORSAVE_SAVE_DIR", filepath.Join(dir, "saves"))
	t.Setenv("ANCHORSAVE_KEYSTORE_DRIVER", "memory")
	t.Setenv("ANCHORSAVE_LOG_LEVEL", "error")

	f := &cliFixture{t: t, dir: dir, configPath: configPath}
	out := f.mustRun("status")

	assert.FileExists(t, configPath)
	assert.Contains(t, out, "loaded_from\tfresh\n")
	assert.Contains(t, out, "level\t1\n")
	assert.Contains(t, out, "coins\t0\n")
	assert.Contains(t, out, "music_volume\t1.00\n")
	assert.NoFileExists(t, f.primary(), "status must not write a save")
}

func TestCLI_WalletChangesPersist(t *testing.T) {
	f := newCLIFixture(t)

	out := f.mustRun("wallet", "add", "coins", "100")
	assert.Contains(t, out, "OK\tcoins balance: 100")
	assert.FileExists(t, f.primary())

	out = f.mustRun("wallet", "spend", "coins", "30")
	assert.Contains(t, out, "OK\tcoins balance: 70")

	out = f.mustRun("status")
	assert.Contains(t, out, "loaded_from\tprimary\n")
	assert.Contains(t, out, "coins\t70\n")
}

func TestCLI_WalletSpendInsufficient(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun("wallet", "add", "pearls", "2")

	_, err := f.run("wallet", "spend", "pearls", "5")
	require.ErrorIs(t, err, errInsufficientFunds)
	assert.Equal(t, 1, exitCode(err))

	assert.Contains(t, f.mustRun("status"), "pearls\t2\n")
}

func TestCLI_UsageErrors(t *testing.T) {
	f := newCLIFixture(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown currency", []string{"wallet", "add", "gold", "5"}},
		{"non-numeric amount", []string{"wallet", "add", "coins", "lots"}},
		{"non-numeric volume", []string{"settings", "music", "loud"}},
		{"unknown slot", []string{"inspect", "--slot", "attic"}},
		{"unknown category", []string{"shop", "list", "cannon"}},
		{"malformed item id", []string{"shop", "buy", "straw hat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(tt.args...)
			require.Error(t, err)
			assert.Equal(t, 2, exitCode(err))
		})
	}
}

func TestCLI_ProgressionAndSettings(t *testing.T) {
	f := newCLIFixture(t)

	assert.Contains(t, f.mustRun("xp", "add", "250"), "OK\txp: 250")
	assert.Contains(t, f.mustRun("xp", "level", "0"), "OK\tlevel: 1", "level clamps to 1")
	assert.Contains(t, f.mustRun("xp", "level", "4"), "OK\tlevel: 4")
	assert.Contains(t, f.mustRun("settings", "music", "0.5"), "OK\tmusic_volume: 0.50")
	assert.Contains(t, f.mustRun("settings", "sfx", "7"), "NONE\tsfx_volume unchanged: 1.00",
		"a clamped value equal to the current one is not a change")

	out := f.mustRun("status")
	assert.Contains(t, out, "level\t4\n")
	assert.Contains(t, out, "xp\t250\n")
	assert.Contains(t, out, "music_volume\t0.50\n")
	assert.Contains(t, out, "sfx_volume\t1.00\n")
}

func TestCLI_ShopBuyAndEquip(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run("shop", "buy", strawHat)
	require.ErrorIs(t, err, errInsufficientFunds)

	f.mustRun("wallet", "add", "coins", "100")
	assert.Contains(t, f.mustRun("shop", "buy", strawHat), "OK\tbought Straw Hat")

	_, err = f.run("shop", "buy", strawHat)
	require.ErrorIs(t, err, errAlreadyOwned)

	_, err = f.run("shop", "equip", "HAT_CAPTAINS_CAP_4B5D6071")
	require.ErrorIs(t, err, errNotOwned)

	_, err = f.run("shop", "equip", "HAT_NOPE")
	require.ErrorIs(t, err, errUnknownItem)

	f.mustRun("shop", "equip", strings.ToLower(strawHat))

	out := f.mustRun("status")
	assert.Contains(t, out, "coins\t20\n")
	assert.Contains(t, out, "purchased\t1\n")
	assert.Contains(t, out, "equipped.hat\t"+strawHat+"\n")

	assert.Contains(t, f.mustRun("shop", "list", "hat"), strawHat+"\tStraw Hat, 80 coins [equipped]")

	f.mustRun("shop", "unequip", strawHat)
	assert.Contains(t, f.mustRun("shop", "list", "hat"), strawHat+"\tStraw Hat, 80 coins [owned]")
}

func TestCLI_InspectPrintsDecryptedDocument(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun("wallet", "add", "coins", "42")

	out := f.mustRun("inspect")
	assert.Contains(t, out, `"coins": 42`)
	assert.Contains(t, out, `"version": 1`)

	_, err := f.run("inspect", "--slot", "backup")
	require.Error(t, err, "a single commit leaves no backup")
}

func TestCLI_VerifyAndRecoverFromCorruptPrimary(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun("wallet", "add", "coins", "10")
	f.mustRun("wallet", "add", "coins", "5")

	out := f.mustRun("verify")
	assert.Contains(t, out, "OK\tprimary: ok")
	assert.Contains(t, out, "OK\tbackup: ok")

	require.NoError(t, os.WriteFile(f.primary(), []byte("junk"), 0o600))

	out, err := f.run("verify")
	require.ErrorIs(t, err, errVerifyFailed)
	assert.Contains(t, out, "ERROR\tprimary: format")
	assert.Contains(t, out, "OK\tbackup: ok")

	out = f.mustRun("status")
	assert.Contains(t, out, "WARN\tprimary save was unusable, loaded the backup")
	assert.Contains(t, out, "loaded_from\tbackup\n")
	assert.Contains(t, out, "coins\t10\n")
}

func TestCLI_Reset(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun("wallet", "add", "coins", "10")
	f.mustRun("wallet", "add", "coins", "5")

	assert.Contains(t, f.mustRun("reset", "--delete-files"), "OK\tsave reset to defaults")
	assert.NoFileExists(t, f.primary()+".bak")

	assert.Contains(t, f.mustRun("status"), "coins\t0\n")
}
