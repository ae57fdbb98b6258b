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
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/anchorsave/cmd/anchorsave/config"
	"github.com/AleutianAI/anchorsave/pkg/logging"
	"github.com/AleutianAI/anchorsave/pkg/ux"
	"github.com/AleutianAI/anchorsave/services/save/economy"
	"github.com/AleutianAI/anchorsave/services/save/keystore"
	"github.com/AleutianAI/anchorsave/services/save/persistence"
	"github.com/AleutianAI/anchorsave/services/save/shop"
)

// cliReason tags wallet changes made from the command line.
const cliReason = "cli"

// rootOptions carries the persistent flags and the writers every command
// prints to.
type rootOptions struct {
	configPath string
	output     string

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "anchorsave",
		Short: "Inspect and edit an encrypted anchorsave game save",
		Long: `anchorsave opens the encrypted save file of a game through the same
persistence manager the game uses: loads recover from the backup slot,
and every change is committed atomically before the command exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to anchorsave.yaml (default: <user config dir>/anchorsave/anchorsave.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "auto",
		"output mode: auto, styled, plain or machine")

	rootCmd.AddCommand(
		newStatusCmd(opts),
		newVerifyCmd(opts),
		newInspectCmd(opts),
		newWalletCmd(opts),
		newXPCmd(opts),
		newSettingsCmd(opts),
		newShopCmd(opts),
		newResetCmd(opts),
		newWatchCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) printer() *ux.Printer {
	return ux.NewPrinter(o.stdout, ux.ResolveMode(o.output, o.stdout))
}

// loadConfig reads the config and builds the logger. The caller closes
// the logger.
func (o *rootOptions) loadConfig() (config.Config, *logging.Logger, error) {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return config.Config{}, nil, err
		}
		path = p
	}
	cfg, created, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	logCfg := cfg.Logging()
	logCfg.Output = o.stderr
	logger := logging.New(logCfg)
	if created {
		logger.Info("first run, wrote default config", slog.String("path", path))
	}
	return cfg, logger, nil
}

// -----------------------------------------------------------------------------
// app
// -----------------------------------------------------------------------------

// app is everything a command needs to read or edit the save.
type app struct {
	cfg     config.Config
	logger  *logging.Logger
	out     *ux.Printer
	keys    keystore.Store
	saves   *persistence.Manager
	economy *economy.Service
	catalog *shop.Catalog
	shop    *shop.Service
}

// openApp loads config, opens the key store and the save, and wires the
// economy and shop services over the live tree.
func (o *rootOptions) openApp(ctx context.Context) (*app, error) {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, out: o.printer()}

	catalog, err := loadCatalog(cfg.Shop.Catalog)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	a.catalog = catalog

	keys, err := keystore.Open(ctx, cfg.Keys(logger.Slog()))
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	a.keys = keys

	saves, err := persistence.Open(ctx, cfg.Persistence(logger.Slog()), keys,
		persistence.WithRecoveryHook(a.reportRecovery),
	)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("open save: %w", err)
	}
	a.saves = saves
	a.economy = economy.New(saves, logger.Slog())
	a.shop = shop.NewService(saves, a.economy, logger.Slog())
	return a, nil
}

func loadCatalog(path string) (*shop.Catalog, error) {
	if path == "" {
		return shop.DefaultCatalog()
	}
	return shop.LoadCatalog(path)
}

// reportRecovery tells the user when the save they are looking at is not
// the one they last wrote.
func (a *app) reportRecovery(report persistence.RecoveryReport) {
	switch report.Source {
	case persistence.SlotBackup:
		a.out.Warning("primary save was unusable, loaded the backup")
	case persistence.SlotFresh:
		a.out.Warning("no usable save found, starting from defaults")
	}
}

// close releases the save, then the key store, then the logger.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.saves != nil {
		errs = append(errs, a.saves.Close(ctx))
	}
	if a.keys != nil {
		errs = append(errs, a.keys.Close())
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// run opens the app around fn and closes it afterwards.
func (o *rootOptions) run(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := o.openApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(ctx); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}()
		return fn(ctx, a, args)
	}
}

// mutate is run for commands that edit the tree: a successful fn is
// followed by SaveNow so the change is on disk before the process exits.
func (o *rootOptions) mutate(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return o.run(func(ctx context.Context, a *app, args []string) error {
		if err := fn(ctx, a, args); err != nil {
			return err
		}
		if err := a.saves.SaveNow(ctx); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return nil
	})
}
