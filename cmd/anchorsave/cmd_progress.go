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
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/anchorsave/pkg/ux"
	"github.com/AleutianAI/anchorsave/services/save/economy"
)

var errInsufficientFunds = errors.New("insufficient funds")

// parseAmount reads a non-negative integer argument.
func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, usagef("amount must be a non-negative integer, got %q", s)
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// wallet
// -----------------------------------------------------------------------------

func newWalletCmd(opts *rootOptions) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Add or spend coins and pearls",
	}
	walletCmd.AddCommand(
		&cobra.Command{
			Use:   "add <coins|pearls> <amount>",
			Short: "Credit the wallet",
			Args:  cobra.ExactArgs(2),
			RunE:  opts.mutate(runWalletAdd),
		},
		&cobra.Command{
			Use:   "spend <coins|pearls> <amount>",
			Short: "Debit the wallet if the balance covers it",
			Args:  cobra.ExactArgs(2),
			RunE:  opts.mutate(runWalletSpend),
		},
	)
	return walletCmd
}

func parseWalletArgs(args []string) (economy.Currency, int64, error) {
	currency, err := economy.ParseCurrency(args[0])
	if err != nil {
		return "", 0, usagef("%v", err)
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		return "", 0, err
	}
	return currency, amount, nil
}

func runWalletAdd(_ context.Context, a *app, args []string) error {
	currency, amount, err := parseWalletArgs(args)
	if err != nil {
		return err
	}
	a.economy.Add(currency, amount, cliReason)
	a.out.Success(fmt.Sprintf("%s balance: %d", currency, a.economy.Balance(currency)))
	return nil
}

func runWalletSpend(_ context.Context, a *app, args []string) error {
	currency, amount, err := parseWalletArgs(args)
	if err != nil {
		return err
	}
	if !a.economy.TrySpend(currency, amount, cliReason) {
		return fmt.Errorf("%w: %d %s needed, %d held", errInsufficientFunds,
			amount, currency, a.economy.Balance(currency))
	}
	a.out.Success(fmt.Sprintf("%s balance: %d", currency, a.economy.Balance(currency)))
	return nil
}

// -----------------------------------------------------------------------------
// xp
// -----------------------------------------------------------------------------

func newXPCmd(opts *rootOptions) *cobra.Command {
	xpCmd := &cobra.Command{
		Use:   "xp",
		Short: "Edit progression",
	}
	xpCmd.AddCommand(
		&cobra.Command{
			Use:   "add <amount>",
			Short: "Grant experience points",
			Args:  cobra.ExactArgs(1),
			RunE:  opts.mutate(runXPAdd),
		},
		&cobra.Command{
			Use:   "level <level>",
			Short: "Set the level (minimum 1)",
			Args:  cobra.ExactArgs(1),
			RunE:  opts.mutate(runSetLevel),
		},
	)
	return xpCmd
}

func runXPAdd(_ context.Context, a *app, args []string) error {
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	progression := a.saves.State().Progression()
	progression.AddXP(amount)
	a.out.Success(fmt.Sprintf("xp: %d", progression.XP()))
	return nil
}

func runSetLevel(_ context.Context, a *app, args []string) error {
	level, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	progression := a.saves.State().Progression()
	progression.SetLevel(level)
	a.out.Success(fmt.Sprintf("level: %d", progression.Level()))
	return nil
}

// -----------------------------------------------------------------------------
// settings
// -----------------------------------------------------------------------------

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Edit audio settings",
	}
	settingsCmd.AddCommand(
		&cobra.Command{
			Use:   "music <volume>",
			Short: "Set the music volume (0 to 1)",
			Args:  cobra.ExactArgs(1),
			RunE: opts.mutate(func(_ context.Context, a *app, args []string) error {
				settings := a.saves.State().Settings()
				return setVolume(a, "music_volume", args[0], settings.SetMusicVolume, settings.MusicVolume)
			}),
		},
		&cobra.Command{
			Use:   "sfx <volume>",
			Short: "Set the sound effects volume (0 to 1)",
			Args:  cobra.ExactArgs(1),
			RunE: opts.mutate(func(_ context.Context, a *app, args []string) error {
				settings := a.saves.State().Settings()
				return setVolume(a, "sfx_volume", args[0], settings.SetSfxVolume, settings.SfxVolume)
			}),
		},
	)
	return settingsCmd
}

// setVolume parses and applies a volume. Out-of-range values are clamped
// by the tree.
func setVolume(a *app, name, arg string, set func(float64) bool, get func() float64) error {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return usagef("volume must be a number, got %q", arg)
	}
	if !set(v) {
		a.out.Status(ux.IconPending, fmt.Sprintf("%s unchanged: %s", name, formatVolume(get())))
		return nil
	}
	a.out.Success(fmt.Sprintf("%s: %s", name, formatVolume(get())))
	return nil
}

// -----------------------------------------------------------------------------
// reset
// -----------------------------------------------------------------------------

func newResetCmd(opts *rootOptions) *cobra.Command {
	var deleteFiles bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the save with a fresh default one",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.saves.Reset(ctx, deleteFiles); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			a.out.Success("save reset to defaults")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "delete primary, backup and staging files first")
	return cmd
}
