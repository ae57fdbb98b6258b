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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/anchorsave/pkg/ux"
	"github.com/AleutianAI/anchorsave/services/save/persistence"
	"github.com/AleutianAI/anchorsave/services/save/state"
)

var errVerifyFailed = errors.New("one or more save slots failed verification")

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the loaded save",
		Args:  cobra.NoArgs,
		RunE:  opts.run(runStatus),
	}
}

func runStatus(_ context.Context, a *app, _ []string) error {
	tree := a.saves.State()
	report := a.saves.LastRecovery()

	a.out.Title("Save status")
	a.out.Fields("File", []ux.Field{
		{Key: "path", Value: a.saves.Paths().Primary},
		{Key: "loaded_from", Value: string(report.Source)},
		{Key: "format_version", Value: strconv.Itoa(tree.FormatVersion())},
	})
	a.out.Fields("Progression", []ux.Field{
		{Key: "level", Value: strconv.FormatInt(tree.Progression().Level(), 10)},
		{Key: "xp", Value: strconv.FormatInt(tree.Progression().XP(), 10)},
	})
	a.out.Fields("Wallet", []ux.Field{
		{Key: "coins", Value: strconv.FormatInt(tree.Wallet().Coins(), 10)},
		{Key: "pearls", Value: strconv.FormatInt(tree.Wallet().Pearls(), 10)},
	})
	a.out.Fields("Store", storeFields(tree.Store()))
	a.out.Fields("Settings", []ux.Field{
		{Key: "music_volume", Value: formatVolume(tree.Settings().MusicVolume())},
		{Key: "sfx_volume", Value: formatVolume(tree.Settings().SfxVolume())},
	})

	for _, f := range report.Failures {
		if f.Reason == persistence.ReasonMissing {
			continue
		}
		a.out.Warning(fmt.Sprintf("%s slot skipped (%s): %v", f.Slot, f.Reason, f.Err))
	}
	return nil
}

func storeFields(store *state.Store) []ux.Field {
	fields := []ux.Field{
		{Key: "purchased", Value: strconv.Itoa(len(store.PurchasedItemIDs()))},
	}
	equipped := store.EquippedByCategory()
	categories := make([]string, 0, len(equipped))
	for c := range equipped {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		fields = append(fields, ux.Field{Key: "equipped." + c, Value: equipped[state.Category(c)]})
	}
	return fields
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the primary and backup slots decrypt and parse",
		Args:  cobra.NoArgs,
		RunE:  opts.run(runVerify),
	}
}

func runVerify(ctx context.Context, a *app, _ []string) error {
	report, err := a.saves.Verify(ctx)
	if err != nil {
		return err
	}

	failed := false
	for _, s := range report.Slots {
		switch {
		case s.OK():
			a.out.Success(fmt.Sprintf("%s: ok (%d bytes, format v%d)", s.Slot, s.Size, s.FormatVersion))
		case !s.Present:
			a.out.Status(ux.IconPending, fmt.Sprintf("%s: missing", s.Slot))
		default:
			failed = true
			a.out.Error(fmt.Sprintf("%s: %s: %v", s.Slot, s.Reason, s.Err))
		}
	}
	if report.StaleTemp {
		a.out.Warning("a staging file from an interrupted commit is present")
	}
	if failed {
		return errVerifyFailed
	}
	return nil
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var slot string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the decrypted document stored in a slot",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, a *app, _ []string) error {
			return runInspect(ctx, a, slot)
		}),
	}
	cmd.Flags().StringVar(&slot, "slot", string(persistence.SlotPrimary), "slot to read: primary or backup")
	return cmd
}

func runInspect(ctx context.Context, a *app, slot string) error {
	s := persistence.Slot(strings.ToLower(slot))
	if s != persistence.SlotPrimary && s != persistence.SlotBackup {
		return usagef("unknown slot %q, want primary or backup", slot)
	}
	plaintext, err := a.saves.ReadSlot(ctx, s)
	if err != nil {
		return fmt.Errorf("read %s slot: %w", s, err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, plaintext, "", "  "); err != nil {
		return fmt.Errorf("%s slot does not hold a JSON document: %w", s, err)
	}
	a.out.Raw(pretty.String())
	return nil
}
