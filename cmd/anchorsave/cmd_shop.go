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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/anchorsave/pkg/ux"
	"github.com/AleutianAI/anchorsave/pkg/validation"
	"github.com/AleutianAI/anchorsave/services/save/shop"
	"github.com/AleutianAI/anchorsave/services/save/state"
)

var (
	errUnknownItem  = errors.New("unknown item")
	errAlreadyOwned = errors.New("item already owned")
	errNotOwned     = errors.New("item not owned")
)

func newShopCmd(opts *rootOptions) *cobra.Command {
	shopCmd := &cobra.Command{
		Use:   "shop",
		Short: "Browse the catalog, buy and equip items",
	}
	shopCmd.AddCommand(
		&cobra.Command{
			Use:   "list [category]",
			Short: "List catalog items with ownership",
			Args:  cobra.MaximumNArgs(1),
			RunE:  opts.run(runShopList),
		},
		&cobra.Command{
			Use:   "buy <item-id>",
			Short: "Buy an item with its listed currency",
			Args:  cobra.ExactArgs(1),
			RunE:  opts.mutate(runShopBuy),
		},
		&cobra.Command{
			Use:   "equip <item-id>",
			Short: "Equip an owned item in its category",
			Args:  cobra.ExactArgs(1),
			RunE:  opts.mutate(runShopEquip),
		},
		&cobra.Command{
			Use:   "unequip <item-id>",
			Short: "Unequip an item",
			Args:  cobra.ExactArgs(1),
			RunE:  opts.mutate(runShopUnequip),
		},
	)
	return shopCmd
}

func runShopList(_ context.Context, a *app, args []string) error {
	categories := a.catalog.Categories
	if len(args) == 1 {
		category := state.Category(args[0])
		if !a.catalog.ContainsCategory(category) {
			return usagef("unknown category %q", args[0])
		}
		categories = []state.Category{category}
	}

	for _, category := range categories {
		items := a.catalog.ItemsIn(category)
		fields := make([]ux.Field, 0, len(items))
		for _, item := range items {
			fields = append(fields, ux.Field{Key: item.ID, Value: a.describe(item)})
		}
		a.out.Fields(string(category), fields)
	}
	return nil
}

func (a *app) describe(item shop.Item) string {
	text := fmt.Sprintf("%s, %d %s", item.DisplayName, item.Price, item.Currency)
	switch {
	case a.shop.IsEquipped(item):
		text += " [equipped]"
	case a.shop.IsPurchased(item):
		text += " [owned]"
	}
	return text
}

func (a *app) lookup(arg string) (shop.Item, error) {
	id, err := validation.SanitizeItemID(arg)
	if err != nil {
		return shop.Item{}, usagef("%v", err)
	}
	item, ok := a.catalog.Item(id)
	if !ok {
		return shop.Item{}, fmt.Errorf("%w: %s", errUnknownItem, id)
	}
	return item, nil
}

func runShopBuy(_ context.Context, a *app, args []string) error {
	item, err := a.lookup(args[0])
	if err != nil {
		return err
	}
	if a.shop.IsPurchased(item) {
		return fmt.Errorf("%w: %s", errAlreadyOwned, item.ID)
	}
	if !a.shop.Buy(item) {
		return fmt.Errorf("%w: %s costs %d %s, %d held", errInsufficientFunds,
			item.ID, item.Price, item.Currency, a.economy.Balance(item.Currency))
	}
	a.out.Success(fmt.Sprintf("bought %s", item.DisplayName))
	return nil
}

func runShopEquip(_ context.Context, a *app, args []string) error {
	item, err := a.lookup(args[0])
	if err != nil {
		return err
	}
	if !a.shop.IsPurchased(item) {
		return fmt.Errorf("%w: %s", errNotOwned, item.ID)
	}
	a.shop.Equip(item)
	a.out.Success(fmt.Sprintf("equipped %s in %s", item.DisplayName, item.Category))
	return nil
}

func runShopUnequip(_ context.Context, a *app, args []string) error {
	item, err := a.lookup(args[0])
	if err != nil {
		return err
	}
	if !a.shop.Unequip(item) {
		a.out.Status(ux.IconPending, fmt.Sprintf("%s was not equipped", item.DisplayName))
		return nil
	}
	a.out.Success(fmt.Sprintf("unequipped %s", item.DisplayName))
	return nil
}
