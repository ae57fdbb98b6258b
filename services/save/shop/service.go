// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shop

import (
	"log/slog"

	"github.com/AleutianAI/anchorsave/services/save/economy"
)

// Service applies the shop rules: only unowned, affordable items can be
// bought, and only owned items can be equipped.
//
// Thread Safety: Not safe for concurrent use. Same goroutine as the tree.
type Service struct {
	src     economy.TreeSource
	economy *economy.Service
	logger  *slog.Logger
}

// NewService returns a Service. A nil logger uses slog.Default().
func NewService(src economy.TreeSource, econ *economy.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		src:     src,
		economy: econ,
		logger:  logger.With(slog.String("component", "shop")),
	}
}

// IsPurchased reports whether item is owned.
func (s *Service) IsPurchased(item Item) bool {
	return s.src.State().Store().IsPurchased(item.ID)
}

// IsEquipped reports whether item is the one equipped in its category.
func (s *Service) IsEquipped(item Item) bool {
	id, ok := s.src.State().Store().Equipped(item.Category)
	return ok && id == item.ID
}

// Equip equips an owned item. Reports whether anything changed.
func (s *Service) Equip(item Item) bool {
	if !s.IsPurchased(item) {
		return false
	}
	return s.src.State().Store().SetEquipped(item.Category, item.ID)
}

// Unequip clears the category of item if item is the equipped one.
func (s *Service) Unequip(item Item) bool {
	if !s.IsEquipped(item) {
		return false
	}
	return s.src.State().Store().SetEquipped(item.Category, "")
}

// CanBuy is true when item is not owned and its price is affordable.
func (s *Service) CanBuy(item Item) bool {
	if item.ID == "" || s.IsPurchased(item) {
		return false
	}
	return s.economy.CanAfford(item.Currency, item.Price)
}

// Buy spends the price and records the purchase.
func (s *Service) Buy(item Item) bool {
	if !s.CanBuy(item) {
		return false
	}
	if !s.economy.TrySpend(item.Currency, item.Price, "buy:"+item.ID) {
		return false
	}
	if !s.src.State().Store().Purchase(item.ID) {
		return false
	}
	s.logger.Info("item purchased",
		slog.String("item_id", item.ID),
		slog.String("currency", string(item.Currency)),
		slog.Int64("price", item.Price),
	)
	return true
}
