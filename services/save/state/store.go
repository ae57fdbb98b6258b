// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"sort"
)

// Category identifies an equipment slot in the shop.
type Category string

// Store records owned items and the item equipped per category.
//
// Description:
//
//	The purchased list keeps purchase order for serialization. A lookup set
//	mirrors it and is rebuilt when the tree is decoded. Only purchased items
//	can be equipped.
type Store struct {
	purchased []string
	owned     map[string]struct{}
	equipped  map[Category]string
	hub       *hub
}

func newStore(h *hub, purchased []string, equipped map[Category]string) *Store {
	s := &Store{
		owned:    make(map[string]struct{}, len(purchased)),
		equipped: make(map[Category]string, len(equipped)),
		hub:      h,
	}
	for _, id := range purchased {
		if id == "" || s.IsPurchased(id) {
			continue
		}
		s.purchased = append(s.purchased, id)
		s.owned[id] = struct{}{}
	}
	for cat, id := range equipped {
		if id != "" && s.IsPurchased(id) {
			s.equipped[cat] = id
		}
	}
	return s
}

// IsPurchased reports whether itemID is owned.
func (s *Store) IsPurchased(itemID string) bool {
	_, ok := s.owned[itemID]
	return ok
}

// Purchase adds itemID to the owned set. It returns false for an empty ID
// or an item already owned.
func (s *Store) Purchase(itemID string) bool {
	if itemID == "" || s.IsPurchased(itemID) {
		return false
	}
	s.purchased = append(s.purchased, itemID)
	s.owned[itemID] = struct{}{}
	s.hub.publish(Change{Field: FieldPurchased})
	return true
}

// PurchasedItemIDs returns the owned items in purchase order.
func (s *Store) PurchasedItemIDs() []string {
	out := make([]string, len(s.purchased))
	copy(out, s.purchased)
	return out
}

// Equipped returns the item equipped in category.
func (s *Store) Equipped(category Category) (string, bool) {
	id, ok := s.equipped[category]
	return id, ok
}

// SetEquipped equips itemID in category. An empty itemID unequips. Items
// that are not purchased are refused.
func (s *Store) SetEquipped(category Category, itemID string) bool {
	current, ok := s.equipped[category]
	if itemID != "" && !s.IsPurchased(itemID) {
		return false
	}
	if itemID == "" {
		if !ok {
			return false
		}
		delete(s.equipped, category)
	} else {
		if ok && current == itemID {
			return false
		}
		s.equipped[category] = itemID
	}
	s.hub.publish(Change{Field: FieldEquipped})
	return true
}

// EquippedByCategory returns a copy of the equipped map.
func (s *Store) EquippedByCategory() map[Category]string {
	out := make(map[Category]string, len(s.equipped))
	for k, v := range s.equipped {
		out[k] = v
	}
	return out
}

// categories returns the equipped categories in a stable order.
func (s *Store) categories() []Category {
	out := make([]Category, 0, len(s.equipped))
	for k := range s.equipped {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
