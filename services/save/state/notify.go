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

// Change describes a single applied mutation.
type Change struct {
	// Field is the dotted path of the mutated value, e.g. "wallet.coins".
	Field string
}

// Field paths published in Change.Field.
const (
	FieldLevel       = "progression.level"
	FieldXP          = "progression.xp"
	FieldCoins       = "wallet.coins"
	FieldPearls      = "wallet.pearls"
	FieldPurchased   = "store.purchased"
	FieldEquipped    = "store.equipped"
	FieldMusicVolume = "settings.music_volume"
	FieldSfxVolume   = "settings.sfx_volume"

	// FieldAll signals that the whole tree was replaced.
	FieldAll = "*"
)

type subscriber struct {
	id int
	fn func(Change)
}

// hub is the tree's callback registry. Subscribers run synchronously on the
// mutating goroutine, in registration order.
type hub struct {
	subs   []subscriber
	nextID int
}

func (h *hub) subscribe(fn func(Change)) func() {
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

func (h *hub) publish(c Change) {
	// Copy so a subscriber may unsubscribe during delivery.
	subs := make([]subscriber, len(h.subs))
	copy(subs, h.subs)
	for _, s := range subs {
		s.fn(c)
	}
}
