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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyDocument is returned when a document decodes to nothing.
var ErrEmptyDocument = errors.New("empty save document")

// Serializer converts a tree to and from plaintext bytes.
type Serializer interface {
	Marshal(t *Tree) ([]byte, error)
	Unmarshal(data []byte) (*Tree, error)
}

// JSONSerializer is the default Serializer.
//
// Absent keys take their default values, unknown keys are ignored, and every
// value is clamped into its domain on the way in.
type JSONSerializer struct {
	// Indent pretty-prints output.
	Indent bool
}

type document struct {
	Version     int            `json:"version"`
	Progression progressionDoc `json:"progression"`
	Wallet      walletDoc      `json:"wallet"`
	Store       storeDoc       `json:"store"`
	Settings    settingsDoc    `json:"settings"`
}

type progressionDoc struct {
	Level int64 `json:"level"`
	XP    int64 `json:"xp"`
}

type walletDoc struct {
	Coins  int64 `json:"coins"`
	Pearls int64 `json:"pearls"`
}

type storeDoc struct {
	PurchasedItemIDs   []string        `json:"purchasedItemIds"`
	EquippedByCategory []equippedEntry `json:"equippedByCategory"`
}

type equippedEntry struct {
	Category Category `json:"category"`
	ItemID   string   `json:"itemId"`
}

type settingsDoc struct {
	MusicVolume float64 `json:"musicVolume"`
	SfxVolume   float64 `json:"sfxVolume"`
}

// Marshal encodes t.
func (s JSONSerializer) Marshal(t *Tree) ([]byte, error) {
	doc := document{
		Version: t.formatVersion,
		Progression: progressionDoc{
			Level: t.Progression().Level(),
			XP:    t.Progression().XP(),
		},
		Wallet: walletDoc{
			Coins:  t.Wallet().Coins(),
			Pearls: t.Wallet().Pearls(),
		},
		Store: storeDoc{
			PurchasedItemIDs: t.Store().PurchasedItemIDs(),
		},
		Settings: settingsDoc{
			MusicVolume: t.Settings().MusicVolume(),
			SfxVolume:   t.Settings().SfxVolume(),
		},
	}
	for _, cat := range t.Store().categories() {
		id, _ := t.Store().Equipped(cat)
		doc.Store.EquippedByCategory = append(doc.Store.EquippedByCategory, equippedEntry{Category: cat, ItemID: id})
	}
	if s.Indent {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// Unmarshal decodes data into a new tree.
func (s JSONSerializer) Unmarshal(data []byte) (*Tree, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyDocument
	}

	doc := document{
		Version:     CurrentFormatVersion,
		Progression: progressionDoc{Level: 1},
		Settings:    settingsDoc{MusicVolume: 1, SfxVolume: 1},
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decoding save document: %w", err)
	}

	h := &hub{}
	equipped := make(map[Category]string, len(doc.Store.EquippedByCategory))
	for _, e := range doc.Store.EquippedByCategory {
		equipped[e.Category] = e.ItemID
	}
	return &Tree{
		formatVersion: doc.Version,
		progression:   newProgression(h, doc.Progression.Level, doc.Progression.XP),
		wallet:        newWallet(h, doc.Wallet.Coins, doc.Wallet.Pearls),
		store:         newStore(h, doc.Store.PurchasedItemIDs, equipped),
		settings:      newSettings(h, doc.Settings.MusicVolume, doc.Settings.SfxVolume),
		hub:           h,
	}, nil
}
