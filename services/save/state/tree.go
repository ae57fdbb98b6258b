// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state holds the in-memory save tree.
//
// Every mutable value goes through the same contract: clamp into its
// domain, compare with the current value, and only on a real change store
// it and publish a Change. Subscribers (normally the persistence manager's
// MarkDirty) never see a no-op write.
package state

// CurrentFormatVersion is the newest tree layout this build understands.
const CurrentFormatVersion = 1

// Tree is the root of the persisted game state.
//
// Thread Safety: Not safe for concurrent use.
type Tree struct {
	formatVersion int

	progression *Progression
	wallet      *Wallet
	store       *Store
	settings    *Settings

	hub *hub
}

// New returns a tree with default values: level 1, no xp, empty wallet,
// nothing purchased, both volumes at 1.
func New() *Tree {
	h := &hub{}
	return &Tree{
		formatVersion: CurrentFormatVersion,
		progression:   newProgression(h, 1, 0),
		wallet:        newWallet(h, 0, 0),
		store:         newStore(h, nil, nil),
		settings:      newSettings(h, 1, 1),
		hub:           h,
	}
}

// Progression returns the level and experience section.
func (t *Tree) Progression() *Progression { return t.progression }

// Wallet returns the currency balances.
func (t *Tree) Wallet() *Wallet { return t.wallet }

// Store returns purchases and equipped items.
func (t *Tree) Store() *Store { return t.store }

// Settings returns the audio settings.
func (t *Tree) Settings() *Settings { return t.settings }

// FormatVersion returns the layout version recorded in the tree.
func (t *Tree) FormatVersion() int {
	return t.formatVersion
}

// NormalizeVersion clamps a version from a newer build down to
// CurrentFormatVersion and reports whether it did.
func (t *Tree) NormalizeVersion() bool {
	if t.formatVersion > CurrentFormatVersion {
		t.formatVersion = CurrentFormatVersion
		return true
	}
	return false
}

// StampVersion records CurrentFormatVersion ahead of a commit.
func (t *Tree) StampVersion() {
	t.formatVersion = CurrentFormatVersion
}

// Subscribe registers fn for every applied mutation and returns a function
// that removes it.
func (t *Tree) Subscribe(fn func(Change)) (unsubscribe func()) {
	return t.hub.subscribe(fn)
}

// =============================================================================
// Progression
// =============================================================================

// Progression tracks level (>= 1) and experience (>= 0).
type Progression struct {
	level Field[int64]
	xp    Field[int64]
}

func newProgression(h *hub, level, xp int64) *Progression {
	return &Progression{
		level: newField(h, FieldLevel, level, atLeast(1), exactly[int64]),
		xp:    newField(h, FieldXP, xp, atLeast(0), exactly[int64]),
	}
}

// Level returns the current level.
func (p *Progression) Level() int64 { return p.level.Get() }

// SetLevel sets the level, clamped to at least 1.
func (p *Progression) SetLevel(v int64) bool { return p.level.Set(v) }

// XP returns the current experience total.
func (p *Progression) XP() int64 { return p.xp.Get() }

// SetXP sets experience, clamped to at least 0.
func (p *Progression) SetXP(v int64) bool { return p.xp.Set(v) }

// AddXP adds a positive amount. Non-positive amounts are ignored.
func (p *Progression) AddXP(amount int64) bool {
	if amount <= 0 {
		return false
	}
	return p.xp.Set(saturatingAdd(p.xp.Get(), amount))
}

// =============================================================================
// Wallet
// =============================================================================

// Wallet holds the two currency balances. Neither can go negative.
type Wallet struct {
	coins  Field[int64]
	pearls Field[int64]
}

func newWallet(h *hub, coins, pearls int64) *Wallet {
	return &Wallet{
		coins:  newField(h, FieldCoins, coins, atLeast(0), exactly[int64]),
		pearls: newField(h, FieldPearls, pearls, atLeast(0), exactly[int64]),
	}
}

// Coins returns the coin balance.
func (w *Wallet) Coins() int64 { return w.coins.Get() }

// SetCoins sets the coin balance, clamped to at least 0.
func (w *Wallet) SetCoins(v int64) bool { return w.coins.Set(v) }

// AddCoins credits a positive amount, saturating at math.MaxInt64.
func (w *Wallet) AddCoins(amount int64) bool { return add(&w.coins, amount) }

// TrySpendCoins debits amount if the balance covers it.
func (w *Wallet) TrySpendCoins(amount int64) bool { return trySpend(&w.coins, amount) }

// Pearls returns the pearl balance.
func (w *Wallet) Pearls() int64 { return w.pearls.Get() }

// SetPearls sets the pearl balance, clamped to at least 0.
func (w *Wallet) SetPearls(v int64) bool { return w.pearls.Set(v) }

// AddPearls credits a positive amount, saturating at math.MaxInt64.
func (w *Wallet) AddPearls(amount int64) bool { return add(&w.pearls, amount) }

// TrySpendPearls debits amount if the balance covers it.
func (w *Wallet) TrySpendPearls(amount int64) bool { return trySpend(&w.pearls, amount) }

func add(f *Field[int64], amount int64) bool {
	if amount <= 0 {
		return false
	}
	return f.Set(saturatingAdd(f.Get(), amount))
}

// trySpend succeeds for a non-positive amount without touching the balance.
func trySpend(f *Field[int64], amount int64) bool {
	if amount <= 0 {
		return true
	}
	if f.Get() < amount {
		return false
	}
	f.Set(f.Get() - amount)
	return true
}

// =============================================================================
// Settings
// =============================================================================

// Settings holds audio volumes in [0,1].
type Settings struct {
	music Field[float64]
	sfx   Field[float64]
}

func newSettings(h *hub, music, sfx float64) *Settings {
	return &Settings{
		music: newField(h, FieldMusicVolume, music, unitInterval, approximately),
		sfx:   newField(h, FieldSfxVolume, sfx, unitInterval, approximately),
	}
}

// MusicVolume returns the music volume.
func (s *Settings) MusicVolume() float64 { return s.music.Get() }

// SetMusicVolume sets the music volume. NaN is ignored.
func (s *Settings) SetMusicVolume(v float64) bool { return s.music.Set(v) }

// SfxVolume returns the effects volume.
func (s *Settings) SfxVolume() float64 { return s.sfx.Get() }

// SetSfxVolume sets the effects volume. NaN is ignored.
func (s *Settings) SetSfxVolume(v float64) bool { return s.sfx.Set(v) }
