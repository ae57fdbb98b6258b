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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordChanges(t *testing.T, tree *Tree) *[]Change {
	t.Helper()
	var got []Change
	tree.Subscribe(func(c Change) { got = append(got, c) })
	return &got
}

func TestNew_Defaults(t *testing.T) {
	tree := New()

	assert.Equal(t, CurrentFormatVersion, tree.FormatVersion())
	assert.Equal(t, int64(1), tree.Progression().Level())
	assert.Equal(t, int64(0), tree.Progression().XP())
	assert.Equal(t, int64(0), tree.Wallet().Coins())
	assert.Equal(t, int64(0), tree.Wallet().Pearls())
	assert.Empty(t, tree.Store().PurchasedItemIDs())
	assert.Empty(t, tree.Store().EquippedByCategory())
	assert.Equal(t, 1.0, tree.Settings().MusicVolume())
	assert.Equal(t, 1.0, tree.Settings().SfxVolume())
}

func TestTree_SectionsShareTheTreeHub(t *testing.T) {
	tree := New()
	changes := recordChanges(t, tree)

	require.Same(t, tree.Wallet(), tree.Wallet())
	require.Same(t, tree.Store(), tree.Store())

	tree.Progression().AddXP(5)
	tree.Wallet().AddCoins(1)
	tree.Store().Purchase("HAT_A")
	tree.Settings().SetMusicVolume(0.25)

	var fields []string
	for _, c := range *changes {
		fields = append(fields, c.Field)
	}
	assert.Equal(t, []string{FieldXP, FieldCoins, FieldPurchased, FieldMusicVolume}, fields)
}

func TestProgression_ClampAndNotify(t *testing.T) {
	tree := New()
	changes := recordChanges(t, tree)

	assert.False(t, tree.Progression().SetLevel(0), "0 clamps to 1 which equals current")
	assert.False(t, tree.Progression().SetLevel(-5))
	assert.Empty(t, *changes)

	assert.True(t, tree.Progression().SetLevel(4))
	assert.False(t, tree.Progression().SetLevel(4))
	assert.False(t, tree.Progression().SetXP(-10))
	assert.Equal(t, int64(0), tree.Progression().XP())

	require.Len(t, *changes, 1)
	assert.Equal(t, FieldLevel, (*changes)[0].Field)
}

func TestProgression_AddXP(t *testing.T) {
	tree := New()
	changes := recordChanges(t, tree)

	assert.False(t, tree.Progression().AddXP(0))
	assert.False(t, tree.Progression().AddXP(-3))
	assert.True(t, tree.Progression().AddXP(25))
	assert.Equal(t, int64(25), tree.Progression().XP())

	tree.Progression().SetXP(math.MaxInt64 - 1)
	tree.Progression().AddXP(10)
	assert.Equal(t, int64(math.MaxInt64), tree.Progression().XP(), "saturates")
	assert.False(t, tree.Progression().AddXP(1), "already at max")

	assert.Len(t, *changes, 3)
}

func TestWallet_SetClampsNegative(t *testing.T) {
	tree := New()
	tree.Wallet().SetCoins(50)

	assert.True(t, tree.Wallet().SetCoins(-1))
	assert.Equal(t, int64(0), tree.Wallet().Coins())
	assert.False(t, tree.Wallet().SetPearls(-7))
	assert.Equal(t, int64(0), tree.Wallet().Pearls())
}

func TestWallet_TrySpend(t *testing.T) {
	tree := New()
	tree.Wallet().AddCoins(100)
	tree.Wallet().AddPearls(3)
	changes := recordChanges(t, tree)

	assert.False(t, tree.Wallet().TrySpendCoins(101))
	assert.Equal(t, int64(100), tree.Wallet().Coins())
	assert.Empty(t, *changes)

	assert.True(t, tree.Wallet().TrySpendCoins(0), "zero spend always succeeds")
	assert.True(t, tree.Wallet().TrySpendCoins(-1))
	assert.Equal(t, int64(100), tree.Wallet().Coins())
	assert.Empty(t, *changes, "non-positive spend does not notify")

	assert.True(t, tree.Wallet().TrySpendCoins(100))
	assert.Equal(t, int64(0), tree.Wallet().Coins())
	assert.True(t, tree.Wallet().TrySpendPearls(2))
	assert.Equal(t, int64(1), tree.Wallet().Pearls())

	require.Len(t, *changes, 2)
	assert.Equal(t, FieldCoins, (*changes)[0].Field)
	assert.Equal(t, FieldPearls, (*changes)[1].Field)
}

func TestWallet_AddSaturates(t *testing.T) {
	tree := New()
	tree.Wallet().SetCoins(math.MaxInt64 - 5)

	assert.True(t, tree.Wallet().AddCoins(100))
	assert.Equal(t, int64(math.MaxInt64), tree.Wallet().Coins())
	assert.False(t, tree.Wallet().AddCoins(0))
}

func TestSettings_VolumeDomain(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    float64
		changed bool
	}{
		{"within range", 0.25, 0.25, true},
		{"above one clamps", 3, 1, false},
		{"below zero clamps", -0.5, 0, true},
		{"within tolerance", 1 - 1e-9, 1, false},
		{"NaN ignored", math.NaN(), 1, false},
		{"positive infinity clamps", math.Inf(1), 1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree := New()
			changes := recordChanges(t, tree)

			assert.Equal(t, tc.changed, tree.Settings().SetMusicVolume(tc.in))
			assert.InDelta(t, tc.want, tree.Settings().MusicVolume(), 1e-9)
			if tc.changed {
				assert.Len(t, *changes, 1)
			} else {
				assert.Empty(t, *changes)
			}
		})
	}
}

func TestSettings_SfxIndependentOfMusic(t *testing.T) {
	tree := New()
	changes := recordChanges(t, tree)

	tree.Settings().SetSfxVolume(0.3)

	assert.Equal(t, 1.0, tree.Settings().MusicVolume())
	assert.InDelta(t, 0.3, tree.Settings().SfxVolume(), 1e-9)
	require.Len(t, *changes, 1)
	assert.Equal(t, FieldSfxVolume, (*changes)[0].Field)
}

func TestStore_PurchaseAndEquip(t *testing.T) {
	tree := New()
	changes := recordChanges(t, tree)

	assert.False(t, tree.Store().Purchase(""))
	assert.True(t, tree.Store().Purchase("HAT_CAP_1a2b3c4d"))
	assert.False(t, tree.Store().Purchase("HAT_CAP_1a2b3c4d"), "already owned")
	assert.True(t, tree.Store().IsPurchased("HAT_CAP_1a2b3c4d"))
	assert.False(t, tree.Store().IsPurchased("HAT_OTHER_00000000"))

	assert.True(t, tree.Store().SetEquipped("hat", "HAT_CAP_1a2b3c4d"))
	assert.False(t, tree.Store().SetEquipped("hat", "HAT_CAP_1a2b3c4d"))
	id, ok := tree.Store().Equipped("hat")
	assert.True(t, ok)
	assert.Equal(t, "HAT_CAP_1a2b3c4d", id)

	assert.True(t, tree.Store().SetEquipped("hat", ""), "empty unequips")
	assert.False(t, tree.Store().SetEquipped("hat", ""))
	_, ok = tree.Store().Equipped("hat")
	assert.False(t, ok)

	fields := make([]string, 0, len(*changes))
	for _, c := range *changes {
		fields = append(fields, c.Field)
	}
	assert.Equal(t, []string{FieldPurchased, FieldEquipped, FieldEquipped}, fields)
}

func TestStore_EquipRequiresPurchase(t *testing.T) {
	tree := New()
	changes := recordChanges(t, tree)

	assert.False(t, tree.Store().SetEquipped("hat", "HAT_CAP_1a2b3c4d"))
	_, ok := tree.Store().Equipped("hat")
	assert.False(t, ok)
	assert.Empty(t, *changes)

	tree.Store().Purchase("HAT_CAP_1a2b3c4d")
	assert.True(t, tree.Store().SetEquipped("hat", "HAT_CAP_1a2b3c4d"))
}

func TestStore_ReturnedCollectionsAreCopies(t *testing.T) {
	tree := New()
	tree.Store().Purchase("a")
	tree.Store().SetEquipped("hat", "a")

	ids := tree.Store().PurchasedItemIDs()
	ids[0] = "mutated"
	eq := tree.Store().EquippedByCategory()
	eq["hat"] = "mutated"

	assert.Equal(t, []string{"a"}, tree.Store().PurchasedItemIDs())
	id, _ := tree.Store().Equipped("hat")
	assert.Equal(t, "a", id)
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	tree := New()
	var order []string
	unsubA := tree.Subscribe(func(Change) { order = append(order, "a") })
	tree.Subscribe(func(Change) { order = append(order, "b") })

	tree.Wallet().AddCoins(1)
	assert.Equal(t, []string{"a", "b"}, order)

	unsubA()
	unsubA()
	tree.Wallet().AddCoins(1)
	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestSubscribe_UnsubscribeDuringDelivery(t *testing.T) {
	tree := New()
	calls := 0
	var unsub func()
	unsub = tree.Subscribe(func(Change) {
		calls++
		unsub()
	})
	tree.Subscribe(func(Change) { calls++ })

	tree.Wallet().AddCoins(1)
	tree.Wallet().AddCoins(1)

	assert.Equal(t, 3, calls)
}

func TestVersion_NormalizeAndStamp(t *testing.T) {
	tree := New()
	tree.formatVersion = CurrentFormatVersion + 3

	assert.True(t, tree.NormalizeVersion())
	assert.Equal(t, CurrentFormatVersion, tree.FormatVersion())
	assert.False(t, tree.NormalizeVersion())

	tree.formatVersion = 0
	tree.StampVersion()
	assert.Equal(t, CurrentFormatVersion, tree.FormatVersion())
}
