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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSerializer_RoundTrip(t *testing.T) {
	tree := New()
	tree.Progression().SetLevel(7)
	tree.Progression().SetXP(1234)
	tree.Wallet().SetCoins(500)
	tree.Wallet().SetPearls(9)
	tree.Store().Purchase("HAT_CAP_00000001")
	tree.Store().Purchase("BOARD_RED_00000002")
	tree.Store().SetEquipped("hat", "HAT_CAP_00000001")
	tree.Store().SetEquipped("board", "BOARD_RED_00000002")
	tree.Settings().SetMusicVolume(0.4)
	tree.Settings().SetSfxVolume(0)

	var s JSONSerializer
	data, err := s.Marshal(tree)
	require.NoError(t, err)

	got, err := s.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.Progression().Level())
	assert.Equal(t, int64(1234), got.Progression().XP())
	assert.Equal(t, int64(500), got.Wallet().Coins())
	assert.Equal(t, int64(9), got.Wallet().Pearls())
	assert.Equal(t, []string{"HAT_CAP_00000001", "BOARD_RED_00000002"}, got.Store().PurchasedItemIDs())
	assert.True(t, got.Store().IsPurchased("BOARD_RED_00000002"), "lookup rebuilt on decode")
	assert.Equal(t, tree.Store().EquippedByCategory(), got.Store().EquippedByCategory())
	assert.InDelta(t, 0.4, got.Settings().MusicVolume(), 1e-9)
	assert.Equal(t, 0.0, got.Settings().SfxVolume())

	again, err := s.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestJSONSerializer_FieldNames(t *testing.T) {
	tree := New()
	tree.Store().Purchase("x")
	tree.Store().SetEquipped("hat", "x")

	data, err := JSONSerializer{}.Marshal(tree)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, "1", string(raw["version"]))
	assert.JSONEq(t, `{"level":1,"xp":0}`, string(raw["progression"]))
	assert.JSONEq(t, `{"coins":0,"pearls":0}`, string(raw["wallet"]))
	assert.JSONEq(t, `{"purchasedItemIds":["x"],"equippedByCategory":[{"category":"hat","itemId":"x"}]}`, string(raw["store"]))
	assert.JSONEq(t, `{"musicVolume":1,"sfxVolume":1}`, string(raw["settings"]))
}

func TestJSONSerializer_MissingKeysTakeDefaults(t *testing.T) {
	got, err := JSONSerializer{}.Unmarshal([]byte(`{"wallet":{"coins":12}}`))
	require.NoError(t, err)

	assert.Equal(t, CurrentFormatVersion, got.FormatVersion())
	assert.Equal(t, int64(1), got.Progression().Level())
	assert.Equal(t, int64(12), got.Wallet().Coins())
	assert.Equal(t, 1.0, got.Settings().MusicVolume())
	assert.Empty(t, got.Store().PurchasedItemIDs())
}

func TestJSONSerializer_ClampsOnDecode(t *testing.T) {
	doc := `{
		"version": 1,
		"progression": {"level": -4, "xp": -1},
		"wallet": {"coins": -10, "pearls": 5},
		"store": {
			"purchasedItemIds": ["a", "", "a", "b"],
			"equippedByCategory": [{"category": "hat", "itemId": ""}, {"category": "board", "itemId": "b"}, {"category": "sail", "itemId": "unowned"}]
		},
		"settings": {"musicVolume": 7.5, "sfxVolume": -2}
	}`
	got, err := JSONSerializer{}.Unmarshal([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.Progression().Level())
	assert.Equal(t, int64(0), got.Progression().XP())
	assert.Equal(t, int64(0), got.Wallet().Coins())
	assert.Equal(t, int64(5), got.Wallet().Pearls())
	assert.Equal(t, []string{"a", "b"}, got.Store().PurchasedItemIDs())
	assert.Equal(t, map[Category]string{"board": "b"}, got.Store().EquippedByCategory())
	assert.Equal(t, 1.0, got.Settings().MusicVolume())
	assert.Equal(t, 0.0, got.Settings().SfxVolume())
}

func TestJSONSerializer_KeepsNewerVersionForCaller(t *testing.T) {
	got, err := JSONSerializer{}.Unmarshal([]byte(`{"version": 9, "futureField": true}`))
	require.NoError(t, err)

	assert.Equal(t, 9, got.FormatVersion())
	assert.True(t, got.NormalizeVersion())
}

func TestJSONSerializer_DecodedTreeNotifies(t *testing.T) {
	got, err := JSONSerializer{}.Unmarshal([]byte(`{}`))
	require.NoError(t, err)

	var changes []Change
	got.Subscribe(func(c Change) { changes = append(changes, c) })
	got.Wallet().AddCoins(3)

	require.Len(t, changes, 1)
	assert.Equal(t, FieldCoins, changes[0].Field)
}

func TestJSONSerializer_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrEmptyDocument},
		{"whitespace", "  \n", ErrEmptyDocument},
		{"null", "null", ErrEmptyDocument},
		{"garbage", "{not json", nil},
		{"wrong type", `{"wallet":{"coins":"lots"}}`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := JSONSerializer{}.Unmarshal([]byte(tc.data))
			require.Error(t, err)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestJSONSerializer_Indent(t *testing.T) {
	data, err := JSONSerializer{Indent: true}.Marshal(New())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"progression\"")
}
