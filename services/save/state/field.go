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
)

// Field is a persisted scalar that enforces the clamp, compare, mark-dirty
// contract shared by every mutable value in the tree.
//
// Description:
//
//	Set clamps the incoming value into the field's domain, does nothing if
//	the clamped value equals the current one, and otherwise stores it and
//	publishes a Change. A value is never observable outside its domain.
//
// Thread Safety: Not safe for concurrent use. The tree is owned by a single
// goroutine.
type Field[T any] struct {
	name  string
	value T
	clamp func(T) (T, bool)
	equal func(a, b T) bool
	hub   *hub
}

func newField[T any](h *hub, name string, initial T, clamp func(T) (T, bool), equal func(a, b T) bool) Field[T] {
	f := Field[T]{name: name, clamp: clamp, equal: equal, hub: h}
	f.load(initial)
	return f
}

// Get returns the current value.
func (f *Field[T]) Get() T {
	return f.value
}

// Set applies v and reports whether the stored value changed.
func (f *Field[T]) Set(v T) bool {
	v, ok := f.clamp(v)
	if !ok {
		return false
	}
	if f.equal(f.value, v) {
		return false
	}
	f.value = v
	f.hub.publish(Change{Field: f.name})
	return true
}

// load stores a clamped value without publishing. Used while decoding.
func (f *Field[T]) load(v T) {
	if clamped, ok := f.clamp(v); ok {
		f.value = clamped
	}
}

// =============================================================================
// Domains
// =============================================================================

func atLeast(floor int64) func(int64) (int64, bool) {
	return func(v int64) (int64, bool) {
		if v < floor {
			return floor, true
		}
		return v, true
	}
}

// unitInterval clamps into [0,1]. NaN is rejected outright.
func unitInterval(v float64) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	return math.Min(1, math.Max(0, v)), true
}

func exactly[T comparable](a, b T) bool {
	return a == b
}

// volumeTolerance matches the precision players can perceive on a slider.
const volumeTolerance = 1e-6

func approximately(a, b float64) bool {
	return math.Abs(a-b) < volumeTolerance
}

// saturatingAdd adds a non-negative delta, pinning at math.MaxInt64.
func saturatingAdd(a, delta int64) int64 {
	if delta > 0 && a > math.MaxInt64-delta {
		return math.MaxInt64
	}
	return a + delta
}
