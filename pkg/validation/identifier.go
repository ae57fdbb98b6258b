// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that end up in save files and
// catalog lookups.
//
// Item IDs and category names are stored verbatim in the save document and
// typed on the command line, so both are restricted to a small, unambiguous
// alphabet.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxItemIDLength is the longest item ID ValidateItemID accepts.
const MaxItemIDLength = 64

// itemIDPattern matches store item IDs such as HAT_STRAW_HAT_92AC3E1F.
// Allows: uppercase letters, digits, underscores. Max length: MaxItemIDLength.
var itemIDPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_]{0,63}$`)

// categoryPattern matches store categories such as hat or fishing_rod.
// Max length: 32.
var categoryPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ValidateItemID validates a store item ID.
//
// Valid IDs:
//   - 1-64 characters
//   - Uppercase letters A-Z, digits 0-9 and underscores
//   - Not starting with an underscore
//
// Example:
//
//	if err := validation.ValidateItemID(id); err != nil {
//	    return fmt.Errorf("invalid catalog: %w", err)
//	}
func ValidateItemID(id string) error {
	if id == "" {
		return fmt.Errorf("item id cannot be empty")
	}
	if !itemIDPattern.MatchString(id) {
		return fmt.Errorf("invalid item id: %q (must be 1-64 uppercase alphanumeric chars or underscores)", id)
	}
	return nil
}

// ValidateItemIDs validates multiple item IDs.
// Returns an error listing all invalid IDs if any fail validation.
func ValidateItemIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateItemID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid item ids: %q", invalid)
	}
	return nil
}

// SanitizeItemID normalizes user input to the stored form and validates it.
//
//	id, err := validation.SanitizeItemID("hat_straw_hat_92ac3e1f")
//	// id == "HAT_STRAW_HAT_92AC3E1F"
func SanitizeItemID(id string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(id))
	if err := ValidateItemID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateCategory validates a store category name: 1-32 lowercase
// letters, digits or underscores, starting with a letter.
func ValidateCategory(category string) error {
	if category == "" {
		return fmt.Errorf("category cannot be empty")
	}
	if !categoryPattern.MatchString(category) {
		return fmt.Errorf("invalid category: %q (must be 1-32 lowercase alphanumeric chars or underscores)", category)
	}
	return nil
}

// ItemIDPart maps free text to the item ID alphabet: uppercased, spaces
// become underscores, anything else outside the alphabet is dropped.
func ItemIDPart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return b.String()
}
