// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shop implements the item catalog and the buy/equip rules on top
// of the wallet and the store section of the save.
package shop

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/anchorsave/pkg/validation"
	"github.com/AleutianAI/anchorsave/services/save/economy"
	"github.com/AleutianAI/anchorsave/services/save/state"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// =============================================================================
// Validation
// =============================================================================

var catalogValidate *validator.Validate

func init() {
	catalogValidate = validator.New()
	_ = catalogValidate.RegisterValidation("currency", validateCurrency)
}

// validateCurrency accepts the currencies the economy knows about.
func validateCurrency(fl validator.FieldLevel) bool {
	_, err := economy.ParseCurrency(fl.Field().String())
	return err == nil
}

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid store catalog")

// =============================================================================
// Catalog
// =============================================================================

// Item is one purchasable entry.
type Item struct {
	ID          string           `yaml:"id" validate:"required"`
	DisplayName string           `yaml:"display_name" validate:"required"`
	Category    state.Category   `yaml:"category" validate:"required"`
	Currency    economy.Currency `yaml:"currency" validate:"required,currency"`
	Price       int64            `yaml:"price" validate:"gte=0"`
}

// Catalog is the full set of categories and items on sale.
type Catalog struct {
	Categories []state.Category `yaml:"categories" validate:"required,min=1,dive,required"`
	Items      []Item           `yaml:"items" validate:"dive"`

	byID map[string]int
}

// DefaultCatalog returns the catalog bundled with the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field rules, then rejects duplicate item IDs and items in
// undeclared categories. It also builds the ID index.
func (c *Catalog) Validate() error {
	if err := catalogValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	declared := make(map[state.Category]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if err := validation.ValidateCategory(string(cat)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		declared[cat] = struct{}{}
	}

	c.byID = make(map[string]int, len(c.Items))
	for i, it := range c.Items {
		if err := validation.ValidateItemID(it.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		if _, dup := c.byID[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidCatalog, it.ID)
		}
		if _, ok := declared[it.Category]; !ok {
			return fmt.Errorf("%w: item %q has undeclared category %q", ErrInvalidCatalog, it.ID, it.Category)
		}
		c.byID[it.ID] = i
	}
	return nil
}

// ContainsCategory reports whether category is declared.
func (c *Catalog) ContainsCategory(category state.Category) bool {
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// ItemsIn returns the items in category sorted by display name, byte-wise.
func (c *Catalog) ItemsIn(category state.Category) []Item {
	var out []Item
	for _, it := range c.Items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// Item looks an item up by ID.
func (c *Catalog) Item(id string) (Item, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return c.Items[i], true
}

// GenerateItemID builds a new item ID of the form CATEGORY_NAME_XXXXXXXX,
// where the suffix is the first 8 hex digits of a random UUID. Characters
// outside the ID alphabet are dropped from the name, and the name is cut so
// the ID fits validation.MaxItemIDLength; an empty result becomes ITEM.
func GenerateItemID(category state.Category, displayName string) string {
	const suffixLen = 8
	prefix := strings.ToUpper(string(category))

	name := validation.ItemIDPart(displayName)
	budget := validation.MaxItemIDLength - len(prefix) - suffixLen - 2
	if len(name) > budget {
		name = strings.TrimRight(name[:max(budget, 0)], "_")
	}
	if name == "" {
		name = "ITEM"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen])
	return fmt.Sprintf("%s_%s_%s", prefix, name, suffix)
}
