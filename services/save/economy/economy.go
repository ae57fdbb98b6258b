// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package economy wraps the wallet with currency-typed operations and
// balance-change notifications.
package economy

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/anchorsave/services/save/state"
)

// Currency names a wallet balance.
type Currency string

const (
	Coins  Currency = "coins"
	Pearls Currency = "pearls"
)

// ErrUnknownCurrency is returned by ParseCurrency.
var ErrUnknownCurrency = errors.New("unknown currency")

// ParseCurrency accepts "coins" or "pearls", case-insensitively.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToLower(strings.TrimSpace(s))); c {
	case Coins, Pearls:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
	}
}

// TreeSource yields the live state tree. *persistence.Manager satisfies it.
type TreeSource interface {
	State() *state.Tree
}

type balanceListener struct {
	id int
	fn func(Currency, int64)
}

// Service applies currency operations to the live wallet.
//
// Description:
//
//	The wallet is looked up on every call, so a Reset that swaps the tree
//	is picked up without re-wiring. Listeners fire only when a balance
//	actually changed.
//
// Thread Safety: Not safe for concurrent use. Same goroutine as the tree.
type Service struct {
	src       TreeSource
	logger    *slog.Logger
	listeners []balanceListener
	nextID    int
}

// New returns a Service over src. A nil logger uses slog.Default().
func New(src TreeSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		src:    src,
		logger: logger.With(slog.String("component", "economy")),
	}
}

func (s *Service) wallet() *state.Wallet {
	return s.src.State().Wallet()
}

// Balance returns the current balance of c. Unknown currencies read as 0.
func (s *Service) Balance(c Currency) int64 {
	switch c {
	case Coins:
		return s.wallet().Coins()
	case Pearls:
		return s.wallet().Pearls()
	default:
		return 0
	}
}

// CanAfford is true for non-positive amounts and otherwise compares against
// the balance. Unknown currencies can afford nothing.
func (s *Service) CanAfford(c Currency, amount int64) bool {
	if amount <= 0 {
		return true
	}
	switch c {
	case Coins, Pearls:
		return s.Balance(c) >= amount
	default:
		return false
	}
}

// Add credits amount. Non-positive amounts and unknown currencies are
// ignored. Reports whether the balance changed.
func (s *Service) Add(c Currency, amount int64, reason string) bool {
	if amount <= 0 {
		return false
	}
	var changed bool
	switch c {
	case Coins:
		changed = s.wallet().AddCoins(amount)
	case Pearls:
		changed = s.wallet().AddPearls(amount)
	default:
		return false
	}
	if changed {
		s.logger.Debug("credited",
			slog.String("currency", string(c)),
			slog.Int64("amount", amount),
			slog.String("reason", reason),
		)
		s.emit(c)
	}
	return changed
}

// TrySpend debits amount if affordable. Non-positive amounts succeed
// without change; unknown currencies fail.
func (s *Service) TrySpend(c Currency, amount int64, reason string) bool {
	if amount <= 0 {
		return true
	}
	var ok bool
	switch c {
	case Coins:
		ok = s.wallet().TrySpendCoins(amount)
	case Pearls:
		ok = s.wallet().TrySpendPearls(amount)
	default:
		return false
	}
	if ok {
		s.logger.Debug("debited",
			slog.String("currency", string(c)),
			slog.Int64("amount", amount),
			slog.String("reason", reason),
		)
		s.emit(c)
	}
	return ok
}

// OnChange registers fn for balance changes made through this service and
// for Broadcast.
func (s *Service) OnChange(fn func(Currency, int64)) (unsubscribe func()) {
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, balanceListener{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Broadcast re-emits both balances. Used after a load or reset so that
// displays resynchronize.
func (s *Service) Broadcast() {
	s.emit(Coins)
	s.emit(Pearls)
}

func (s *Service) emit(c Currency) {
	balance := s.Balance(c)
	ls := make([]balanceListener, len(s.listeners))
	copy(ls, s.listeners)
	for _, l := range ls {
		l.fn(c, balance)
	}
}
