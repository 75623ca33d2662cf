// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package yield governs investments through an external yield provider.
// The provider itself is an external collaborator; only its request surface
// is modeled here.
package yield

import (
	"context"
	"fmt"
	"sync"
)

// Provider is the external yield product. Invest places [amount] base units
// for [userID] and returns the provider's reference for the position.
type Provider interface {
	Name() string
	Invest(ctx context.Context, userID uint64, amount uint64) (reference string, err error)
}

// LedgerProvider books positions locally and mints its own references.
// It stands in until a real product integration is configured.
type LedgerProvider struct {
	lock sync.Mutex
	next uint64
}

func NewLedgerProvider() *LedgerProvider {
	return &LedgerProvider{}
}

func (*LedgerProvider) Name() string {
	return "ledger"
}

func (p *LedgerProvider) Invest(_ context.Context, userID uint64, _ uint64) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.next++
	return fmt.Sprintf("ledger-%d-%d", userID, p.next), nil
}

// TestProvider is an in-memory provider double.
type TestProvider struct {
	lock sync.Mutex

	investErr error
	placed    []Placement
}

// Placement records one Invest call.
type Placement struct {
	UserID    uint64
	Amount    uint64
	Reference string
}

func NewTestProvider() *TestProvider {
	return &TestProvider{}
}

func (*TestProvider) Name() string {
	return "test"
}

// FailInvests makes every subsequent Invest return [err].
func (p *TestProvider) FailInvests(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.investErr = err
}

func (p *TestProvider) Placed() []Placement {
	p.lock.Lock()
	defer p.lock.Unlock()
	placed := make([]Placement, len(p.placed))
	copy(placed, p.placed)
	return placed
}

func (p *TestProvider) Invest(_ context.Context, userID uint64, amount uint64) (string, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.investErr != nil {
		return "", p.investErr
	}
	ref := fmt.Sprintf("pos-%d", len(p.placed)+1)
	p.placed = append(p.placed, Placement{
		UserID:    userID,
		Amount:    amount,
		Reference: ref,
	})
	return ref, nil
}
