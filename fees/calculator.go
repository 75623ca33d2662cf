// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fees

import (
	"errors"
	"fmt"

	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/utils/units"
)

var (
	ErrAmountOutOfRange  = errors.New("amount out of range")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

const (
	// DefaultRateNum/DefaultRateDen is 0.00001 (0.001%).
	DefaultRateNum uint64 = 1
	DefaultRateDen uint64 = 100_000

	// MaxWalletTransfer is the per-transfer ceiling, in base units.
	MaxWalletTransfer = 1_000_000 * units.Token
)

// ShortfallError reports a failed sufficiency check together with the
// required total (gross plus fee).
type ShortfallError struct {
	Required  uint64
	Available uint64
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s",
		units.Format(e.Required), units.Format(e.Available))
}

func (*ShortfallError) Unwrap() error {
	return ErrInsufficientFunds
}

// Calculator computes fees deterministically and is the one authoritative
// sufficiency check used by every orchestrator. It also owns the treasury
// identity: the keypair never leaves this package.
type Calculator struct {
	rateNum uint64
	rateDen uint64

	treasuryAddress ids.Address
	treasuryKey     *ids.Keypair
}

func NewCalculator(treasuryAddress ids.Address, treasuryKey *ids.Keypair) *Calculator {
	return &Calculator{
		rateNum:         DefaultRateNum,
		rateDen:         DefaultRateDen,
		treasuryAddress: treasuryAddress,
		treasuryKey:     treasuryKey,
	}
}

// Compute returns (fee, net) for [gross]. The fee is gross*rate rounded
// down at 8 decimal places; because amounts are 8-decimal base units the
// integer arithmetic is the round-down.
func (c *Calculator) Compute(gross uint64) (fee uint64, net uint64) {
	fee = gross / c.rateDen * c.rateNum
	fee += gross % c.rateDen * c.rateNum / c.rateDen
	return fee, gross - fee
}

// RateNum and RateDen expose the rate used, for fee audit rows.
func (c *Calculator) RateNum() uint64 {
	return c.rateNum
}

func (c *Calculator) RateDen() uint64 {
	return c.rateDen
}

func (c *Calculator) TreasuryAddress() ids.Address {
	return c.treasuryAddress
}

func (c *Calculator) TreasuryKey() *ids.Keypair {
	return c.treasuryKey
}

// ValidateAmount rejects non-positive and above-ceiling grosses.
func (c *Calculator) ValidateAmount(gross uint64) error {
	if gross == 0 {
		return fmt.Errorf("%w: amount must be positive", ErrAmountOutOfRange)
	}
	if gross > MaxWalletTransfer {
		return fmt.Errorf("%w: amount %s above ceiling %s",
			ErrAmountOutOfRange, units.Format(gross), units.Format(MaxWalletTransfer))
	}
	return nil
}

// ValidateSufficient checks that [balance] covers [gross] plus its fee.
func (c *Calculator) ValidateSufficient(balance uint64, gross uint64) error {
	fee, _ := c.Compute(gross)
	required := gross + fee
	if balance < required {
		return &ShortfallError{
			Required:  required,
			Available: balance,
		}
	}
	return nil
}
