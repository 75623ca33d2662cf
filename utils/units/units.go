// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

import (
	"fmt"
	"strconv"
	"strings"
)

// Denominations of value. All ledger amounts are carried as uint64 base
// units with 8 decimal places, regardless of the on-chain mint's native
// decimals.
const (
	BaseUnit   uint64 = 1
	MicroToken uint64 = 100 * BaseUnit
	MilliToken uint64 = 1000 * MicroToken
	Token      uint64 = 1000 * MilliToken

	Decimals = 8
)

// Format renders [amount] base units as a decimal token string, trimming
// trailing zeros.
func Format(amount uint64) string {
	whole := amount / Token
	frac := amount % Token
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	s := fmt.Sprintf("%d.%08d", whole, frac)
	return strings.TrimRight(s, "0")
}

// Parse converts a decimal token string into base units. Fractional digits
// beyond 8 places are rejected rather than silently truncated.
func Parse(s string) (uint64, error) {
	whole, frac, found := strings.Cut(s, ".")
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	amount := w * Token
	if !found {
		return amount, nil
	}
	if len(frac) > Decimals {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, Decimals)
	}
	f, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	for i := len(frac); i < Decimals; i++ {
		f *= 10
	}
	return amount + f, nil
}
