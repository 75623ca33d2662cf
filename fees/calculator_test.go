// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fees

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/utils/units"
)

func newTestCalculator() *Calculator {
	return NewCalculator(ids.GenerateTestAddress(), nil)
}

func TestComputeDefaultRate(t *testing.T) {
	require := require.New(t)

	c := newTestCalculator()

	// 10 tokens at 0.001% is a 0.0001 fee.
	fee, net := c.Compute(10 * units.Token)
	require.Equal(uint64(10_000), fee)
	require.Equal(10*units.Token-10_000, net)

	// Fee plus net always reconstructs gross.
	for _, gross := range []uint64{1, 99, units.Token, 123_456_789, MaxWalletTransfer} {
		fee, net := c.Compute(gross)
		require.Equal(gross, fee+net)
	}
}

func TestComputeRoundsDown(t *testing.T) {
	require := require.New(t)

	c := newTestCalculator()

	// 99_999 base units at 1/100_000 is 0.99999 base units: rounds to 0.
	fee, net := c.Compute(99_999)
	require.Zero(fee)
	require.Equal(uint64(99_999), net)

	fee, _ = c.Compute(100_000)
	require.Equal(uint64(1), fee)
}

func TestValidateAmount(t *testing.T) {
	require := require.New(t)

	c := newTestCalculator()

	require.ErrorIs(c.ValidateAmount(0), ErrAmountOutOfRange)
	require.ErrorIs(c.ValidateAmount(MaxWalletTransfer+1), ErrAmountOutOfRange)
	require.NoError(c.ValidateAmount(MaxWalletTransfer))
	require.NoError(c.ValidateAmount(1))
}

func TestValidateSufficient(t *testing.T) {
	require := require.New(t)

	c := newTestCalculator()

	gross := 10 * units.Token
	fee, _ := c.Compute(gross)

	require.NoError(c.ValidateSufficient(gross+fee, gross))

	err := c.ValidateSufficient(gross+fee-1, gross)
	require.ErrorIs(err, ErrInsufficientFunds)

	var shortfall *ShortfallError
	require.True(errors.As(err, &shortfall))
	require.Equal(gross+fee, shortfall.Required)
	require.Equal(gross+fee-1, shortfall.Available)
}
