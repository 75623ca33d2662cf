// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd64(t *testing.T) {
	require := require.New(t)

	sum, err := Add64(1, 2)
	require.NoError(err)
	require.Equal(uint64(3), sum)

	_, err = Add64(math.MaxUint64, 1)
	require.ErrorIs(err, ErrOverflow)
}

func TestSub64(t *testing.T) {
	require := require.New(t)

	diff, err := Sub64(3, 2)
	require.NoError(err)
	require.Equal(uint64(1), diff)

	_, err = Sub64(2, 3)
	require.ErrorIs(err, ErrUnderflow)
}

func TestMul64(t *testing.T) {
	require := require.New(t)

	prod, err := Mul64(math.MaxUint64, 0)
	require.NoError(err)
	require.Zero(prod)

	_, err = Mul64(math.MaxUint64, 2)
	require.ErrorIs(err, ErrOverflow)
}
