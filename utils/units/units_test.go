// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	require := require.New(t)

	require.Equal("0", Format(0))
	require.Equal("1", Format(Token))
	require.Equal("1.5", Format(Token+50*MilliToken*10))
	require.Equal("0.00000001", Format(BaseUnit))
	require.Equal("100.0001", Format(100*Token+10_000))
}

func TestParse(t *testing.T) {
	require := require.New(t)

	tests := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"1", Token},
		{"1.5", Token + Token/2},
		{"0.00000001", BaseUnit},
		{"100.0001", 100*Token + 10_000},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(err, tt.in)
		require.Equal(tt.want, got, tt.in)
	}
}

func TestParseRejectsExcessPrecision(t *testing.T) {
	require := require.New(t)

	_, err := Parse("1.000000001")
	require.Error(err)
	_, err = Parse("abc")
	require.Error(err)
}

func TestFormatParseRoundTrip(t *testing.T) {
	require := require.New(t)

	for _, amount := range []uint64{0, 1, 99, Token - 1, Token, 251*Token + Token/2} {
		got, err := Parse(Format(amount))
		require.NoError(err)
		require.Equal(amount, got)
	}
}
