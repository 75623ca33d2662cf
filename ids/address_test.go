// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	require := require.New(t)

	addr := GenerateTestAddress()
	parsed, err := ParseAddress(addr.String())
	require.NoError(err)
	require.Equal(addr, parsed)
}

func TestAddressParseRejectsBadInput(t *testing.T) {
	require := require.New(t)

	_, err := ParseAddress("0OIl")
	require.Error(err)

	// Valid base58, wrong length.
	_, err = ParseAddress("abc")
	require.ErrorIs(err, ErrBadAddressLength)
}

func TestAddressJSONRoundTrip(t *testing.T) {
	require := require.New(t)

	addr := GenerateTestAddress()
	b, err := json.Marshal(addr)
	require.NoError(err)

	var parsed Address
	require.NoError(json.Unmarshal(b, &parsed))
	require.Equal(addr, parsed)
}

func TestKeypairRoundTrip(t *testing.T) {
	require := require.New(t)

	key := GenerateTestKeypair()
	require.NotEqual(Address{}, key.Address())

	_, err := ParseKeypair("abc")
	require.Error(err)
}
