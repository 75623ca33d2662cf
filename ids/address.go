// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const AddressLen = 32

var (
	EmptyAddress = Address{}

	ErrBadAddressLength = errors.New("address is not 32 bytes")
)

// Address is a 32-byte account identifier, rendered in base58. Wallets,
// multisig PDAs, vaults and member public keys are all addresses.
type Address [AddressLen]byte

func ToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLen {
		return addr, fmt.Errorf("%w: got %d", ErrBadAddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// ParseAddress decodes a base58 string into an Address.
func ParseAddress(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("parsing address %q: %w", s, err)
	}
	return ToAddress(b)
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) Less(other Address) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// GenerateTestAddress returns a random address. Should only be used in tests.
func GenerateTestAddress() Address {
	var addr Address
	_, _ = rand.Read(addr[:])
	return addr
}
