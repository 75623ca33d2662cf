// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var ErrBadKeyLength = errors.New("private key is not 64 bytes")

// Keypair wraps an ed25519 key whose public half doubles as the on-chain
// address.
type Keypair struct {
	priv ed25519.PrivateKey
}

// ParseKeypair decodes a base58-encoded 64-byte ed25519 private key, the
// format wallet tooling exports.
func ParseKeypair(s string) (*Keypair, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d", ErrBadKeyLength, len(b))
	}
	return &Keypair{priv: ed25519.PrivateKey(b)}, nil
}

// GenerateTestKeypair returns a fresh random keypair. Should only be used in
// tests.
func GenerateTestKeypair() *Keypair {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &Keypair{priv: priv}
}

func (k *Keypair) Address() Address {
	pub := k.priv.Public().(ed25519.PublicKey)
	addr, _ := ToAddress(pub)
	return addr
}

func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

func (k *Keypair) String() string {
	return k.Address().String()
}
