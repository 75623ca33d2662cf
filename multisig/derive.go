// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package multisig

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/exp/slices"

	"github.com/solvault-io/solvaultd/ids"
)

// Derivation domain separators. Changing any of these re-keys every derived
// multisig, so they are frozen.
const (
	createKeyPrefix = "solvault/create-key/v1"
	pdaPrefix       = "solvault/multisig/v1"
	memberKeyPrefix = "solvault/member/v1"
)

// DeriveCreateKey produces the deterministic creation key for [userID]'s
// multisig over the configured base member set. The same user and member
// configuration always derive the same key, which is what makes concurrent
// provisioning collide on the unique index instead of double-creating.
// The member set is hashed in sorted order, so flag ordering cannot re-key
// existing multisigs.
func DeriveCreateKey(userID uint64, baseMembers []ids.Address) ids.Address {
	sorted := slices.Clone(baseMembers)
	slices.SortFunc(sorted, func(a, b ids.Address) int {
		return bytes.Compare(a.Bytes(), b.Bytes())
	})

	h := sha256.New()
	h.Write([]byte(createKeyPrefix))
	h.Write(binary.BigEndian.AppendUint64(nil, userID))
	for _, m := range sorted {
		h.Write(m.Bytes())
	}
	addr, _ := ids.ToAddress(h.Sum(nil))
	return addr
}

// DerivePDA produces the program-derived address for [createKey].
func DerivePDA(createKey ids.Address) ids.Address {
	h := sha256.New()
	h.Write([]byte(pdaPrefix))
	h.Write(createKey.Bytes())
	addr, _ := ids.ToAddress(h.Sum(nil))
	return addr
}

// DeriveMemberKey produces the per-multisig member key for a configured
// base key. Member public keys are unique across every multisig, so the
// same custodial signer appears under a distinct derived key per multisig.
func DeriveMemberKey(base ids.Address, createKey ids.Address) ids.Address {
	h := sha256.New()
	h.Write([]byte(memberKeyPrefix))
	h.Write(base.Bytes())
	h.Write(createKey.Bytes())
	addr, _ := ids.ToAddress(h.Sum(nil))
	return addr
}
