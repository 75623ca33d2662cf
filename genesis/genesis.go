// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package genesis bootstraps the main multisig and the treasury vault on an
// empty store.
package genesis

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
)

var (
	ErrBadMemberCount = errors.New("main multisig needs 2 or 3 members")
	ErrBadThreshold   = errors.New("threshold out of range")
)

const (
	MinMembers = 2
	MaxMembers = 3

	mainCreateKeyPrefix = "solvault/genesis/v1"
)

// Config is the bootstrap material. MemberKeys are the custodial signer
// keypairs; Threshold 0 resolves to the member count.
type Config struct {
	MemberKeys      []*ids.Keypair
	Threshold       uint32
	TimeLockSeconds uint64
	TreasuryAddress ids.Address
}

func (c Config) Verify() error {
	n := len(c.MemberKeys)
	if n < MinMembers || n > MaxMembers {
		return fmt.Errorf("%w: have %d", ErrBadMemberCount, n)
	}
	if c.Threshold > uint32(n) {
		return fmt.Errorf("%w: %d of %d", ErrBadThreshold, c.Threshold, n)
	}
	return nil
}

func (c Config) resolveThreshold() uint32 {
	if c.Threshold == 0 {
		return uint32(len(c.MemberKeys))
	}
	return c.Threshold
}

// Bootstrap creates the main multisig, its members and the treasury vault
// in one unit of work. A store that already has a main multisig is left
// untouched, so Bootstrap is safe on every start.
func Bootstrap(s *state.State, clock *mockable.Clock, log logging.Logger, cfg Config) error {
	if err := cfg.Verify(); err != nil {
		return err
	}

	switch _, err := s.MainMultisig(); err {
	case nil:
		log.Debug("main multisig already bootstrapped")
		return nil
	case database.ErrNotFound:
	default:
		return err
	}

	diff := s.NewDiff()
	defer diff.Abort()

	now := clock.Time()
	createKey := mainCreateKey(cfg.MemberKeys)
	ms := &state.Multisig{
		PDA:             mainPDA(createKey),
		CreateKey:       createKey,
		Name:            "main",
		Threshold:       cfg.resolveThreshold(),
		TimeLockSeconds: cfg.TimeLockSeconds,
		Active:          true,
		Main:            true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := diff.AddMultisig(ms); err != nil {
		return err
	}

	for _, key := range cfg.MemberKeys {
		if err := diff.AddMember(&state.Member{
			MultisigID:     ms.ID,
			PublicKey:      key.Address(),
			Permissions:    state.PermissionsAll,
			Active:         true,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
	}

	if err := diff.AddVault(&state.Vault{
		Address:   cfg.TreasuryAddress,
		Name:      "treasury",
		Currency:  state.USDC,
		Active:    true,
		Treasury:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	if err := diff.Commit(); err != nil {
		return err
	}

	log.Info("bootstrapped main multisig",
		zap.Stringer("pda", ms.PDA),
		zap.Uint32("threshold", ms.Threshold),
		zap.Int("members", len(cfg.MemberKeys)),
		zap.Stringer("treasury", cfg.TreasuryAddress),
	)
	return nil
}

// mainCreateKey hashes the member set so a reconfigured deployment gets a
// distinct main multisig identity.
func mainCreateKey(keys []*ids.Keypair) ids.Address {
	h := sha256.New()
	h.Write([]byte(mainCreateKeyPrefix))
	for _, k := range keys {
		addr := k.Address()
		h.Write(addr.Bytes())
	}
	addr, _ := ids.ToAddress(h.Sum(nil))
	return addr
}

func mainPDA(createKey ids.Address) ids.Address {
	h := sha256.New()
	h.Write([]byte(mainCreateKeyPrefix))
	h.Write([]byte("/pda"))
	h.Write(createKey.Bytes())
	addr, _ := ids.ToAddress(h.Sum(nil))
	return addr
}
