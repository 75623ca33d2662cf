// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package multisig

import (
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
	ErrNoMainMultisig = errors.New("no active main multisig")
	ErrBadMemberCount = errors.New("member count out of bounds")
)

// Config describes how on-demand multisigs are assembled.
type Config struct {
	// BaseMembers are the configured custodial signer addresses.
	BaseMembers []ids.Address

	// Threshold is T; 0 means "equal to member count".
	Threshold uint32

	TimeLockSeconds uint64

	MinMembers int
	MaxMembers int
}

func (c Config) resolveThreshold() uint32 {
	n := uint32(len(c.BaseMembers))
	if c.Threshold == 0 || c.Threshold > n {
		return n
	}
	return c.Threshold
}

func (c Config) Verify() error {
	n := len(c.BaseMembers)
	if n < c.MinMembers || n > c.MaxMembers {
		return fmt.Errorf("%w: have %d members, want %d..%d",
			ErrBadMemberCount, n, c.MinMembers, c.MaxMembers)
	}
	return nil
}

// Registry resolves the main multisig and provisions per-user multisigs on
// demand.
type Registry struct {
	cfg   Config
	state *state.State
	clock *mockable.Clock
	log   logging.Logger
}

func NewRegistry(cfg Config, s *state.State, clock *mockable.Clock, log logging.Logger) *Registry {
	return &Registry{
		cfg:   cfg,
		state: s,
		clock: clock,
		log:   log,
	}
}

// MainMultisig returns the single active multisig flagged as main.
func (r *Registry) MainMultisig() (*state.Multisig, error) {
	m, err := r.state.MainMultisig()
	if err == database.ErrNotFound {
		return nil, ErrNoMainMultisig
	}
	return m, err
}

// ProvisionForUser returns the user's owning multisig, creating it on first
// use inside its own unit of work. A concurrent creation is detected
// through the unique violation on the PDA or a member key; the retry path
// is read-only.
func (r *Registry) ProvisionForUser(userID uint64) (*state.Multisig, error) {
	diff := r.state.NewDiff()
	defer diff.Abort()

	ms, created, err := r.ProvisionIn(diff, userID)
	switch {
	case errors.Is(err, state.ErrDuplicateKey):
		diff.Abort()
		return r.existing(userID)
	case err != nil:
		return nil, err
	case created:
		if err := diff.Commit(); err != nil {
			return nil, err
		}
		r.log.Info("provisioned multisig",
			zap.Uint64("userID", userID),
			zap.Stringer("pda", ms.PDA),
			zap.Uint32("threshold", ms.Threshold),
			zap.Int("members", len(r.cfg.BaseMembers)),
		)
	}
	return ms, nil
}

// ProvisionIn runs the provisioning against an already-open unit of work,
// so a caller can create the multisig and its first proposal atomically.
// It reports whether a new multisig was staged; the caller owns the commit.
// On state.ErrDuplicateKey the caller must abort and re-read.
func (r *Registry) ProvisionIn(chain state.Chain, userID uint64) (*state.Multisig, bool, error) {
	user, err := chain.GetUser(userID)
	if err != nil {
		return nil, false, err
	}
	if user.MultisigID != 0 {
		ms, err := chain.GetMultisig(user.MultisigID)
		return ms, false, err
	}

	if err := r.cfg.Verify(); err != nil {
		return nil, false, err
	}

	createKey := DeriveCreateKey(userID, r.cfg.BaseMembers)
	pda := DerivePDA(createKey)
	now := r.clock.Time()

	ms := &state.Multisig{
		PDA:             pda,
		CreateKey:       createKey,
		Name:            fmt.Sprintf("user-%d", userID),
		Threshold:       r.cfg.resolveThreshold(),
		TimeLockSeconds: r.cfg.TimeLockSeconds,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := chain.AddMultisig(ms); err != nil {
		return nil, false, err
	}

	for _, base := range r.cfg.BaseMembers {
		member := &state.Member{
			MultisigID:     ms.ID,
			PublicKey:      DeriveMemberKey(base, createKey),
			Permissions:    state.PermissionsAll,
			Active:         true,
			UserID:         userID,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := chain.AddMember(member); err != nil {
			return nil, false, err
		}
	}

	// Each multisig owns a USDC vault at its PDA; deposits land there.
	vault := &state.Vault{
		Address:    pda,
		Name:       ms.Name,
		Currency:   state.USDC,
		Active:     true,
		MultisigID: ms.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := chain.AddVault(vault); err != nil {
		return nil, false, err
	}

	user.MultisigID = ms.ID
	user.UpdatedAt = now
	if err := chain.PutUser(user); err != nil {
		return nil, false, err
	}
	return ms, true, nil
}

// existing is the read-only retry path after a provisioning race.
func (r *Registry) existing(userID uint64) (*state.Multisig, error) {
	createKey := DeriveCreateKey(userID, r.cfg.BaseMembers)
	ms, err := r.state.GetMultisigByPDA(DerivePDA(createKey))
	if err != nil {
		return nil, fmt.Errorf("provisioning raced but existing multisig not readable: %w", err)
	}
	return ms, nil
}
