// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yield

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/fees"
	"github.com/solvault-io/solvaultd/multisig"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
)

// Manager opens governed yield investments and settles them on execute.
// The placement runs between the two settlement units of work, like a chain
// submit.
type Manager struct {
	state    *state.State
	calc     *fees.Calculator
	registry *multisig.Registry
	engine   *proposal.Engine
	provider Provider
	clock    *mockable.Clock
	log      logging.Logger
}

func NewManager(
	s *state.State,
	calc *fees.Calculator,
	registry *multisig.Registry,
	engine *proposal.Engine,
	provider Provider,
	clock *mockable.Clock,
	log logging.Logger,
) *Manager {
	m := &Manager{
		state:    s,
		calc:     calc,
		registry: registry,
		engine:   engine,
		provider: provider,
		clock:    clock,
		log:      log,
	}
	engine.RegisterExecutor(state.LinkYieldInvestment, &investExecutor{m: m})
	return m
}

// Propose opens a governed investment for [userID], provisioning the user's
// multisig on demand in the same unit of work.
func (m *Manager) Propose(userID uint64, amount uint64) (*state.YieldInvestment, *state.Proposal, error) {
	if err := m.calc.ValidateAmount(amount); err != nil {
		return nil, nil, err
	}

	y, p, err := m.proposeOnce(userID, amount)
	if errors.Is(err, state.ErrDuplicateKey) {
		return m.proposeOnce(userID, amount)
	}
	return y, p, err
}

func (m *Manager) proposeOnce(userID uint64, amount uint64) (*state.YieldInvestment, *state.Proposal, error) {
	diff := m.state.NewDiff()
	defer diff.Abort()

	user, err := diff.GetUser(userID)
	if err != nil {
		return nil, nil, err
	}
	if user.Balance < amount {
		return nil, nil, &fees.ShortfallError{
			Required:  amount,
			Available: user.Balance,
		}
	}

	ms, _, err := m.registry.ProvisionIn(diff, userID)
	if err != nil {
		return nil, nil, err
	}

	now := m.clock.Time()
	y := &state.YieldInvestment{
		UserID:    userID,
		Amount:    amount,
		Currency:  state.USDC,
		Provider:  m.provider.Name(),
		Status:    state.TransferPendingApproval,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := diff.AddYieldInvestment(y); err != nil {
		return nil, nil, err
	}

	members, err := diff.MembersOf(ms.ID)
	if err != nil {
		return nil, nil, err
	}
	p, err := m.engine.ProposeIn(diff, ms.ID, members[0].PublicKey, state.LinkYieldInvestment, y.ID, "")
	if err != nil {
		return nil, nil, err
	}
	y.ProposalID = p.ID
	if err := diff.PutYieldInvestment(y); err != nil {
		return nil, nil, err
	}
	if err := diff.Commit(); err != nil {
		return nil, nil, err
	}

	m.log.Info("yield investment proposed",
		zap.Uint64("investmentID", y.ID),
		zap.Uint64("proposalID", p.ID),
		zap.Uint64("userID", userID),
		zap.Uint64("amount", amount),
	)
	return y, p, nil
}

var _ proposal.Executor = (*investExecutor)(nil)

type investExecutor struct {
	m *Manager
}

func (e *investExecutor) Submit(ctx context.Context, p *state.Proposal) (string, error) {
	y, err := e.m.state.GetYieldInvestment(p.LinkID)
	if err != nil {
		return "", err
	}

	// Re-check the ledger at execution time; the balance may have drained
	// since the proposal was opened.
	u, err := e.m.state.GetUser(y.UserID)
	if err != nil {
		return "", err
	}
	if u.Balance < y.Amount {
		return "", &fees.ShortfallError{
			Required:  y.Amount,
			Available: u.Balance,
		}
	}
	return e.m.provider.Invest(ctx, y.UserID, y.Amount)
}

func (e *investExecutor) Settle(ch state.Chain, p *state.Proposal, reference string) error {
	y, err := ch.GetYieldInvestment(p.LinkID)
	if err != nil {
		return err
	}
	y.Status = state.TransferCompleted
	y.Reference = reference
	y.UpdatedAt = e.m.clock.Time()
	if err := ch.PutYieldInvestment(y); err != nil {
		return err
	}
	return ch.SubUserBalance(y.UserID, y.Amount)
}
