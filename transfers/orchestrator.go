// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transfers orchestrates the three transfer paths: internal ledger
// moves settle immediately, wallet and external transfers go through the
// proposal engine and settle on execute.
package transfers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/fees"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/multisig"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	safemath "github.com/solvault-io/solvaultd/utils/math"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
)

var (
	ErrReceiverNotFound    = errors.New("no user matches the receiver name")
	ErrAmbiguousReceiver   = errors.New("receiver name matches more than one user")
	ErrSelfTransfer        = errors.New("sender and receiver are the same user")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrNoTreasury          = errors.New("no treasury vault configured")
)

// Orchestrator owns the transfer flows. Every flow computes its fee through
// the one shared calculator and stages all rows of one operation in one unit
// of work.
type Orchestrator struct {
	state    *state.State
	calc     *fees.Calculator
	registry *multisig.Registry
	engine   *proposal.Engine
	client   chain.Client

	// signer is the custody operational keypair used to submit on-chain
	// transfers; usdcMint is the stablecoin mint address.
	signer   *ids.Keypair
	usdcMint ids.Address

	clock   *mockable.Clock
	log     logging.Logger
	metrics *metrics.Metrics
}

func NewOrchestrator(
	s *state.State,
	calc *fees.Calculator,
	registry *multisig.Registry,
	engine *proposal.Engine,
	client chain.Client,
	signer *ids.Keypair,
	usdcMint ids.Address,
	clock *mockable.Clock,
	log logging.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	o := &Orchestrator{
		state:    s,
		calc:     calc,
		registry: registry,
		engine:   engine,
		client:   client,
		signer:   signer,
		usdcMint: usdcMint,
		clock:    clock,
		log:      log,
		metrics:  m,
	}
	engine.RegisterExecutor(state.LinkWalletTransfer, &walletExecutor{o: o})
	engine.RegisterExecutor(state.LinkExternalTransfer, newExternalExecutor(o))
	return o
}

// Internal moves value between two custodial ledgers. The receiver is
// resolved by first name; zero or multiple matches abort before any write.
// Settlement is immediate: debit, credit, fee row and treasury accrual land
// in one unit of work, no proposal involved.
func (o *Orchestrator) Internal(
	senderID uint64,
	receiverFirstName string,
	gross uint64,
	notes string,
) (*state.InternalTransfer, error) {
	if err := o.calc.ValidateAmount(gross); err != nil {
		return nil, err
	}

	diff := o.state.NewDiff()
	defer diff.Abort()

	sender, err := diff.GetUser(senderID)
	if err != nil {
		return nil, err
	}
	receiver, err := resolveReceiver(diff, receiverFirstName)
	if err != nil {
		return nil, err
	}
	if receiver.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	fee, net := o.calc.Compute(gross)
	if err := o.calc.ValidateSufficient(sender.Balance, gross); err != nil {
		return nil, err
	}
	total, err := safemath.Add64(gross, fee)
	if err != nil {
		return nil, err
	}

	treasury, err := diff.TreasuryVault(state.USDC)
	if err == database.ErrNotFound {
		return nil, ErrNoTreasury
	}
	if err != nil {
		return nil, err
	}

	if err := diff.SubUserBalance(sender.ID, total); err != nil {
		return nil, err
	}
	if err := diff.AddUserBalance(receiver.ID, net); err != nil {
		return nil, err
	}
	if err := diff.AddVaultFeeBalance(treasury.ID, fee); err != nil {
		return nil, err
	}

	now := o.clock.Time()
	t := &state.InternalTransfer{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Gross:      gross,
		Fee:        fee,
		Net:        net,
		Currency:   state.USDC,
		Status:     state.TransferCompleted,
		Notes:      notes,
		CreatedAt:  now,
	}
	if err := diff.AddInternalTransfer(t); err != nil {
		return nil, err
	}
	if err := diff.AddFee(&state.Fee{
		LinkKind:  state.LinkInternalTransfer,
		LinkID:    t.ID,
		VaultID:   treasury.ID,
		Amount:    fee,
		RateNum:   o.calc.RateNum(),
		RateDen:   o.calc.RateDen(),
		Status:    state.FeeCollected,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	if err := diff.Commit(); err != nil {
		return nil, err
	}

	o.metrics.TransfersCompleted.WithLabelValues("internal").Inc()
	o.metrics.FeesCollected.Inc()
	o.log.Info("internal transfer settled",
		zap.Uint64("transferID", t.ID),
		zap.Uint64("senderID", sender.ID),
		zap.Uint64("receiverID", receiver.ID),
		zap.Uint64("gross", gross),
		zap.Uint64("fee", fee),
	)
	return t, nil
}

// Wallet opens a governed wallet-to-wallet transfer under the main multisig.
// Only USDC is accepted. No balance moves until the proposal executes.
func (o *Orchestrator) Wallet(
	proposer ids.Address,
	from ids.Address,
	to ids.Address,
	gross uint64,
	currency state.Currency,
	notes string,
	requestedBy string,
) (*state.WalletTransfer, *state.Proposal, error) {
	if currency != state.USDC {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	if err := o.calc.ValidateAmount(gross); err != nil {
		return nil, nil, err
	}

	ms, err := o.registry.MainMultisig()
	if err != nil {
		return nil, nil, err
	}

	diff := o.state.NewDiff()
	defer diff.Abort()

	fee, net := o.calc.Compute(gross)
	now := o.clock.Time()
	t := &state.WalletTransfer{
		From:        from,
		To:          to,
		Gross:       gross,
		Fee:         fee,
		Net:         net,
		Currency:    currency,
		Status:      state.TransferPendingApproval,
		Notes:       notes,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := diff.AddWalletTransfer(t); err != nil {
		return nil, nil, err
	}
	p, err := o.engine.ProposeIn(diff, ms.ID, proposer, state.LinkWalletTransfer, t.ID, notes)
	if err != nil {
		return nil, nil, err
	}
	t.ProposalID = p.ID
	if err := diff.PutWalletTransfer(t); err != nil {
		return nil, nil, err
	}
	if err := diff.Commit(); err != nil {
		return nil, nil, err
	}

	o.log.Info("wallet transfer proposed",
		zap.Uint64("transferID", t.ID),
		zap.Uint64("proposalID", p.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Uint64("gross", gross),
	)
	return t, p, nil
}

// External opens a governed transfer to an address outside custody. The
// user's multisig is provisioned on demand inside the same unit of work, so
// the multisig, the transfer and its proposal appear atomically.
func (o *Orchestrator) External(
	userID uint64,
	to ids.Address,
	gross uint64,
	currency state.Currency,
	notes string,
) (*state.ExternalTransfer, *state.Proposal, error) {
	if currency != state.USDC {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	if err := o.calc.ValidateAmount(gross); err != nil {
		return nil, nil, err
	}

	t, p, err := o.externalOnce(userID, to, gross, currency, notes)
	if errors.Is(err, state.ErrDuplicateKey) {
		// Provisioning raced another request; the multisig now exists, so
		// one retry runs the fast path.
		return o.externalOnce(userID, to, gross, currency, notes)
	}
	return t, p, err
}

func (o *Orchestrator) externalOnce(
	userID uint64,
	to ids.Address,
	gross uint64,
	currency state.Currency,
	notes string,
) (*state.ExternalTransfer, *state.Proposal, error) {
	diff := o.state.NewDiff()
	defer diff.Abort()

	user, err := diff.GetUser(userID)
	if err != nil {
		return nil, nil, err
	}
	fee, net := o.calc.Compute(gross)
	if err := o.calc.ValidateSufficient(user.Balance, gross); err != nil {
		return nil, nil, err
	}

	ms, created, err := o.registry.ProvisionIn(diff, userID)
	if err != nil {
		return nil, nil, err
	}

	now := o.clock.Time()
	t := &state.ExternalTransfer{
		UserID:    userID,
		From:      ms.PDA,
		To:        to,
		Gross:     gross,
		Fee:       fee,
		Net:       net,
		Currency:  currency,
		Status:    state.TransferPendingApproval,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := diff.AddExternalTransfer(t); err != nil {
		return nil, nil, err
	}

	members, err := diff.MembersOf(ms.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(members) == 0 {
		return nil, nil, fmt.Errorf("multisig %d has no members", ms.ID)
	}
	p, err := o.engine.ProposeIn(diff, ms.ID, members[0].PublicKey, state.LinkExternalTransfer, t.ID, notes)
	if err != nil {
		return nil, nil, err
	}
	t.ProposalID = p.ID
	if err := diff.PutExternalTransfer(t); err != nil {
		return nil, nil, err
	}
	if err := diff.Commit(); err != nil {
		return nil, nil, err
	}

	o.log.Info("external transfer proposed",
		zap.Uint64("transferID", t.ID),
		zap.Uint64("proposalID", p.ID),
		zap.Uint64("userID", userID),
		zap.Stringer("to", to),
		zap.Uint64("gross", gross),
		zap.Bool("provisioned", created),
	)
	return t, p, nil
}

// resolveReceiver finds exactly one non-anonymized user whose first name
// matches.
func resolveReceiver(ch state.Chain, firstName string) (*state.User, error) {
	matches, err := ch.LookupUsersByFirstName(firstName)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrReceiverNotFound, firstName)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches %d users", ErrAmbiguousReceiver, firstName, len(matches))
	}
}
