// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transfers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/state"
	safemath "github.com/solvault-io/solvaultd/utils/math"
)

var (
	_ proposal.Executor = (*walletExecutor)(nil)
	_ proposal.Executor = (*externalExecutor)(nil)
)

// walletExecutor settles wallet-to-wallet transfers: the net amount moves
// on chain, the fee accrues to the treasury ledger. Wallet balances are
// chain-authoritative, so no user ledger rows change here.
type walletExecutor struct {
	o *Orchestrator
}

func (e *walletExecutor) Submit(ctx context.Context, p *state.Proposal) (string, error) {
	t, err := e.o.state.GetWalletTransfer(p.LinkID)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, chain.DefaultSubmitTimeout)
	defer cancel()
	return e.o.client.SubmitTransfer(ctx, e.o.signer, t.To, t.Net, &e.o.usdcMint)
}

func (e *walletExecutor) Settle(ch state.Chain, p *state.Proposal, txHash string) error {
	t, err := ch.GetWalletTransfer(p.LinkID)
	if err != nil {
		return err
	}
	now := e.o.clock.Time()
	t.Status = state.TransferCompleted
	t.TxHash = txHash
	t.UpdatedAt = now
	if err := ch.PutWalletTransfer(t); err != nil {
		return err
	}

	treasury, err := ch.TreasuryVault(state.USDC)
	if err == database.ErrNotFound {
		return ErrNoTreasury
	}
	if err != nil {
		return err
	}
	if err := ch.AddVaultFeeBalance(treasury.ID, t.Fee); err != nil {
		return err
	}
	if err := ch.AddFee(&state.Fee{
		LinkKind:  state.LinkWalletTransfer,
		LinkID:    t.ID,
		VaultID:   treasury.ID,
		Amount:    t.Fee,
		RateNum:   e.o.calc.RateNum(),
		RateDen:   e.o.calc.RateDen(),
		Status:    state.FeeCollected,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	e.o.metrics.TransfersCompleted.WithLabelValues("wallet").Inc()
	e.o.metrics.FeesCollected.Inc()
	return nil
}

// externalExecutor settles transfers leaving custody. The net transfer and
// the treasury fee transfer are two separate chain submissions; only the
// first is fatal. A failed fee transfer is recorded as an uncollected fee
// for operator reconciliation, never a failed proposal.
type externalExecutor struct {
	o *Orchestrator

	lock sync.Mutex
	// feeTaken records, per proposal, whether the treasury fee transfer
	// between Submit and Settle landed on chain.
	feeTaken map[uint64]bool
}

func newExternalExecutor(o *Orchestrator) *externalExecutor {
	return &externalExecutor{
		o:        o,
		feeTaken: make(map[uint64]bool),
	}
}

func (e *externalExecutor) Submit(ctx context.Context, p *state.Proposal) (string, error) {
	t, err := e.o.state.GetExternalTransfer(p.LinkID)
	if err != nil {
		return "", err
	}

	// The balance that covered the transfer at proposal time may have
	// drained during approvals and the time lock. Nothing leaves custody
	// unless the ledger still covers gross plus fee.
	u, err := e.o.state.GetUser(t.UserID)
	if err != nil {
		return "", err
	}
	if err := e.o.calc.ValidateSufficient(u.Balance, t.Gross); err != nil {
		return "", err
	}

	submitCtx, cancel := context.WithTimeout(ctx, chain.DefaultSubmitTimeout)
	txHash, err := e.o.client.SubmitTransfer(submitCtx, e.o.signer, t.To, t.Net, &e.o.usdcMint)
	cancel()
	if err != nil {
		return "", err
	}

	collected := true
	if t.Fee > 0 {
		feeCtx, cancel := context.WithTimeout(ctx, chain.DefaultSubmitTimeout)
		_, feeErr := e.o.client.SubmitTransfer(feeCtx, e.o.signer, e.o.calc.TreasuryAddress(), t.Fee, &e.o.usdcMint)
		cancel()
		if feeErr != nil {
			collected = false
			e.o.log.Warn("treasury fee transfer failed",
				zap.Uint64("transferID", t.ID),
				zap.Uint64("fee", t.Fee),
				zap.Error(feeErr),
			)
		}
	}

	e.lock.Lock()
	e.feeTaken[p.ID] = collected
	e.lock.Unlock()
	return txHash, nil
}

func (e *externalExecutor) Settle(ch state.Chain, p *state.Proposal, txHash string) error {
	e.lock.Lock()
	collected, ok := e.feeTaken[p.ID]
	delete(e.feeTaken, p.ID)
	e.lock.Unlock()
	if !ok {
		collected = false
	}

	t, err := ch.GetExternalTransfer(p.LinkID)
	if err != nil {
		return err
	}
	now := e.o.clock.Time()
	t.Status = state.TransferCompleted
	t.TxHash = txHash
	t.UpdatedAt = now
	if err := ch.PutExternalTransfer(t); err != nil {
		return err
	}

	total, err := safemath.Add64(t.Gross, t.Fee)
	if err != nil {
		return err
	}
	if err := ch.SubUserBalance(t.UserID, total); err != nil {
		return err
	}

	vault, err := ch.GetVaultByAddress(t.From)
	if err != nil {
		return err
	}
	if err := ch.AddWithdrawal(&state.Withdrawal{
		VaultID:   vault.ID,
		UserID:    t.UserID,
		Amount:    t.Gross,
		Currency:  t.Currency,
		Status:    state.TransferCompleted,
		TxHash:    txHash,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	treasury, err := ch.TreasuryVault(state.USDC)
	if err == database.ErrNotFound {
		return ErrNoTreasury
	}
	if err != nil {
		return err
	}
	feeStatus := state.FeeUncollected
	if collected {
		feeStatus = state.FeeCollected
		if err := ch.AddVaultFeeBalance(treasury.ID, t.Fee); err != nil {
			return err
		}
	}
	if err := ch.AddFee(&state.Fee{
		LinkKind:  state.LinkExternalTransfer,
		LinkID:    t.ID,
		VaultID:   treasury.ID,
		Amount:    t.Fee,
		RateNum:   e.o.calc.RateNum(),
		RateDen:   e.o.calc.RateDen(),
		Status:    feeStatus,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	e.o.metrics.TransfersCompleted.WithLabelValues("external").Inc()
	if collected {
		e.o.metrics.FeesCollected.Inc()
	} else {
		e.o.metrics.FeesUncollected.Inc()
	}
	return nil
}
