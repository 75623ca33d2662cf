// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reconciler keeps custodial ledgers aligned with the chain: it
// refreshes stale balances from authoritative chain reads and ingests
// inbound transfers as deposit rows.
package reconciler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/activity"
	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
	"github.com/solvault-io/solvaultd/utils/units"
)

var ErrNoWallet = errors.New("user has no wallet address")

const (
	DefaultStaleThreshold = 5 * time.Minute
	DefaultOverlap        = 2 * time.Minute
	DefaultMaxTransfers   = 100

	// AirdropCeiling is the largest amount still classifiable as a faucet
	// airdrop, in base units.
	AirdropCeiling = 2 * units.Token
)

// Config tunes one reconciler instance.
type Config struct {
	// Mint is the stablecoin mint whose transfers and balances are tracked.
	Mint ids.Address

	// Faucets are known airdrop senders beyond the system program.
	Faucets []ids.Address

	StaleThreshold time.Duration
	Overlap        time.Duration
	MaxTransfers   int
}

func (c Config) withDefaults() Config {
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = DefaultStaleThreshold
	}
	if c.Overlap <= 0 {
		c.Overlap = DefaultOverlap
	}
	if c.MaxTransfers <= 0 {
		c.MaxTransfers = DefaultMaxTransfers
	}
	return c
}

// Summary reports one reconciler sweep.
type Summary struct {
	Seen     int
	Ingested int
	Errors   int
}

// Reconciler sweeps wallet-bearing users. Each user runs in its own unit of
// work so one failing user never poisons the rest of the sweep.
type Reconciler struct {
	cfg     Config
	state   *state.State
	client  chain.Client
	clock   *mockable.Clock
	log     logging.Logger
	metrics *metrics.Metrics

	faucets map[ids.Address]struct{}
}

func New(
	cfg Config,
	s *state.State,
	client chain.Client,
	clock *mockable.Clock,
	log logging.Logger,
	m *metrics.Metrics,
) *Reconciler {
	cfg = cfg.withDefaults()
	faucets := make(map[ids.Address]struct{}, len(cfg.Faucets))
	for _, f := range cfg.Faucets {
		faucets[f] = struct{}{}
	}
	return &Reconciler{
		cfg:     cfg,
		state:   s,
		client:  client,
		clock:   clock,
		log:     log,
		metrics: m,
		faucets: faucets,
	}
}

// Sweep reconciles every user that has a wallet address. Cancellation is
// observed between users; the in-flight user finishes.
func (r *Reconciler) Sweep(ctx context.Context) (Summary, error) {
	start := r.clock.Time()
	var summary Summary

	users, err := r.state.UserList()
	if err != nil {
		return summary, err
	}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if u.Wallet == nil || u.Anonymized {
			continue
		}
		summary.Seen++

		ingested, err := r.reconcileUser(ctx, u)
		summary.Ingested += ingested
		if err != nil {
			summary.Errors++
			r.metrics.ReconcileErrors.Inc()
			r.log.Warn("reconciling user failed",
				zap.Uint64("userID", u.ID),
				zap.Stringer("wallet", *u.Wallet),
				zap.Error(err),
			)
		}
	}

	r.metrics.ReconcileDuration.Set(r.clock.Time().Sub(start).Seconds())
	r.log.Info("reconcile sweep finished",
		zap.Int("seen", summary.Seen),
		zap.Int("ingested", summary.Ingested),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

// SyncUser refreshes one user's balance from the authoritative chain read.
// [force] bypasses the stale threshold.
func (r *Reconciler) SyncUser(ctx context.Context, userID uint64, force bool) (uint64, error) {
	u, err := r.state.GetUser(userID)
	if err != nil {
		return 0, err
	}
	if u.Wallet == nil {
		return 0, ErrNoWallet
	}

	now := r.clock.Time()
	if !force && now.Sub(u.BalanceLastSyncedAt) < r.cfg.StaleThreshold {
		return u.Balance, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, chain.DefaultReadTimeout)
	balance, err := r.client.TokenBalance(readCtx, *u.Wallet, r.cfg.Mint)
	cancel()
	if err != nil {
		return 0, err
	}

	diff := r.state.NewDiff()
	defer diff.Abort()
	if err := diff.SetUserBalance(u.ID, balance, now); err != nil {
		return 0, err
	}
	if err := diff.Commit(); err != nil {
		return 0, err
	}
	r.metrics.BalancesSynced.Inc()
	return balance, nil
}

func (r *Reconciler) reconcileUser(ctx context.Context, u *state.User) (int, error) {
	wallet := *u.Wallet
	now := r.clock.Time()

	// Chain reads happen before the unit of work opens; no lock is held
	// across network calls.
	var (
		balance    uint64
		refreshBal bool
		lastSync   = u.BalanceLastSyncedAt
	)
	if now.Sub(lastSync) >= r.cfg.StaleThreshold {
		readCtx, cancel := context.WithTimeout(ctx, chain.DefaultReadTimeout)
		b, err := r.client.TokenBalance(readCtx, wallet, r.cfg.Mint)
		cancel()
		if err != nil {
			return 0, err
		}
		balance = b
		refreshBal = true
	}

	since := lastSync.Add(-r.cfg.Overlap)
	readCtx, cancel := context.WithTimeout(ctx, chain.DefaultReadTimeout)
	transfers, err := r.client.InboundTransfers(readCtx, wallet, since, r.cfg.MaxTransfers)
	cancel()
	if err != nil {
		return 0, err
	}

	diff := r.state.NewDiff()
	defer diff.Abort()

	vault, err := r.depositVault(diff, u, wallet, now)
	if err != nil {
		return 0, err
	}

	ingested := 0
	for _, t := range transfers {
		// A nil mint is a native SOL transfer; foreign mints are not ours.
		var currency state.Currency
		switch {
		case t.Mint == nil:
			currency = state.SOL
		case *t.Mint == r.cfg.Mint:
			currency = state.USDC
		default:
			continue
		}
		exists, err := diff.HasDeposit(vault.ID, t.TxHash)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}

		class := r.classify(t)
		if err := diff.AddDeposit(&state.Deposit{
			VaultID:   vault.ID,
			UserID:    u.ID,
			Amount:    t.Amount,
			Currency:  currency,
			Status:    state.TransferCompleted,
			TxHash:    t.TxHash,
			Sender:    t.Sender,
			Class:     class,
			CreatedAt: now,
		}); err != nil {
			return 0, err
		}
		// Vault and user ledgers are denominated in USDC; SOL deposits are
		// booked as rows only.
		if currency == state.USDC {
			if err := diff.AddVaultBalance(vault.ID, t.Amount); err != nil {
				return 0, err
			}
			if !refreshBal {
				if err := diff.AddUserBalance(u.ID, t.Amount); err != nil {
					return 0, err
				}
			}
		}
		ingested++
		r.metrics.DepositsIngested.WithLabelValues(string(class)).Inc()
	}

	if refreshBal {
		// The chain read is authoritative; it already includes any deposit
		// ingested above.
		if err := diff.SetUserBalance(u.ID, balance, now); err != nil {
			return 0, err
		}
		r.metrics.BalancesSynced.Inc()
	}

	// Ingesting a deposit is member activity: a user who only receives
	// funds must not drift toward inactivity removal.
	if ingested > 0 && u.MultisigID != 0 {
		members, err := diff.MembersOf(u.MultisigID)
		if err != nil {
			return 0, err
		}
		for _, m := range members {
			if err := activity.TouchIn(diff, m, now); err != nil {
				return 0, err
			}
		}
	}

	return ingested, diff.Commit()
}

// depositVault resolves the vault that books deposits for [wallet],
// creating it on first contact.
func (r *Reconciler) depositVault(
	diff state.Chain,
	u *state.User,
	wallet ids.Address,
	now time.Time,
) (*state.Vault, error) {
	vault, err := diff.GetVaultByAddress(wallet)
	if err == nil {
		return vault, nil
	}
	if err != database.ErrNotFound {
		return nil, err
	}
	vault = &state.Vault{
		Address:    wallet,
		Name:       u.Name,
		Currency:   state.USDC,
		Active:     true,
		MultisigID: u.MultisigID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return vault, diff.AddVault(vault)
}

func (r *Reconciler) classify(t chain.Transfer) state.DepositClass {
	if t.Amount > AirdropCeiling {
		return state.DepositExternal
	}
	if t.Sender == chain.SystemProgram {
		return state.DepositAirdrop
	}
	if _, ok := r.faucets[t.Sender]; ok {
		return state.DepositAirdrop
	}
	return state.DepositExternal
}
