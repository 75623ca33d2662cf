// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"errors"
	"time"

	"github.com/solvault-io/solvaultd/ids"
)

// Chain client failure kinds. Callers branch with errors.Is; no message
// inspection anywhere.
var (
	ErrInsufficient = errors.New("insufficient funds on chain")
	ErrRateLimited  = errors.New("rpc rate limited")
	ErrRejected     = errors.New("transaction rejected")
	ErrTimeout      = errors.New("rpc timeout")
	ErrNetwork      = errors.New("rpc network failure")
)

const (
	// DefaultReadTimeout bounds balance and signature queries.
	DefaultReadTimeout = 10 * time.Second
	// DefaultSubmitTimeout bounds transaction submission.
	DefaultSubmitTimeout = 15 * time.Second
)

// SystemProgram is the native loader address (all zero bytes). Transfers
// from it are faucet airdrops.
var SystemProgram = ids.EmptyAddress

// Transfer is an inbound transfer observed on chain. Amount is in 8-decimal
// base units regardless of the mint's native decimals; Mint is nil for
// native SOL.
type Transfer struct {
	TxHash string
	Sender ids.Address
	Mint   *ids.Address
	Amount uint64
	Time   time.Time
}

// Client is the read/submit surface the custodial core consumes. Queries
// are idempotent. SubmitTransfer is NOT idempotent: callers must persist
// intent before calling and reconcile afterwards.
type Client interface {
	// NativeBalance returns the SOL balance of [addr].
	NativeBalance(ctx context.Context, addr ids.Address) (uint64, error)

	// TokenBalance returns the balance of [mint] held by [addr]. Returns 0
	// if the token account does not exist.
	TokenBalance(ctx context.Context, addr ids.Address, mint ids.Address) (uint64, error)

	// InboundTransfers lists transfers received by [addr] since
	// [since], newest first, at most [max] entries.
	InboundTransfers(ctx context.Context, addr ids.Address, since time.Time, max int) ([]Transfer, error)

	// SubmitTransfer signs and submits a transfer of [amount] from [from]
	// to [to]. A nil [mint] moves native SOL. Returns the transaction
	// hash. May fail with ErrInsufficient, ErrRateLimited, ErrRejected,
	// ErrNetwork or ErrTimeout.
	SubmitTransfer(ctx context.Context, from *ids.Keypair, to ids.Address, amount uint64, mint *ids.Address) (string, error)
}
