// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/solvault-io/solvaultd/ids"
)

var _ Client = (*TestClient)(nil)

// TestClient is an in-memory chain double for tests and local runs.
type TestClient struct {
	lock sync.Mutex

	native    map[ids.Address]uint64
	tokens    map[ids.Address]map[ids.Address]uint64
	inbound   map[ids.Address][]Transfer
	submits   []SubmittedTransfer
	submitErr error

	failAfter    int
	failAfterErr error
}

// SubmittedTransfer records one SubmitTransfer call.
type SubmittedTransfer struct {
	From   ids.Address
	To     ids.Address
	Amount uint64
	Mint   *ids.Address
	TxHash string
}

func NewTestClient() *TestClient {
	return &TestClient{
		native:  make(map[ids.Address]uint64),
		tokens:  make(map[ids.Address]map[ids.Address]uint64),
		inbound: make(map[ids.Address][]Transfer),
	}
}

func (c *TestClient) SetNativeBalance(addr ids.Address, amount uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.native[addr] = amount
}

func (c *TestClient) SetTokenBalance(addr, mint ids.Address, amount uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	balances, ok := c.tokens[addr]
	if !ok {
		balances = make(map[ids.Address]uint64)
		c.tokens[addr] = balances
	}
	balances[mint] = amount
}

func (c *TestClient) AddInbound(addr ids.Address, t Transfer) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.inbound[addr] = append(c.inbound[addr], t)
}

// FailSubmits makes every subsequent SubmitTransfer return [err].
func (c *TestClient) FailSubmits(err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.submitErr = err
}

// FailSubmitsAfter lets the next [n] SubmitTransfer calls succeed, then
// fails every later one with [err].
func (c *TestClient) FailSubmitsAfter(n int, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.failAfter = n
	c.failAfterErr = err
}

func (c *TestClient) Submits() []SubmittedTransfer {
	c.lock.Lock()
	defer c.lock.Unlock()
	submits := make([]SubmittedTransfer, len(c.submits))
	copy(submits, c.submits)
	return submits
}

func (c *TestClient) NativeBalance(_ context.Context, addr ids.Address) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.native[addr], nil
}

func (c *TestClient) TokenBalance(_ context.Context, addr ids.Address, mint ids.Address) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tokens[addr][mint], nil
}

func (c *TestClient) InboundTransfers(_ context.Context, addr ids.Address, since time.Time, max int) ([]Transfer, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	var transfers []Transfer
	for _, t := range c.inbound[addr] {
		if t.Time.Before(since) {
			continue
		}
		transfers = append(transfers, t)
		if len(transfers) >= max {
			break
		}
	}
	return transfers, nil
}

func (c *TestClient) SubmitTransfer(_ context.Context, from *ids.Keypair, to ids.Address, amount uint64, mint *ids.Address) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.submitErr != nil {
		return "", c.submitErr
	}
	if c.failAfterErr != nil {
		if c.failAfter == 0 {
			return "", c.failAfterErr
		}
		c.failAfter--
	}
	hash := randomTxHash()
	c.submits = append(c.submits, SubmittedTransfer{
		From:   from.Address(),
		To:     to,
		Amount: amount,
		Mint:   mint,
		TxHash: hash,
	})
	return hash, nil
}

func randomTxHash() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
