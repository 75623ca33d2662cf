// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpcchain implements the chain client against a Solana JSON-RPC
// endpoint. Read amounts are rescaled to the ledger's 8-decimal base units:
// lamports carry 9 decimals, token amounts whatever the mint reports.
package rpcchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/utils/logging"
)

var _ chain.Client = (*Client)(nil)

const (
	lamportsPerSOL   = 1_000_000_000
	baseUnitsPerUnit = 100_000_000

	// Rate-limit code surfaced by public RPC providers.
	rpcCodeRateLimited = -32005
	// Preflight simulation failure; the message carries the cause.
	rpcCodePreflightFailure = -32002
)

type Client struct {
	url           string
	http          *http.Client
	readTimeout   time.Duration
	submitTimeout time.Duration
	log           logging.Logger
	requestID     atomic.Uint64
}

func New(url string, log logging.Logger) *Client {
	return &Client{
		url:           url,
		http:          &http.Client{},
		readTimeout:   chain.DefaultReadTimeout,
		submitTimeout: chain.DefaultSubmitTimeout,
		log:           log,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip with [timeout], mapping transport
// and provider failures onto the chain error kinds.
func (c *Client) call(ctx context.Context, timeout time.Duration, method string, params []any, result any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", chain.ErrTimeout, method)
		}
		return fmt.Errorf("%w: %s", chain.ErrNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return chain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: http status %d", chain.ErrNetwork, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decoding response: %s", chain.ErrNetwork, err)
	}
	if rpcResp.Error != nil {
		switch {
		case rpcResp.Error.Code == rpcCodeRateLimited:
			return fmt.Errorf("%w: %s", chain.ErrRateLimited, rpcResp.Error.Message)
		case rpcResp.Error.Code == rpcCodePreflightFailure &&
			strings.Contains(strings.ToLower(rpcResp.Error.Message), "insufficient"):
			return fmt.Errorf("%w: %s", chain.ErrInsufficient, rpcResp.Error.Message)
		}
		return fmt.Errorf("%w: rpc %d: %s", chain.ErrRejected, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

func (c *Client) NativeBalance(ctx context.Context, addr ids.Address) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	err := c.call(ctx, c.readTimeout, "getBalance", []any{addr.String()}, &result)
	if err != nil {
		return 0, err
	}
	// lamports are 1e-9 SOL, the ledger carries 1e-8.
	return result.Value / 10, nil
}

func (c *Client) TokenBalance(ctx context.Context, addr ids.Address, mint ids.Address) (uint64, error) {
	var result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount tokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	err := c.call(ctx, c.readTimeout, "getTokenAccountsByOwner", []any{
		addr.String(),
		map[string]string{"mint": mint.String()},
		map[string]string{"encoding": "jsonParsed"},
	}, &result)
	if err != nil {
		return 0, err
	}

	// A missing token account is a zero balance, not an error.
	var total uint64
	for _, entry := range result.Value {
		amount, err := entry.Account.Data.Parsed.Info.TokenAmount.baseUnits()
		if err != nil {
			return 0, err
		}
		total += amount
	}
	return total, nil
}

type tokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

// baseUnits rescales the mint-native integer amount to 8 decimals.
func (t tokenAmount) baseUnits() (uint64, error) {
	var raw uint64
	if _, err := fmt.Sscanf(t.Amount, "%d", &raw); err != nil {
		return 0, fmt.Errorf("parsing token amount %q: %w", t.Amount, err)
	}
	for d := t.Decimals; d < 8; d++ {
		raw *= 10
	}
	for d := t.Decimals; d > 8; d-- {
		raw /= 10
	}
	return raw, nil
}

func (c *Client) InboundTransfers(ctx context.Context, addr ids.Address, since time.Time, max int) ([]chain.Transfer, error) {
	var signatures []struct {
		Signature string `json:"signature"`
		BlockTime int64  `json:"blockTime"`
		Err       any    `json:"err"`
	}
	err := c.call(ctx, c.readTimeout, "getSignaturesForAddress", []any{
		addr.String(),
		map[string]int{"limit": max},
	}, &signatures)
	if err != nil {
		return nil, err
	}

	var transfers []chain.Transfer
	for _, sig := range signatures {
		at := time.Unix(sig.BlockTime, 0)
		if sig.Err != nil || at.Before(since) {
			continue
		}
		parsed, err := c.parseTransaction(ctx, sig.Signature, addr, at)
		if err != nil {
			c.log.Debug("skipping unparseable transaction",
				zap.String("signature", sig.Signature),
				zap.Error(err),
			)
			continue
		}
		transfers = append(transfers, parsed...)
		if len(transfers) >= max {
			break
		}
	}
	return transfers, nil
}

// parseTransaction extracts the transfers of one confirmed transaction that
// credit [addr].
func (c *Client) parseTransaction(ctx context.Context, signature string, addr ids.Address, at time.Time) ([]chain.Transfer, error) {
	var result struct {
		Transaction struct {
			Message struct {
				Instructions []struct {
					Parsed struct {
						Type string `json:"type"`
						Info struct {
							Source      string      `json:"source"`
							Destination string      `json:"destination"`
							Lamports    uint64      `json:"lamports"`
							Mint        string      `json:"mint"`
							TokenAmount tokenAmount `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"instructions"`
			} `json:"message"`
		} `json:"transaction"`
	}
	err := c.call(ctx, c.readTimeout, "getTransaction", []any{
		signature,
		map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
	}, &result)
	if err != nil {
		return nil, err
	}

	var transfers []chain.Transfer
	for _, ix := range result.Transaction.Message.Instructions {
		info := ix.Parsed.Info
		if info.Destination != addr.String() {
			continue
		}
		sender, err := ids.ParseAddress(info.Source)
		if err != nil {
			continue
		}
		switch ix.Parsed.Type {
		case "transfer":
			if info.Mint == "" {
				transfers = append(transfers, chain.Transfer{
					TxHash: signature,
					Sender: sender,
					Amount: info.Lamports / 10,
					Time:   at,
				})
				continue
			}
			fallthrough
		case "transferChecked":
			mint, err := ids.ParseAddress(info.Mint)
			if err != nil {
				continue
			}
			amount, err := info.TokenAmount.baseUnits()
			if err != nil {
				continue
			}
			transfers = append(transfers, chain.Transfer{
				TxHash: signature,
				Sender: sender,
				Mint:   &mint,
				Amount: amount,
				Time:   at,
			})
		}
	}
	return transfers, nil
}

func (c *Client) SubmitTransfer(ctx context.Context, from *ids.Keypair, to ids.Address, amount uint64, mint *ids.Address) (string, error) {
	var blockhashResult struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, c.readTimeout, "getLatestBlockhash", nil, &blockhashResult); err != nil {
		return "", err
	}
	blockhash, err := ids.ParseAddress(blockhashResult.Value.Blockhash)
	if err != nil {
		return "", fmt.Errorf("%w: bad blockhash: %s", chain.ErrRejected, err)
	}

	wire, err := buildTransfer(from, to, amount, mint, blockhash)
	if err != nil {
		return "", err
	}

	var signature string
	err = c.call(ctx, c.submitTimeout, "sendTransaction", []any{
		wire,
		map[string]string{"encoding": "base64"},
	}, &signature)
	if err != nil {
		return "", err
	}
	c.log.Info("submitted transfer",
		zap.String("signature", signature),
		zap.Uint64("amount", amount),
		zap.Stringer("to", to),
	)
	return signature, nil
}
