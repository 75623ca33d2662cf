// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package service

import (
	"errors"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/fees"
	"github.com/solvault-io/solvaultd/multisig"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/transfers"
)

// Error kinds of the reply envelope. Clients branch on the kind, never the
// message.
const (
	KindValidation        = "Validation"
	KindNotFound          = "NotFound"
	KindAmbiguousLookup   = "AmbiguousLookup"
	KindInvalidState      = "InvalidState"
	KindDuplicateApproval = "DuplicateApproval"
	KindTimeLockActive    = "TimeLockActive"
	KindQuorumBlocked     = "QuorumBlocked"
	KindInsufficientFunds = "InsufficientFunds"
	KindChainRateLimited  = "ChainRateLimited"
	KindChainTimeout      = "ChainTimeout"
	KindChainRejected     = "ChainRejected"
	KindPersistence       = "Persistence"
	KindConfiguration     = "Configuration"
)

// errorData is the structured part of an error reply.
type errorData struct {
	Kind string `json:"kind"`

	// RemainingSeconds is set for TimeLockActive.
	RemainingSeconds uint64 `json:"remainingSeconds,omitempty"`

	// Required and Available are set for InsufficientFunds.
	Required  uint64 `json:"required,omitempty"`
	Available uint64 `json:"available,omitempty"`
}

// wrapError translates an internal error into the JSON-RPC reply envelope.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	data := errorData{Kind: kindOf(err)}

	tlErr := &proposal.TimeLockActiveError{}
	if errors.As(err, &tlErr) {
		data.RemainingSeconds = uint64(tlErr.Remaining.Seconds())
	}
	shortfall := &fees.ShortfallError{}
	if errors.As(err, &shortfall) {
		data.Required = shortfall.Required
		data.Available = shortfall.Available
	}

	return &json2.Error{
		Code:    json2.E_SERVER,
		Message: err.Error(),
		Data:    data,
	}
}

func kindOf(err error) string {
	tlErr := &proposal.TimeLockActiveError{}
	switch {
	case errors.As(err, &tlErr):
		return KindTimeLockActive
	case errors.Is(err, proposal.ErrDuplicateApproval):
		return KindDuplicateApproval
	case errors.Is(err, fees.ErrInsufficientFunds), errors.Is(err, chain.ErrInsufficient):
		return KindInsufficientFunds
	case errors.Is(err, transfers.ErrAmbiguousReceiver):
		return KindAmbiguousLookup
	case errors.Is(err, transfers.ErrReceiverNotFound),
		errors.Is(err, database.ErrNotFound),
		errors.Is(err, proposal.ErrNotMember),
		errors.Is(err, multisig.ErrNoMainMultisig):
		return KindNotFound
	case errors.Is(err, proposal.ErrInvalidState),
		errors.Is(err, proposal.ErrMemberInactive),
		errors.Is(err, proposal.ErrPermission):
		return KindInvalidState
	case errors.Is(err, ErrQuorumBlocked):
		return KindQuorumBlocked
	case errors.Is(err, fees.ErrAmountOutOfRange),
		errors.Is(err, transfers.ErrUnsupportedCurrency),
		errors.Is(err, transfers.ErrSelfTransfer),
		errors.Is(err, transfers.ErrNoTreasury),
		errors.Is(err, state.ErrDuplicateKey),
		errors.Is(err, multisig.ErrBadMemberCount),
		errors.Is(err, errBadAddress),
		errors.Is(err, errBadInput):
		return KindValidation
	case errors.Is(err, chain.ErrRateLimited):
		return KindChainRateLimited
	case errors.Is(err, chain.ErrTimeout):
		return KindChainTimeout
	case errors.Is(err, chain.ErrRejected), errors.Is(err, chain.ErrNetwork):
		return KindChainRejected
	default:
		return KindPersistence
	}
}
