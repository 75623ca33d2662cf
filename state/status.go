// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import "fmt"

// ProposalStatus is the lifecycle state of a proposal.
//
//	PENDING --approve(T)--> APPROVED --execute--> EXECUTING --> EXECUTED
//	PENDING --reject------> REJECTED
//	EXECUTING --chain err-> FAILED
//
// REJECTED, EXECUTED and FAILED are terminal.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "PENDING"
	ProposalApproved  ProposalStatus = "APPROVED"
	ProposalExecuting ProposalStatus = "EXECUTING"
	ProposalExecuted  ProposalStatus = "EXECUTED"
	ProposalRejected  ProposalStatus = "REJECTED"
	ProposalFailed    ProposalStatus = "FAILED"
)

func (s ProposalStatus) Terminal() bool {
	switch s {
	case ProposalExecuted, ProposalRejected, ProposalFailed:
		return true
	default:
		return false
	}
}

func (s ProposalStatus) Verify() error {
	switch s {
	case ProposalPending, ProposalApproved, ProposalExecuting,
		ProposalExecuted, ProposalRejected, ProposalFailed:
		return nil
	default:
		return fmt.Errorf("invalid proposal status %q", string(s))
	}
}

func (s ProposalStatus) String() string {
	return string(s)
}
