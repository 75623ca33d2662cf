// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"time"

	"github.com/solvault-io/solvaultd/ids"
)

// Currency identifies a supported denomination. Governed wallet transfers
// are USDC only; SOL appears for fee transactions and deposits.
type Currency string

const (
	USDC Currency = "USDC"
	SOL  Currency = "SOL"
)

// Permission bits a multisig member may hold.
type Permissions uint8

const (
	PermissionPropose Permissions = 1 << iota
	PermissionVote
	PermissionExecute

	PermissionsAll = PermissionPropose | PermissionVote | PermissionExecute
)

func (p Permissions) Can(perm Permissions) bool {
	return p&perm == perm
}

// TransferStatus is the lifecycle of a transfer row.
type TransferStatus string

const (
	TransferPendingApproval TransferStatus = "PENDING_APPROVAL"
	TransferCompleted       TransferStatus = "COMPLETED"
	TransferCancelled       TransferStatus = "CANCELLED"
	TransferFailed          TransferStatus = "FAILED"
)

// FeeStatus records whether a computed fee actually landed in the treasury.
type FeeStatus string

const (
	FeeCollected   FeeStatus = "COLLECTED"
	FeeUncollected FeeStatus = "UNCOLLECTED"
)

// DepositClass classifies an inbound transfer found by the reconciler.
type DepositClass string

const (
	DepositAirdrop  DepositClass = "AIRDROP"
	DepositExternal DepositClass = "EXTERNAL"
)

// LinkKind names the domain object a proposal governs.
type LinkKind string

const (
	LinkNone             LinkKind = ""
	LinkWalletTransfer   LinkKind = "WALLET_TRANSFER"
	LinkExternalTransfer LinkKind = "EXTERNAL_TRANSFER"
	LinkInternalTransfer LinkKind = "INTERNAL_TRANSFER"
	LinkYieldInvestment  LinkKind = "YIELD_INVESTMENT"
)

// User is a custodial principal. Users are never hard-deleted; Anonymize
// replaces the personal fields with deterministic placeholders so foreign
// keys stay valid.
type User struct {
	ID         uint64       `json:"id"`
	Email      string       `json:"email"`
	Name       string       `json:"name"`
	Phone      string       `json:"phone,omitempty"`
	Wallet     *ids.Address `json:"wallet,omitempty"`
	Balance    uint64       `json:"balance"`
	MultisigID uint64       `json:"multisigID,omitempty"`
	Anonymized bool         `json:"anonymized,omitempty"`

	BalanceLastSyncedAt time.Time `json:"balanceLastSyncedAt,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Multisig is the governance record for a set of members.
type Multisig struct {
	ID        uint64      `json:"id"`
	PDA       ids.Address `json:"pda"`
	CreateKey ids.Address `json:"createKey"`
	Name      string      `json:"name"`
	// Threshold is T in M-of-N: distinct Approve votes required.
	Threshold uint32 `json:"threshold"`
	// TimeLockSeconds gates execution after the latest approval.
	TimeLockSeconds uint64 `json:"timeLockSeconds"`
	Active          bool   `json:"active"`
	Main            bool   `json:"main,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Member is a multisig membership row. Retirement deactivates, never
// deletes.
type Member struct {
	ID          uint64      `json:"id"`
	MultisigID  uint64      `json:"multisigID"`
	PublicKey   ids.Address `json:"publicKey"`
	Permissions Permissions `json:"permissions"`
	Active      bool        `json:"active"`
	UserID      uint64      `json:"userID,omitempty"`

	LastActivityAt    time.Time  `json:"lastActivityAt"`
	Inactive          bool       `json:"inactive,omitempty"`
	InactiveSince     *time.Time `json:"inactiveSince,omitempty"`
	RemovalEligibleAt *time.Time `json:"removalEligibleAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Proposal is the unit of governance.
type Proposal struct {
	ID         uint64         `json:"id"`
	MultisigID uint64         `json:"multisigID"`
	Proposer   ids.Address    `json:"proposer"`
	Status     ProposalStatus `json:"status"`
	LinkKind   LinkKind       `json:"linkKind,omitempty"`
	LinkID     uint64         `json:"linkID,omitempty"`
	TxHash     string         `json:"txHash,omitempty"`
	Notes      string         `json:"notes,omitempty"`

	// LatestApprovalAt anchors the time lock: max CreatedAt over Approve
	// rows at the moment the threshold was reached.
	LatestApprovalAt time.Time `json:"latestApprovalAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApprovalType is the vote direction.
type ApprovalType string

const (
	VoteApprove ApprovalType = "APPROVE"
	VoteReject  ApprovalType = "REJECT"
)

// Approval is a member vote. (Proposal, Member, Type) is unique: a member
// casts at most one Approve and one Reject per proposal.
type Approval struct {
	ID         uint64       `json:"id"`
	ProposalID uint64       `json:"proposalID"`
	MemberID   uint64       `json:"memberID"`
	Type       ApprovalType `json:"type"`
	Reason     string       `json:"reason,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// WalletTransfer is a governed wallet-to-wallet transfer (USDC only).
type WalletTransfer struct {
	ID          uint64         `json:"id"`
	From        ids.Address    `json:"from"`
	To          ids.Address    `json:"to"`
	Gross       uint64         `json:"gross"`
	Fee         uint64         `json:"fee"`
	Net         uint64         `json:"net"`
	Currency    Currency       `json:"currency"`
	Status      TransferStatus `json:"status"`
	TxHash      string         `json:"txHash,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	RequestedBy string         `json:"requestedBy,omitempty"`
	ProposalID  uint64         `json:"proposalID,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ExternalTransfer is a governed transfer to an address outside custody.
type ExternalTransfer struct {
	ID         uint64         `json:"id"`
	UserID     uint64         `json:"userID"`
	From       ids.Address    `json:"from"`
	To         ids.Address    `json:"to"`
	Gross      uint64         `json:"gross"`
	Fee        uint64         `json:"fee"`
	Net        uint64         `json:"net"`
	Currency   Currency       `json:"currency"`
	Status     TransferStatus `json:"status"`
	TxHash     string         `json:"txHash,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	ProposalID uint64         `json:"proposalID,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InternalTransfer is an off-chain ledger move between users. No proposal
// governs it and nothing settles on-chain.
type InternalTransfer struct {
	ID         uint64         `json:"id"`
	SenderID   uint64         `json:"senderID"`
	ReceiverID uint64         `json:"receiverID"`
	Gross      uint64         `json:"gross"`
	Fee        uint64         `json:"fee"`
	Net        uint64         `json:"net"`
	Currency   Currency       `json:"currency"`
	Status     TransferStatus `json:"status"`
	Notes      string         `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// YieldInvestment is a governed investment through the external yield
// provider.
type YieldInvestment struct {
	ID         uint64         `json:"id"`
	UserID     uint64         `json:"userID"`
	Amount     uint64         `json:"amount"`
	Currency   Currency       `json:"currency"`
	Provider   string         `json:"provider"`
	Status     TransferStatus `json:"status"`
	Reference  string         `json:"reference,omitempty"`
	ProposalID uint64         `json:"proposalID,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Vault is a treasury or user-multisig-controlled pool.
type Vault struct {
	ID         uint64      `json:"id"`
	Address    ids.Address `json:"address"`
	Name       string      `json:"name"`
	Balance    uint64      `json:"balance"`
	FeeBalance uint64      `json:"feeBalance"`
	Currency   Currency    `json:"currency"`
	Active     bool        `json:"active"`
	Treasury   bool        `json:"treasury,omitempty"`
	MultisigID uint64      `json:"multisigID,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Deposit is ingress against a vault. (VaultID, TxHash) is unique, which is
// what makes reconciler ingestion idempotent.
type Deposit struct {
	ID       uint64         `json:"id"`
	VaultID  uint64         `json:"vaultID"`
	UserID   uint64         `json:"userID,omitempty"`
	Amount   uint64         `json:"amount"`
	Currency Currency       `json:"currency"`
	Status   TransferStatus `json:"status"`
	TxHash   string         `json:"txHash"`
	Sender   ids.Address    `json:"sender"`
	Class    DepositClass   `json:"class"`

	CreatedAt time.Time `json:"createdAt"`
}

// Withdrawal is egress against a vault.
type Withdrawal struct {
	ID       uint64         `json:"id"`
	VaultID  uint64         `json:"vaultID"`
	UserID   uint64         `json:"userID,omitempty"`
	Amount   uint64         `json:"amount"`
	Currency Currency       `json:"currency"`
	Status   TransferStatus `json:"status"`
	TxHash   string         `json:"txHash,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Fee is a collected (or uncollected) amount linked to a transfer and the
// treasury vault, with the rate used in parts-per-million of a percent.
type Fee struct {
	ID       uint64    `json:"id"`
	LinkKind LinkKind  `json:"linkKind"`
	LinkID   uint64    `json:"linkID"`
	VaultID  uint64    `json:"vaultID"`
	Amount   uint64    `json:"amount"`
	RateNum  uint64    `json:"rateNum"`
	RateDen  uint64    `json:"rateDen"`
	Status   FeeStatus `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
}

// RemovalEvent is the audit row written when the remover retires a member.
type RemovalEvent struct {
	ID         uint64    `json:"id"`
	MemberID   uint64    `json:"memberID"`
	MultisigID uint64    `json:"multisigID"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}
