// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"
	"sync"
	"time"

	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/database/versiondb"
	"github.com/solvault-io/solvaultd/ids"
)

var (
	// ErrDuplicateKey is returned when a write would violate a unique key
	// (email, wallet, PDA, create key, member public key, vault address,
	// (proposal, member, vote type), (vault, tx hash)). It is the
	// serialization point for on-demand provisioning races.
	ErrDuplicateKey = errors.New("unique key violation")
)

// Chain is the read-write view over the entity store. Both the committed
// State and an uncommitted Diff implement it, so every component can run its
// mutations against either.
type Chain interface {
	// Users
	AddUser(u *User) error
	GetUser(id uint64) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByWallet(wallet ids.Address) (*User, error)
	LookupUsersByFirstName(first string) ([]*User, error)
	UserList() ([]*User, error)
	PutUser(u *User) error
	AddUserBalance(id uint64, delta uint64) error
	SubUserBalance(id uint64, delta uint64) error
	// SetUserBalance overwrites the ledger balance with an authoritative
	// chain-derived figure. Reconciler only.
	SetUserBalance(id uint64, balance uint64, syncedAt time.Time) error

	// Multisigs
	AddMultisig(m *Multisig) error
	GetMultisig(id uint64) (*Multisig, error)
	GetMultisigByPDA(pda ids.Address) (*Multisig, error)
	MainMultisig() (*Multisig, error)
	MultisigList() ([]*Multisig, error)
	PutMultisig(m *Multisig) error

	// Members
	AddMember(m *Member) error
	GetMember(id uint64) (*Member, error)
	GetMemberByKey(key ids.Address) (*Member, error)
	MembersOf(multisigID uint64) ([]*Member, error)
	PutMember(m *Member) error

	// Proposals
	AddProposal(p *Proposal) error
	GetProposal(id uint64) (*Proposal, error)
	ProposalsByMultisig(multisigID uint64) ([]*Proposal, error)
	PutProposal(p *Proposal) error

	// Approvals
	AddApproval(a *Approval) error
	ApprovalsOf(proposalID uint64) ([]*Approval, error)

	// Transfers
	AddWalletTransfer(t *WalletTransfer) error
	GetWalletTransfer(id uint64) (*WalletTransfer, error)
	PutWalletTransfer(t *WalletTransfer) error
	AddExternalTransfer(t *ExternalTransfer) error
	GetExternalTransfer(id uint64) (*ExternalTransfer, error)
	PutExternalTransfer(t *ExternalTransfer) error
	AddInternalTransfer(t *InternalTransfer) error
	GetInternalTransfer(id uint64) (*InternalTransfer, error)
	AddYieldInvestment(y *YieldInvestment) error
	GetYieldInvestment(id uint64) (*YieldInvestment, error)
	PutYieldInvestment(y *YieldInvestment) error

	// Vaults
	AddVault(v *Vault) error
	GetVault(id uint64) (*Vault, error)
	GetVaultByAddress(addr ids.Address) (*Vault, error)
	TreasuryVault(c Currency) (*Vault, error)
	PutVault(v *Vault) error
	AddVaultBalance(id uint64, delta uint64) error
	SubVaultBalance(id uint64, delta uint64) error
	AddVaultFeeBalance(id uint64, delta uint64) error

	// Deposits / withdrawals
	AddDeposit(d *Deposit) error
	HasDeposit(vaultID uint64, txHash string) (bool, error)
	DepositsByVault(vaultID uint64) ([]*Deposit, error)
	AddWithdrawal(w *Withdrawal) error
	WithdrawalsByVault(vaultID uint64) ([]*Withdrawal, error)

	// Fees and audit
	AddFee(f *Fee) error
	FeeList() ([]*Fee, error)
	AddRemovalEvent(e *RemovalEvent) error
	RemovalEventList() ([]*RemovalEvent, error)
}

// State is the committed store. NewDiff opens a unit of work; while a diff
// is open no other diff can be opened, which linearizes every multi-row
// mutation (the relational row-lock discipline collapsed onto one writer
// lock -- reads against the committed state stay concurrent).
type State struct {
	*store

	baseDB database.Database
	writer sync.Mutex
}

func New(db database.Database) *State {
	return &State{
		store:  &store{db: db},
		baseDB: db,
	}
}

// NewDiff opens a unit of work. The caller must either Commit or Abort it;
// both are safe to call more than once.
func (s *State) NewDiff() *Diff {
	s.writer.Lock()
	vdb := versiondb.New(s.baseDB)
	d := &Diff{
		store: &store{db: vdb},
		vdb:   vdb,
	}
	d.release = func() {
		s.writer.Unlock()
	}
	return d
}

func (s *State) Close() error {
	return s.baseDB.Close()
}

// Diff is an open unit of work: all writes stage in memory and land
// atomically on Commit.
type Diff struct {
	*store

	vdb     *versiondb.Database
	release func()
	done    sync.Once
}

func (d *Diff) Commit() error {
	err := d.vdb.Commit()
	d.done.Do(d.release)
	return err
}

func (d *Diff) Abort() {
	d.vdb.Abort()
	d.done.Do(d.release)
}
