// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/database/memdb"
	"github.com/solvault-io/solvaultd/ids"
	safemath "github.com/solvault-io/solvaultd/utils/math"
)

func newTestUser(email, name string) *User {
	now := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	return &User{
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAddUserAssignsSequentialIDs(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	a := newTestUser("a@example.com", "Ann Field")
	b := newTestUser("b@example.com", "Bob Field")
	require.NoError(diff.AddUser(a))
	require.NoError(diff.AddUser(b))
	require.NoError(diff.Commit())

	require.Equal(a.ID+1, b.ID)

	got, err := s.GetUserByEmail("A@Example.COM")
	require.NoError(err)
	require.Equal(a.ID, got.ID)
}

func TestAddUserDuplicateEmail(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	require.NoError(diff.AddUser(newTestUser("dup@example.com", "First One")))
	err := diff.AddUser(newTestUser("DUP@example.com", "Second One"))
	require.ErrorIs(err, ErrDuplicateKey)
	diff.Abort()
}

func TestPutUserMovesWalletIndex(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	oldWallet := ids.GenerateTestAddress()
	newWallet := ids.GenerateTestAddress()

	u := newTestUser("carol@example.com", "Carol Lake")
	u.Wallet = &oldWallet
	diff := s.NewDiff()
	require.NoError(diff.AddUser(u))
	require.NoError(diff.Commit())

	u.Wallet = &newWallet
	diff = s.NewDiff()
	require.NoError(diff.PutUser(u))
	require.NoError(diff.Commit())

	got, err := s.GetUserByWallet(newWallet)
	require.NoError(err)
	require.Equal(u.ID, got.ID)

	_, err = s.GetUserByWallet(oldWallet)
	require.ErrorIs(err, database.ErrNotFound)
}

func TestPutUserDropsWalletIndexOnAnonymize(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	wallet := ids.GenerateTestAddress()
	u := newTestUser("dave@example.com", "Dave Moor")
	u.Wallet = &wallet
	diff := s.NewDiff()
	require.NoError(diff.AddUser(u))
	require.NoError(diff.Commit())

	u.Email = "anonymized_1@deleted.local"
	u.Wallet = nil
	u.Anonymized = true
	diff = s.NewDiff()
	require.NoError(diff.PutUser(u))
	require.NoError(diff.Commit())

	_, err := s.GetUserByWallet(wallet)
	require.ErrorIs(err, database.ErrNotFound)
	_, err = s.GetUserByEmail("dave@example.com")
	require.ErrorIs(err, database.ErrNotFound)

	// Anonymized rows never match name lookups.
	matched, err := s.LookupUsersByFirstName("Dave")
	require.NoError(err)
	require.Empty(matched)
}

func TestLookupUsersByFirstName(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	require.NoError(diff.AddUser(newTestUser("e1@example.com", "Erin West")))
	require.NoError(diff.AddUser(newTestUser("e2@example.com", "erin east")))
	require.NoError(diff.AddUser(newTestUser("e3@example.com", "Erica West")))
	require.NoError(diff.Commit())

	matched, err := s.LookupUsersByFirstName("ERIN")
	require.NoError(err)
	require.Len(matched, 2)
}

func TestUserBalanceArithmetic(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	u := newTestUser("fay@example.com", "Fay North")
	diff := s.NewDiff()
	require.NoError(diff.AddUser(u))
	require.NoError(diff.AddUserBalance(u.ID, 100))
	require.NoError(diff.SubUserBalance(u.ID, 40))
	require.ErrorIs(diff.SubUserBalance(u.ID, 61), safemath.ErrUnderflow)
	require.NoError(diff.Commit())

	got, err := s.GetUser(u.ID)
	require.NoError(err)
	require.Equal(uint64(60), got.Balance)
}

func TestDiffAbortDiscardsWrites(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	require.NoError(diff.AddUser(newTestUser("gone@example.com", "Gus South")))
	diff.Abort()

	_, err := s.GetUserByEmail("gone@example.com")
	require.ErrorIs(err, database.ErrNotFound)

	// The writer lock was released; the next unit of work proceeds.
	diff = s.NewDiff()
	require.NoError(diff.AddUser(newTestUser("kept@example.com", "Kay South")))
	require.NoError(diff.Commit())
}

func TestMainMultisigUniqueLookup(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	_, err := s.MainMultisig()
	require.ErrorIs(err, database.ErrNotFound)

	diff := s.NewDiff()
	require.NoError(diff.AddMultisig(&Multisig{
		PDA:       ids.GenerateTestAddress(),
		CreateKey: ids.GenerateTestAddress(),
		Name:      "user-1",
		Threshold: 2,
		Active:    true,
	}))
	main := &Multisig{
		PDA:       ids.GenerateTestAddress(),
		CreateKey: ids.GenerateTestAddress(),
		Name:      "main",
		Threshold: 2,
		Active:    true,
		Main:      true,
	}
	require.NoError(diff.AddMultisig(main))
	require.NoError(diff.Commit())

	got, err := s.MainMultisig()
	require.NoError(err)
	require.Equal(main.ID, got.ID)
}

func TestProposalsByMultisigScopedAndOrdered(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	ms1 := &Multisig{PDA: ids.GenerateTestAddress(), CreateKey: ids.GenerateTestAddress(), Threshold: 2, Active: true}
	ms2 := &Multisig{PDA: ids.GenerateTestAddress(), CreateKey: ids.GenerateTestAddress(), Threshold: 2, Active: true}
	require.NoError(diff.AddMultisig(ms1))
	require.NoError(diff.AddMultisig(ms2))

	proposer := ids.GenerateTestAddress()
	for i := 0; i < 3; i++ {
		require.NoError(diff.AddProposal(&Proposal{
			MultisigID: ms1.ID,
			Proposer:   proposer,
			Status:     ProposalPending,
		}))
	}
	require.NoError(diff.AddProposal(&Proposal{
		MultisigID: ms2.ID,
		Proposer:   proposer,
		Status:     ProposalPending,
	}))
	require.NoError(diff.Commit())

	proposals, err := s.ProposalsByMultisig(ms1.ID)
	require.NoError(err)
	require.Len(proposals, 3)
	for i := 1; i < len(proposals); i++ {
		require.Less(proposals[i-1].ID, proposals[i].ID)
	}
}

func TestDepositDedupeIndex(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	vault := &Vault{
		Address:  ids.GenerateTestAddress(),
		Currency: USDC,
		Active:   true,
	}
	require.NoError(diff.AddVault(vault))
	require.NoError(diff.AddDeposit(&Deposit{
		VaultID:  vault.ID,
		Amount:   500,
		Currency: USDC,
		Status:   TransferCompleted,
		TxHash:   "sig-1",
	}))
	require.NoError(diff.Commit())

	seen, err := s.HasDeposit(vault.ID, "sig-1")
	require.NoError(err)
	require.True(seen)
	seen, err = s.HasDeposit(vault.ID, "sig-2")
	require.NoError(err)
	require.False(seen)
}

func TestTreasuryVaultByCurrency(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	treasury := &Vault{
		Address:  ids.GenerateTestAddress(),
		Name:     "treasury",
		Currency: USDC,
		Active:   true,
		Treasury: true,
	}
	require.NoError(diff.AddVault(treasury))
	require.NoError(diff.Commit())

	got, err := s.TreasuryVault(USDC)
	require.NoError(err)
	require.Equal(treasury.ID, got.ID)

	_, err = s.TreasuryVault(SOL)
	require.ErrorIs(err, database.ErrNotFound)
}

func TestDiffReadsItsOwnWrites(t *testing.T) {
	require := require.New(t)
	s := New(memdb.New())

	diff := s.NewDiff()
	u := newTestUser("hank@example.com", "Hank East")
	require.NoError(diff.AddUser(u))

	got, err := diff.GetUser(u.ID)
	require.NoError(err)
	require.Equal("hank@example.com", got.Email)
	require.NoError(diff.Commit())
}
