// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/database/memdb"
	"github.com/solvault-io/solvaultd/fees"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/multisig"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
	"github.com/solvault-io/solvaultd/utils/units"
)

type orchestratorTest struct {
	orch    *Orchestrator
	engine  *proposal.Engine
	state   *state.State
	client  *chain.TestClient
	clock   *mockable.Clock
	signer  *ids.Keypair
	mint    ids.Address
	members []ids.Address
	ms      *state.Multisig
}

// newOrchestratorTest wires a full transfer stack over memdb: a main
// 2-of-2 multisig with a 5 second time lock, a treasury vault and the fee
// calculator at the default rate.
func newOrchestratorTest(t *testing.T) *orchestratorTest {
	require := require.New(t)

	s := state.New(memdb.New())
	clock := &mockable.Clock{}
	clock.Set(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))

	treasuryKey := ids.GenerateTestKeypair()
	calc := fees.NewCalculator(treasuryKey.Address(), treasuryKey)

	members := []ids.Address{ids.GenerateTestAddress(), ids.GenerateTestAddress()}
	ms := &state.Multisig{
		PDA:             ids.GenerateTestAddress(),
		CreateKey:       ids.GenerateTestAddress(),
		Name:            "main",
		Threshold:       2,
		TimeLockSeconds: 5,
		Active:          true,
		Main:            true,
	}
	diff := s.NewDiff()
	require.NoError(diff.AddMultisig(ms))
	for _, key := range members {
		require.NoError(diff.AddMember(&state.Member{
			MultisigID:     ms.ID,
			PublicKey:      key,
			Permissions:    state.PermissionsAll,
			Active:         true,
			LastActivityAt: clock.Time(),
		}))
	}
	require.NoError(diff.AddVault(&state.Vault{
		Address:   treasuryKey.Address(),
		Name:      "treasury",
		Currency:  state.USDC,
		Active:    true,
		Treasury:  true,
		CreatedAt: clock.Time(),
	}))
	require.NoError(diff.Commit())

	registry := multisig.NewRegistry(multisig.Config{
		BaseMembers:     members,
		Threshold:       2,
		TimeLockSeconds: 5,
		MinMembers:      2,
		MaxMembers:      3,
	}, s, clock, logging.NoLog{})

	m := metrics.NewTestMetrics()
	engine := proposal.NewEngine(s, clock, logging.NoLog{}, m)
	client := chain.NewTestClient()
	signer := ids.GenerateTestKeypair()
	mint := ids.GenerateTestAddress()

	orch := NewOrchestrator(s, calc, registry, engine, client, signer, mint, clock, logging.NoLog{}, m)
	return &orchestratorTest{
		orch:    orch,
		engine:  engine,
		state:   s,
		client:  client,
		clock:   clock,
		signer:  signer,
		mint:    mint,
		members: members,
		ms:      ms,
	}
}

func (ot *orchestratorTest) addUser(t *testing.T, name, email string, balance uint64) *state.User {
	require := require.New(t)

	diff := ot.state.NewDiff()
	defer diff.Abort()
	u := &state.User{
		Name:      name,
		Email:     email,
		Balance:   balance,
		CreatedAt: ot.clock.Time(),
		UpdatedAt: ot.clock.Time(),
	}
	require.NoError(diff.AddUser(u))
	require.NoError(diff.Commit())
	return u
}

// approveAndExecute drives a proposal through 2-of-2 approval, past the
// time lock, to execution.
func (ot *orchestratorTest) approveAndExecute(t *testing.T, proposalID uint64) string {
	require := require.New(t)

	_, err := ot.engine.Approve(proposalID, ot.members[0])
	require.NoError(err)
	_, err = ot.engine.Approve(proposalID, ot.members[1])
	require.NoError(err)

	ot.clock.Set(ot.clock.Time().Add(6 * time.Second))
	txHash, err := ot.engine.Execute(context.Background(), proposalID, ot.members[0])
	require.NoError(err)
	return txHash
}

func TestInternalTransferFeeMath(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	sender := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	receiver := ot.addUser(t, "Bob Cooper", "bob@example.com", 0)

	tr, err := ot.orch.Internal(sender.ID, "Bob", 10*units.Token, "lunch")
	require.NoError(err)
	require.Equal(state.TransferCompleted, tr.Status)
	require.Equal(uint64(10*units.Token), tr.Gross)
	require.Equal(uint64(10_000), tr.Fee) // 0.0001
	require.Equal(uint64(10*units.Token-10_000), tr.Net)

	sender, err = ot.state.GetUser(sender.ID)
	require.NoError(err)
	require.Equal(uint64(100*units.Token-10*units.Token-10_000), sender.Balance) // 89.9999

	receiver, err = ot.state.GetUser(receiver.ID)
	require.NoError(err)
	require.Equal(uint64(10*units.Token-10_000), receiver.Balance) // 9.9999

	treasury, err := ot.state.TreasuryVault(state.USDC)
	require.NoError(err)
	require.Equal(uint64(10_000), treasury.FeeBalance)

	feeRows, err := ot.state.FeeList()
	require.NoError(err)
	require.Len(feeRows, 1)
	require.Equal(state.FeeCollected, feeRows[0].Status)
	require.Equal(uint64(10_000), feeRows[0].Amount)
}

func TestInternalTransferReceiverLookup(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	sender := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	ot.addUser(t, "Bob Cooper", "bob1@example.com", 0)
	ot.addUser(t, "Bob Marley", "bob2@example.com", 0)

	_, err := ot.orch.Internal(sender.ID, "Carol", units.Token, "")
	require.ErrorIs(err, ErrReceiverNotFound)

	_, err = ot.orch.Internal(sender.ID, "Bob", units.Token, "")
	require.ErrorIs(err, ErrAmbiguousReceiver)

	// Nothing moved on either failure.
	sender, err = ot.state.GetUser(sender.ID)
	require.NoError(err)
	require.Equal(uint64(100*units.Token), sender.Balance)
}

func TestInternalTransferInsufficientFunds(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	sender := ot.addUser(t, "Alice Prime", "alice@example.com", 10*units.Token)
	ot.addUser(t, "Bob Cooper", "bob@example.com", 0)

	// Balance covers the gross but not gross plus fee.
	_, err := ot.orch.Internal(sender.ID, "Bob", 10*units.Token, "")
	require.ErrorIs(err, fees.ErrInsufficientFunds)

	shortfall := &fees.ShortfallError{}
	require.ErrorAs(err, &shortfall)
	require.Equal(uint64(10*units.Token+10_000), shortfall.Required)
}

func TestInternalTransferSelfRejected(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	sender := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	_, err := ot.orch.Internal(sender.ID, "Alice", units.Token, "")
	require.ErrorIs(err, ErrSelfTransfer)
}

func TestInternalTransferAmountBounds(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	sender := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	ot.addUser(t, "Bob Cooper", "bob@example.com", 0)

	_, err := ot.orch.Internal(sender.ID, "Bob", 0, "")
	require.ErrorIs(err, fees.ErrAmountOutOfRange)

	_, err = ot.orch.Internal(sender.ID, "Bob", fees.MaxWalletTransfer+1, "")
	require.ErrorIs(err, fees.ErrAmountOutOfRange)
}

func TestWalletTransferLifecycle(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	from := ids.GenerateTestAddress()
	to := ids.GenerateTestAddress()
	gross := uint64(100 * units.Token)

	tr, p, err := ot.orch.Wallet(ot.members[0], from, to, gross, state.USDC, "payout", "ops")
	require.NoError(err)
	require.Equal(state.TransferPendingApproval, tr.Status)
	require.Equal(state.ProposalPending, p.Status)
	require.Equal(p.ID, tr.ProposalID)
	require.Equal(uint64(100_000), tr.Fee) // 0.001
	require.Empty(ot.client.Submits())

	txHash := ot.approveAndExecute(t, p.ID)

	tr, err = ot.state.GetWalletTransfer(tr.ID)
	require.NoError(err)
	require.Equal(state.TransferCompleted, tr.Status)
	require.Equal(txHash, tr.TxHash)

	// The net amount went on chain to the destination wallet.
	submits := ot.client.Submits()
	require.Len(submits, 1)
	require.Equal(to, submits[0].To)
	require.Equal(gross-tr.Fee, submits[0].Amount)
	require.Equal(ot.mint, *submits[0].Mint)

	treasury, err := ot.state.TreasuryVault(state.USDC)
	require.NoError(err)
	require.Equal(tr.Fee, treasury.FeeBalance)
}

func TestWalletTransferUSDCOnly(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	_, _, err := ot.orch.Wallet(
		ot.members[0],
		ids.GenerateTestAddress(),
		ids.GenerateTestAddress(),
		units.Token,
		state.SOL,
		"", "",
	)
	require.ErrorIs(err, ErrUnsupportedCurrency)
}

func TestWalletTransferRejectCancelsRow(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	tr, p, err := ot.orch.Wallet(
		ot.members[0],
		ids.GenerateTestAddress(),
		ids.GenerateTestAddress(),
		units.Token,
		state.USDC,
		"", "",
	)
	require.NoError(err)

	_, err = ot.engine.Reject(p.ID, ot.members[1], "not authorized")
	require.NoError(err)

	tr, err = ot.state.GetWalletTransfer(tr.ID)
	require.NoError(err)
	require.Equal(state.TransferCancelled, tr.Status)
	require.Empty(ot.client.Submits())
}

func TestExternalTransferProvisionsMultisig(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	user := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	to := ids.GenerateTestAddress()

	tr, p, err := ot.orch.External(user.ID, to, 10*units.Token, state.USDC, "withdrawal")
	require.NoError(err)
	require.Equal(state.TransferPendingApproval, tr.Status)

	// The user's multisig and vault were provisioned in the same commit.
	user, err = ot.state.GetUser(user.ID)
	require.NoError(err)
	require.NotZero(user.MultisigID)
	userMS, err := ot.state.GetMultisig(user.MultisigID)
	require.NoError(err)
	require.Equal(userMS.PDA, tr.From)
	require.Equal(user.MultisigID, p.MultisigID)

	// A second external transfer reuses the provisioned multisig.
	tr2, p2, err := ot.orch.External(user.ID, to, units.Token, state.USDC, "")
	require.NoError(err)
	require.Equal(tr.From, tr2.From)
	require.Equal(user.MultisigID, p2.MultisigID)
}

func TestExternalTransferExecuteSettlesLedger(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	user := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	to := ids.GenerateTestAddress()
	gross := uint64(10 * units.Token)

	tr, p, err := ot.orch.External(user.ID, to, gross, state.USDC, "")
	require.NoError(err)

	// Approval comes from the provisioned multisig's derived members.
	derived, err := ot.state.MembersOf(p.MultisigID)
	require.NoError(err)
	require.Len(derived, 2)
	for _, m := range derived {
		_, err = ot.engine.Approve(p.ID, m.PublicKey)
		require.NoError(err)
	}
	ot.clock.Set(ot.clock.Time().Add(6 * time.Second))
	txHash, err := ot.engine.Execute(context.Background(), p.ID, derived[0].PublicKey)
	require.NoError(err)

	// Two chain submissions: net to the recipient, fee to the treasury.
	submits := ot.client.Submits()
	require.Len(submits, 2)
	require.Equal(to, submits[0].To)
	require.Equal(tr.Net, submits[0].Amount)
	require.Equal(tr.Fee, submits[1].Amount)

	user, err = ot.state.GetUser(user.ID)
	require.NoError(err)
	require.Equal(uint64(100*units.Token)-gross-tr.Fee, user.Balance)

	tr, err = ot.state.GetExternalTransfer(tr.ID)
	require.NoError(err)
	require.Equal(state.TransferCompleted, tr.Status)
	require.Equal(txHash, tr.TxHash)

	vault, err := ot.state.GetVaultByAddress(tr.From)
	require.NoError(err)
	withdrawals, err := ot.state.WithdrawalsByVault(vault.ID)
	require.NoError(err)
	require.Len(withdrawals, 1)
	require.Equal(gross, withdrawals[0].Amount)

	feeRows, err := ot.state.FeeList()
	require.NoError(err)
	require.Len(feeRows, 1)
	require.Equal(state.FeeCollected, feeRows[0].Status)
}

func TestExternalTransferUncollectedFee(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	user := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	tr, p, err := ot.orch.External(user.ID, ids.GenerateTestAddress(), 10*units.Token, state.USDC, "")
	require.NoError(err)

	derived, err := ot.state.MembersOf(p.MultisigID)
	require.NoError(err)
	for _, m := range derived {
		_, err = ot.engine.Approve(p.ID, m.PublicKey)
		require.NoError(err)
	}

	// The recipient transfer lands, then submits start failing, so the
	// treasury fee transfer is the one that breaks.
	ot.client.FailSubmitsAfter(1, chain.ErrNetwork)

	ot.clock.Set(ot.clock.Time().Add(6 * time.Second))
	_, err = ot.engine.Execute(context.Background(), p.ID, derived[0].PublicKey)
	require.NoError(err)

	// The main transfer completed; the fee is recorded uncollected and the
	// treasury ledger did not move.
	tr, err = ot.state.GetExternalTransfer(tr.ID)
	require.NoError(err)
	require.Equal(state.TransferCompleted, tr.Status)

	feeRows, err := ot.state.FeeList()
	require.NoError(err)
	require.Len(feeRows, 1)
	require.Equal(state.FeeUncollected, feeRows[0].Status)

	treasury, err := ot.state.TreasuryVault(state.USDC)
	require.NoError(err)
	require.Zero(treasury.FeeBalance)
}

func TestExternalTransferInsufficientFunds(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	user := ot.addUser(t, "Alice Prime", "alice@example.com", units.Token)
	_, _, err := ot.orch.External(user.ID, ids.GenerateTestAddress(), 10*units.Token, state.USDC, "")
	require.ErrorIs(err, fees.ErrInsufficientFunds)

	// The failed attempt did not provision a multisig.
	user, err = ot.state.GetUser(user.ID)
	require.NoError(err)
	require.Zero(user.MultisigID)
}

func TestExternalTransferSubmitFailureKeepsLedger(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	user := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	tr, p, err := ot.orch.External(user.ID, ids.GenerateTestAddress(), 10*units.Token, state.USDC, "")
	require.NoError(err)

	derived, err := ot.state.MembersOf(p.MultisigID)
	require.NoError(err)
	for _, m := range derived {
		_, err = ot.engine.Approve(p.ID, m.PublicKey)
		require.NoError(err)
	}
	ot.client.FailSubmits(chain.ErrInsufficient)

	ot.clock.Set(ot.clock.Time().Add(6 * time.Second))
	_, err = ot.engine.Execute(context.Background(), p.ID, derived[0].PublicKey)
	require.ErrorIs(err, chain.ErrInsufficient)

	// Nothing was debited and the transfer row is failed.
	user, err = ot.state.GetUser(user.ID)
	require.NoError(err)
	require.Equal(uint64(100*units.Token), user.Balance)

	tr, err = ot.state.GetExternalTransfer(tr.ID)
	require.NoError(err)
	require.Equal(state.TransferFailed, tr.Status)
}

func TestExternalTransferShortfallAtExecution(t *testing.T) {
	require := require.New(t)
	ot := newOrchestratorTest(t)

	user := ot.addUser(t, "Alice Prime", "alice@example.com", 100*units.Token)
	tr, p, err := ot.orch.External(user.ID, ids.GenerateTestAddress(), 90*units.Token, state.USDC, "")
	require.NoError(err)

	derived, err := ot.state.MembersOf(p.MultisigID)
	require.NoError(err)
	for _, m := range derived {
		_, err = ot.engine.Approve(p.ID, m.PublicKey)
		require.NoError(err)
	}

	// The ledger drains while the time lock runs.
	diff := ot.state.NewDiff()
	require.NoError(diff.SubUserBalance(user.ID, 99*units.Token))
	require.NoError(diff.Commit())

	ot.clock.Set(ot.clock.Time().Add(6 * time.Second))
	_, err = ot.engine.Execute(context.Background(), p.ID, derived[0].PublicKey)
	require.ErrorIs(err, fees.ErrInsufficientFunds)

	// Nothing left custody: no net transfer, no fee transfer.
	require.Empty(ot.client.Submits())

	p, err = ot.state.GetProposal(p.ID)
	require.NoError(err)
	require.Equal(state.ProposalFailed, p.Status)

	tr, err = ot.state.GetExternalTransfer(tr.ID)
	require.NoError(err)
	require.Equal(state.TransferFailed, tr.Status)

	user, err = ot.state.GetUser(user.ID)
	require.NoError(err)
	require.Equal(units.Token, user.Balance)
}
