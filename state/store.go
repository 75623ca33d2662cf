// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/ids"
	safemath "github.com/solvault-io/solvaultd/utils/math"
)

var _ Chain = (*store)(nil)

// Bucket prefixes. Rows are JSON-encoded under (prefix, big-endian id);
// unique indexes map a natural key to the row id.
const (
	bucketUsers byte = iota
	bucketUserEmailIndex
	bucketUserWalletIndex
	bucketMultisigs
	bucketMultisigPDAIndex
	bucketMultisigCreateKeyIndex
	bucketMembers
	bucketMemberKeyIndex
	bucketMembersByMultisig
	bucketProposals
	bucketProposalsByMultisig
	bucketApprovals
	bucketApprovalIndex
	bucketWalletTransfers
	bucketExternalTransfers
	bucketInternalTransfers
	bucketYieldInvestments
	bucketVaults
	bucketVaultAddressIndex
	bucketTreasuryIndex
	bucketDeposits
	bucketDepositIndex
	bucketWithdrawals
	bucketFees
	bucketRemovalEvents
	bucketSingletons
)

var (
	sequenceKey     = []byte("sequence")
	mainMultisigKey = []byte("mainMultisig")
)

type store struct {
	db database.Database
}

func bkey(bucket byte, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 1, size)
	key[0] = bucket
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}

func (s *store) putRow(bucket byte, key []byte, row any) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshalling row: %w", err)
	}
	return s.db.Put(bkey(bucket, key), b)
}

func getRow[T any](s *store, bucket byte, key []byte) (*T, error) {
	b, err := s.db.Get(bkey(bucket, key))
	if err != nil {
		return nil, err
	}
	row := new(T)
	if err := json.Unmarshal(b, row); err != nil {
		return nil, fmt.Errorf("unmarshalling row: %w", err)
	}
	return row, nil
}

func listRows[T any](s *store, bucket byte, sub []byte) ([]*T, error) {
	it := s.db.NewIteratorWithPrefix(bkey(bucket, sub))
	defer it.Release()

	var rows []*T
	for it.Next() {
		row := new(T)
		if err := json.Unmarshal(it.Value(), row); err != nil {
			return nil, fmt.Errorf("unmarshalling row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, it.Error()
}

func (s *store) nextID() (uint64, error) {
	key := bkey(bucketSingletons, sequenceKey)
	last, err := database.GetUInt64(s.db, key)
	if err != nil && err != database.ErrNotFound {
		return 0, err
	}
	next := last + 1
	return next, database.PutUInt64(s.db, key, next)
}

// claimIndex writes (indexKey -> id), failing with ErrDuplicateKey if the
// index entry already exists.
func (s *store) claimIndex(bucket byte, indexKey []byte, id uint64) error {
	key := bkey(bucket, indexKey)
	switch _, err := s.db.Get(key); err {
	case nil:
		return fmt.Errorf("%w: index %d", ErrDuplicateKey, bucket)
	case database.ErrNotFound:
		return database.PutUInt64(s.db, key, id)
	default:
		return err
	}
}

func (s *store) lookupIndex(bucket byte, indexKey []byte) (uint64, error) {
	return database.GetUInt64(s.db, bkey(bucket, indexKey))
}

func normalizeEmail(email string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(email)))
}

/* ---- users ---- */

func (s *store) AddUser(u *User) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	u.ID = id
	if err := s.claimIndex(bucketUserEmailIndex, normalizeEmail(u.Email), id); err != nil {
		return err
	}
	if u.Wallet != nil {
		if err := s.claimIndex(bucketUserWalletIndex, u.Wallet.Bytes(), id); err != nil {
			return err
		}
	}
	return s.putRow(bucketUsers, database.PackUInt64(id), u)
}

func (s *store) GetUser(id uint64) (*User, error) {
	return getRow[User](s, bucketUsers, database.PackUInt64(id))
}

func (s *store) GetUserByEmail(email string) (*User, error) {
	id, err := s.lookupIndex(bucketUserEmailIndex, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.GetUser(id)
}

func (s *store) GetUserByWallet(wallet ids.Address) (*User, error) {
	id, err := s.lookupIndex(bucketUserWalletIndex, wallet.Bytes())
	if err != nil {
		return nil, err
	}
	return s.GetUser(id)
}

func (s *store) LookupUsersByFirstName(first string) ([]*User, error) {
	users, err := s.UserList()
	if err != nil {
		return nil, err
	}
	var matched []*User
	for _, u := range users {
		if u.Anonymized {
			continue
		}
		name, _, _ := strings.Cut(u.Name, " ")
		if strings.EqualFold(name, first) {
			matched = append(matched, u)
		}
	}
	return matched, nil
}

func (s *store) UserList() ([]*User, error) {
	return listRows[User](s, bucketUsers, nil)
}

// PutUser rewrites a user row, moving the email and wallet index entries if
// those fields changed (anonymization does both).
func (s *store) PutUser(u *User) error {
	old, err := s.GetUser(u.ID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(old.Email, u.Email) {
		if err := s.db.Delete(bkey(bucketUserEmailIndex, normalizeEmail(old.Email))); err != nil {
			return err
		}
		if err := s.claimIndex(bucketUserEmailIndex, normalizeEmail(u.Email), u.ID); err != nil {
			return err
		}
	}
	oldWallet, newWallet := old.Wallet, u.Wallet
	if !walletsEqual(oldWallet, newWallet) {
		if oldWallet != nil {
			if err := s.db.Delete(bkey(bucketUserWalletIndex, oldWallet.Bytes())); err != nil {
				return err
			}
		}
		if newWallet != nil {
			if err := s.claimIndex(bucketUserWalletIndex, newWallet.Bytes(), u.ID); err != nil {
				return err
			}
		}
	}
	return s.putRow(bucketUsers, database.PackUInt64(u.ID), u)
}

func walletsEqual(a, b *ids.Address) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}

func (s *store) AddUserBalance(id uint64, delta uint64) error {
	u, err := s.GetUser(id)
	if err != nil {
		return err
	}
	u.Balance, err = safemath.Add64(u.Balance, delta)
	if err != nil {
		return err
	}
	return s.putRow(bucketUsers, database.PackUInt64(id), u)
}

func (s *store) SubUserBalance(id uint64, delta uint64) error {
	u, err := s.GetUser(id)
	if err != nil {
		return err
	}
	u.Balance, err = safemath.Sub64(u.Balance, delta)
	if err != nil {
		return fmt.Errorf("user %d balance: %w", id, err)
	}
	return s.putRow(bucketUsers, database.PackUInt64(id), u)
}

func (s *store) SetUserBalance(id uint64, balance uint64, syncedAt time.Time) error {
	u, err := s.GetUser(id)
	if err != nil {
		return err
	}
	u.Balance = balance
	u.BalanceLastSyncedAt = syncedAt
	u.UpdatedAt = syncedAt
	return s.putRow(bucketUsers, database.PackUInt64(id), u)
}

/* ---- multisigs ---- */

func (s *store) AddMultisig(m *Multisig) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	m.ID = id
	if err := s.claimIndex(bucketMultisigPDAIndex, m.PDA.Bytes(), id); err != nil {
		return err
	}
	if err := s.claimIndex(bucketMultisigCreateKeyIndex, m.CreateKey.Bytes(), id); err != nil {
		return err
	}
	if m.Main {
		if err := database.PutUInt64(s.db, bkey(bucketSingletons, mainMultisigKey), id); err != nil {
			return err
		}
	}
	return s.putRow(bucketMultisigs, database.PackUInt64(id), m)
}

func (s *store) GetMultisig(id uint64) (*Multisig, error) {
	return getRow[Multisig](s, bucketMultisigs, database.PackUInt64(id))
}

func (s *store) GetMultisigByPDA(pda ids.Address) (*Multisig, error) {
	id, err := s.lookupIndex(bucketMultisigPDAIndex, pda.Bytes())
	if err != nil {
		return nil, err
	}
	return s.GetMultisig(id)
}

func (s *store) MainMultisig() (*Multisig, error) {
	id, err := database.GetUInt64(s.db, bkey(bucketSingletons, mainMultisigKey))
	if err != nil {
		return nil, err
	}
	m, err := s.GetMultisig(id)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, database.ErrNotFound
	}
	return m, nil
}

func (s *store) MultisigList() ([]*Multisig, error) {
	return listRows[Multisig](s, bucketMultisigs, nil)
}

func (s *store) PutMultisig(m *Multisig) error {
	return s.putRow(bucketMultisigs, database.PackUInt64(m.ID), m)
}

/* ---- members ---- */

func (s *store) AddMember(m *Member) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	m.ID = id
	if err := s.claimIndex(bucketMemberKeyIndex, m.PublicKey.Bytes(), id); err != nil {
		return err
	}
	byMultisig := bkey(bucketMembersByMultisig, database.PackUInt64(m.MultisigID), database.PackUInt64(id))
	if err := s.db.Put(byMultisig, nil); err != nil {
		return err
	}
	return s.putRow(bucketMembers, database.PackUInt64(id), m)
}

func (s *store) GetMember(id uint64) (*Member, error) {
	return getRow[Member](s, bucketMembers, database.PackUInt64(id))
}

func (s *store) GetMemberByKey(key ids.Address) (*Member, error) {
	id, err := s.lookupIndex(bucketMemberKeyIndex, key.Bytes())
	if err != nil {
		return nil, err
	}
	return s.GetMember(id)
}

func (s *store) MembersOf(multisigID uint64) ([]*Member, error) {
	it := s.db.NewIteratorWithPrefix(bkey(bucketMembersByMultisig, database.PackUInt64(multisigID)))
	defer it.Release()

	var members []*Member
	for it.Next() {
		key := it.Key()
		memberID, err := database.ParseUInt64(key[len(key)-8:])
		if err != nil {
			return nil, err
		}
		m, err := s.GetMember(memberID)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, it.Error()
}

func (s *store) PutMember(m *Member) error {
	return s.putRow(bucketMembers, database.PackUInt64(m.ID), m)
}

/* ---- proposals ---- */

func (s *store) AddProposal(p *Proposal) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	p.ID = id
	byMultisig := bkey(bucketProposalsByMultisig, database.PackUInt64(p.MultisigID), database.PackUInt64(id))
	if err := s.db.Put(byMultisig, nil); err != nil {
		return err
	}
	return s.putRow(bucketProposals, database.PackUInt64(id), p)
}

func (s *store) GetProposal(id uint64) (*Proposal, error) {
	return getRow[Proposal](s, bucketProposals, database.PackUInt64(id))
}

func (s *store) ProposalsByMultisig(multisigID uint64) ([]*Proposal, error) {
	it := s.db.NewIteratorWithPrefix(bkey(bucketProposalsByMultisig, database.PackUInt64(multisigID)))
	defer it.Release()

	var proposals []*Proposal
	for it.Next() {
		key := it.Key()
		proposalID, err := database.ParseUInt64(key[len(key)-8:])
		if err != nil {
			return nil, err
		}
		p, err := s.GetProposal(proposalID)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, it.Error()
}

func (s *store) PutProposal(p *Proposal) error {
	return s.putRow(bucketProposals, database.PackUInt64(p.ID), p)
}

/* ---- approvals ---- */

func approvalIndexKey(proposalID, memberID uint64, t ApprovalType) []byte {
	typeByte := byte(0)
	if t == VoteReject {
		typeByte = 1
	}
	key := make([]byte, 0, 17)
	key = append(key, database.PackUInt64(proposalID)...)
	key = append(key, database.PackUInt64(memberID)...)
	return append(key, typeByte)
}

func (s *store) AddApproval(a *Approval) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	a.ID = id
	if err := s.claimIndex(bucketApprovalIndex, approvalIndexKey(a.ProposalID, a.MemberID, a.Type), id); err != nil {
		return err
	}
	key := make([]byte, 0, 16)
	key = append(key, database.PackUInt64(a.ProposalID)...)
	key = append(key, database.PackUInt64(id)...)
	return s.putRow(bucketApprovals, key, a)
}

func (s *store) ApprovalsOf(proposalID uint64) ([]*Approval, error) {
	return listRows[Approval](s, bucketApprovals, database.PackUInt64(proposalID))
}

/* ---- transfers ---- */

func (s *store) AddWalletTransfer(t *WalletTransfer) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	t.ID = id
	return s.putRow(bucketWalletTransfers, database.PackUInt64(id), t)
}

func (s *store) GetWalletTransfer(id uint64) (*WalletTransfer, error) {
	return getRow[WalletTransfer](s, bucketWalletTransfers, database.PackUInt64(id))
}

func (s *store) PutWalletTransfer(t *WalletTransfer) error {
	return s.putRow(bucketWalletTransfers, database.PackUInt64(t.ID), t)
}

func (s *store) AddExternalTransfer(t *ExternalTransfer) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	t.ID = id
	return s.putRow(bucketExternalTransfers, database.PackUInt64(id), t)
}

func (s *store) GetExternalTransfer(id uint64) (*ExternalTransfer, error) {
	return getRow[ExternalTransfer](s, bucketExternalTransfers, database.PackUInt64(id))
}

func (s *store) PutExternalTransfer(t *ExternalTransfer) error {
	return s.putRow(bucketExternalTransfers, database.PackUInt64(t.ID), t)
}

func (s *store) AddInternalTransfer(t *InternalTransfer) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	t.ID = id
	return s.putRow(bucketInternalTransfers, database.PackUInt64(id), t)
}

func (s *store) GetInternalTransfer(id uint64) (*InternalTransfer, error) {
	return getRow[InternalTransfer](s, bucketInternalTransfers, database.PackUInt64(id))
}

func (s *store) AddYieldInvestment(y *YieldInvestment) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	y.ID = id
	return s.putRow(bucketYieldInvestments, database.PackUInt64(id), y)
}

func (s *store) GetYieldInvestment(id uint64) (*YieldInvestment, error) {
	return getRow[YieldInvestment](s, bucketYieldInvestments, database.PackUInt64(id))
}

func (s *store) PutYieldInvestment(y *YieldInvestment) error {
	return s.putRow(bucketYieldInvestments, database.PackUInt64(y.ID), y)
}

/* ---- vaults ---- */

func (s *store) AddVault(v *Vault) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	v.ID = id
	if err := s.claimIndex(bucketVaultAddressIndex, v.Address.Bytes(), id); err != nil {
		return err
	}
	if v.Treasury {
		if err := database.PutUInt64(s.db, bkey(bucketTreasuryIndex, []byte(v.Currency)), id); err != nil {
			return err
		}
	}
	return s.putRow(bucketVaults, database.PackUInt64(id), v)
}

func (s *store) GetVault(id uint64) (*Vault, error) {
	return getRow[Vault](s, bucketVaults, database.PackUInt64(id))
}

func (s *store) GetVaultByAddress(addr ids.Address) (*Vault, error) {
	id, err := s.lookupIndex(bucketVaultAddressIndex, addr.Bytes())
	if err != nil {
		return nil, err
	}
	return s.GetVault(id)
}

func (s *store) TreasuryVault(c Currency) (*Vault, error) {
	id, err := database.GetUInt64(s.db, bkey(bucketTreasuryIndex, []byte(c)))
	if err != nil {
		return nil, err
	}
	return s.GetVault(id)
}

func (s *store) PutVault(v *Vault) error {
	return s.putRow(bucketVaults, database.PackUInt64(v.ID), v)
}

func (s *store) AddVaultBalance(id uint64, delta uint64) error {
	v, err := s.GetVault(id)
	if err != nil {
		return err
	}
	v.Balance, err = safemath.Add64(v.Balance, delta)
	if err != nil {
		return err
	}
	return s.PutVault(v)
}

func (s *store) SubVaultBalance(id uint64, delta uint64) error {
	v, err := s.GetVault(id)
	if err != nil {
		return err
	}
	v.Balance, err = safemath.Sub64(v.Balance, delta)
	if err != nil {
		return fmt.Errorf("vault %d balance: %w", id, err)
	}
	return s.PutVault(v)
}

func (s *store) AddVaultFeeBalance(id uint64, delta uint64) error {
	v, err := s.GetVault(id)
	if err != nil {
		return err
	}
	v.FeeBalance, err = safemath.Add64(v.FeeBalance, delta)
	if err != nil {
		return err
	}
	return s.PutVault(v)
}

/* ---- deposits / withdrawals ---- */

func depositIndexKey(vaultID uint64, txHash string) []byte {
	key := make([]byte, 0, 8+len(txHash))
	key = append(key, database.PackUInt64(vaultID)...)
	return append(key, []byte(txHash)...)
}

func (s *store) AddDeposit(d *Deposit) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	d.ID = id
	if err := s.claimIndex(bucketDepositIndex, depositIndexKey(d.VaultID, d.TxHash), id); err != nil {
		return err
	}
	key := make([]byte, 0, 16)
	key = append(key, database.PackUInt64(d.VaultID)...)
	key = append(key, database.PackUInt64(id)...)
	return s.putRow(bucketDeposits, key, d)
}

func (s *store) HasDeposit(vaultID uint64, txHash string) (bool, error) {
	return s.db.Has(bkey(bucketDepositIndex, depositIndexKey(vaultID, txHash)))
}

func (s *store) DepositsByVault(vaultID uint64) ([]*Deposit, error) {
	return listRows[Deposit](s, bucketDeposits, database.PackUInt64(vaultID))
}

func (s *store) AddWithdrawal(w *Withdrawal) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	w.ID = id
	key := make([]byte, 0, 16)
	key = append(key, database.PackUInt64(w.VaultID)...)
	key = append(key, database.PackUInt64(id)...)
	return s.putRow(bucketWithdrawals, key, w)
}

func (s *store) WithdrawalsByVault(vaultID uint64) ([]*Withdrawal, error) {
	return listRows[Withdrawal](s, bucketWithdrawals, database.PackUInt64(vaultID))
}

/* ---- fees / audit ---- */

func (s *store) AddFee(f *Fee) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	f.ID = id
	return s.putRow(bucketFees, database.PackUInt64(id), f)
}

func (s *store) FeeList() ([]*Fee, error) {
	return listRows[Fee](s, bucketFees, nil)
}

func (s *store) AddRemovalEvent(e *RemovalEvent) error {
	id, err := s.nextID()
	if err != nil {
		return err
	}
	e.ID = id
	return s.putRow(bucketRemovalEvents, database.PackUInt64(id), e)
}

func (s *store) RemovalEventList() ([]*RemovalEvent, error) {
	return listRows[RemovalEvent](s, bucketRemovalEvents, nil)
}
