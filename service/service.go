// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package service exposes the custody intents over JSON-RPC.
package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/multisig"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/reconciler"
	"github.com/solvault-io/solvaultd/scheduler"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/transfers"
	"github.com/solvault-io/solvaultd/utils/json"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
	"github.com/solvault-io/solvaultd/yield"
)

var (
	ErrQuorumBlocked = errors.New("removal would drop active members below the threshold")

	errBadAddress = errors.New("invalid address")
	errBadInput   = errors.New("invalid input")
)

// Service is the JSON-RPC handler registered under the "solvault"
// namespace.
type Service struct {
	log          logging.Logger
	state        *state.State
	clock        *mockable.Clock
	orchestrator *transfers.Orchestrator
	engine       *proposal.Engine
	registry     *multisig.Registry
	reconciler   *reconciler.Reconciler
	scheduler    *scheduler.Scheduler
	yield        *yield.Manager
}

func New(
	log logging.Logger,
	s *state.State,
	clock *mockable.Clock,
	orchestrator *transfers.Orchestrator,
	engine *proposal.Engine,
	registry *multisig.Registry,
	rec *reconciler.Reconciler,
	sched *scheduler.Scheduler,
	yieldManager *yield.Manager,
) *Service {
	return &Service{
		log:          log,
		state:        s,
		clock:        clock,
		orchestrator: orchestrator,
		engine:       engine,
		registry:     registry,
		reconciler:   rec,
		scheduler:    sched,
		yield:        yieldManager,
	}
}

/* ---- users ---- */

type CreateUserArgs struct {
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Wallet      string `json:"wallet"`
}

type UserReply struct {
	UserID  json.Uint64 `json:"userId"`
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Wallet  string      `json:"wallet,omitempty"`
	Balance json.Uint64 `json:"balance"`
}

func (s *Service) CreateUser(_ *http.Request, args *CreateUserArgs, reply *UserReply) error {
	s.log.Debug("API called", zap.String("method", "createUser"))

	if args.Email == "" || args.FullName == "" {
		return wrapError(fmt.Errorf("%w: email and fullName are required", errBadInput))
	}

	u := &state.User{
		Email:     args.Email,
		Name:      args.FullName,
		Phone:     args.PhoneNumber,
		CreatedAt: s.clock.Time(),
		UpdatedAt: s.clock.Time(),
	}
	if args.Wallet != "" {
		wallet, err := ids.ParseAddress(args.Wallet)
		if err != nil {
			return wrapError(fmt.Errorf("%w: wallet: %s", errBadAddress, err))
		}
		u.Wallet = &wallet
	}

	diff := s.state.NewDiff()
	defer diff.Abort()
	if err := diff.AddUser(u); err != nil {
		return wrapError(err)
	}
	if err := diff.Commit(); err != nil {
		return wrapError(err)
	}

	*reply = userReply(u)
	return nil
}

type AnonymizeUserArgs struct {
	UserID json.Uint64 `json:"userId"`
}

type AnonymizeUserReply struct {
	UsersAnonymized int `json:"usersAnonymized"`
}

// AnonymizeUser replaces a user's personal fields with deterministic
// placeholders. The row and every foreign key stay intact.
func (s *Service) AnonymizeUser(_ *http.Request, args *AnonymizeUserArgs, reply *AnonymizeUserReply) error {
	s.log.Debug("API called", zap.String("method", "anonymizeUser"))

	diff := s.state.NewDiff()
	defer diff.Abort()

	u, err := diff.GetUser(uint64(args.UserID))
	if err != nil {
		return wrapError(err)
	}
	if u.Anonymized {
		reply.UsersAnonymized = 0
		return nil
	}

	u.Email = fmt.Sprintf("anonymized_%d@deleted.local", u.ID)
	u.Name = fmt.Sprintf("DELETED_%d", u.ID)
	u.Phone = ""
	u.Wallet = nil
	u.Anonymized = true
	u.UpdatedAt = s.clock.Time()
	if err := diff.PutUser(u); err != nil {
		return wrapError(err)
	}
	if err := diff.Commit(); err != nil {
		return wrapError(err)
	}

	reply.UsersAnonymized = 1
	return nil
}

/* ---- transfers ---- */

type ProposeWalletTransferArgs struct {
	ProposerKey string      `json:"proposerKey"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Gross       json.Uint64 `json:"gross"`
	Currency    string      `json:"currency"`
	Notes       string      `json:"notes"`
	RequestedBy string      `json:"requestedBy"`
}

type ProposalReply struct {
	ProposalID  json.Uint64 `json:"proposalId"`
	MultisigPDA string      `json:"multisigPda"`
	Status      string      `json:"status"`
}

func (s *Service) ProposeWalletTransfer(_ *http.Request, args *ProposeWalletTransferArgs, reply *ProposalReply) error {
	s.log.Debug("API called", zap.String("method", "proposeWalletTransfer"))

	proposer, err := ids.ParseAddress(args.ProposerKey)
	if err != nil {
		return wrapError(fmt.Errorf("%w: proposerKey: %s", errBadAddress, err))
	}
	from, err := ids.ParseAddress(args.From)
	if err != nil {
		return wrapError(fmt.Errorf("%w: from: %s", errBadAddress, err))
	}
	to, err := ids.ParseAddress(args.To)
	if err != nil {
		return wrapError(fmt.Errorf("%w: to: %s", errBadAddress, err))
	}

	_, p, err := s.orchestrator.Wallet(
		proposer, from, to,
		uint64(args.Gross),
		state.Currency(args.Currency),
		args.Notes,
		args.RequestedBy,
	)
	if err != nil {
		return wrapError(err)
	}
	return s.proposalReply(p, reply)
}

type ProposeExternalTransferArgs struct {
	UserID     json.Uint64 `json:"userId"`
	ToExternal string      `json:"toExternal"`
	Gross      json.Uint64 `json:"gross"`
	Currency   string      `json:"currency"`
	Notes      string      `json:"notes"`
}

func (s *Service) ProposeExternalTransfer(_ *http.Request, args *ProposeExternalTransferArgs, reply *ProposalReply) error {
	s.log.Debug("API called", zap.String("method", "proposeExternalTransfer"))

	to, err := ids.ParseAddress(args.ToExternal)
	if err != nil {
		return wrapError(fmt.Errorf("%w: toExternal: %s", errBadAddress, err))
	}

	_, p, err := s.orchestrator.External(
		uint64(args.UserID), to,
		uint64(args.Gross),
		state.Currency(args.Currency),
		args.Notes,
	)
	if err != nil {
		return wrapError(err)
	}
	return s.proposalReply(p, reply)
}

type InternalTransferArgs struct {
	SenderID          json.Uint64 `json:"senderId"`
	ReceiverFirstName string      `json:"receiverFirstName"`
	Gross             json.Uint64 `json:"gross"`
	Notes             string      `json:"notes"`
}

type InternalTransferReply struct {
	TransferID json.Uint64 `json:"transferId"`
	Fee        json.Uint64 `json:"fee"`
	Net        json.Uint64 `json:"net"`
	Status     string      `json:"status"`
}

func (s *Service) InternalTransfer(_ *http.Request, args *InternalTransferArgs, reply *InternalTransferReply) error {
	s.log.Debug("API called", zap.String("method", "internalTransfer"))

	t, err := s.orchestrator.Internal(
		uint64(args.SenderID),
		args.ReceiverFirstName,
		uint64(args.Gross),
		args.Notes,
	)
	if err != nil {
		return wrapError(err)
	}
	reply.TransferID = json.Uint64(t.ID)
	reply.Fee = json.Uint64(t.Fee)
	reply.Net = json.Uint64(t.Net)
	reply.Status = string(t.Status)
	return nil
}

type InvestYieldArgs struct {
	UserID json.Uint64 `json:"userId"`
	Amount json.Uint64 `json:"amount"`
}

func (s *Service) InvestYield(_ *http.Request, args *InvestYieldArgs, reply *ProposalReply) error {
	s.log.Debug("API called", zap.String("method", "investYield"))

	_, p, err := s.yield.Propose(uint64(args.UserID), uint64(args.Amount))
	if err != nil {
		return wrapError(err)
	}
	return s.proposalReply(p, reply)
}

/* ---- proposals ---- */

type ProposalActionArgs struct {
	ProposalID json.Uint64 `json:"proposalId"`
	MemberKey  string      `json:"memberKey"`
	Reason     string      `json:"reason"`
}

type ProposalStatusReply struct {
	Status    string `json:"status"`
	Approvals int    `json:"approvals"`
}

func (s *Service) ApproveProposal(_ *http.Request, args *ProposalActionArgs, reply *ProposalStatusReply) error {
	s.log.Debug("API called", zap.String("method", "approveProposal"))

	member, err := ids.ParseAddress(args.MemberKey)
	if err != nil {
		return wrapError(fmt.Errorf("%w: memberKey: %s", errBadAddress, err))
	}
	p, err := s.engine.Approve(uint64(args.ProposalID), member)
	if err != nil {
		return wrapError(err)
	}
	return s.statusReply(p, reply)
}

func (s *Service) RejectProposal(_ *http.Request, args *ProposalActionArgs, reply *ProposalStatusReply) error {
	s.log.Debug("API called", zap.String("method", "rejectProposal"))

	member, err := ids.ParseAddress(args.MemberKey)
	if err != nil {
		return wrapError(fmt.Errorf("%w: memberKey: %s", errBadAddress, err))
	}
	p, err := s.engine.Reject(uint64(args.ProposalID), member, args.Reason)
	if err != nil {
		return wrapError(err)
	}
	return s.statusReply(p, reply)
}

type ExecuteProposalArgs struct {
	ProposalID  json.Uint64 `json:"proposalId"`
	ExecutorKey string      `json:"executorKey"`
}

type ExecuteProposalReply struct {
	TxHash string `json:"txHash"`
}

func (s *Service) ExecuteProposal(r *http.Request, args *ExecuteProposalArgs, reply *ExecuteProposalReply) error {
	s.log.Debug("API called", zap.String("method", "executeProposal"))

	executor, err := ids.ParseAddress(args.ExecutorKey)
	if err != nil {
		return wrapError(fmt.Errorf("%w: executorKey: %s", errBadAddress, err))
	}
	txHash, err := s.engine.Execute(r.Context(), uint64(args.ProposalID), executor)
	if err != nil {
		return wrapError(err)
	}
	reply.TxHash = txHash
	return nil
}

type GetTimeLockStatusArgs struct {
	ProposalID json.Uint64 `json:"proposalId"`
}

type GetTimeLockStatusReply struct {
	CanExecute           bool   `json:"canExecute"`
	TimeLockSeconds      uint64 `json:"timeLockSeconds"`
	TimeRemainingSeconds uint64 `json:"timeRemainingSeconds"`
	Reason               string `json:"reason,omitempty"`
	LatestApproval       string `json:"latestApprovalInstant,omitempty"`
}

func (s *Service) GetTimeLockStatus(_ *http.Request, args *GetTimeLockStatusArgs, reply *GetTimeLockStatusReply) error {
	s.log.Debug("API called", zap.String("method", "getTimeLockStatus"))

	status, err := s.engine.TimeLockStatus(uint64(args.ProposalID))
	if err != nil {
		return wrapError(err)
	}
	reply.CanExecute = status.CanExecute
	reply.TimeLockSeconds = uint64(status.TimeLock.Seconds())
	reply.TimeRemainingSeconds = uint64(status.Remaining.Seconds())
	reply.Reason = status.Reason
	if !status.LatestApproval.IsZero() {
		reply.LatestApproval = status.LatestApproval.UTC().Format("2006-01-02T15:04:05Z")
	}
	return nil
}

type ListProposalsArgs struct {
	MultisigPDA string `json:"multisigPda"`
	Status      string `json:"status"`
}

type ProposalSummary struct {
	ProposalID json.Uint64 `json:"proposalId"`
	Status     string      `json:"status"`
	LinkKind   string      `json:"linkKind,omitempty"`
	LinkID     json.Uint64 `json:"linkId,omitempty"`
	TxHash     string      `json:"txHash,omitempty"`
	Notes      string      `json:"notes,omitempty"`
}

type ListProposalsReply struct {
	Proposals []ProposalSummary `json:"proposals"`
}

func (s *Service) ListProposals(_ *http.Request, args *ListProposalsArgs, reply *ListProposalsReply) error {
	s.log.Debug("API called", zap.String("method", "listProposals"))

	pda, err := ids.ParseAddress(args.MultisigPDA)
	if err != nil {
		return wrapError(fmt.Errorf("%w: multisigPda: %s", errBadAddress, err))
	}
	ms, err := s.state.GetMultisigByPDA(pda)
	if err != nil {
		return wrapError(err)
	}
	proposals, err := s.state.ProposalsByMultisig(ms.ID)
	if err != nil {
		return wrapError(err)
	}

	var filter state.ProposalStatus
	if args.Status != "" {
		filter = state.ProposalStatus(strings.ToUpper(args.Status))
		if err := filter.Verify(); err != nil {
			return wrapError(fmt.Errorf("%w: %s", errBadInput, err))
		}
	}

	// The index scan yields proposals in ascending ID order already.
	for _, p := range proposals {
		if filter != "" && p.Status != filter {
			continue
		}
		reply.Proposals = append(reply.Proposals, ProposalSummary{
			ProposalID: json.Uint64(p.ID),
			Status:     string(p.Status),
			LinkKind:   string(p.LinkKind),
			LinkID:     json.Uint64(p.LinkID),
			TxHash:     p.TxHash,
			Notes:      p.Notes,
		})
	}
	return nil
}

/* ---- balances and monitoring ---- */

type SyncUserBalanceArgs struct {
	UserID json.Uint64 `json:"userId"`
	Force  bool        `json:"force"`
}

type SyncUserBalanceReply struct {
	Balance json.Uint64 `json:"balance"`
}

func (s *Service) SyncUserBalance(r *http.Request, args *SyncUserBalanceArgs, reply *SyncUserBalanceReply) error {
	s.log.Debug("API called", zap.String("method", "syncUserBalance"))

	balance, err := s.reconciler.SyncUser(r.Context(), uint64(args.UserID), args.Force)
	if err != nil {
		return wrapError(err)
	}
	reply.Balance = json.Uint64(balance)
	return nil
}

type MonitoringReply struct {
	Running bool `json:"running"`
}

func (s *Service) StartMonitoring(_ *http.Request, _ *struct{}, reply *MonitoringReply) error {
	s.log.Debug("API called", zap.String("method", "startMonitoring"))

	if err := s.scheduler.StartJob(scheduler.MonitorJobName); err != nil {
		return wrapError(err)
	}
	reply.Running = true
	return nil
}

func (s *Service) StopMonitoring(_ *http.Request, _ *struct{}, reply *MonitoringReply) error {
	s.log.Debug("API called", zap.String("method", "stopMonitoring"))

	if err := s.scheduler.StopJob(scheduler.MonitorJobName); err != nil {
		return wrapError(err)
	}
	reply.Running = false
	return nil
}

func (s *Service) TriggerMonitoring(_ *http.Request, _ *struct{}, reply *MonitoringReply) error {
	s.log.Debug("API called", zap.String("method", "triggerMonitoring"))

	if err := s.scheduler.TriggerNow(scheduler.MonitorJobName); err != nil {
		return wrapError(err)
	}
	running, err := s.scheduler.JobRunning(scheduler.MonitorJobName)
	if err != nil {
		return wrapError(err)
	}
	reply.Running = running
	return nil
}

/* ---- activity administration ---- */

type MemberStatus struct {
	MemberID          json.Uint64 `json:"memberId"`
	MultisigID        json.Uint64 `json:"multisigId"`
	PublicKey         string      `json:"publicKey"`
	Active            bool        `json:"active"`
	Inactive          bool        `json:"inactive"`
	LastActivityAt    string      `json:"lastActivityAt"`
	RemovalEligibleAt string      `json:"removalEligibleAt,omitempty"`
}

type ActivityStatusReply struct {
	Members []MemberStatus `json:"members"`
}

func (s *Service) ActivityStatus(_ *http.Request, _ *struct{}, reply *ActivityStatusReply) error {
	s.log.Debug("API called", zap.String("method", "activityStatus"))
	return s.memberSnapshot(reply, false)
}

func (s *Service) RemovalEligible(_ *http.Request, _ *struct{}, reply *ActivityStatusReply) error {
	s.log.Debug("API called", zap.String("method", "removalEligible"))
	return s.memberSnapshot(reply, true)
}

type RemoveMemberArgs struct {
	MemberKey string `json:"memberKey"`
	Reason    string `json:"reason"`
}

type RemoveMemberReply struct {
	Removed bool `json:"removed"`
}

// RemoveMember is the operator override. The quorum guard still applies;
// an operator shrinks the threshold first if needed.
func (s *Service) RemoveMember(_ *http.Request, args *RemoveMemberArgs, reply *RemoveMemberReply) error {
	s.log.Debug("API called", zap.String("method", "removeMember"))

	key, err := ids.ParseAddress(args.MemberKey)
	if err != nil {
		return wrapError(fmt.Errorf("%w: memberKey: %s", errBadAddress, err))
	}

	diff := s.state.NewDiff()
	defer diff.Abort()

	m, err := diff.GetMemberByKey(key)
	if err != nil {
		return wrapError(err)
	}
	if !m.Active {
		reply.Removed = false
		return nil
	}
	ms, err := diff.GetMultisig(m.MultisigID)
	if err != nil {
		return wrapError(err)
	}
	members, err := diff.MembersOf(ms.ID)
	if err != nil {
		return wrapError(err)
	}
	active := 0
	for _, other := range members {
		if other.Active {
			active++
		}
	}
	if uint32(active-1) < ms.Threshold {
		return wrapError(fmt.Errorf("%w: %d active, threshold %d",
			ErrQuorumBlocked, active, ms.Threshold))
	}

	now := s.clock.Time()
	m.Active = false
	m.UpdatedAt = now
	if err := diff.PutMember(m); err != nil {
		return wrapError(err)
	}
	reason := args.Reason
	if reason == "" {
		reason = "operator removal"
	}
	if err := diff.AddRemovalEvent(&state.RemovalEvent{
		MemberID:   m.ID,
		MultisigID: ms.ID,
		Reason:     reason,
		CreatedAt:  now,
	}); err != nil {
		return wrapError(err)
	}
	if err := diff.Commit(); err != nil {
		return wrapError(err)
	}

	s.log.Info("member removed by operator",
		zap.Uint64("memberID", m.ID),
		zap.String("reason", reason),
	)
	reply.Removed = true
	return nil
}

/* ---- helpers ---- */

func userReply(u *state.User) UserReply {
	reply := UserReply{
		UserID:  json.Uint64(u.ID),
		Email:   u.Email,
		Name:    u.Name,
		Balance: json.Uint64(u.Balance),
	}
	if u.Wallet != nil {
		reply.Wallet = u.Wallet.String()
	}
	return reply
}

func (s *Service) proposalReply(p *state.Proposal, reply *ProposalReply) error {
	ms, err := s.state.GetMultisig(p.MultisigID)
	if err != nil {
		return wrapError(err)
	}
	reply.ProposalID = json.Uint64(p.ID)
	reply.MultisigPDA = ms.PDA.String()
	reply.Status = string(p.Status)
	return nil
}

func (s *Service) statusReply(p *state.Proposal, reply *ProposalStatusReply) error {
	approvals, err := s.state.ApprovalsOf(p.ID)
	if err != nil {
		return wrapError(err)
	}
	count := 0
	for _, a := range approvals {
		if a.Type == state.VoteApprove {
			count++
		}
	}
	reply.Status = string(p.Status)
	reply.Approvals = count
	return nil
}

func (s *Service) memberSnapshot(reply *ActivityStatusReply, eligibleOnly bool) error {
	multisigs, err := s.state.MultisigList()
	if err != nil {
		return wrapError(err)
	}
	now := s.clock.Time()

	for _, ms := range multisigs {
		members, err := s.state.MembersOf(ms.ID)
		if err != nil {
			return wrapError(err)
		}
		for _, m := range members {
			if eligibleOnly {
				if !m.Active || !m.Inactive ||
					m.RemovalEligibleAt == nil || now.Before(*m.RemovalEligibleAt) {
					continue
				}
			}
			status := MemberStatus{
				MemberID:       json.Uint64(m.ID),
				MultisigID:     json.Uint64(m.MultisigID),
				PublicKey:      m.PublicKey.String(),
				Active:         m.Active,
				Inactive:       m.Inactive,
				LastActivityAt: m.LastActivityAt.UTC().Format("2006-01-02T15:04:05Z"),
			}
			if m.RemovalEligibleAt != nil {
				status.RemovalEligibleAt = m.RemovalEligibleAt.UTC().Format("2006-01-02T15:04:05Z")
			}
			reply.Members = append(reply.Members, status)
		}
	}
	return nil
}
