// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package proposal implements the multisig proposal state machine:
// threshold approval accounting, the time-lock gate anchored at the latest
// approval, and two-phase execution (persist intent, submit, settle).
package proposal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/activity"
	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
)

var (
	ErrNotMember         = errors.New("key is not a member of this multisig")
	ErrMemberInactive    = errors.New("member is not active")
	ErrPermission        = errors.New("member lacks the required permission")
	ErrInvalidState      = errors.New("proposal is not in a state that allows this transition")
	ErrDuplicateApproval = errors.New("member already cast this vote")
	ErrNoExecutor        = errors.New("no executor registered for link kind")
)

// TimeLockActiveError reports an execute attempt before the time lock
// expired.
type TimeLockActiveError struct {
	Remaining time.Duration
}

func (e *TimeLockActiveError) Error() string {
	return fmt.Sprintf("time lock active: %s remaining", e.Remaining)
}

// TimeLockStatus is the on-demand time-lock report.
type TimeLockStatus struct {
	CanExecute     bool
	TimeLock       time.Duration
	Remaining      time.Duration
	Reason         string
	LatestApproval time.Time
}

// Executor performs the domain action of a governed object during execute.
// Submit runs with NO unit of work open (it may call the chain); Settle
// stages the ledger effects of a successful submit inside the engine's
// closing unit of work.
type Executor interface {
	Submit(ctx context.Context, p *state.Proposal) (txHash string, err error)
	Settle(chain state.Chain, p *state.Proposal, txHash string) error
}

// Engine drives the proposal lifecycle. All transitions of one proposal are
// linearized by the state writer lock; the first execute to observe
// APPROVED wins, later ones fail with ErrInvalidState.
type Engine struct {
	state     *state.State
	clock     *mockable.Clock
	log       logging.Logger
	metrics   *metrics.Metrics
	executors map[state.LinkKind]Executor
}

func NewEngine(s *state.State, clock *mockable.Clock, log logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		state:     s,
		clock:     clock,
		log:       log,
		metrics:   m,
		executors: make(map[state.LinkKind]Executor),
	}
}

// RegisterExecutor binds the domain action for [kind]. Wiring-time only.
func (e *Engine) RegisterExecutor(kind state.LinkKind, ex Executor) {
	e.executors[kind] = ex
}

// ProposeIn stages a new proposal against the caller's unit of work, so the
// governed domain object and its proposal are created atomically.
func (e *Engine) ProposeIn(
	ch state.Chain,
	multisigID uint64,
	proposer ids.Address,
	kind state.LinkKind,
	linkID uint64,
	notes string,
) (*state.Proposal, error) {
	member, err := e.requireMember(ch, multisigID, proposer, state.PermissionPropose)
	if err != nil {
		return nil, err
	}

	now := e.clock.Time()
	p := &state.Proposal{
		MultisigID: multisigID,
		Proposer:   proposer,
		Status:     state.ProposalPending,
		LinkKind:   kind,
		LinkID:     linkID,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := ch.AddProposal(p); err != nil {
		return nil, err
	}
	if err := activity.TouchIn(ch, member, now); err != nil {
		return nil, err
	}
	e.metrics.ProposalsCreated.Inc()
	return p, nil
}

// Approve records an Approve vote. The vote that brings the distinct
// approve count to the threshold performs the PENDING -> APPROVED
// transition; its timestamp anchors the time lock.
func (e *Engine) Approve(proposalID uint64, memberKey ids.Address) (*state.Proposal, error) {
	diff := e.state.NewDiff()
	defer diff.Abort()

	p, err := diff.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != state.ProposalPending {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, p.Status)
	}
	member, err := e.requireMember(diff, p.MultisigID, memberKey, state.PermissionVote)
	if err != nil {
		return nil, err
	}

	now := e.clock.Time()
	err = diff.AddApproval(&state.Approval{
		ProposalID: proposalID,
		MemberID:   member.ID,
		Type:       state.VoteApprove,
		CreatedAt:  now,
	})
	if errors.Is(err, state.ErrDuplicateKey) {
		return nil, ErrDuplicateApproval
	}
	if err != nil {
		return nil, err
	}
	if err := activity.TouchIn(diff, member, now); err != nil {
		return nil, err
	}

	ms, err := diff.GetMultisig(p.MultisigID)
	if err != nil {
		return nil, err
	}
	approves, latest, err := countApproves(diff, proposalID)
	if err != nil {
		return nil, err
	}
	if approves >= ms.Threshold {
		p.Status = state.ProposalApproved
		p.LatestApprovalAt = latest
		p.UpdatedAt = now
		if err := diff.PutProposal(p); err != nil {
			return nil, err
		}
		e.metrics.ProposalsApproved.Inc()
	}
	if err := diff.Commit(); err != nil {
		return nil, err
	}

	e.metrics.ApprovalsCast.Inc()
	e.log.Info("approval recorded",
		zap.Uint64("proposalID", proposalID),
		zap.Stringer("member", memberKey),
		zap.Uint32("approvals", approves),
		zap.Uint32("threshold", ms.Threshold),
		zap.Stringer("status", p.Status),
	)
	return p, nil
}

// Reject records a Reject vote and terminates the proposal. Existing
// approvals stay in the audit log.
func (e *Engine) Reject(proposalID uint64, memberKey ids.Address, reason string) (*state.Proposal, error) {
	diff := e.state.NewDiff()
	defer diff.Abort()

	p, err := diff.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() || p.Status == state.ProposalExecuting {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, p.Status)
	}
	member, err := e.requireMember(diff, p.MultisigID, memberKey, state.PermissionVote)
	if err != nil {
		return nil, err
	}

	now := e.clock.Time()
	err = diff.AddApproval(&state.Approval{
		ProposalID: proposalID,
		MemberID:   member.ID,
		Type:       state.VoteReject,
		Reason:     reason,
		CreatedAt:  now,
	})
	if errors.Is(err, state.ErrDuplicateKey) {
		return nil, ErrDuplicateApproval
	}
	if err != nil {
		return nil, err
	}
	if err := activity.TouchIn(diff, member, now); err != nil {
		return nil, err
	}

	p.Status = state.ProposalRejected
	if reason != "" {
		p.Notes = reason
	}
	p.UpdatedAt = now
	if err := diff.PutProposal(p); err != nil {
		return nil, err
	}
	if err := setLinkStatus(diff, p, state.TransferCancelled, ""); err != nil {
		return nil, err
	}
	if err := diff.Commit(); err != nil {
		return nil, err
	}

	e.metrics.ProposalsRejected.Inc()
	e.log.Info("proposal rejected",
		zap.Uint64("proposalID", proposalID),
		zap.Stringer("member", memberKey),
		zap.String("reason", reason),
	)
	return p, nil
}

// TimeLockStatus reports whether [proposalID] can execute right now and how
// long remains otherwise. Remaining is floored to whole seconds.
func (e *Engine) TimeLockStatus(proposalID uint64) (TimeLockStatus, error) {
	p, err := e.state.GetProposal(proposalID)
	if err != nil {
		return TimeLockStatus{}, err
	}
	ms, err := e.state.GetMultisig(p.MultisigID)
	if err != nil {
		return TimeLockStatus{}, err
	}

	status := TimeLockStatus{
		TimeLock:       time.Duration(ms.TimeLockSeconds) * time.Second,
		LatestApproval: p.LatestApprovalAt,
	}
	if p.Status != state.ProposalApproved {
		status.Reason = fmt.Sprintf("proposal is %s", p.Status)
		return status, nil
	}
	if ms.TimeLockSeconds == 0 {
		status.CanExecute = true
		return status, nil
	}

	elapsed := e.clock.Time().Sub(p.LatestApprovalAt)
	remaining := (status.TimeLock - elapsed).Truncate(time.Second)
	if remaining <= 0 {
		status.CanExecute = true
		return status, nil
	}
	status.Remaining = remaining
	status.Reason = fmt.Sprintf("time lock active for another %s", remaining)
	return status, nil
}

// Execute drives APPROVED -> EXECUTING -> EXECUTED/FAILED. The EXECUTING
// transition commits before any chain call so a crashed submit is visible
// as intent; the tx hash lands in a follow-up unit of work.
func (e *Engine) Execute(ctx context.Context, proposalID uint64, executorKey ids.Address) (string, error) {
	p, err := e.beginExecute(proposalID, executorKey)
	if err != nil {
		return "", err
	}

	ex, ok := e.executors[p.LinkKind]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoExecutor, p.LinkKind)
		e.fail(p, err)
		return "", err
	}

	txHash, err := ex.Submit(ctx, p)
	if err != nil {
		e.countChainError(err)
		e.fail(p, err)
		return "", err
	}

	diff := e.state.NewDiff()
	defer diff.Abort()
	if err := ex.Settle(diff, p, txHash); err != nil {
		diff.Abort()
		e.fail(p, err)
		return "", err
	}
	now := e.clock.Time()
	p.Status = state.ProposalExecuted
	p.TxHash = txHash
	p.UpdatedAt = now
	if err := diff.PutProposal(p); err != nil {
		return "", err
	}
	if err := diff.Commit(); err != nil {
		return "", err
	}

	e.metrics.ProposalsExecuted.Inc()
	e.log.Info("proposal executed",
		zap.Uint64("proposalID", proposalID),
		zap.String("txHash", txHash),
	)
	return txHash, nil
}

// beginExecute validates the executor and the time lock, then commits the
// APPROVED -> EXECUTING transition.
func (e *Engine) beginExecute(proposalID uint64, executorKey ids.Address) (*state.Proposal, error) {
	diff := e.state.NewDiff()
	defer diff.Abort()

	p, err := diff.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != state.ProposalApproved {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, p.Status)
	}
	member, err := e.requireMember(diff, p.MultisigID, executorKey, state.PermissionExecute)
	if err != nil {
		return nil, err
	}

	ms, err := diff.GetMultisig(p.MultisigID)
	if err != nil {
		return nil, err
	}
	if ms.TimeLockSeconds > 0 {
		elapsed := e.clock.Time().Sub(p.LatestApprovalAt)
		remaining := (time.Duration(ms.TimeLockSeconds)*time.Second - elapsed).Truncate(time.Second)
		if remaining > 0 {
			return nil, &TimeLockActiveError{Remaining: remaining}
		}
	}

	now := e.clock.Time()
	p.Status = state.ProposalExecuting
	p.UpdatedAt = now
	if err := diff.PutProposal(p); err != nil {
		return nil, err
	}
	if err := activity.TouchIn(diff, member, now); err != nil {
		return nil, err
	}
	return p, diff.Commit()
}

// fail transitions a proposal (and its linked object) to FAILED, recording
// the cause in notes for audit. Reopening failed proposals is not
// supported; callers open a new one.
func (e *Engine) fail(p *state.Proposal, cause error) {
	diff := e.state.NewDiff()
	defer diff.Abort()

	now := e.clock.Time()
	p.Status = state.ProposalFailed
	p.Notes = cause.Error()
	p.UpdatedAt = now
	if err := diff.PutProposal(p); err != nil {
		e.log.Error("recording proposal failure", zap.Uint64("proposalID", p.ID), zap.Error(err))
		return
	}
	if err := setLinkStatus(diff, p, state.TransferFailed, ""); err != nil {
		e.log.Error("failing linked object", zap.Uint64("proposalID", p.ID), zap.Error(err))
		return
	}
	if err := diff.Commit(); err != nil {
		e.log.Error("committing proposal failure", zap.Uint64("proposalID", p.ID), zap.Error(err))
		return
	}
	e.metrics.ProposalsFailed.Inc()
	e.log.Warn("proposal failed",
		zap.Uint64("proposalID", p.ID),
		zap.Error(cause),
	)
}

func (e *Engine) requireMember(
	ch state.Chain,
	multisigID uint64,
	key ids.Address,
	perm state.Permissions,
) (*state.Member, error) {
	member, err := ch.GetMemberByKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, key)
	}
	if member.MultisigID != multisigID {
		return nil, fmt.Errorf("%w: %s", ErrNotMember, key)
	}
	if !member.Active {
		return nil, fmt.Errorf("%w: %s", ErrMemberInactive, key)
	}
	if !member.Permissions.Can(perm) {
		return nil, fmt.Errorf("%w: %s", ErrPermission, key)
	}
	return member, nil
}

func (e *Engine) countChainError(err error) {
	switch {
	case errors.Is(err, chain.ErrRateLimited):
		e.metrics.ChainErrors.WithLabelValues("rate_limited").Inc()
	case errors.Is(err, chain.ErrTimeout):
		e.metrics.ChainErrors.WithLabelValues("timeout").Inc()
	case errors.Is(err, chain.ErrRejected):
		e.metrics.ChainErrors.WithLabelValues("rejected").Inc()
	case errors.Is(err, chain.ErrNetwork):
		e.metrics.ChainErrors.WithLabelValues("network").Inc()
	}
}

// countApproves returns the distinct Approve count and the latest approve
// timestamp. Distinctness is enforced by the approvals unique index.
func countApproves(ch state.Chain, proposalID uint64) (uint32, time.Time, error) {
	approvals, err := ch.ApprovalsOf(proposalID)
	if err != nil {
		return 0, time.Time{}, err
	}
	var (
		count  uint32
		latest time.Time
	)
	for _, a := range approvals {
		if a.Type != state.VoteApprove {
			continue
		}
		count++
		if a.CreatedAt.After(latest) {
			latest = a.CreatedAt
		}
	}
	return count, latest, nil
}

// setLinkStatus moves the governed domain object to [status], stamping
// [txHash] when present.
func setLinkStatus(ch state.Chain, p *state.Proposal, status state.TransferStatus, txHash string) error {
	switch p.LinkKind {
	case state.LinkWalletTransfer:
		t, err := ch.GetWalletTransfer(p.LinkID)
		if err != nil {
			return err
		}
		t.Status = status
		if txHash != "" {
			t.TxHash = txHash
		}
		return ch.PutWalletTransfer(t)
	case state.LinkExternalTransfer:
		t, err := ch.GetExternalTransfer(p.LinkID)
		if err != nil {
			return err
		}
		t.Status = status
		if txHash != "" {
			t.TxHash = txHash
		}
		return ch.PutExternalTransfer(t)
	case state.LinkYieldInvestment:
		y, err := ch.GetYieldInvestment(p.LinkID)
		if err != nil {
			return err
		}
		y.Status = status
		return ch.PutYieldInvestment(y)
	case state.LinkNone:
		return nil
	default:
		return fmt.Errorf("unknown link kind %q", p.LinkKind)
	}
}
