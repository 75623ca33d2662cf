// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
)

const (
	DefaultInactivityThreshold = 24 * time.Hour
	DefaultRemovalThreshold    = 48 * time.Hour
)

// Summary reports one remover sweep.
type Summary struct {
	Scanned int
	Marked  int
	Retired int
	Blocked int
}

// Remover flags members inactive past the inactivity threshold and retires
// them past the removal threshold, never dropping a multisig below its
// approval threshold. The sweep only deactivates; reactivation happens
// exclusively through TouchIn on a member action.
type Remover struct {
	state *state.State
	clock *mockable.Clock
	log   logging.Logger

	inactivityThreshold time.Duration
	removalThreshold    time.Duration

	metrics *metrics.Metrics
}

func NewRemover(
	s *state.State,
	clock *mockable.Clock,
	log logging.Logger,
	inactivityThreshold time.Duration,
	removalThreshold time.Duration,
	m *metrics.Metrics,
) *Remover {
	if inactivityThreshold <= 0 {
		inactivityThreshold = DefaultInactivityThreshold
	}
	if removalThreshold <= 0 {
		removalThreshold = DefaultRemovalThreshold
	}
	return &Remover{
		state:               s,
		clock:               clock,
		log:                 log,
		inactivityThreshold: inactivityThreshold,
		removalThreshold:    removalThreshold,
		metrics:             m,
	}
}

// Sweep walks every multisig in one unit of work. A member whose last
// activity predates both thresholds is marked and retired in the same
// sweep, quorum permitting.
func (r *Remover) Sweep(ctx context.Context) (Summary, error) {
	var summary Summary

	diff := r.state.NewDiff()
	defer diff.Abort()

	multisigs, err := diff.MultisigList()
	if err != nil {
		return summary, err
	}

	now := r.clock.Time()
	inactive := 0
	for _, ms := range multisigs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !ms.Active {
			continue
		}
		n, err := r.sweepMultisig(diff, ms, now, &summary)
		if err != nil {
			return summary, err
		}
		inactive += n
	}

	if err := diff.Commit(); err != nil {
		return summary, err
	}

	r.metrics.MembersInactive.Set(float64(inactive))
	r.log.Info("activity sweep finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("marked", summary.Marked),
		zap.Int("retired", summary.Retired),
		zap.Int("quorumBlocked", summary.Blocked),
	)
	return summary, nil
}

// sweepMultisig returns the number of members left flagged inactive.
func (r *Remover) sweepMultisig(
	diff state.Chain,
	ms *state.Multisig,
	now time.Time,
	summary *Summary,
) (int, error) {
	members, err := diff.MembersOf(ms.ID)
	if err != nil {
		return 0, err
	}

	active := 0
	for _, m := range members {
		if m.Active {
			active++
		}
	}

	inactive := 0
	for _, m := range members {
		if !m.Active {
			continue
		}
		summary.Scanned++

		idle := now.Sub(m.LastActivityAt)
		if !m.Inactive && idle >= r.inactivityThreshold {
			// The removal clock runs from the last activity, not from the
			// moment the sweep noticed, so a member idle past both
			// thresholds is retirement-eligible immediately.
			since := now
			eligibleAt := m.LastActivityAt.Add(r.removalThreshold)
			m.Inactive = true
			m.InactiveSince = &since
			m.RemovalEligibleAt = &eligibleAt
			m.UpdatedAt = now
			if err := diff.PutMember(m); err != nil {
				return 0, err
			}
			summary.Marked++
			r.log.Info("member marked inactive",
				zap.Uint64("memberID", m.ID),
				zap.Uint64("multisigID", ms.ID),
				zap.Duration("idle", idle),
			)
		}

		if m.Inactive && m.RemovalEligibleAt != nil && !now.Before(*m.RemovalEligibleAt) {
			if uint32(active-1) < ms.Threshold {
				summary.Blocked++
				r.metrics.QuorumBlocked.Inc()
				r.log.Warn("retirement blocked to preserve quorum",
					zap.Uint64("memberID", m.ID),
					zap.Uint64("multisigID", ms.ID),
					zap.Int("active", active),
					zap.Uint32("threshold", ms.Threshold),
				)
				inactive++
				continue
			}

			m.Active = false
			m.UpdatedAt = now
			if err := diff.PutMember(m); err != nil {
				return 0, err
			}
			if err := diff.AddRemovalEvent(&state.RemovalEvent{
				MemberID:   m.ID,
				MultisigID: ms.ID,
				Reason:     "inactivity",
				CreatedAt:  now,
			}); err != nil {
				return 0, err
			}
			active--
			summary.Retired++
			r.metrics.MembersRetired.Inc()
			r.log.Info("member retired for inactivity",
				zap.Uint64("memberID", m.ID),
				zap.Uint64("multisigID", ms.ID),
				zap.Duration("idle", idle),
			)
			continue
		}

		if m.Inactive {
			inactive++
		}
	}
	return inactive, nil
}
