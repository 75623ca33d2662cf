// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package activity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solvault-io/solvaultd/database/memdb"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
)

type removerTest struct {
	remover *Remover
	state   *state.State
	clock   *mockable.Clock
	ms      *state.Multisig
	members []*state.Member
}

// newRemoverTest builds a 3-member multisig with [threshold] and default
// sweep thresholds. All members start active with fresh activity.
func newRemoverTest(t *testing.T, threshold uint32) *removerTest {
	require := require.New(t)

	s := state.New(memdb.New())
	clock := &mockable.Clock{}
	clock.Set(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	ms := &state.Multisig{
		PDA:       ids.GenerateTestAddress(),
		CreateKey: ids.GenerateTestAddress(),
		Name:      "sweep",
		Threshold: threshold,
		Active:    true,
	}
	diff := s.NewDiff()
	require.NoError(diff.AddMultisig(ms))

	members := make([]*state.Member, 3)
	for i := range members {
		members[i] = &state.Member{
			MultisigID:     ms.ID,
			PublicKey:      ids.GenerateTestAddress(),
			Permissions:    state.PermissionsAll,
			Active:         true,
			LastActivityAt: clock.Time(),
		}
		require.NoError(diff.AddMember(members[i]))
	}
	require.NoError(diff.Commit())

	return &removerTest{
		remover: NewRemover(s, clock, logging.NoLog{}, 0, 0, metrics.NewTestMetrics()),
		state:   s,
		clock:   clock,
		ms:      ms,
		members: members,
	}
}

func (rt *removerTest) setLastActivity(t *testing.T, memberID uint64, at time.Time) {
	require := require.New(t)

	m, err := rt.state.GetMember(memberID)
	require.NoError(err)
	m.LastActivityAt = at
	diff := rt.state.NewDiff()
	require.NoError(diff.PutMember(m))
	require.NoError(diff.Commit())
}

func TestSweepMarksInactive(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 2)

	// 30 hours idle: past the inactivity threshold, short of removal.
	rt.setLastActivity(t, rt.members[0].ID, rt.clock.Time().Add(-30*time.Hour))

	summary, err := rt.remover.Sweep(context.Background())
	require.NoError(err)
	require.Equal(Summary{Scanned: 3, Marked: 1}, summary)

	m, err := rt.state.GetMember(rt.members[0].ID)
	require.NoError(err)
	require.True(m.Active)
	require.True(m.Inactive)
	require.NotNil(m.InactiveSince)
	require.NotNil(m.RemovalEligibleAt)
	require.Equal(m.LastActivityAt.Add(DefaultRemovalThreshold), *m.RemovalEligibleAt)
}

func TestSweepRetiresPastRemovalThreshold(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 2)

	// 60 hours idle: both thresholds passed, retired in one sweep.
	rt.setLastActivity(t, rt.members[0].ID, rt.clock.Time().Add(-60*time.Hour))

	summary, err := rt.remover.Sweep(context.Background())
	require.NoError(err)
	require.Equal(Summary{Scanned: 3, Marked: 1, Retired: 1}, summary)

	m, err := rt.state.GetMember(rt.members[0].ID)
	require.NoError(err)
	require.False(m.Active)

	events, err := rt.state.RemovalEventList()
	require.NoError(err)
	require.Len(events, 1)
	require.Equal(rt.members[0].ID, events[0].MemberID)
	require.Equal("inactivity", events[0].Reason)
}

func TestSweepQuorumGuard(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 3)

	rt.setLastActivity(t, rt.members[2].ID, rt.clock.Time().Add(-60*time.Hour))

	// Retiring would leave 2 active with threshold 3: blocked, member
	// stays active but flagged.
	summary, err := rt.remover.Sweep(context.Background())
	require.NoError(err)
	require.Equal(Summary{Scanned: 3, Marked: 1, Blocked: 1}, summary)

	m, err := rt.state.GetMember(rt.members[2].ID)
	require.NoError(err)
	require.True(m.Active)
	require.True(m.Inactive)

	events, err := rt.state.RemovalEventList()
	require.NoError(err)
	require.Empty(events)

	// Operator lowers the threshold; the next sweep retires the member.
	ms, err := rt.state.GetMultisig(rt.ms.ID)
	require.NoError(err)
	ms.Threshold = 2
	diff := rt.state.NewDiff()
	require.NoError(diff.PutMultisig(ms))
	require.NoError(diff.Commit())

	summary, err = rt.remover.Sweep(context.Background())
	require.NoError(err)
	require.Equal(Summary{Scanned: 3, Retired: 1}, summary)

	m, err = rt.state.GetMember(rt.members[2].ID)
	require.NoError(err)
	require.False(m.Active)
}

func TestSweepRetiresAtMostDownToThreshold(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 2)

	// All three idle past removal: only one can go before quorum blocks.
	for _, m := range rt.members {
		rt.setLastActivity(t, m.ID, rt.clock.Time().Add(-60*time.Hour))
	}

	summary, err := rt.remover.Sweep(context.Background())
	require.NoError(err)
	require.Equal(3, summary.Marked)
	require.Equal(1, summary.Retired)
	require.Equal(2, summary.Blocked)

	active := 0
	members, err := rt.state.MembersOf(rt.ms.ID)
	require.NoError(err)
	for _, m := range members {
		if m.Active {
			active++
		}
	}
	require.Equal(2, active)
}

func TestSweepNeverReactivates(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 2)

	rt.setLastActivity(t, rt.members[0].ID, rt.clock.Time().Add(-30*time.Hour))
	_, err := rt.remover.Sweep(context.Background())
	require.NoError(err)

	// Repeated sweeps keep the flag; only a member action clears it.
	_, err = rt.remover.Sweep(context.Background())
	require.NoError(err)

	m, err := rt.state.GetMember(rt.members[0].ID)
	require.NoError(err)
	require.True(m.Inactive)

	diff := rt.state.NewDiff()
	require.NoError(TouchIn(diff, m, rt.clock.Time()))
	require.NoError(diff.Commit())

	m, err = rt.state.GetMember(m.ID)
	require.NoError(err)
	require.False(m.Inactive)
	require.Nil(m.InactiveSince)
	require.Nil(m.RemovalEligibleAt)
	require.Equal(rt.clock.Time(), m.LastActivityAt)
}

func TestSweepFreshMembersUntouched(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 2)

	summary, err := rt.remover.Sweep(context.Background())
	require.NoError(err)
	require.Equal(Summary{Scanned: 3}, summary)

	for _, seed := range rt.members {
		m, err := rt.state.GetMember(seed.ID)
		require.NoError(err)
		require.True(m.Active)
		require.False(m.Inactive)
	}
}

func TestSweepHonorsCancellation(t *testing.T) {
	require := require.New(t)
	rt := newRemoverTest(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.remover.Sweep(ctx)
	require.ErrorIs(err, context.Canceled)
}
