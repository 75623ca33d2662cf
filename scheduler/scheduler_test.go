// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solvault-io/solvaultd/utils/logging"
)

func TestTriggerNowRunsJob(t *testing.T) {
	require := require.New(t)

	ran := make(chan struct{}, 1)
	s := New(logging.NoLog{}, Job{
		Name:     "sweep",
		Interval: time.Hour,
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	s.Dispatch(context.Background())
	defer s.Shutdown()

	require.NoError(s.TriggerNow("sweep"))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		require.FailNow("job did not run after trigger")
	}
}

func TestStartStop(t *testing.T) {
	require := require.New(t)

	s := New(logging.NoLog{}, Job{
		Name:     "sweep",
		Interval: time.Hour,
		Run:      func(context.Context) error { return nil },
	})

	running, err := s.JobRunning("sweep")
	require.NoError(err)
	require.True(running)

	require.NoError(s.StopJob("sweep"))
	running, err = s.JobRunning("sweep")
	require.NoError(err)
	require.False(running)

	require.NoError(s.StartJob("sweep"))
	running, err = s.JobRunning("sweep")
	require.NoError(err)
	require.True(running)
}

func TestUnknownJob(t *testing.T) {
	require := require.New(t)

	s := New(logging.NoLog{})
	require.ErrorIs(s.StartJob("nope"), ErrUnknownJob)
	require.ErrorIs(s.StopJob("nope"), ErrUnknownJob)
	require.ErrorIs(s.TriggerNow("nope"), ErrUnknownJob)
	_, err := s.JobRunning("nope")
	require.ErrorIs(err, ErrUnknownJob)
}

func TestShutdownCancelsJobs(t *testing.T) {
	require := require.New(t)

	var cancelled atomic.Bool
	started := make(chan struct{})
	s := New(logging.NoLog{}, Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	})
	s.Dispatch(context.Background())
	require.NoError(s.TriggerNow("slow"))
	<-started

	s.Shutdown()
	require.True(cancelled.Load())
}

func TestJobErrorKeepsSchedule(t *testing.T) {
	require := require.New(t)

	var runs atomic.Int32
	s := New(logging.NoLog{}, Job{
		Name:     "flaky",
		Interval: time.Hour,
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("cycle failed")
		},
	})
	s.Dispatch(context.Background())
	defer s.Shutdown()

	require.NoError(s.TriggerNow("flaky"))
	require.Eventually(func() bool { return runs.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	// A failed cycle does not kill the loop.
	require.NoError(s.TriggerNow("flaky"))
	require.Eventually(func() bool { return runs.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestJitterBounds(t *testing.T) {
	require := require.New(t)

	interval := 10 * time.Minute
	for i := 0; i < 100; i++ {
		d := jittered(interval)
		require.GreaterOrEqual(d, 9*time.Minute)
		require.LessOrEqual(d, 11*time.Minute)
	}
}
