// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scheduler runs the background sweeps on independent jittered
// timers with a per-job control surface.
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solvault-io/solvaultd/utils/logging"
)

var ErrUnknownJob = errors.New("unknown job")

const (
	// Job names used across the wiring and the control surface.
	ActivityJobName = "activity-sweep"
	MonitorJobName  = "blockchain-monitor"

	DefaultActivityInterval  = 60 * time.Minute
	DefaultReconcileInterval = 5 * time.Minute

	// jitterFraction spreads each cycle by up to this share of the
	// interval in either direction.
	jitterFraction = 0.1
)

// Job is one periodic unit of background work. Run errors are logged, never
// fatal; the job keeps its schedule.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type job struct {
	Job

	trigger chan struct{}

	lock    sync.Mutex
	enabled bool
}

func (j *job) setEnabled(enabled bool) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.enabled = enabled
}

func (j *job) isEnabled() bool {
	j.lock.Lock()
	defer j.lock.Unlock()
	return j.enabled
}

// Scheduler owns the background jobs. Each runs on its own goroutine under
// one errgroup; Shutdown cancels all of them and waits.
type Scheduler struct {
	log  logging.Logger
	jobs map[string]*job

	cancel context.CancelFunc
	eg     *errgroup.Group
}

func New(log logging.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{
		log:  log,
		jobs: make(map[string]*job, len(jobs)),
	}
	for _, j := range jobs {
		s.jobs[j.Name] = &job{
			Job:     j,
			trigger: make(chan struct{}, 1),
			enabled: true,
		}
	}
	return s
}

// Dispatch launches every job goroutine. Call once.
func (s *Scheduler) Dispatch(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.eg, ctx = errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		j := j
		s.eg.Go(func() error {
			s.runLoop(ctx, j)
			return nil
		})
	}
}

// Shutdown stops all jobs and waits for the in-flight cycles to finish.
func (s *Scheduler) Shutdown() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	_ = s.eg.Wait()
}

// StartJob resumes a stopped job's schedule.
func (s *Scheduler) StartJob(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	j.setEnabled(true)
	s.log.Info("job started", zap.String("job", name))
	return nil
}

// StopJob pauses a job. The goroutine stays up; cycles are skipped until
// StartJob.
func (s *Scheduler) StopJob(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	j.setEnabled(false)
	s.log.Info("job stopped", zap.String("job", name))
	return nil
}

// TriggerNow schedules an immediate cycle regardless of the timer. The
// trigger is dropped if one is already queued.
func (s *Scheduler) TriggerNow(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	select {
	case j.trigger <- struct{}{}:
	default:
	}
	return nil
}

// JobRunning reports whether [name]'s schedule is enabled.
func (s *Scheduler) JobRunning(name string) (bool, error) {
	j, ok := s.jobs[name]
	if !ok {
		return false, ErrUnknownJob
	}
	return j.isEnabled(), nil
}

func (s *Scheduler) runLoop(ctx context.Context, j *job) {
	timer := time.NewTimer(jittered(j.Interval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if j.isEnabled() {
				s.runOnce(ctx, j)
			}
			timer.Reset(jittered(j.Interval))
		case <-j.trigger:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	start := time.Now()
	if err := j.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Warn("job cycle failed",
			zap.String("job", j.Name),
			zap.Error(err),
		)
		return
	}
	s.log.Debug("job cycle finished",
		zap.String("job", j.Name),
		zap.Duration("took", time.Since(start)),
	)
}

// jittered spreads [interval] by ±10% so parallel deployments do not hit
// the chain RPC in lockstep.
func jittered(interval time.Duration) time.Duration {
	spread := float64(interval) * jitterFraction
	offset := (rand.Float64()*2 - 1) * spread
	return interval + time.Duration(offset)
}
