// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node assembles the custody daemon from its parts and owns their
// lifecycle.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/solvault-io/solvaultd/activity"
	"github.com/solvault-io/solvaultd/api/server"
	"github.com/solvault-io/solvaultd/chain"
	"github.com/solvault-io/solvaultd/chain/rpcchain"
	"github.com/solvault-io/solvaultd/config"
	"github.com/solvault-io/solvaultd/database"
	"github.com/solvault-io/solvaultd/database/leveldb"
	"github.com/solvault-io/solvaultd/database/memdb"
	"github.com/solvault-io/solvaultd/fees"
	"github.com/solvault-io/solvaultd/genesis"
	"github.com/solvault-io/solvaultd/ids"
	"github.com/solvault-io/solvaultd/metrics"
	"github.com/solvault-io/solvaultd/multisig"
	"github.com/solvault-io/solvaultd/proposal"
	"github.com/solvault-io/solvaultd/reconciler"
	"github.com/solvault-io/solvaultd/scheduler"
	"github.com/solvault-io/solvaultd/service"
	"github.com/solvault-io/solvaultd/state"
	"github.com/solvault-io/solvaultd/transfers"
	"github.com/solvault-io/solvaultd/utils/logging"
	"github.com/solvault-io/solvaultd/utils/timer/mockable"
	"github.com/solvault-io/solvaultd/yield"
)

const metricsNamespace = "solvault"

// Node is one running custody daemon.
type Node struct {
	log        logging.Logger
	logFactory *logging.Factory

	state *state.State

	scheduler *scheduler.Scheduler
	server    *server.Server

	shutdownOnce chan struct{}
}

// New wires a node from [cfg]. Nothing runs until Dispatch.
func New(cfg config.Config) (*Node, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logFactory := logging.NewFactory(logging.Config{
		Directory: cfg.LogDir,
		LogLevel:  level,
	})
	log := logFactory.Make("node")

	db, err := openDatabase(cfg)
	if err != nil {
		logFactory.Close()
		return nil, err
	}

	n := &Node{
		log:          log,
		logFactory:   logFactory,
		state:        state.New(db),
		shutdownOnce: make(chan struct{}),
	}
	if err := n.wire(cfg); err != nil {
		n.Shutdown()
		return nil, err
	}
	return n, nil
}

func (n *Node) wire(cfg config.Config) error {
	clock := &mockable.Clock{}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(metricsNamespace, registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if err := genesis.Bootstrap(n.state, clock, n.logFactory.Make("genesis"), genesis.Config{
		MemberKeys:      cfg.MemberKeys,
		Threshold:       cfg.Threshold,
		TimeLockSeconds: cfg.TimeLockSeconds,
		TreasuryAddress: cfg.TreasuryAddress,
	}); err != nil {
		return fmt.Errorf("bootstrapping genesis state: %w", err)
	}

	var client chain.Client = rpcchain.New(cfg.RPCURL, n.logFactory.Make("chain"))

	calc := fees.NewCalculator(cfg.TreasuryAddress, cfg.TreasuryKey)

	memberAddrs := make([]ids.Address, len(cfg.MemberKeys))
	for i, key := range cfg.MemberKeys {
		memberAddrs[i] = key.Address()
	}
	msRegistry := multisig.NewRegistry(multisig.Config{
		BaseMembers:     memberAddrs,
		Threshold:       cfg.Threshold,
		TimeLockSeconds: cfg.TimeLockSeconds,
		MinMembers:      cfg.MinMembers,
		MaxMembers:      cfg.MaxMembers,
	}, n.state, clock, n.logFactory.Make("multisig"))

	engine := proposal.NewEngine(n.state, clock, n.logFactory.Make("proposal"), m)
	orchestrator := transfers.NewOrchestrator(
		n.state, calc, msRegistry, engine,
		client, cfg.OperationalSigner, cfg.StablecoinMint,
		clock, n.logFactory.Make("transfers"), m,
	)
	yieldManager := yield.NewManager(
		n.state, calc, msRegistry, engine,
		yield.NewLedgerProvider(),
		clock, n.logFactory.Make("yield"),
	)

	remover := activity.NewRemover(
		n.state, clock, n.logFactory.Make("activity"),
		cfg.InactivityThreshold, cfg.RemovalThreshold, m,
	)
	rec := reconciler.New(reconciler.Config{
		Mint:           cfg.StablecoinMint,
		Faucets:        cfg.FaucetAddresses,
		StaleThreshold: cfg.BalanceStaleThreshold,
	}, n.state, client, clock, n.logFactory.Make("reconciler"), m)

	n.scheduler = scheduler.New(
		n.logFactory.Make("scheduler"),
		scheduler.Job{
			Name:     scheduler.ActivityJobName,
			Interval: cfg.ActivityInterval,
			Run: func(ctx context.Context) error {
				_, err := remover.Sweep(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     scheduler.MonitorJobName,
			Interval: cfg.MonitorInterval,
			Run: func(ctx context.Context) error {
				_, err := rec.Sweep(ctx)
				return err
			},
		},
	)
	if !cfg.AutoStartMonitoring {
		_ = n.scheduler.StopJob(scheduler.MonitorJobName)
	}

	svc := service.New(
		n.logFactory.Make("service"),
		n.state, clock,
		orchestrator, engine, msRegistry,
		rec, n.scheduler, yieldManager,
	)
	n.server, err = server.New(
		n.logFactory.Make("http"),
		cfg.HTTPHost, cfg.HTTPPort,
		cfg.AllowedOrigins,
		registry,
		svc,
	)
	if err != nil {
		return fmt.Errorf("building HTTP server: %w", err)
	}
	return nil
}

// Dispatch starts the background jobs and serves HTTP until Shutdown.
func (n *Node) Dispatch(ctx context.Context) error {
	n.scheduler.Dispatch(ctx)
	err := n.server.Dispatch()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops everything in dependency order and releases the database.
func (n *Node) Shutdown() {
	select {
	case <-n.shutdownOnce:
		return
	default:
		close(n.shutdownOnce)
	}

	n.log.Info("node shutting down")
	if n.server != nil {
		if err := n.server.Shutdown(); err != nil {
			n.log.Warn("HTTP shutdown failed", zap.Error(err))
		}
	}
	if n.scheduler != nil {
		n.scheduler.Shutdown()
	}
	if err := n.state.Close(); err != nil {
		n.log.Warn("closing state failed", zap.Error(err))
	}
	n.logFactory.Close()
}

func openDatabase(cfg config.Config) (database.Database, error) {
	switch cfg.DBType {
	case "memdb":
		return memdb.New(), nil
	case "leveldb":
		return leveldb.New(filepath.Join(cfg.DBDir, "solvault"))
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.DBType)
	}
}
