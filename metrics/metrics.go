// Copyright (C) 2024-2026, Solvault Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates the custodial core's counters and gauges.
type Metrics struct {
	ProposalsCreated  prometheus.Counter
	ProposalsApproved prometheus.Counter
	ProposalsExecuted prometheus.Counter
	ProposalsRejected prometheus.Counter
	ProposalsFailed   prometheus.Counter

	ApprovalsCast prometheus.Counter

	TransfersCompleted *prometheus.CounterVec
	FeesCollected      prometheus.Counter
	FeesUncollected    prometheus.Counter

	DepositsIngested  *prometheus.CounterVec
	BalancesSynced    prometheus.Counter
	ReconcileErrors   prometheus.Counter
	ReconcileDuration prometheus.Gauge

	MembersInactive prometheus.Gauge
	MembersRetired  prometheus.Counter
	QuorumBlocked   prometheus.Counter

	ChainErrors *prometheus.CounterVec
}

func New(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ProposalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_created",
			Help:      "Number of proposals created",
		}),
		ProposalsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_approved",
			Help:      "Number of proposals that reached the approval threshold",
		}),
		ProposalsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_executed",
			Help:      "Number of proposals executed successfully",
		}),
		ProposalsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_rejected",
			Help:      "Number of proposals rejected by a member",
		}),
		ProposalsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_failed",
			Help:      "Number of proposals that failed during execution",
		}),
		ApprovalsCast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_cast",
			Help:      "Number of approval votes recorded",
		}),
		TransfersCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_completed",
				Help:      "Number of completed transfers by kind",
			},
			[]string{"kind"},
		),
		FeesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected",
			Help:      "Number of fees routed to the treasury",
		}),
		FeesUncollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_uncollected",
			Help:      "Number of fee collections that failed and await operator reconciliation",
		}),
		DepositsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deposits_ingested",
				Help:      "Number of deposits ingested by classification",
			},
			[]string{"class"},
		),
		BalancesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balances_synced",
			Help:      "Number of authoritative balance overwrites from chain",
		}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_errors",
			Help:      "Number of per-user reconciler failures",
		}),
		ReconcileDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of the last reconciler sweep",
		}),
		MembersInactive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members_inactive",
			Help:      "Number of members currently flagged inactive",
		}),
		MembersRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_retired",
			Help:      "Number of members retired by the activity sweeper",
		}),
		QuorumBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quorum_blocked",
			Help:      "Number of retirements skipped to preserve the threshold",
		}),
		ChainErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_errors",
				Help:      "Number of chain client failures by kind",
			},
			[]string{"kind"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.ProposalsCreated,
		m.ProposalsApproved,
		m.ProposalsExecuted,
		m.ProposalsRejected,
		m.ProposalsFailed,
		m.ApprovalsCast,
		m.TransfersCompleted,
		m.FeesCollected,
		m.FeesUncollected,
		m.DepositsIngested,
		m.BalancesSynced,
		m.ReconcileErrors,
		m.ReconcileDuration,
		m.MembersInactive,
		m.MembersRetired,
		m.QuorumBlocked,
		m.ChainErrors,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewTestMetrics returns metrics on a throwaway registry.
func NewTestMetrics() *Metrics {
	m, err := New("", prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}
