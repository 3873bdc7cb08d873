// Package metrics exposes Prometheus metrics for the rewards host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "x1_rewards_build_info",
			Help: "Build information of the x1-rewards host",
		},
		[]string{"version", "commit"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x1_rewards_transactions_total",
			Help: "Total number of executed transactions",
		},
		[]string{"status"},
	)

	TransactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "x1_rewards_transaction_duration_seconds",
			Help:    "Duration of transaction execution including commit",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~0.8s
		},
	)

	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "x1_rewards_account_lock_wait_seconds",
			Help:    "Time spent waiting for account locks",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	ComputeUnitsConsumed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "x1_rewards_compute_units_consumed",
			Help:    "Compute units consumed per transaction",
			Buckets: prometheus.ExponentialBuckets(100, 2, 14),
		},
	)

	InstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x1_rewards_instructions_total",
			Help: "Total number of top-level instructions by program and result",
		},
		[]string{"program", "status"},
	)

	ProgramErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x1_rewards_program_errors_total",
			Help: "Total number of classified program errors by code",
		},
		[]string{"program", "code"},
	)

	AccountsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "x1_rewards_accounts_committed_total",
			Help: "Total number of account writes committed to the store",
		},
	)

	PointsEarned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "x1_rewards_points_earned_total",
			Help: "Total points credited by committed Earn instructions",
		},
	)

	PointsClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "x1_rewards_points_claimed_total",
			Help: "Total points spent by committed Claim instructions",
		},
	)

	TokensClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "x1_rewards_tokens_claimed_total",
			Help: "Total token base units paid out of the vault",
		},
	)

	SnapshotAccounts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x1_rewards_snapshot_accounts_total",
			Help: "Total number of accounts written to or read from snapshots",
		},
		[]string{"direction"},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x1_rewards_rpc_requests_total",
			Help: "Total number of JSON-RPC calls by method and result",
		},
		[]string{"method", "status"},
	)

	RPCRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "x1_rewards_rpc_rate_limited_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		},
	)
)
