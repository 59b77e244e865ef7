// Package metrics exposes prometheus collectors for the economy core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TransactionsTotal counts committed and failed ledger transactions.
var TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "economy",
	Subsystem: "ledger",
	Name:      "transactions_total",
	Help:      "Ledger transactions by type and outcome.",
}, []string{"type", "outcome"})

// ClippedCoinsTotal counts coins withheld by wallet-cap clipping.
var ClippedCoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "economy",
	Subsystem: "ledger",
	Name:      "clipped_coins_total",
	Help:      "Coins retained by the treasury due to wallet-cap clipping.",
})

// TreasuryBalance tracks the current treasury balance.
var TreasuryBalance = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "economy",
	Subsystem: "treasury",
	Name:      "balance_coins",
	Help:      "Current treasury balance in coins.",
})

// TreasuryTodaySpent tracks bot-attributed spend since the daily reset.
var TreasuryTodaySpent = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "economy",
	Subsystem: "treasury",
	Name:      "today_spent_coins",
	Help:      "Bot-attributed coins spent from the treasury today.",
})

// BotActionsTotal counts bot actions by purpose, action, and outcome.
var BotActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "economy",
	Subsystem: "bots",
	Name:      "actions_total",
	Help:      "Bot actions by purpose, action type, and outcome.",
}, []string{"purpose", "action", "outcome"})

// TickDuration observes bot tick wall time.
var TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "economy",
	Subsystem: "bots",
	Name:      "tick_duration_seconds",
	Help:      "Duration of one bot scheduler tick.",
	Buckets:   prometheus.DefBuckets,
})

// XpAwardsTotal counts XP awards by outcome.
var XpAwardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "economy",
	Subsystem: "ranks",
	Name:      "xp_awards_total",
	Help:      "XP awards by outcome.",
}, []string{"outcome"})
