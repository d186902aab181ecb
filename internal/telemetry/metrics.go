// Package telemetry exposes Prometheus instruments for the trading loop.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. One instance per
// process; the registry rejects duplicate registration.
type Metrics struct {
	TicksTotal         prometheus.Counter
	TickDuration       prometheus.Histogram
	OpenPositions      prometheus.Gauge
	CashBalance        prometheus.Gauge
	TradesClosedTotal  *prometheus.CounterVec
	RealizedPnLTotal   prometheus.Counter
	TaxAccruedTotal    prometheus.Counter
	BuysTotal          prometheus.Counter
	BuysBlockedTotal   *prometheus.CounterVec
	SellFailuresTotal  prometheus.Counter
	ActionsDrained     *prometheus.CounterVec
	ReconcileRunsTotal prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_ticks_total",
			Help: "Number of completed trading loop ticks.",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_tick_duration_seconds",
			Help:    "Wall time of one trading loop tick.",
			Buckets: prometheus.DefBuckets,
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_open_positions",
			Help: "Current number of open positions.",
		}),
		CashBalance: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_cash_balance",
			Help: "Free quote-asset balance.",
		}),
		TradesClosedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_trades_closed_total",
			Help: "Closed trades by action.",
		}, []string{"action"}),
		RealizedPnLTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_realized_pnl_total",
			Help: "Cumulative realized PnL in quote asset.",
		}),
		TaxAccruedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_tax_accrued_total",
			Help: "Cumulative estimated tax liability.",
		}),
		BuysTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_buys_total",
			Help: "Executed market buys.",
		}),
		BuysBlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_buys_blocked_total",
			Help: "Ticks where buying was blocked, by cause.",
		}, []string{"cause"}),
		SellFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_sell_failures_total",
			Help: "Market sells that failed and were retried later.",
		}),
		ActionsDrained: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_actions_drained_total",
			Help: "Operator actions executed, by type.",
		}, []string{"type"}),
		ReconcileRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_reconcile_runs_total",
			Help: "Completed reconciliation passes.",
		}),
	}
}
