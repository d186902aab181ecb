// Package risk guards new buys against adverse market-wide conditions
// and keeps the position book aligned with the venue.
package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// Monitor blocks new buys when the reference market (BTC by default)
// is dropping or swinging hard over the lookback interval. Open
// positions are never touched; the gate only pauses entries.
type Monitor struct {
	gateway  core.ExchangeGateway
	symbol   string
	interval string
	maxDrop  decimal.Decimal
	maxSwing decimal.Decimal
	enabled  bool
	logger   core.ILogger
}

type MonitorConfig struct {
	Enabled          bool
	ReferenceSymbol  string
	LookbackInterval string
	MaxDropPct       float64
	MaxSwingPct      float64
}

func NewMonitor(gateway core.ExchangeGateway, cfg MonitorConfig, logger core.ILogger) *Monitor {
	return &Monitor{
		gateway:  gateway,
		symbol:   cfg.ReferenceSymbol,
		interval: cfg.LookbackInterval,
		maxDrop:  decimal.NewFromFloat(cfg.MaxDropPct),
		maxSwing: decimal.NewFromFloat(cfg.MaxSwingPct),
		enabled:  cfg.Enabled,
		logger:   logger.WithField("component", "risk_monitor"),
	}
}

// BuysAllowed reports whether new entries may open this tick. When the
// reference data cannot be fetched the gate stays closed; trading into
// an unknown market is worse than missing a tick.
func (m *Monitor) BuysAllowed(ctx context.Context) bool {
	if !m.enabled {
		return true
	}

	change, err := m.referenceChange(ctx)
	if err != nil {
		m.logger.Warn("reference market data unavailable, buys paused", "error", err)
		return false
	}

	if change.LessThan(m.maxDrop.Neg()) {
		m.logger.Info("buys paused, reference market dropping",
			"symbol", m.symbol, "change_pct", change.StringFixed(2))
		return false
	}
	if change.Abs().GreaterThan(m.maxSwing) {
		m.logger.Info("buys paused, reference market swinging",
			"symbol", m.symbol, "change_pct", change.StringFixed(2))
		return false
	}
	return true
}

// referenceChange returns the percent move of the reference symbol over
// the last completed lookback candle.
func (m *Monitor) referenceChange(ctx context.Context) (decimal.Decimal, error) {
	candles, err := m.gateway.GetKlines(ctx, m.symbol, m.interval, 2)
	if err != nil {
		return decimal.Zero, err
	}
	if len(candles) < 2 {
		return decimal.Zero, nil
	}
	prev := candles[len(candles)-2].Close
	last := candles[len(candles)-1].Close
	if prev.IsZero() {
		return decimal.Zero, nil
	}
	return last.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)), nil
}
