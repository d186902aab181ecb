package rank

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"gopkg.in/yaml.v3"
)

// SymbolStat is slow-moving per-asset metadata maintained outside the
// bot (market cap, historical volatility).
type SymbolStat struct {
	MarketCap  float64 `yaml:"market_cap"`
	Volatility float64 `yaml:"volatility"`
}

// SymbolStats maps base asset (not full symbol) to its metadata.
type SymbolStats struct {
	Symbols map[string]SymbolStat `yaml:"symbols"`
}

// LoadSymbolStats reads the stats file. An empty path yields an empty
// set, which disables the market-cap and volatility filters.
func LoadSymbolStats(path string) (*SymbolStats, error) {
	if path == "" {
		return &SymbolStats{Symbols: map[string]SymbolStat{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol stats: %w", err)
	}
	var stats SymbolStats
	if err := yaml.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse symbol stats: %w", err)
	}
	if stats.Symbols == nil {
		stats.Symbols = map[string]SymbolStat{}
	}
	return &stats, nil
}

// Lookup returns the stat for a base asset and whether one exists.
func (s *SymbolStats) Lookup(baseAsset string) (SymbolStat, bool) {
	stat, ok := s.Symbols[baseAsset]
	return stat, ok
}

// MarketCapOf returns the market cap as a decimal, zero when unknown.
func (s *SymbolStats) MarketCapOf(baseAsset string) decimal.Decimal {
	if stat, ok := s.Symbols[baseAsset]; ok {
		return decimal.NewFromFloat(stat.MarketCap)
	}
	return decimal.Zero
}
