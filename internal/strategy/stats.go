package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Stats accumulates realized trade results.
type Stats struct {
	mu     sync.Mutex
	wins   int
	losses int
	pnl    decimal.Decimal
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
}

// NewStats returns empty Stats.
func NewStats() *Stats {
	return &Stats{}
}

// Record adds a settled trade. A non-positive pnl counts as a loss.
func (s *Stats) Record(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pnl = s.pnl.Add(decimal.NewFromFloat(pnl))
	if pnl > 0 {
		s.wins++
	} else {
		s.losses++
	}
}

// Snapshot returns the current totals.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.wins + s.losses
	snap := StatsSnapshot{
		TotalTrades: total,
		Wins:        s.wins,
		Losses:      s.losses,
		TotalPnL:    s.pnl.InexactFloat64(),
	}
	if total > 0 {
		snap.WinRate = float64(s.wins) / float64(total) * 100
	}
	return snap
}

// SettlementPnL is the realized profit of a bought position at resolution:
// shares pay 1 each when won, nothing otherwise.
func SettlementPnL(size, price float64, won bool) float64 {
	cost := decimal.NewFromFloat(size)
	if !won {
		return cost.Neg().InexactFloat64()
	}
	if price <= 0 {
		return 0
	}
	shares := cost.DivRound(decimal.NewFromFloat(price), 8)
	return shares.Sub(cost).InexactFloat64()
}
