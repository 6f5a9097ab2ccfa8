package domain

import "time"

// TradeStatus tracks the order lifecycle.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusExecuted  TradeStatus = "executed"
	TradeStatusFailed    TradeStatus = "failed"
	TradeStatusCancelled TradeStatus = "cancelled" // reserved
)

// TradeOrder is a sized order produced by an accepted decision.
type TradeOrder struct {
	ID                string      `json:"id"`
	MarketID          string      `json:"market_id"`
	TokenID           string      `json:"token_id"`
	EventID           string      `json:"event_id"`
	Side              Side        `json:"side"`
	Price             float64     `json:"price"`
	Size              float64     `json:"size"` // USD notional
	ExpectedReturnPct float64     `json:"expected_return_pct"`
	Status            TradeStatus `json:"status"`
	Wallet            string      `json:"wallet,omitempty"`
	Signature         string      `json:"signature,omitempty"`
	DryRun            bool        `json:"dry_run"`
	CreatedAt         time.Time   `json:"created_at"`
	ExecutedAt        *time.Time  `json:"executed_at,omitempty"`
	ClosedAt          *time.Time  `json:"closed_at,omitempty"`
	PnL               *float64    `json:"pnl,omitempty"`
}

// Shares returns the number of outcome shares bought by the order.
func (o TradeOrder) Shares() float64 {
	if o.Price <= 0 {
		return 0
	}
	return o.Size / o.Price
}

// RiskCounters is a point-in-time view of the limiter state.
type RiskCounters struct {
	Day        string `json:"day"` // YYYY-MM-DD in the reset timezone
	DailyCount int    `json:"daily_count"`
	OpenCount  int    `json:"open_count"`
}
