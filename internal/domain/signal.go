package domain

import "time"

// Pipeline event kinds published on the event bus.
const (
	EventTracked        = "event_tracked"
	EventTradeExecuted  = "trade_executed"
	EventTradeFailed    = "trade_failed"
	EventTradeRejected  = "trade_rejected"
	EventRiskLimit      = "risk_limit"
	EventTradeSimulated = "trade_simulated"
	EventTradeSettled   = "trade_settled"

	// EventError is only used for notifications about loop failures.
	EventError = "error"
)

// PipelineEvent is the payload broadcast for every notable pipeline step.
type PipelineEvent struct {
	Kind      string         `json:"kind"`
	EventID   string         `json:"event_id"`
	Verdict   string         `json:"verdict,omitempty"`
	Order     *TradeOrder    `json:"order,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PipelineChannel is the bus channel carrying PipelineEvent JSON.
const PipelineChannel = "aftermath:pipeline"
