// Package strategy holds the earnings trade decision rules.
package strategy

import (
	"math"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/service"
)

// Verdict is the terminal state of a trade decision.
type Verdict string

const (
	Accepted          Verdict = "accepted"
	RejectedOutcome   Verdict = "rejected_outcome"
	RejectedPrice     Verdict = "rejected_price"
	RejectedReturn    Verdict = "rejected_return"
	RejectedRiskLimit Verdict = "rejected_risk_limit"
)

// Params are the sizing and profitability settings.
type Params struct {
	AllocationPct      float64
	MinReturnThreshold float64
	MaxPositionSize    float64
	Limits             service.RiskLimits
}

// Input is everything a decision depends on.
type Input struct {
	Outcome domain.Outcome
	Price   float64
	Balance float64
	Risk    domain.RiskCounters
}

// Decision is the result of Decide. Size and ReturnPct are set only when
// the verdict is Accepted; ReturnPct is also set for RejectedReturn.
type Decision struct {
	Verdict   Verdict
	ReturnPct float64
	Size      float64
}

// Decide applies the checks in order and stops at the first failure:
// outcome known, price in (0,1), return above threshold, risk limits. It has
// no side effects, so identical inputs always give identical decisions.
func Decide(in Input, p Params) Decision {
	if !in.Outcome.Known() {
		return Decision{Verdict: RejectedOutcome}
	}
	if math.IsNaN(in.Price) || in.Price <= 0 || in.Price >= 1 {
		return Decision{Verdict: RejectedPrice}
	}

	ret := domain.ReturnPercent(in.Price)
	if ret < p.MinReturnThreshold {
		return Decision{Verdict: RejectedReturn, ReturnPct: ret}
	}
	if !service.MayTrade(in.Risk.DailyCount, in.Risk.OpenCount, p.Limits) {
		return Decision{Verdict: RejectedRiskLimit, ReturnPct: ret}
	}

	return Decision{
		Verdict:   Accepted,
		ReturnPct: ret,
		Size:      PositionSize(in.Balance, p.AllocationPct, p.MaxPositionSize),
	}
}

// PositionSize is min(balance*allocationPct/100, maxPosition).
func PositionSize(balance, allocationPct, maxPosition float64) float64 {
	return math.Min(balance*allocationPct/100, maxPosition)
}
