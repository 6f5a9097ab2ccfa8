package domain

import "time"

// Side is the direction of a bet relative to an event's outcome.
type Side string

const (
	SideYes Side = "yes" // for the outcome
	SideNo  Side = "no"  // against the outcome
)

// SideFor returns the side implied by a verified outcome: a beat buys Yes,
// anything else buys No.
func SideFor(o Outcome) Side {
	if o == OutcomeBeat {
		return SideYes
	}
	return SideNo
}

// Market is a binary prediction-market contract tied to an event. It is a
// read-only snapshot valid for a single pipeline run.
type Market struct {
	ID        string
	Question  string
	EventID   string
	Slug      string
	Outcomes  [2]string // e.g. ["Yes","No"]
	TokenIDs  [2]string // outcome token IDs, same order as Outcomes
	Volume    float64
	Liquidity float64
	Active    bool
	ClosesAt  *time.Time
}

// TokenFor returns the outcome token for side, falling back to the market ID
// when the venue did not report token IDs.
func (m Market) TokenFor(side Side) string {
	idx := 0
	if side == SideNo {
		idx = 1
	}
	if m.TokenIDs[idx] != "" {
		return m.TokenIDs[idx]
	}
	return m.ID
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// Quote is the top-of-book price for a side, fetched fresh per decision.
type Quote struct {
	MarketID  string
	TokenID   string
	Side      Side
	Price     float64 // in (0,1)
	Size      float64 // liquidity at Price
	Timestamp time.Time
}

// OrderBook is a snapshot of one outcome token's book.
type OrderBook struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
}

// ReturnPercent is the expected return of buying a unit-payout share at
// price: (1-price)/price*100. A price of zero yields zero.
func ReturnPercent(price float64) float64 {
	if price == 0 {
		return 0
	}
	return (1 - price) / price * 100
}

// MarketResolution holds the settlement state of a market.
type MarketResolution struct {
	Closed       bool
	WinningToken string // empty until resolved
}
