package domain

import (
	"math"
	"time"
)

// Outcome classifies a reported earnings result relative to expectation.
type Outcome string

const (
	OutcomeBeat    Outcome = "beat"
	OutcomeMiss    Outcome = "miss"
	OutcomeInline  Outcome = "inline"
	OutcomeUnknown Outcome = "unknown"
)

// Known reports whether o is a tradable classification. The zero value is
// treated as unknown.
func (o Outcome) Known() bool {
	switch o {
	case OutcomeBeat, OutcomeMiss, OutcomeInline:
		return true
	}
	return false
}

// InlineTolerance is the relative distance from the estimate within which a
// result counts as inline.
const InlineTolerance = 0.01

// ClassifyOutcome derives an Outcome from a realized EPS and an optional
// consensus estimate. Without an estimate the sign of the realized value is
// used as a stand-in: positive is a beat, anything else a miss. A missing
// realized value is unknown.
func ClassifyOutcome(actual, estimate *float64) Outcome {
	if actual == nil || math.IsNaN(*actual) {
		return OutcomeUnknown
	}
	if estimate == nil {
		if *actual > 0 {
			return OutcomeBeat
		}
		return OutcomeMiss
	}

	diff := *actual - *estimate
	tol := math.Abs(*estimate) * InlineTolerance
	switch {
	case math.Abs(diff) <= tol:
		return OutcomeInline
	case diff > 0:
		return OutcomeBeat
	default:
		return OutcomeMiss
	}
}

// CalendarEntry is a raw upcoming-release descriptor from the data provider.
type CalendarEntry struct {
	Ticker      string
	CompanyName string
	ReleaseAt   time.Time
}

// EarningsReport is the verified financial record for a single ticker.
type EarningsReport struct {
	Ticker       string
	CompanyName  string
	FiscalPeriod string
	FiscalYear   string
	FilingDate   *time.Time
	ActualEPS    *float64
	EstimateEPS  *float64
	FetchedAt    time.Time
}

// Outcome classifies the report.
func (r EarningsReport) Outcome() Outcome {
	return ClassifyOutcome(r.ActualEPS, r.EstimateEPS)
}

// TrackedEvent is an earnings release being watched for its verification
// window. Outcome and VerifiedAt are written once by Verify.
type TrackedEvent struct {
	ID          string     `json:"id"`
	CompanyName string     `json:"company_name"`
	ReleaseAt   time.Time  `json:"release_at"`
	Outcome     Outcome    `json:"outcome"`
	ActualEPS   *float64   `json:"actual_eps,omitempty"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	TrackedAt   time.Time  `json:"tracked_at"`
}

// NewTrackedEvent creates an unverified event from a calendar entry.
func NewTrackedEvent(entry CalendarEntry, now time.Time) TrackedEvent {
	name := entry.CompanyName
	if name == "" {
		name = entry.Ticker
	}
	return TrackedEvent{
		ID:          entry.Ticker,
		CompanyName: name,
		ReleaseAt:   entry.ReleaseAt,
		Outcome:     OutcomeUnknown,
		TrackedAt:   now,
	}
}

// Verify records the realized outcome from report. It fails with
// ErrAlreadyVerified on a second call.
func (e *TrackedEvent) Verify(report EarningsReport, at time.Time) error {
	if e.VerifiedAt != nil {
		return ErrAlreadyVerified
	}
	e.Outcome = report.Outcome()
	if report.ActualEPS != nil {
		eps := *report.ActualEPS
		e.ActualEPS = &eps
	}
	e.VerifiedAt = &at
	return nil
}

// UntilRelease returns release time minus now. Negative once released.
func (e TrackedEvent) UntilRelease(now time.Time) time.Duration {
	return e.ReleaseAt.Sub(now)
}

// InWindow reports whether the release happened within the last window,
// i.e. UntilRelease lies in [-window, 0].
func (e TrackedEvent) InWindow(now time.Time, window time.Duration) bool {
	d := e.UntilRelease(now)
	return d <= 0 && d >= -window
}

// Stale reports whether the window has fully elapsed without a trigger.
func (e TrackedEvent) Stale(now time.Time, window time.Duration) bool {
	return e.UntilRelease(now) < -window
}
