package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name     string
		actual   *float64
		estimate *float64
		want     Outcome
	}{
		{"missing actual", nil, nil, OutcomeUnknown},
		{"positive without estimate", ptr(1.25), nil, OutcomeBeat},
		{"zero without estimate", ptr(0), nil, OutcomeMiss},
		{"negative without estimate", ptr(-0.4), nil, OutcomeMiss},
		{"above estimate", ptr(1.30), ptr(1.10), OutcomeBeat},
		{"below estimate", ptr(0.90), ptr(1.10), OutcomeMiss},
		{"within tolerance", ptr(1.005), ptr(1.00), OutcomeInline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOutcome(tt.actual, tt.estimate))
		})
	}
}

func TestOutcomeKnown(t *testing.T) {
	assert.True(t, OutcomeBeat.Known())
	assert.True(t, OutcomeInline.Known())
	assert.False(t, OutcomeUnknown.Known())
	assert.False(t, Outcome("").Known())
}

func TestTrackedEventWindow(t *testing.T) {
	now := time.Date(2026, 4, 20, 16, 5, 0, 0, time.UTC)
	window := 5 * time.Minute

	recent := TrackedEvent{ID: "AAPL", ReleaseAt: now.Add(-3 * time.Minute)}
	assert.True(t, recent.InWindow(now, window))
	assert.False(t, recent.Stale(now, window))

	missed := TrackedEvent{ID: "MSFT", ReleaseAt: now.Add(-10 * time.Minute)}
	assert.False(t, missed.InWindow(now, window))
	assert.True(t, missed.Stale(now, window))

	upcoming := TrackedEvent{ID: "NVDA", ReleaseAt: now.Add(time.Minute)}
	assert.False(t, upcoming.InWindow(now, window))
	assert.False(t, upcoming.Stale(now, window))

	edge := TrackedEvent{ID: "TSLA", ReleaseAt: now.Add(-window)}
	assert.True(t, edge.InWindow(now, window))
	assert.True(t, TrackedEvent{ReleaseAt: now}.InWindow(now, window))
}

func TestTrackedEventVerifyOnce(t *testing.T) {
	now := time.Now()
	ev := NewTrackedEvent(CalendarEntry{Ticker: "AAPL"}, now)
	assert.Equal(t, "AAPL", ev.CompanyName)
	assert.Equal(t, OutcomeUnknown, ev.Outcome)

	require.NoError(t, ev.Verify(EarningsReport{Ticker: "AAPL", ActualEPS: ptr(1.5)}, now))
	assert.Equal(t, OutcomeBeat, ev.Outcome)
	require.NotNil(t, ev.VerifiedAt)

	err := ev.Verify(EarningsReport{Ticker: "AAPL", ActualEPS: ptr(-1)}, now.Add(time.Second))
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Equal(t, OutcomeBeat, ev.Outcome)
	assert.Equal(t, now, *ev.VerifiedAt)
}

func TestSideAndToken(t *testing.T) {
	assert.Equal(t, SideYes, SideFor(OutcomeBeat))
	assert.Equal(t, SideNo, SideFor(OutcomeMiss))

	m := Market{ID: "m1", TokenIDs: [2]string{"tok-yes", "tok-no"}}
	assert.Equal(t, "tok-yes", m.TokenFor(SideYes))
	assert.Equal(t, "tok-no", m.TokenFor(SideNo))
	assert.Equal(t, "m2", Market{ID: "m2"}.TokenFor(SideNo))
}

func TestReturnPercent(t *testing.T) {
	assert.Equal(t, 0.0, ReturnPercent(0))
	assert.InDelta(t, 66.67, ReturnPercent(0.60), 1)
	assert.InDelta(t, 100, ReturnPercent(0.5), 1e-9)
	assert.InDelta(t, 0, ReturnPercent(1), 1e-9)

	prev := ReturnPercent(0.01)
	for p := 0.02; p < 1; p += 0.01 {
		cur := ReturnPercent(p)
		assert.Less(t, cur, prev, "return must strictly decrease at p=%.2f", p)
		assert.InDelta(t, (1-p)/p*100, cur, 1e-9)
		prev = cur
	}
}
