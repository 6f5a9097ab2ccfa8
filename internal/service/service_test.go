package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

var discard = slog.New(slog.DiscardHandler)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeSource struct {
	entries []domain.CalendarEntry
	report  domain.EarningsReport
	err     error
}

func (f *fakeSource) GetCalendar(context.Context) ([]domain.CalendarEntry, error) {
	return f.entries, f.err
}

func (f *fakeSource) GetLatestReport(context.Context, string) (domain.EarningsReport, error) {
	return f.report, f.err
}

type fakeVenue struct {
	markets   []domain.Market
	quote     domain.Quote
	err       error
	submitted []domain.TradeOrder
}

func (f *fakeVenue) SearchMarkets(context.Context, string) ([]domain.Market, error) {
	return f.markets, f.err
}

func (f *fakeVenue) BestAsk(context.Context, domain.Market, domain.Side) (domain.Quote, error) {
	return f.quote, f.err
}

func (f *fakeVenue) SubmitOrder(_ context.Context, o domain.TradeOrder) (domain.TradeOrder, error) {
	if f.err != nil {
		return o, f.err
	}
	f.submitted = append(f.submitted, o)
	o.Status = domain.TradeStatusExecuted
	return o, nil
}

// ---------------------------------------------------------------------------
// EarningsService
// ---------------------------------------------------------------------------

func TestFetchCalendarFiltersHorizon(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{entries: []domain.CalendarEntry{
		{Ticker: "OLD", ReleaseAt: now.Add(-time.Hour)},
		{Ticker: "JUST", ReleaseAt: now.Add(-2 * time.Minute)},
		{Ticker: "SOON", ReleaseAt: now.Add(48 * time.Hour)},
		{Ticker: "FAR", ReleaseAt: now.AddDate(0, 0, 8)},
	}}
	svc := NewEarningsService(src, 5*time.Minute, discard)
	svc.now = func() time.Time { return now }

	got := svc.FetchCalendar(context.Background(), 7)
	require.Len(t, got, 2)
	assert.Equal(t, "JUST", got[0].Ticker)
	assert.Equal(t, "SOON", got[1].Ticker)
}

func TestEarningsServiceFailSoft(t *testing.T) {
	svc := NewEarningsService(&fakeSource{err: domain.ErrUpstream}, 0, discard)

	assert.Empty(t, svc.FetchCalendar(context.Background(), 7))

	_, ok := svc.VerifyOutcome(context.Background(), "AAPL")
	assert.False(t, ok)
}

func TestVerifyOutcome(t *testing.T) {
	eps := 2.1
	svc := NewEarningsService(&fakeSource{report: domain.EarningsReport{Ticker: "AAPL", ActualEPS: &eps}}, 0, discard)

	r, ok := svc.VerifyOutcome(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeBeat, r.Outcome())
}

// ---------------------------------------------------------------------------
// MarketService
// ---------------------------------------------------------------------------

func TestSubmitOrderRejectsOversize(t *testing.T) {
	venue := &fakeVenue{}
	svc := NewMarketService(venue, 50, discard)

	order := domain.TradeOrder{ID: "o1", Price: 0.5, Size: 50.01, Status: domain.TradeStatusPending}
	got, ok := svc.SubmitOrder(context.Background(), order)
	assert.False(t, ok)
	assert.Equal(t, order, got)
	assert.Empty(t, venue.submitted, "oversize order must not reach the venue")
}

func TestSubmitOrderAtCap(t *testing.T) {
	venue := &fakeVenue{}
	svc := NewMarketService(venue, 50, discard)

	got, ok := svc.SubmitOrder(context.Background(), domain.TradeOrder{ID: "o1", Price: 0.5, Size: 50})
	assert.True(t, ok)
	assert.Equal(t, domain.TradeStatusExecuted, got.Status)
	assert.Len(t, venue.submitted, 1)
}

func TestSubmitOrderVenueFailure(t *testing.T) {
	svc := NewMarketService(&fakeVenue{err: errors.New("boom")}, 50, discard)

	got, ok := svc.SubmitOrder(context.Background(), domain.TradeOrder{ID: "o1", Price: 0.5, Size: 10})
	assert.False(t, ok)
	assert.Equal(t, domain.TradeStatusFailed, got.Status)
}

func TestMarketServiceFailSoft(t *testing.T) {
	svc := NewMarketService(&fakeVenue{err: domain.ErrUpstream}, 50, discard)

	assert.Empty(t, svc.SearchMarkets(context.Background(), "AAPL earnings"))
	_, ok := svc.BestQuote(context.Background(), domain.Market{ID: "m1"}, domain.SideYes)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// RiskService
// ---------------------------------------------------------------------------

func TestMayTrade(t *testing.T) {
	limits := RiskLimits{MaxDaily: 20, MaxConcurrent: 3}
	tests := []struct {
		daily, open int
		want        bool
	}{
		{0, 0, true},
		{19, 2, true},
		{20, 0, false}, // daily cap regardless of open count
		{20, 2, false},
		{5, 3, false},
		{25, 9, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MayTrade(tt.daily, tt.open, limits), "daily=%d open=%d", tt.daily, tt.open)
	}
}

func TestMayTradeMonotonic(t *testing.T) {
	limits := RiskLimits{MaxDaily: 4, MaxConcurrent: 3}
	for d := 0; d <= 6; d++ {
		for c := 0; c <= 5; c++ {
			if MayTrade(d, c, limits) {
				continue
			}
			for d2 := d; d2 <= 6; d2++ {
				for c2 := c; c2 <= 5; c2++ {
					assert.False(t, MayTrade(d2, c2, limits), "(%d,%d) false but (%d,%d) true", d, c, d2, c2)
				}
			}
		}
	}
}

func TestReserveCommitRelease(t *testing.T) {
	svc := NewRiskService(RiskLimits{MaxDaily: 2, MaxConcurrent: 2}, time.UTC, discard)
	ctx := context.Background()

	r1, err := svc.Reserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.Counters().OpenCount)

	r1.Release()
	r1.Release() // idempotent
	c := svc.Counters()
	assert.Equal(t, 0, c.DailyCount, "failed submission must not count")
	assert.Equal(t, 0, c.OpenCount)

	r2, err := svc.Reserve(ctx)
	require.NoError(t, err)
	r2.Commit(domain.TradeOrder{ID: "a"})
	r3, err := svc.Reserve(ctx)
	require.NoError(t, err)
	r3.Commit(domain.TradeOrder{ID: "b"})

	_, err = svc.Reserve(ctx)
	assert.ErrorIs(t, err, domain.ErrRiskLimit)
	assert.Len(t, svc.ActiveTrades(), 2)

	_, err = svc.CloseTrade("a")
	require.NoError(t, err)
	_, err = svc.CloseTrade("a")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Reserve(ctx)
	assert.ErrorIs(t, err, domain.ErrRiskLimit, "daily cap still binds after closing")
}

func TestDailyResetAtMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	now := time.Date(2026, 10, 16, 23, 59, 0, 0, loc)
	svc := NewRiskService(RiskLimits{MaxDaily: 1, MaxConcurrent: 10}, loc, discard)
	svc.now = func() time.Time { return now }

	r, err := svc.Reserve(context.Background())
	require.NoError(t, err)
	r.Commit(domain.TradeOrder{ID: "a"})

	_, err = svc.Reserve(context.Background())
	assert.ErrorIs(t, err, domain.ErrRiskLimit)

	now = now.Add(2 * time.Minute)
	c := svc.Counters()
	assert.Equal(t, "2026-10-17", c.Day)
	assert.Equal(t, 0, c.DailyCount)
	assert.Equal(t, 1, c.OpenCount, "open trades survive the reset")

	_, err = svc.Reserve(context.Background())
	assert.NoError(t, err)
}

func TestReserveConcurrentNeverOvershoots(t *testing.T) {
	svc := NewRiskService(RiskLimits{MaxDaily: 20, MaxConcurrent: 3}, time.UTC, discard)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Reserve(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			granted++
			mu.Unlock()
			r.Commit(domain.TradeOrder{ID: time.Now().String()})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	assert.Len(t, svc.ActiveTrades(), 3)
}

// ---------------------------------------------------------------------------
// WalletService
// ---------------------------------------------------------------------------

func TestWalletApplyPnL(t *testing.T) {
	w := NewWalletService("0xabc", 100)
	assert.Equal(t, 100.0, w.Balance())
	assert.InDelta(t, 110.1, w.ApplyPnL(10.1), 1e-9)
	assert.InDelta(t, 105.1, w.ApplyPnL(-5), 1e-9)
	assert.Equal(t, "0xabc", w.Address())
}
