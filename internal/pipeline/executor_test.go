package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/metrics"
	"github.com/alanyoungcy/aftermath/internal/service"
	"github.com/alanyoungcy/aftermath/internal/strategy"
)

var testParams = strategy.Params{
	AllocationPct:      10,
	MinReturnThreshold: 5,
	MaxPositionSize:    50,
	Limits:             service.RiskLimits{MaxDaily: 20, MaxConcurrent: 3},
}

var beatReport = domain.EarningsReport{ActualEPS: f64(2.0), EstimateEPS: f64(1.5)}

type harness struct {
	src     *fakeSource
	venue   *fakeVenue
	risk    *service.RiskService
	wallet  *service.WalletService
	journal *memJournal
	bus     *memBus
	metrics *metrics.Metrics
	exec    *Executor
}

func newHarness(t *testing.T, dryRun bool) *harness {
	t.Helper()
	h := &harness{
		src: &fakeSource{report: beatReport},
		venue: &fakeVenue{
			markets: map[string][]domain.Market{
				"*": {{ID: "m1", Question: "Will ACME beat?", TokenIDs: [2]string{"yes-tok", "no-tok"}}},
			},
			prices: map[domain.Side]float64{domain.SideYes: 0.60, domain.SideNo: 0.40},
		},
		risk:    service.NewRiskService(testParams.Limits, time.UTC, discard),
		wallet:  service.NewWalletService("0xabc", 10000),
		journal: &memJournal{},
		bus:     &memBus{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.exec = NewExecutor(
		service.NewEarningsService(h.src, 5*time.Minute, discard),
		service.NewMarketService(h.venue, testParams.MaxPositionSize, discard),
		h.risk,
		h.wallet,
		testParams,
		dryRun,
		Sinks{Journal: h.journal, Bus: h.bus, Metrics: h.metrics},
		discard,
	)
	return h
}

func trackedAt(id string, release time.Time) domain.TrackedEvent {
	return domain.NewTrackedEvent(domain.CalendarEntry{Ticker: id, ReleaseAt: release}, release.Add(-time.Hour))
}

func TestExecutorBeatBuysYes(t *testing.T) {
	h := newHarness(t, false)

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now().Add(-time.Minute)))

	assert.Equal(t, StageDone, res.Stage)
	assert.Equal(t, strategy.Accepted, res.Verdict)
	require.NotNil(t, res.Order)
	assert.True(t, res.Traded())
	assert.Equal(t, domain.SideYes, res.Order.Side)
	assert.Equal(t, "yes-tok", res.Order.TokenID)
	assert.Equal(t, "m1", res.Order.MarketID)
	assert.InDelta(t, 50.0, res.Order.Size, 1e-9)
	assert.InDelta(t, 66.6667, res.Order.ExpectedReturnPct, 1e-3)
	assert.Equal(t, "0xabc", res.Order.Wallet)

	assert.Equal(t, []string{"ACME earnings"}, h.venue.queries)
	assert.Len(t, h.risk.ActiveTrades(), 1)
	assert.Equal(t, 1, h.risk.Counters().DailyCount)
	assert.Len(t, h.journal.orders, 1)
	assert.Equal(t, []string{domain.EventTradeExecuted}, h.bus.kinds())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TradesSuccessful))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Decisions.WithLabelValues("accepted")))
}

func TestExecutorMissBuysNo(t *testing.T) {
	h := newHarness(t, false)
	h.src.report = domain.EarningsReport{ActualEPS: f64(1.0), EstimateEPS: f64(1.5)}

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	require.NotNil(t, res.Order)
	assert.Equal(t, domain.SideNo, res.Order.Side)
	assert.Equal(t, "no-tok", res.Order.TokenID)
	assert.InDelta(t, 0.40, res.Order.Price, 1e-9)
}

func TestExecutorUnknownOutcomeStopsBeforeMarkets(t *testing.T) {
	h := newHarness(t, false)
	h.src.report = domain.EarningsReport{}

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageOutcome, res.Stage)
	assert.Equal(t, strategy.RejectedOutcome, res.Verdict)
	assert.Empty(t, h.venue.queries)
	assert.Empty(t, h.venue.submitted)
}

func TestExecutorVerificationFailure(t *testing.T) {
	h := newHarness(t, false)
	h.src.err = domain.ErrUpstream

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageVerify, res.Stage)
	assert.Empty(t, res.Verdict)
	assert.Nil(t, res.Order)
}

func TestExecutorNoMarkets(t *testing.T) {
	h := newHarness(t, false)
	h.venue.markets = nil

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageMarkets, res.Stage)
	assert.Empty(t, h.venue.submitted)
}

func TestExecutorNoQuote(t *testing.T) {
	h := newHarness(t, false)
	h.venue.prices = nil

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageQuote, res.Stage)
}

func TestExecutorLowReturnRejected(t *testing.T) {
	h := newHarness(t, false)
	h.venue.prices = map[domain.Side]float64{domain.SideYes: 0.97}

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageDecision, res.Stage)
	assert.Equal(t, strategy.RejectedReturn, res.Verdict)
	assert.Empty(t, h.venue.submitted)
	assert.Equal(t, []string{domain.EventTradeRejected}, h.bus.kinds())
}

func TestExecutorRiskLimitRejected(t *testing.T) {
	h := newHarness(t, false)
	for range testParams.Limits.MaxConcurrent {
		r, err := h.risk.Reserve(context.Background())
		require.NoError(t, err)
		r.Commit(domain.TradeOrder{ID: "open"})
	}

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, strategy.RejectedRiskLimit, res.Verdict)
	assert.Empty(t, h.venue.submitted)
	assert.Equal(t, []string{domain.EventRiskLimit}, h.bus.kinds())
}

func TestExecutorDryRunSubmitsNothing(t *testing.T) {
	h := newHarness(t, true)

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, strategy.Accepted, res.Verdict)
	require.NotNil(t, res.Order)
	assert.True(t, res.Order.DryRun)
	assert.False(t, res.Traded())
	assert.Empty(t, h.venue.submitted)
	assert.Equal(t, domain.RiskCounters{Day: h.risk.Counters().Day}, h.risk.Counters())
	assert.Equal(t, []string{domain.EventTradeSimulated}, h.bus.kinds())
}

func TestExecutorSubmitFailureReleasesSlot(t *testing.T) {
	h := newHarness(t, false)
	h.venue.submitErr = errors.New("venue down")

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageSubmit, res.Stage)
	require.NotNil(t, res.Order)
	assert.Equal(t, domain.TradeStatusFailed, res.Order.Status)
	c := h.risk.Counters()
	assert.Zero(t, c.DailyCount)
	assert.Zero(t, c.OpenCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TradesFailed))
	assert.Equal(t, []string{domain.EventTradeFailed}, h.bus.kinds())
	require.Len(t, h.journal.orders, 1)
	assert.Equal(t, domain.TradeStatusFailed, h.journal.orders[0].Status)
}

func TestExecutorLockHeldSkips(t *testing.T) {
	h := newHarness(t, false)
	h.exec.sinks.Locks = heldLocks{}

	res := h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, StageLocked, res.Stage)
	assert.Empty(t, h.src.verified)
}

func TestExecutorRecordsLatency(t *testing.T) {
	h := newHarness(t, false)

	h.exec.Run(context.Background(), trackedAt("ACME", time.Now()))

	assert.Equal(t, 1, testutil.CollectAndCount(h.metrics.ExecutionSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(h.metrics.VerificationSeconds))
}

func TestExecutorReportsElapsed(t *testing.T) {
	h := newHarness(t, false)
	clock := time.Now()
	h.exec.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	res := h.exec.Run(context.Background(), trackedAt("ACME", clock))

	assert.Equal(t, StageDone, res.Stage)
	assert.Greater(t, res.Elapsed, time.Duration(0))

	early := h.exec.Run(context.Background(), trackedAt("NONE", clock))
	assert.Greater(t, early.Elapsed, time.Duration(0))
}
