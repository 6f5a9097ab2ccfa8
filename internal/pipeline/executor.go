package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/metrics"
	"github.com/alanyoungcy/aftermath/internal/service"
	"github.com/alanyoungcy/aftermath/internal/strategy"
	"github.com/google/uuid"
)

// Stage names the step a pipeline run ended at.
type Stage string

const (
	StageLocked   Stage = "locked"
	StageVerify   Stage = "verify"
	StageOutcome  Stage = "outcome"
	StageMarkets  Stage = "markets"
	StageQuote    Stage = "quote"
	StageDecision Stage = "decision"
	StageSubmit   Stage = "submit"
	StageDone     Stage = "done"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Sinks are the optional side channels a pipeline run reports to. Every
// field may be nil. Sink failures are logged and never alter a result.
type Sinks struct {
	Journal  domain.TradeJournal
	Audit    domain.AuditStore
	Bus      domain.EventBus
	Locks    domain.LockManager
	LockTTL  time.Duration
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// Result is the outcome of one pipeline run.
type Result struct {
	EventID string
	Stage   Stage
	Verdict strategy.Verdict // empty when a guard stopped the run before a decision
	Report  *domain.EarningsReport
	Order   *domain.TradeOrder
	Elapsed time.Duration
}

// Traded reports whether the run produced an acknowledged order.
func (r Result) Traded() bool {
	return r.Order != nil && r.Order.Status == domain.TradeStatusExecuted
}

// MarketQuery is the free-text search used to find the market for ticker.
func MarketQuery(ticker string) string {
	return strings.ToUpper(ticker) + " earnings"
}

// Executor runs the verify, decide and submit sequence for one triggered
// event.
type Executor struct {
	earnings *service.EarningsService
	markets  *service.MarketService
	risk     *service.RiskService
	wallet   *service.WalletService
	params   strategy.Params
	dryRun   bool
	sinks    Sinks
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor. In dry-run mode accepted decisions are
// logged and no order is submitted.
func NewExecutor(
	earnings *service.EarningsService,
	markets *service.MarketService,
	risk *service.RiskService,
	wallet *service.WalletService,
	params strategy.Params,
	dryRun bool,
	sinks Sinks,
	logger *slog.Logger,
) *Executor {
	if sinks.LockTTL <= 0 {
		sinks.LockTTL = time.Minute
	}
	return &Executor{
		earnings: earnings,
		markets:  markets,
		risk:     risk,
		wallet:   wallet,
		params:   params,
		dryRun:   dryRun,
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes the pipeline for ev. Guard failures end the run early with a
// Result describing where it stopped; they are not errors.
func (e *Executor) Run(ctx context.Context, ev domain.TrackedEvent) (res Result) {
	start := e.now()
	res = Result{EventID: ev.ID}
	defer func() {
		res.Elapsed = e.now().Sub(start)
		e.sinks.Metrics.ObserveExecution(res.Elapsed)
	}()

	log := e.logger.With(slog.String("ticker", ev.ID))
	log.InfoContext(ctx, "executor: pipeline triggered",
		slog.Time("release_at", ev.ReleaseAt),
		slog.Duration("since_release", -ev.UntilRelease(start)),
	)

	if e.sinks.Locks != nil {
		unlock, err := e.sinks.Locks.Acquire(ctx, "trigger:"+ev.ID, e.sinks.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				log.InfoContext(ctx, "executor: trigger held by another instance")
			} else {
				log.WarnContext(ctx, "executor: trigger lock failed", slog.String("error", err.Error()))
			}
			res.Stage = StageLocked
			return res
		}
		defer unlock()
	}

	verifyStart := e.now()
	report, ok := e.earnings.VerifyOutcome(ctx, ev.ID)
	e.sinks.Metrics.ObserveVerification(e.now().Sub(verifyStart))
	if !ok {
		log.WarnContext(ctx, "executor: verification unavailable")
		res.Stage = StageVerify
		return res
	}
	res.Report = &report
	if err := ev.Verify(report, e.now()); err != nil {
		log.DebugContext(ctx, "executor: event already verified", slog.String("error", err.Error()))
	}

	if !ev.Outcome.Known() {
		log.InfoContext(ctx, "executor: outcome unknown, not trading")
		res.Stage = StageOutcome
		res.Verdict = strategy.RejectedOutcome
		e.recordRejection(ctx, ev, res.Verdict, nil)
		return res
	}

	markets := e.markets.SearchMarkets(ctx, MarketQuery(ev.ID))
	if len(markets) == 0 {
		log.InfoContext(ctx, "executor: no market found")
		res.Stage = StageMarkets
		return res
	}

	side := domain.SideFor(ev.Outcome)
	market, quote, found := e.firstQuote(ctx, markets, side)
	if !found {
		log.InfoContext(ctx, "executor: no quote available",
			slog.Int("markets", len(markets)),
			slog.String("side", string(side)),
		)
		res.Stage = StageQuote
		return res
	}

	decision := strategy.Decide(strategy.Input{
		Outcome: ev.Outcome,
		Price:   quote.Price,
		Balance: e.wallet.Balance(),
		Risk:    e.risk.Counters(),
	}, e.params)
	res.Verdict = decision.Verdict

	if decision.Verdict != strategy.Accepted {
		res.Stage = StageDecision
		e.logDecision(ctx, log, decision, quote)
		e.recordRejection(ctx, ev, decision.Verdict, map[string]any{
			"market_id":  market.ID,
			"price":      quote.Price,
			"return_pct": decision.ReturnPct,
		})
		return res
	}

	reservation, err := e.risk.Reserve(ctx)
	if err != nil {
		res.Stage = StageDecision
		res.Verdict = strategy.RejectedRiskLimit
		e.logDecision(ctx, log, strategy.Decision{Verdict: res.Verdict, ReturnPct: decision.ReturnPct}, quote)
		e.recordRejection(ctx, ev, res.Verdict, map[string]any{"market_id": market.ID})
		return res
	}
	e.sinks.Metrics.RecordDecision(string(strategy.Accepted))

	tokenID := quote.TokenID
	if tokenID == "" {
		tokenID = market.TokenFor(side)
	}
	order := domain.TradeOrder{
		ID:                uuid.New().String(),
		MarketID:          market.ID,
		TokenID:           tokenID,
		EventID:           ev.ID,
		Side:              side,
		Price:             quote.Price,
		Size:              decision.Size,
		ExpectedReturnPct: decision.ReturnPct,
		Status:            domain.TradeStatusPending,
		Wallet:            e.wallet.Address(),
		DryRun:            e.dryRun,
		CreatedAt:         e.now().UTC(),
	}

	log.InfoContext(ctx, "executor: trade accepted",
		slog.String("outcome", string(ev.Outcome)),
		slog.String("market_id", market.ID),
		slog.String("side", string(side)),
		slog.Float64("price", quote.Price),
		slog.Float64("return_pct", decision.ReturnPct),
		slog.Float64("size", decision.Size),
		slog.Bool("dry_run", e.dryRun),
	)

	if e.dryRun {
		reservation.Release()
		res.Stage = StageDone
		res.Order = &order
		e.publish(ctx, domain.PipelineEvent{
			Kind:    domain.EventTradeSimulated,
			EventID: ev.ID,
			Verdict: string(strategy.Accepted),
			Order:   &order,
		})
		return res
	}

	submitted, ok := e.markets.SubmitOrder(ctx, order)
	e.sinks.Metrics.RecordTrade(ok)
	if ok {
		reservation.Commit(submitted)
	} else {
		reservation.Release()
		submitted.Status = domain.TradeStatusFailed
	}
	e.sinks.Metrics.SetActivePositions(len(e.risk.ActiveTrades()))
	res.Stage = StageSubmit
	if ok {
		res.Stage = StageDone
	}
	res.Order = &submitted

	e.recordOrder(ctx, ev, submitted, ok)
	return res
}

func (e *Executor) firstQuote(ctx context.Context, markets []domain.Market, side domain.Side) (domain.Market, domain.Quote, bool) {
	for _, m := range markets {
		if q, ok := e.markets.BestQuote(ctx, m, side); ok {
			return m, q, true
		}
	}
	return domain.Market{}, domain.Quote{}, false
}

func (e *Executor) logDecision(ctx context.Context, log *slog.Logger, d strategy.Decision, q domain.Quote) {
	attrs := []any{
		slog.String("verdict", string(d.Verdict)),
		slog.Float64("price", q.Price),
		slog.Float64("return_pct", d.ReturnPct),
	}
	if d.Verdict == strategy.RejectedRiskLimit {
		c := e.risk.Counters()
		l := e.risk.Limits()
		attrs = append(attrs,
			slog.Int("daily", c.DailyCount),
			slog.Int("max_daily", l.MaxDaily),
			slog.Int("open", c.OpenCount),
			slog.Int("max_concurrent", l.MaxConcurrent),
		)
		log.WarnContext(ctx, "executor: risk limit reached", attrs...)
		return
	}
	log.InfoContext(ctx, "executor: trade rejected", attrs...)
}

func (e *Executor) recordRejection(ctx context.Context, ev domain.TrackedEvent, verdict strategy.Verdict, detail map[string]any) {
	e.sinks.Metrics.RecordDecision(string(verdict))

	kind := domain.EventTradeRejected
	if verdict == strategy.RejectedRiskLimit {
		kind = domain.EventRiskLimit
		e.notify(ctx, kind, "Risk limit reached",
			fmt.Sprintf("%s skipped: trade limits reached", ev.ID))
	}
	e.publish(ctx, domain.PipelineEvent{
		Kind:    kind,
		EventID: ev.ID,
		Verdict: string(verdict),
		Detail:  detail,
	})
	e.audit(ctx, kind, map[string]any{
		"event_id": ev.ID,
		"verdict":  string(verdict),
		"outcome":  string(ev.Outcome),
	})
}

func (e *Executor) recordOrder(ctx context.Context, ev domain.TrackedEvent, order domain.TradeOrder, ok bool) {
	if e.sinks.Journal != nil {
		if err := e.sinks.Journal.Record(ctx, order); err != nil {
			e.logger.WarnContext(ctx, "executor: journal record failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	kind := domain.EventTradeExecuted
	title := "Trade executed"
	if !ok {
		kind = domain.EventTradeFailed
		title = "Trade failed"
	}
	e.publish(ctx, domain.PipelineEvent{
		Kind:    kind,
		EventID: ev.ID,
		Verdict: string(strategy.Accepted),
		Order:   &order,
	})
	e.audit(ctx, kind, map[string]any{
		"event_id": ev.ID,
		"order_id": order.ID,
		"market":   order.MarketID,
		"side":     string(order.Side),
		"price":    order.Price,
		"size":     order.Size,
	})
	e.notify(ctx, kind, title, fmt.Sprintf("%s %s: %s %.2f USD at %.4f (expected return %.2f%%)",
		ev.ID, ev.Outcome, strings.ToUpper(string(order.Side)), order.Size, order.Price, order.ExpectedReturnPct))
}

func (e *Executor) publish(ctx context.Context, pe domain.PipelineEvent) {
	pe.Timestamp = e.now().UTC()
	publishEvent(ctx, e.sinks.Bus, e.logger, pe)
}

func (e *Executor) audit(ctx context.Context, event string, detail map[string]any) {
	if e.sinks.Audit == nil {
		return
	}
	if err := e.sinks.Audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "executor: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.sinks.Notifier == nil {
		return
	}
	if err := e.sinks.Notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "executor: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
