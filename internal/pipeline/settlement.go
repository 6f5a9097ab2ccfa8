package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/service"
	"github.com/alanyoungcy/aftermath/internal/strategy"
)

// Resolver reports whether a market has settled.
type Resolver interface {
	GetMarketResolution(ctx context.Context, marketID string) (domain.MarketResolution, error)
}

// SettlementTracker follows open trades to market resolution. A settled
// trade frees its concurrency slot, realizes PnL into the wallet and the
// stats, and is marked closed in the journal.
type SettlementTracker struct {
	resolver Resolver
	risk     *service.RiskService
	wallet   *service.WalletService
	stats    *strategy.Stats
	sinks    Sinks
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettlementTracker creates a SettlementTracker. interval defaults to two
// minutes.
func NewSettlementTracker(
	resolver Resolver,
	risk *service.RiskService,
	wallet *service.WalletService,
	stats *strategy.Stats,
	sinks Sinks,
	interval time.Duration,
	logger *slog.Logger,
) *SettlementTracker {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &SettlementTracker{
		resolver: resolver,
		risk:     risk,
		wallet:   wallet,
		stats:    stats,
		sinks:    sinks,
		interval: interval,
		logger:   logger.With(slog.String("component", "settlement_tracker")),
		now:      time.Now,
	}
}

// Run polls open trades until ctx is cancelled.
func (t *SettlementTracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Check(ctx)
		}
	}
}

// Check settles every open trade whose market has resolved and returns how
// many were closed.
func (t *SettlementTracker) Check(ctx context.Context) int {
	settled := 0
	for _, order := range t.risk.ActiveTrades() {
		res, err := t.resolver.GetMarketResolution(ctx, order.MarketID)
		if err != nil {
			t.logger.DebugContext(ctx, "resolution fetch failed",
				slog.String("market_id", order.MarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !res.Closed || res.WinningToken == "" {
			continue
		}
		if t.settle(ctx, order, res.WinningToken == order.TokenID) {
			settled++
		}
	}
	return settled
}

func (t *SettlementTracker) settle(ctx context.Context, order domain.TradeOrder, won bool) bool {
	if _, err := t.risk.CloseTrade(order.ID); err != nil {
		return false
	}

	pnl := strategy.SettlementPnL(order.Size, order.Price, won)
	t.stats.Record(pnl)
	balance := t.wallet.ApplyPnL(pnl)
	snap := t.stats.Snapshot()
	now := t.now().UTC()

	t.sinks.Metrics.SetBalance(balance)
	t.sinks.Metrics.SetPnL(snap.TotalPnL)
	t.sinks.Metrics.SetActivePositions(len(t.risk.ActiveTrades()))

	t.logger.InfoContext(ctx, "trade settled",
		slog.String("order_id", order.ID),
		slog.String("ticker", order.EventID),
		slog.String("market_id", order.MarketID),
		slog.Bool("won", won),
		slog.Float64("pnl", pnl),
		slog.Float64("balance", balance),
	)

	if t.sinks.Journal != nil {
		if err := t.sinks.Journal.MarkClosed(ctx, order.ID, pnl, now); err != nil {
			t.logger.WarnContext(ctx, "journal close failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	order.ClosedAt = &now
	order.PnL = &pnl
	publishEvent(ctx, t.sinks.Bus, t.logger, domain.PipelineEvent{
		Kind:      domain.EventTradeSettled,
		EventID:   order.EventID,
		Order:     &order,
		Detail:    map[string]any{"won": won, "balance": balance},
		Timestamp: now,
	})

	if t.sinks.Notifier != nil {
		result := "lost"
		if won {
			result = "won"
		}
		msg := fmt.Sprintf("%s %s position %s: PnL %.2f USD, balance %.2f USD",
			order.EventID, strings.ToUpper(string(order.Side)), result, pnl, balance)
		if err := t.sinks.Notifier.Notify(ctx, domain.EventTradeSettled, "Trade settled", msg); err != nil {
			t.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
	return true
}
