package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/aftermath/internal/pipeline"
	"github.com/alanyoungcy/aftermath/internal/server"
	"github.com/alanyoungcy/aftermath/internal/server/handler"
	"github.com/alanyoungcy/aftermath/internal/server/ws"
	"github.com/alanyoungcy/aftermath/internal/service"
	"github.com/alanyoungcy/aftermath/internal/strategy"
)

// core holds the in-memory components shared by every mode.
type core struct {
	earnings *service.EarningsService
	markets  *service.MarketService
	risk     *service.RiskService
	wallet   *service.WalletService
	stats    *strategy.Stats
	store    *pipeline.EventStore
	scanner  *pipeline.CalendarScanner
	executor *pipeline.Executor
	sinks    pipeline.Sinks
}

func (a *App) buildCore(deps *Dependencies) (*core, error) {
	cfg := a.cfg

	loc, err := time.LoadLocation(cfg.Risk.DayTimezone)
	if err != nil {
		return nil, fmt.Errorf("app: day timezone: %w", err)
	}
	limits := service.RiskLimits{
		MaxDaily:      cfg.Risk.MaxDaily,
		MaxConcurrent: cfg.Risk.MaxConcurrent,
	}

	address := cfg.Wallet.Address
	if deps.Signer != nil {
		address = deps.Signer.Address().Hex()
	}

	sinks := pipeline.Sinks{
		Journal: deps.Journal,
		Audit:   deps.Audit,
		Bus:     deps.Bus,
		Locks:   deps.Locks,
		LockTTL: cfg.Redis.LockTTL.Duration,
		Metrics: deps.Metrics,
	}
	if deps.Notifier.Enabled() {
		sinks.Notifier = deps.Notifier
	}

	c := &core{
		earnings: service.NewEarningsService(deps.Polygon, cfg.Scheduler.Window(), a.logger),
		markets:  service.NewMarketService(deps.Clob, cfg.Risk.MaxPositionSize, a.logger),
		risk:     service.NewRiskService(limits, loc, a.logger),
		wallet:   service.NewWalletService(address, cfg.Wallet.InitialBalance),
		stats:    strategy.NewStats(),
		store:    pipeline.NewEventStore(),
		sinks:    sinks,
	}
	c.scanner = pipeline.NewCalendarScanner(c.earnings, c.markets, c.store,
		cfg.Scheduler.HorizonDays, deps.Bus, a.logger)
	c.executor = pipeline.NewExecutor(c.earnings, c.markets, c.risk, c.wallet,
		strategy.Params{
			AllocationPct:      cfg.Trading.AllocationPct,
			MinReturnThreshold: cfg.Trading.MinReturnThreshold,
			MaxPositionSize:    cfg.Risk.MaxPositionSize,
			Limits:             limits,
		},
		cfg.DryRun(), sinks, a.logger)

	deps.Metrics.SetBalance(c.wallet.Balance())
	return c, nil
}

// LoopMode runs the scheduler and its companions until ctx is cancelled.
// In monitor mode the same loop runs but no order is ever submitted.
func (a *App) LoopMode(ctx context.Context, deps *Dependencies) error {
	c, err := a.buildCore(deps)
	if err != nil {
		return err
	}
	started := time.Now().UTC()

	if deps.Audit != nil {
		if err := deps.Audit.Log(ctx, "bot_started", map[string]any{
			"mode":    a.cfg.Mode,
			"dry_run": a.cfg.DryRun(),
			"wallet":  c.wallet.Address(),
		}); err != nil {
			a.logger.WarnContext(ctx, "app: audit log failed", slog.String("error", err.Error()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	sched := pipeline.NewScheduler(c.store, c.scanner, c.executor, pipeline.SchedulerConfig{
		Interval:      a.cfg.Scheduler.ScanInterval.Duration,
		Window:        a.cfg.Scheduler.Window(),
		CalendarEvery: a.cfg.Scheduler.CalendarEvery,
		ErrorBackoff:  a.cfg.Scheduler.ErrorBackoff.Duration,
		MaxParallel:   a.cfg.Scheduler.MaxParallel,
	}, deps.Metrics, a.logger)
	if c.sinks.Notifier != nil {
		sched.WithNotifier(c.sinks.Notifier)
	}
	g.Go(func() error { return sched.Run(gctx) })

	if !a.cfg.DryRun() {
		tracker := pipeline.NewSettlementTracker(deps.Clob, c.risk, c.wallet, c.stats, c.sinks,
			a.cfg.Scheduler.SettleInterval.Duration, a.logger)
		g.Go(func() error { return tracker.Run(gctx) })
	}

	if a.cfg.Metrics.Enabled {
		g.Go(func() error { return deps.Metrics.Serve(gctx, a.cfg.Metrics.Port, a.logger) })
	}

	if deps.BlobWriter != nil && deps.Journal != nil {
		archiver := pipeline.NewJournalArchiver(deps.Journal, deps.BlobWriter, deps.BlobLister, a.logger)
		g.Go(func() error {
			if err := archiver.RunCron(gctx, a.cfg.S3.ArchiveCron); err != nil && gctx.Err() == nil {
				a.logger.Error("app: journal archiver stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		reporter := &statusReporter{
			mode:    a.cfg.Mode,
			dryRun:  a.cfg.DryRun(),
			started: started,
			wallet:  c.wallet,
			risk:    c.risk,
			stats:   c.stats,
			store:   c.store,
		}
		a.startHTTPServer(gctx, g, deps, c, reporter)
	}

	err = g.Wait()

	snap := c.stats.Snapshot()
	a.logger.Info("app: loop stopped",
		slog.Int("total_trades", snap.TotalTrades),
		slog.Float64("win_rate", snap.WinRate),
		slog.Float64("total_pnl", snap.TotalPnL),
		slog.Float64("balance", c.wallet.Balance()),
		slog.Int("open_trades", len(c.risk.ActiveTrades())),
	)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core, reporter *statusReporter) {
	hub := ws.NewHub(deps.Bus, func() any { return reporter.Status() }, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.HealthChecks, a.logger),
		Status:  handler.NewStatusHandler(reporter),
		Trades:  handler.NewTradeHandler(deps.Journal, c.risk, c.store, a.logger),
		Audit:   handler.NewAuditHandler(deps.Audit, a.logger),
		Metrics: deps.Metrics.Handler(),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.Limiter, a.logger)

	g.Go(func() error { return srv.Run(ctx) })
}

// ScanMode runs one calendar scan and prints the tracked events.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	c, err := a.buildCore(deps)
	if err != nil {
		return err
	}

	added, err := c.scanner.Run(ctx)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}

	now := time.Now()
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tCOMPANY\tRELEASE (UTC)\tIN")
	for ev := range c.store.Snapshot() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.ID,
			ev.CompanyName,
			ev.ReleaseAt.UTC().Format("2006-01-02 15:04"),
			ev.UntilRelease(now).Round(time.Minute),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\n%d events tracked (%d new)\n", c.store.Len(), added)
	return nil
}
