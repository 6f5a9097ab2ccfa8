package app

import (
	"time"

	"github.com/alanyoungcy/aftermath/internal/pipeline"
	"github.com/alanyoungcy/aftermath/internal/server/handler"
	"github.com/alanyoungcy/aftermath/internal/service"
	"github.com/alanyoungcy/aftermath/internal/strategy"
)

// statusReporter assembles handler.Status from the live components.
type statusReporter struct {
	mode    string
	dryRun  bool
	started time.Time
	wallet  *service.WalletService
	risk    *service.RiskService
	stats   *strategy.Stats
	store   *pipeline.EventStore
}

func (r *statusReporter) Status() handler.Status {
	counters := r.risk.Counters()
	return handler.Status{
		Mode:          r.mode,
		DryRun:        r.dryRun,
		StartedAt:     r.started,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		Wallet:        r.wallet.Address(),
		Balance:       r.wallet.Balance(),
		Stats:         r.stats.Snapshot(),
		Risk:          counters,
		OpenTrades:    counters.OpenCount,
		TrackedEvents: r.store.Len(),
	}
}
