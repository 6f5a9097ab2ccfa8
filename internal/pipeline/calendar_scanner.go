package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/service"
)

// CalendarScanner pulls the earnings calendar and starts tracking every
// release that has a matching prediction market.
type CalendarScanner struct {
	earnings    *service.EarningsService
	markets     *service.MarketService
	store       *EventStore
	horizonDays int
	bus         domain.EventBus
	logger      *slog.Logger
	now         func() time.Time
}

// NewCalendarScanner creates a CalendarScanner. bus may be nil.
func NewCalendarScanner(
	earnings *service.EarningsService,
	markets *service.MarketService,
	store *EventStore,
	horizonDays int,
	bus domain.EventBus,
	logger *slog.Logger,
) *CalendarScanner {
	return &CalendarScanner{
		earnings:    earnings,
		markets:     markets,
		store:       store,
		horizonDays: horizonDays,
		bus:         bus,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes a single scan and returns how many events were added.
// Releases already tracked are skipped without a market lookup. It only
// returns an error when ctx is cancelled mid-scan.
func (s *CalendarScanner) Run(ctx context.Context) (int, error) {
	entries := s.earnings.FetchCalendar(ctx, s.horizonDays)

	added := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return added, fmt.Errorf("calendar scanner context cancelled: %w", err)
		}
		if entry.Ticker == "" || s.store.Has(entry.Ticker) {
			continue
		}

		markets := s.markets.SearchMarkets(ctx, MarketQuery(entry.Ticker))
		if len(markets) == 0 {
			s.logger.DebugContext(ctx, "calendar scanner: no market for release",
				slog.String("ticker", entry.Ticker),
			)
			continue
		}

		ev := domain.NewTrackedEvent(entry, s.now())
		if !s.store.Upsert(ev) {
			continue
		}
		added++

		s.logger.InfoContext(ctx, "calendar scanner: tracking release",
			slog.String("ticker", ev.ID),
			slog.String("company", ev.CompanyName),
			slog.Time("release_at", ev.ReleaseAt),
			slog.Int("markets", len(markets)),
		)
		publishEvent(ctx, s.bus, s.logger, domain.PipelineEvent{
			Kind:    domain.EventTracked,
			EventID: ev.ID,
			Detail: map[string]any{
				"company":    ev.CompanyName,
				"release_at": ev.ReleaseAt,
				"market_id":  markets[0].ID,
			},
		})
	}

	s.logger.InfoContext(ctx, "calendar scan complete",
		slog.Int("calendar_entries", len(entries)),
		slog.Int("added", added),
		slog.Int("tracked", s.store.Len()),
	)
	return added, nil
}
