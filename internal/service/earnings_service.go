package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// EarningsSource is the financial data provider.
type EarningsSource interface {
	GetCalendar(ctx context.Context) ([]domain.CalendarEntry, error)
	GetLatestReport(ctx context.Context, ticker string) (domain.EarningsReport, error)
}

// EarningsService is the fail-soft gateway to the earnings data provider.
// Upstream failures are logged and surface as empty or absent results.
type EarningsService struct {
	source EarningsSource
	grace  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewEarningsService creates an EarningsService. grace keeps calendar entries
// released up to that long ago so a restart inside a window still trades.
func NewEarningsService(source EarningsSource, grace time.Duration, logger *slog.Logger) *EarningsService {
	return &EarningsService{
		source: source,
		grace:  grace,
		logger: logger,
		now:    time.Now,
	}
}

// FetchCalendar returns upcoming releases within horizonDays. Entries
// outside [now-grace, now+horizon] are dropped.
func (s *EarningsService) FetchCalendar(ctx context.Context, horizonDays int) []domain.CalendarEntry {
	entries, err := s.source.GetCalendar(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "earnings_service: fetch calendar failed",
			slog.String("error", err.Error()),
		)
		return nil
	}

	now := s.now()
	from := now.Add(-s.grace)
	until := now.AddDate(0, 0, horizonDays)

	out := make([]domain.CalendarEntry, 0, len(entries))
	for _, e := range entries {
		if e.ReleaseAt.Before(from) || e.ReleaseAt.After(until) {
			continue
		}
		out = append(out, e)
	}

	s.logger.InfoContext(ctx, "earnings_service: fetched calendar",
		slog.Int("fetched", len(entries)),
		slog.Int("upcoming", len(out)),
		slog.Int("horizon_days", horizonDays),
	)
	return out
}

// VerifyOutcome fetches the latest reported result for ticker. ok is false
// on any failure.
func (s *EarningsService) VerifyOutcome(ctx context.Context, ticker string) (domain.EarningsReport, bool) {
	report, err := s.source.GetLatestReport(ctx, ticker)
	if err != nil {
		s.logger.WarnContext(ctx, "earnings_service: verify failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		return domain.EarningsReport{}, false
	}

	attrs := []any{
		slog.String("ticker", ticker),
		slog.String("outcome", string(report.Outcome())),
	}
	if report.ActualEPS != nil {
		attrs = append(attrs, slog.Float64("eps", *report.ActualEPS))
	}
	s.logger.InfoContext(ctx, "earnings_service: verified", attrs...)
	return report, true
}
