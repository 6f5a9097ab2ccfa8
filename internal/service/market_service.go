package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// MarketVenue is the prediction-market venue.
type MarketVenue interface {
	SearchMarkets(ctx context.Context, query string) ([]domain.Market, error)
	BestAsk(ctx context.Context, market domain.Market, side domain.Side) (domain.Quote, error)
	SubmitOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeOrder, error)
}

// MarketService is the fail-soft gateway to the venue. It enforces the
// position-size cap before anything is submitted.
type MarketService struct {
	venue       MarketVenue
	maxPosition float64
	logger      *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(venue MarketVenue, maxPosition float64, logger *slog.Logger) *MarketService {
	return &MarketService{
		venue:       venue,
		maxPosition: maxPosition,
		logger:      logger,
	}
}

// SearchMarkets returns markets matching query, or nil on failure.
func (s *MarketService) SearchMarkets(ctx context.Context, query string) []domain.Market {
	markets, err := s.venue.SearchMarkets(ctx, query)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: search failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return nil
	}
	s.logger.DebugContext(ctx, "market_service: search",
		slog.String("query", query),
		slog.Int("found", len(markets)),
	)
	return markets
}

// BestQuote returns the top-of-book ask for side. ok is false when the book
// is empty or the call fails.
func (s *MarketService) BestQuote(ctx context.Context, market domain.Market, side domain.Side) (domain.Quote, bool) {
	q, err := s.venue.BestAsk(ctx, market, side)
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: quote unavailable",
			slog.String("market_id", market.ID),
			slog.String("side", string(side)),
			slog.String("error", err.Error()),
		)
		return domain.Quote{}, false
	}
	return q, true
}

// SubmitOrder submits order and returns it with its final status. Orders
// whose size exceeds the configured maximum are rejected before reaching
// the venue and returned unchanged.
func (s *MarketService) SubmitOrder(ctx context.Context, order domain.TradeOrder) (domain.TradeOrder, bool) {
	if order.Size > s.maxPosition {
		s.logger.WarnContext(ctx, "market_service: order exceeds max position size",
			slog.String("order_id", order.ID),
			slog.Float64("size", order.Size),
			slog.Float64("max", s.maxPosition),
		)
		return order, false
	}
	if order.Size <= 0 || order.Price <= 0 || order.Price >= 1 {
		s.logger.WarnContext(ctx, "market_service: invalid order",
			slog.String("order_id", order.ID),
			slog.Float64("size", order.Size),
			slog.Float64("price", order.Price),
		)
		return order, false
	}

	s.logger.InfoContext(ctx, "market_service: submitting order",
		slog.String("order_id", order.ID),
		slog.String("market_id", order.MarketID),
		slog.String("side", string(order.Side)),
		slog.Float64("price", order.Price),
		slog.Float64("size", order.Size),
		slog.Float64("expected_return_pct", order.ExpectedReturnPct),
	)

	submitted, err := s.venue.SubmitOrder(ctx, order)
	if err != nil {
		s.logger.ErrorContext(ctx, "market_service: submit failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		order.Status = domain.TradeStatusFailed
		return order, false
	}
	return submitted, submitted.Status == domain.TradeStatusExecuted
}
