package handler

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"slices"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// TradeLister reads recorded orders. domain.TradeJournal satisfies it.
type TradeLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeOrder, error)
}

// ActiveTrades reports orders still waiting for settlement.
type ActiveTrades interface {
	ActiveTrades() []domain.TradeOrder
}

// EventSnapshot iterates the tracked events.
type EventSnapshot interface {
	Snapshot() iter.Seq[domain.TrackedEvent]
}

// TradeHandler serves trade and tracked-event listings.
type TradeHandler struct {
	journal TradeLister // nil when no database is configured
	active  ActiveTrades
	events  EventSnapshot
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler. journal may be nil.
func NewTradeHandler(journal TradeLister, active ActiveTrades, events EventSnapshot, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		journal: journal,
		active:  active,
		events:  events,
		logger:  logger.With(slog.String("handler", "trades")),
	}
}

// ListTrades returns journaled orders, newest first.
// GET /api/trades?limit=&offset=&since=&until=
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "trade journal not configured")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := h.journal.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if orders == nil {
		orders = []domain.TradeOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trades": orders,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// ListActive returns open positions held in memory.
// GET /api/trades/active
func (h *TradeHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	trades := h.active.ActiveTrades()
	if trades == nil {
		trades = []domain.TradeOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListEvents returns tracked events ordered by release time.
// GET /api/events
func (h *TradeHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events := slices.Collect(h.events.Snapshot())
	if events == nil {
		events = []domain.TrackedEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
