package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/strategy"
)

// Status is the bot state shown on /api/status and pushed to new WebSocket
// clients.
type Status struct {
	Mode          string                 `json:"mode"`
	DryRun        bool                   `json:"dry_run"`
	StartedAt     time.Time              `json:"started_at"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Wallet        string                 `json:"wallet"`
	Balance       float64                `json:"balance"`
	Stats         strategy.StatsSnapshot `json:"stats"`
	Risk          domain.RiskCounters    `json:"risk"`
	OpenTrades    int                    `json:"open_trades"`
	TrackedEvents int                    `json:"tracked_events"`
}

// StatusSource reports the current Status.
type StatusSource interface {
	Status() Status
}

// StatusHandler serves the bot status.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the current Status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Status())
}
