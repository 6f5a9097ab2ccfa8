package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeJournal persists executed and failed trade orders. It is an audit
// sink; nothing reads it back to rebuild in-memory state.
type TradeJournal interface {
	Record(ctx context.Context, order TradeOrder) error
	MarkClosed(ctx context.Context, id string, pnl float64, at time.Time) error
	List(ctx context.Context, opts ListOpts) ([]TradeOrder, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
