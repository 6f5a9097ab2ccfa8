package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// TradeJournal implements domain.TradeJournal using PostgreSQL.
type TradeJournal struct {
	pool *pgxpool.Pool
}

// NewTradeJournal creates a TradeJournal backed by the given pool.
func NewTradeJournal(pool *pgxpool.Pool) *TradeJournal {
	return &TradeJournal{pool: pool}
}

const journalSelectCols = `id, market_id, token_id, event_id, side, price, size,
	expected_return_pct, status, wallet, signature, dry_run,
	created_at, executed_at, closed_at, pnl`

// Record inserts an order. Recording the same ID again updates its status,
// execution time and signature.
func (j *TradeJournal) Record(ctx context.Context, o domain.TradeOrder) error {
	const query = `
		INSERT INTO trade_journal (
			id, market_id, token_id, event_id, side, price, size,
			expected_return_pct, status, wallet, signature, dry_run,
			created_at, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14
		)
		ON CONFLICT (id) DO UPDATE SET
			status      = EXCLUDED.status,
			executed_at = EXCLUDED.executed_at,
			signature   = EXCLUDED.signature`

	_, err := j.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.TokenID, o.EventID, string(o.Side), o.Price, o.Size,
		o.ExpectedReturnPct, string(o.Status), o.Wallet, o.Signature, o.DryRun,
		o.CreatedAt, o.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade %s: %w", o.ID, err)
	}
	return nil
}

// MarkClosed stores the realized PnL of a settled trade. It returns
// domain.ErrNotFound when id was never recorded.
func (j *TradeJournal) MarkClosed(ctx context.Context, id string, pnl float64, at time.Time) error {
	const query = `UPDATE trade_journal SET closed_at = $2, pnl = $3 WHERE id = $1`
	tag, err := j.pool.Exec(ctx, query, id, at, pnl)
	if err != nil {
		return fmt.Errorf("postgres: close trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: close trade %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// List returns recorded orders newest first.
func (j *TradeJournal) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeOrder, error) {
	query, args := withListOpts(
		`SELECT `+journalSelectCols+` FROM trade_journal WHERE 1=1`,
		nil, opts, "created_at DESC, id",
	)

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return orders, nil
}

func scanOrders(rows pgx.Rows) ([]domain.TradeOrder, error) {
	var orders []domain.TradeOrder
	for rows.Next() {
		var (
			o      domain.TradeOrder
			side   string
			status string
		)
		if err := rows.Scan(
			&o.ID, &o.MarketID, &o.TokenID, &o.EventID, &side, &o.Price, &o.Size,
			&o.ExpectedReturnPct, &status, &o.Wallet, &o.Signature, &o.DryRun,
			&o.CreatedAt, &o.ExecutedAt, &o.ClosedAt, &o.PnL,
		); err != nil {
			return nil, err
		}
		o.Side = domain.Side(side)
		o.Status = domain.TradeStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Compile-time interface check.
var _ domain.TradeJournal = (*TradeJournal)(nil)
