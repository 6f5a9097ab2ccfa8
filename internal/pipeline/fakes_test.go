package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

var discard = slog.New(slog.DiscardHandler)

func f64(v float64) *float64 { return &v }

type fakeSource struct {
	mu       sync.Mutex
	entries  []domain.CalendarEntry
	report   domain.EarningsReport
	err      error
	verified []string
}

func (f *fakeSource) GetCalendar(context.Context) ([]domain.CalendarEntry, error) {
	return f.entries, f.err
}

func (f *fakeSource) GetLatestReport(_ context.Context, ticker string) (domain.EarningsReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, ticker)
	r := f.report
	r.Ticker = ticker
	return r, f.err
}

type fakeVenue struct {
	mu        sync.Mutex
	markets   map[string][]domain.Market // query -> markets; nil key matches all
	prices    map[domain.Side]float64
	submitErr error
	queries   []string
	submitted []domain.TradeOrder
}

func (f *fakeVenue) SearchMarkets(_ context.Context, query string) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if m, ok := f.markets[query]; ok {
		return m, nil
	}
	return f.markets["*"], nil
}

func (f *fakeVenue) BestAsk(_ context.Context, m domain.Market, side domain.Side) (domain.Quote, error) {
	p, ok := f.prices[side]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return domain.Quote{MarketID: m.ID, TokenID: m.TokenFor(side), Side: side, Price: p, Size: 1000}, nil
}

func (f *fakeVenue) SubmitOrder(_ context.Context, o domain.TradeOrder) (domain.TradeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return o, f.submitErr
	}
	f.submitted = append(f.submitted, o)
	now := time.Now()
	o.Status = domain.TradeStatusExecuted
	o.ExecutedAt = &now
	return o, nil
}

type memJournal struct {
	mu     sync.Mutex
	orders []domain.TradeOrder
	closed map[string]float64
}

func (j *memJournal) Record(_ context.Context, o domain.TradeOrder) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, o)
	return nil
}

func (j *memJournal) MarkClosed(_ context.Context, id string, pnl float64, _ time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed == nil {
		j.closed = map[string]float64{}
	}
	j.closed[id] = pnl
	return nil
}

func (j *memJournal) List(_ context.Context, opts domain.ListOpts) ([]domain.TradeOrder, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var match []domain.TradeOrder
	for _, o := range j.orders {
		if opts.Since != nil && o.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !o.CreatedAt.Before(*opts.Until) {
			continue
		}
		match = append(match, o)
	}
	if opts.Offset >= len(match) {
		return nil, nil
	}
	match = match[opts.Offset:]
	if opts.Limit > 0 && len(match) > opts.Limit {
		match = match[:opts.Limit]
	}
	return match, nil
}

type memBus struct {
	mu     sync.Mutex
	events []domain.PipelineEvent
}

func (b *memBus) Publish(_ context.Context, _ string, payload []byte) error {
	var pe domain.PipelineEvent
	if err := json.Unmarshal(payload, &pe); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, pe)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *memBus) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Kind)
	}
	return out
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type fakeResolver struct {
	res map[string]domain.MarketResolution
}

func (f *fakeResolver) GetMarketResolution(_ context.Context, id string) (domain.MarketResolution, error) {
	r, ok := f.res[id]
	if !ok {
		return domain.MarketResolution{}, domain.ErrNotFound
	}
	return r, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
