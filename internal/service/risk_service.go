package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

// RiskLimits holds the exposure ceilings.
type RiskLimits struct {
	MaxDaily      int
	MaxConcurrent int
}

// MayTrade reports whether another trade fits under the limits. It is pure
// and monotonic: raising either count never turns false into true.
func MayTrade(daily, open int, limits RiskLimits) bool {
	return daily < limits.MaxDaily && open < limits.MaxConcurrent
}

// RiskService owns the process-wide trade counters. Checks and updates are
// serialized so concurrent pipelines cannot overshoot the limits. The daily
// count resets at calendar midnight in the configured location.
type RiskService struct {
	limits RiskLimits
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	day      string
	daily    int
	reserved int
	active   []domain.TradeOrder
}

// NewRiskService creates a RiskService. A nil loc means UTC.
func NewRiskService(limits RiskLimits, loc *time.Location, logger *slog.Logger) *RiskService {
	if loc == nil {
		loc = time.UTC
	}
	return &RiskService{
		limits: limits,
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Limits returns the configured limits.
func (s *RiskService) Limits() RiskLimits {
	return s.limits
}

// Counters returns the current counts. In-flight reservations are included
// so a decision taken on them stays conservative.
func (s *RiskService) Counters() domain.RiskCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	return domain.RiskCounters{
		Day:        s.day,
		DailyCount: s.daily + s.reserved,
		OpenCount:  len(s.active) + s.reserved,
	}
}

// Reservation holds one trade slot between the limiter check and the
// submission result. Exactly one of Commit or Release must be called.
type Reservation struct {
	svc  *RiskService
	once sync.Once
}

// Reserve atomically checks the limits and claims a slot. It returns an
// error wrapping domain.ErrRiskLimit when no slot is free.
func (s *RiskService) Reserve(ctx context.Context) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()

	daily := s.daily + s.reserved
	open := len(s.active) + s.reserved
	if !MayTrade(daily, open, s.limits) {
		s.logger.WarnContext(ctx, "risk_service: limit reached",
			slog.Int("daily", daily),
			slog.Int("max_daily", s.limits.MaxDaily),
			slog.Int("open", open),
			slog.Int("max_concurrent", s.limits.MaxConcurrent),
		)
		return nil, fmt.Errorf("risk_service: daily %d/%d open %d/%d: %w",
			daily, s.limits.MaxDaily, open, s.limits.MaxConcurrent, domain.ErrRiskLimit)
	}
	s.reserved++
	return &Reservation{svc: s}, nil
}

// Commit records a successful submission: the order joins the active list
// and the daily count increments.
func (r *Reservation) Commit(order domain.TradeOrder) {
	r.once.Do(func() {
		s := r.svc
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reserved--
		s.rollDayLocked()
		s.daily++
		s.active = append(s.active, order)
	})
}

// Release frees the slot after a failed submission without counting it.
func (r *Reservation) Release() {
	r.once.Do(func() {
		s := r.svc
		s.mu.Lock()
		defer s.mu.Unlock()
		s.reserved--
	})
}

// ActiveTrades returns a copy of the open trades.
func (s *RiskService) ActiveTrades() []domain.TradeOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TradeOrder, len(s.active))
	copy(out, s.active)
	return out
}

// CloseTrade removes a settled trade from the active list. It returns
// domain.ErrNotFound when id is not open.
func (s *RiskService) CloseTrade(id string) (domain.TradeOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.active {
		if o.ID == id {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return o, nil
		}
	}
	return domain.TradeOrder{}, fmt.Errorf("risk_service: close %s: %w", id, domain.ErrNotFound)
}

func (s *RiskService) rollDayLocked() {
	day := s.now().In(s.loc).Format(time.DateOnly)
	if day == s.day {
		return
	}
	if s.day != "" {
		s.logger.Info("risk_service: daily counter reset",
			slog.String("previous_day", s.day),
			slog.Int("previous_count", s.daily),
		)
	}
	s.day = day
	s.daily = 0
}
