package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/aftermath/internal/domain"
	"github.com/alanyoungcy/aftermath/internal/metrics"
	"github.com/alanyoungcy/aftermath/internal/strategy"
	"golang.org/x/sync/errgroup"
)

// Trigger runs the pipeline for one event. *Executor implements it.
type Trigger interface {
	Run(ctx context.Context, ev domain.TrackedEvent) Result
}

// Scanner refreshes the tracked events. *CalendarScanner implements it.
type Scanner interface {
	Run(ctx context.Context) (int, error)
}

// SchedulerConfig controls the trigger loop.
type SchedulerConfig struct {
	Interval      time.Duration
	Window        time.Duration
	CalendarEvery int // rescan the calendar every N ticks
	ErrorBackoff  time.Duration
	MaxParallel   int // pipelines run at once within a tick; 1 is sequential
}

// TickReport summarises one scheduler tick.
type TickReport struct {
	Pruned  int
	Due     int
	Results []Result
	Halted  bool // a risk limit stopped the remaining due events
	Added   int
	Scanned bool
}

// Scheduler drives the tick loop: prune stale events, fire the pipeline for
// every event inside its verification window, and periodically rescan the
// calendar.
type Scheduler struct {
	store    *EventStore
	scanner  Scanner
	trigger  Trigger
	cfg      SchedulerConfig
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time

	ticks    atomic.Int64
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(store *EventStore, scanner Scanner, trigger Trigger, cfg SchedulerConfig, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if cfg.CalendarEvery < 1 {
		cfg.CalendarEvery = 1
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return &Scheduler{
		store:   store,
		scanner: scanner,
		trigger: trigger,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		stopped: make(chan struct{}),
	}
}

// WithNotifier sends an error notification for every failed tick.
func (s *Scheduler) WithNotifier(n Notifier) *Scheduler {
	s.notifier = n
	return s
}

// Run ticks immediately and then on every interval until ctx is cancelled
// or Stop is called. A failed tick is logged and followed by the error
// backoff; it never ends the loop. Run returns once the tick in progress,
// including any pipeline it started, has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("scheduler starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("window", s.cfg.Window),
		slog.Int("calendar_every", s.cfg.CalendarEvery),
		slog.Int("max_parallel", s.cfg.MaxParallel),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler: tick failed", slog.String("error", err.Error()))
			s.notifyError(ctx, err)
			if !sleepCtx(ctx, s.cfg.ErrorBackoff) {
				break
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped", slog.Int64("ticks", s.ticks.Load()))
			return nil
		case <-ticker.C:
		}
	}

	s.logger.Info("scheduler loop stopped", slog.Int64("ticks", s.ticks.Load()))
	return nil
}

// Stop ends the loop after the current tick. It is safe to call more than
// once and from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}

// Tick performs one pass. Pipelines run on a context that ignores
// cancellation of ctx so a stop never interrupts an order mid-flight, but no
// new pipeline is started once ctx is done. A panic anywhere in the tick is
// returned as an error.
func (s *Scheduler) Tick(ctx context.Context) (rep TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: tick panic: %v", r)
		}
	}()

	n := s.ticks.Add(1)
	now := s.now()

	for _, ev := range s.store.Prune(now, s.cfg.Window) {
		rep.Pruned++
		s.logger.Warn("scheduler: verification window missed",
			slog.String("ticker", ev.ID),
			slog.Time("release_at", ev.ReleaseAt),
		)
	}

	var due []domain.TrackedEvent
	for ev := range s.store.Snapshot() {
		if ev.InWindow(now, s.cfg.Window) {
			due = append(due, ev)
		}
	}
	rep.Due = len(due)
	if len(due) > 0 {
		rep.Results, rep.Halted = s.fire(ctx, due)
	}

	if (n-1)%int64(s.cfg.CalendarEvery) == 0 && ctx.Err() == nil {
		rep.Scanned = true
		added, scanErr := s.scanner.Run(ctx)
		rep.Added = added
		if scanErr != nil && ctx.Err() == nil {
			err = fmt.Errorf("scheduler: calendar scan: %w", scanErr)
		}
	}

	s.metrics.SetTrackedEvents(s.store.Len())
	s.logger.Debug("scheduler tick",
		slog.Int64("tick", n),
		slog.Int("pruned", rep.Pruned),
		slog.Int("due", rep.Due),
		slog.Int("fired", len(rep.Results)),
		slog.Int("added", rep.Added),
		slog.Int("tracked", s.store.Len()),
	)
	return rep, err
}

// fire takes and runs each due event. A risk-limit verdict stops the rest
// of the batch; those events stay tracked for the next tick.
func (s *Scheduler) fire(ctx context.Context, due []domain.TrackedEvent) ([]Result, bool) {
	runCtx := context.WithoutCancel(ctx)

	var (
		mu      sync.Mutex
		results []Result
		halted  atomic.Bool
	)
	runOne := func(id string) {
		if halted.Load() {
			return
		}
		ev, ok := s.store.Take(id)
		if !ok {
			return
		}
		res, ok := s.safeRun(runCtx, ev)
		if !ok {
			return
		}
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		if res.Verdict == strategy.RejectedRiskLimit {
			halted.Store(true)
		}
	}

	if s.cfg.MaxParallel == 1 {
		for _, ev := range due {
			if ctx.Err() != nil || halted.Load() {
				break
			}
			runOne(ev.ID)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.MaxParallel)
		for _, ev := range due {
			if ctx.Err() != nil || halted.Load() {
				break
			}
			g.Go(func() error {
				runOne(ev.ID)
				return nil
			})
		}
		_ = g.Wait()
	}

	if halted.Load() {
		s.logger.Warn("scheduler: risk limit reached, deferring remaining events",
			slog.Int("due", len(due)),
			slog.Int("fired", len(results)),
		)
	}
	return results, halted.Load()
}

// safeRun calls the trigger and converts a panic into a logged failure. The
// event has already been taken, so it is not retried.
func (s *Scheduler) safeRun(ctx context.Context, ev domain.TrackedEvent) (res Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: pipeline panic",
				slog.String("ticker", ev.ID),
				slog.String("panic", fmt.Sprint(r)),
			)
			ok = false
		}
	}()
	return s.trigger.Run(ctx, ev), true
}

func (s *Scheduler) notifyError(ctx context.Context, tickErr error) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, domain.EventError, "Scheduler tick failed", tickErr.Error()); err != nil {
		s.logger.Warn("scheduler: notify failed", slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
