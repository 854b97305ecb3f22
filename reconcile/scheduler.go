/*
scheduler.go - Fixed-rate reconciliation scheduler

PURPOSE:
  Runs Reconciler.Tick for the lifetime of the process: once on start, then
  on every tick of a time.Ticker.

DESIGN:
  - Fixed rate, not fixed delay: the ticker keeps its cadence whatever a
    tick's duration. Each tick runs in its own goroutine.
  - Single-flight per process: a tick that fires while the previous one is
    still running is skipped and logged, never run in parallel.
  - Optional Locker extends single-flight across processes. A lock backend
    error does not stop reconciliation; status writes are compare-and-set
    so a duplicate tick cannot double-apply a transition.
  - Every run is recorded through RunStore when one is set.

CONFIGURATION:
  - Interval: how often to tick (default: 60s)
  - Enabled: whether Start does anything (default: true)

USAGE:
  s := reconcile.NewScheduler(reconciler, logger)
  s.Start(ctx)
  // ... later
  s.Stop()

SEE ALSO:
  - reconciler.go: the tick itself
  - lock.go: RedisLocker
  - api/handlers.go: manual RunNow endpoint
*/
package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/campaign-engine/campaign"
)

// ErrTickInProgress is returned by RunNow while another tick is running.
var ErrTickInProgress = errors.New("reconciliation tick already in progress")

// ErrLockHeld is returned by RunNow when another process holds the lock.
var ErrLockHeld = errors.New("reconciliation lock held by another process")

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Runner is what the scheduler drives; *Reconciler implements it.
type Runner interface {
	Tick(ctx context.Context) (Result, error)
}

type Scheduler struct {
	Runner   Runner
	Interval time.Duration
	Enabled  bool
	Locker   Locker
	Runs     campaign.RunStore

	logger  zerolog.Logger
	running atomic.Bool

	mu     sync.Mutex
	ticker *time.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nextRun atomic.Int64 // unix nanos, 0 when stopped
}

func NewScheduler(runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Runner:   runner,
		Interval: 60 * time.Second,
		Enabled:  true,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins the scheduler. The first tick runs immediately. Calling
// Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.ticker = time.NewTicker(s.Interval)
	s.nextRun.Store(time.Now().Add(s.Interval).UnixNano())

	s.wg.Add(1)
	go s.run(ctx, s.ticker)

	s.logger.Info().Dur("interval", s.Interval).Msg("started")
}

// Stop halts the ticker, cancels the in-flight tick and waits for it to
// return. Campaigns already committed by that tick stay committed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.nextRun.Store(0)
	s.logger.Info().Msg("stopped")
}

func (s *Scheduler) run(ctx context.Context, ticker *time.Ticker) {
	defer s.wg.Done()

	// Run immediately on start
	s.fire(ctx)

	for {
		select {
		case <-ticker.C:
			s.nextRun.Store(time.Now().Add(s.Interval).UnixNano())
			s.fire(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// fire starts a tick in the background unless one is already running.
func (s *Scheduler) fire(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("previous tick still running, skipping")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		_, _ = s.execute(ctx, TriggerSchedule)
	}()
}

// RunNow runs one tick synchronously. It returns ErrTickInProgress when a
// tick is already running in this process.
func (s *Scheduler) RunNow(ctx context.Context) (Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrTickInProgress
	}
	defer s.running.Store(false)
	return s.execute(ctx, TriggerManual)
}

func (s *Scheduler) execute(ctx context.Context, trigger string) (Result, error) {
	if s.Locker != nil {
		release, ok, err := s.Locker.Acquire(ctx)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("tick lock unavailable, running without it")
		case !ok:
			s.logger.Debug().Msg("tick lock held elsewhere, skipping")
			return Result{}, ErrLockHeld
		default:
			defer release()
		}
	}

	run := campaign.ReconciliationRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}

	res, err := s.Runner.Tick(ctx)

	run.CompletedAt = time.Now().UTC()
	run.Evaluated = res.Evaluated
	run.Transitioned = res.Transitioned
	run.Skipped = res.Skipped
	run.Failed = res.Failed
	if err != nil {
		run.Error = err.Error()
	}
	s.record(run)

	log := s.logger.Info()
	if err != nil {
		log = s.logger.Error().Err(err)
	}
	log.Str("trigger", trigger).
		Int("evaluated", res.Evaluated).
		Int("transitioned", res.Transitioned).
		Int("failed", res.Failed).
		Dur("tick_duration", res.Duration).
		Msg("tick completed")

	return res, err
}

func (s *Scheduler) record(run campaign.ReconciliationRun) {
	if s.Runs == nil {
		return
	}
	// The tick context may already be cancelled on shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to record run")
	}
}

// NextRun returns when the next scheduled tick will fire, or the zero time
// when the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	n := s.nextRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Running reports whether a tick is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
