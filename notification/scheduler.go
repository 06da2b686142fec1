package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/divanjapones/notifier"
	"github.com/divanjapones/notifier/metrics"
)

const (
	DefaultInitialDelay = 10 * time.Second
	DefaultInterval     = 5 * time.Minute
	DefaultLockTTL      = 2 * time.Minute

	lockKey = "notifier:flush-pending"

	triggerSchedule = "schedule"
	triggerManual   = "manual"
)

// Flusher is the job run on every tick
type Flusher interface {
	FlushPending(ctx context.Context) (*notifier.FlushSummary, error)
}

// Scheduler runs the flush job periodically and serializes it with manual flushes.
type Scheduler struct {
	// Locker, when set, must be acquired before every flush.
	Locker  notifier.Locker
	LockTTL time.Duration

	flusher      Flusher
	initialDelay time.Duration
	interval     time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	started atomic.Bool

	lifecycle sync.Mutex
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *time.Timer
	cron      *cron.Cron
}

// NewScheduler returns a scheduler that has not been started
func NewScheduler(flusher Flusher, config *notifier.Config, logger zerolog.Logger) *Scheduler {
	initialDelay := config.Notifications.InitialDelay
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	interval := config.Notifications.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	lockTTL := config.Redis.LockTTL
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		LockTTL:      lockTTL,
		flusher:      flusher,
		initialDelay: initialDelay,
		interval:     interval,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start schedules the first flush after the initial delay. Calling it again is a no-op.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stopped {
		return
	}

	s.cron = cron.New(cron.WithLogger(cronLogger{s.logger}))
	s.cron.Schedule(cron.Every(s.interval), s.job())
	s.timer = time.AfterFunc(s.initialDelay, s.startCron)

	s.logger.Info().
		Dur("initial_delay", s.initialDelay).
		Dur("interval", s.interval).
		Msg("Notification scheduler started")
}

func (s *Scheduler) startCron() {
	s.lifecycle.Lock()
	if s.stopped {
		s.lifecycle.Unlock()
		return
	}
	s.cron.Start()
	s.lifecycle.Unlock()

	s.job().Run()
}

// job is tick behind the same panic recovery for the first run and every cron run.
func (s *Scheduler) job() cron.Job {
	return cron.Recover(cronLogger{s.logger})(cron.FuncJob(s.tick))
}

// Stop cancels pending work and waits for a running flush to return.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	if s.stopped {
		s.lifecycle.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
	}
	var done context.Context
	if s.cron != nil {
		done = s.cron.Stop()
	}
	s.lifecycle.Unlock()

	if done != nil {
		<-done.Done()
	}

	s.mu.Lock()
	//nolint:staticcheck
	s.mu.Unlock()
}

// Flush runs the job now, waiting for a scheduled flush already in progress.
// It returns ErrFlushInProgress when another process holds the lock.
func (s *Scheduler) Flush(ctx context.Context) (*notifier.FlushSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, ok, err := s.acquire(ctx)
	if err != nil {
		metrics.FlushRuns.WithLabelValues(triggerManual, "error").Inc()
		return nil, err
	}
	if !ok {
		metrics.FlushRuns.WithLabelValues(triggerManual, "conflict").Inc()
		return nil, notifier.ErrFlushInProgress
	}
	defer release()

	return s.run(ctx, triggerManual)
}

func (s *Scheduler) tick() {
	if !s.mu.TryLock() {
		s.logger.Debug().Msg("Flush already running, skipping tick")
		metrics.FlushRuns.WithLabelValues(triggerSchedule, "skipped").Inc()
		return
	}
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}

	release, ok, err := s.acquire(s.ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to acquire flush lock")
		metrics.FlushRuns.WithLabelValues(triggerSchedule, "error").Inc()
		return
	}
	if !ok {
		s.logger.Debug().Msg("Flush lock held elsewhere, skipping tick")
		metrics.FlushRuns.WithLabelValues(triggerSchedule, "skipped").Inc()
		return
	}
	defer release()

	// errors are already counted and logged by run
	_, _ = s.run(s.ctx, triggerSchedule)
}

func (s *Scheduler) acquire(ctx context.Context) (func(), bool, error) {
	if s.Locker == nil {
		return func() {}, true, nil
	}
	return s.Locker.TryLock(ctx, lockKey, s.LockTTL)
}

func (s *Scheduler) run(ctx context.Context, trigger string) (*notifier.FlushSummary, error) {
	start := time.Now()
	summary, err := s.flusher.FlushPending(ctx)
	metrics.FlushDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("Flush failed")
		metrics.FlushRuns.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}

	metrics.FlushRuns.WithLabelValues(trigger, "ok").Inc()
	if summary.Sent > 0 || summary.MagazinesSent > 0 || summary.Skipped > 0 {
		s.logger.Info().
			Str("trigger", trigger).
			Int("sent", summary.Sent).
			Int("magazines_sent", summary.MagazinesSent).
			Int("skipped", summary.Skipped).
			Msg("Flush finished")
	}
	return summary, nil
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Interface("details", keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Interface("details", keysAndValues).Msg(msg)
}
