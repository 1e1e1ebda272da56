// Package scheduler runs every enabled collector on its own interval and sweeps stale
// circuit breaker endpoints in the background.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/f5xc-exporter/internal/collector"
	"github.com/f5xc-exporter/internal/metrics"
)

// Sweeper drops endpoints that have not been used for ttl.
type Sweeper interface {
	CleanupStale(ttl time.Duration) int
}

// Settings of the stale endpoint sweep. CleanupInterval <= 0 disables it.
type Settings struct {
	CleanupInterval time.Duration
	EndpointTTL     time.Duration
}

// RunState is the last known state of one collector.
type RunState struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Enabled      bool          `json:"enabled"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	Skipped      int           `json:"skipped"`
	LastRunAt    time.Time     `json:"last_run_at"`
	LastSuccess  bool          `json:"last_success"`
	LastDuration time.Duration `json:"last_duration"`
	LastError    string        `json:"last_error,omitempty"`
}

// Result pairs a collector name with the outcome of a single run.
type Result struct {
	Name    string
	Outcome collector.Outcome
}

type Option func(*Scheduler)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

type job struct {
	entry    collector.Entry
	inFlight atomic.Bool
}

// Scheduler owns one ticker goroutine per enabled collector. A collector never has more
// than one run in flight; ticks that arrive while it is busy are skipped.
type Scheduler struct {
	jobs     []*job
	sweeper  Sweeper
	settings Settings
	log      *zap.Logger
	now      func() time.Time
	skipped  *prometheus.CounterVec

	mu     sync.Mutex
	states map[string]*RunState
	cron   *cron.Cron
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New snapshots the registry. Collectors registered afterwards are not scheduled.
func New(reg *collector.Registry, sweeper Sweeper, f *metrics.MetricFactory, settings Settings, opts ...Option) *Scheduler {
	s := &Scheduler{
		sweeper:  sweeper,
		settings: settings,
		log:      zap.NewNop(),
		now:      time.Now,
		states:   make(map[string]*RunState),
		skipped: f.NewCounterVec("f5xc_collector_skipped_runs_total",
			"Number of scheduled runs skipped because the previous run was still in progress", "collector"),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, e := range reg.Entries() {
		s.jobs = append(s.jobs, &job{entry: e})
		s.states[e.Collector.Name()] = &RunState{
			Name:     e.Collector.Name(),
			Interval: e.Interval,
			Enabled:  e.Enabled(),
		}
	}
	return s
}

// Start launches the collector loops and the cleanup job. It returns immediately; the
// first run of every enabled collector starts right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = group

	if err := s.startCleanup(); err != nil {
		cancel()
		s.cancel = nil
		return err
	}

	enabled := 0
	for _, j := range s.jobs {
		if !j.entry.Enabled() {
			s.log.Info("collector disabled", zap.String("collector", j.entry.Collector.Name()))
			continue
		}
		enabled++
		group.Go(func() error {
			s.loop(ctx, group, j)
			return nil
		})
	}
	s.log.Info("scheduler started",
		zap.Int("collectors_enabled", enabled),
		zap.Int("collectors_registered", len(s.jobs)),
		zap.Duration("cleanup_interval", s.settings.CleanupInterval))
	return nil
}

func (s *Scheduler) startCleanup() error {
	if s.sweeper == nil || s.settings.CleanupInterval <= 0 {
		s.log.Info("circuit breaker cleanup disabled")
		return nil
	}
	cronLog := cron.PrintfLogger(zap.NewStdLog(s.log))
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	spec := "@every " + s.settings.CleanupInterval.String()
	if _, err := c.AddFunc(spec, func() { s.Cleanup() }); err != nil {
		return fmt.Errorf("schedule circuit breaker cleanup %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Cleanup runs one stale endpoint sweep and returns the number of endpoints removed.
func (s *Scheduler) Cleanup() int {
	if s.sweeper == nil {
		return 0
	}
	removed := s.sweeper.CleanupStale(s.settings.EndpointTTL)
	s.log.Info("circuit breaker cleanup finished",
		zap.Int("endpoints_removed", removed),
		zap.Duration("endpoint_ttl", s.settings.EndpointTTL))
	return removed
}

// NextCleanup returns when the next sweep is due, or false if the sweep is not scheduled.
func (s *Scheduler) NextCleanup() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}, false
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}

func (s *Scheduler) loop(ctx context.Context, group *errgroup.Group, j *job) {
	ticker := time.NewTicker(j.entry.Interval)
	defer ticker.Stop()

	s.trigger(ctx, group, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, group, j)
		}
	}
}

// trigger starts a run unless one is already in flight.
func (s *Scheduler) trigger(ctx context.Context, group *errgroup.Group, j *job) {
	name := j.entry.Collector.Name()
	if !j.inFlight.CompareAndSwap(false, true) {
		s.skipped.WithLabelValues(name).Inc()
		s.mu.Lock()
		s.states[name].Skipped++
		s.mu.Unlock()
		s.log.Warn("previous run still in progress, skipping", zap.String("collector", name))
		return
	}
	group.Go(func() error {
		defer j.inFlight.Store(false)
		s.run(ctx, j.entry.Collector)
		return nil
	})
}

// run executes one collection. A panicking collector is logged and counted as failed.
func (s *Scheduler) run(ctx context.Context, c collector.Collector) (out collector.Outcome) {
	name := c.Name()
	start := s.now()

	s.mu.Lock()
	s.states[name].Running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			out = collector.Outcome{Err: fmt.Errorf("collector panicked: %v", r)}
			s.log.Error("collector panicked", zap.String("collector", name), zap.Any("panic", r))
		}
		if out.Duration == 0 {
			out.Duration = s.now().Sub(start)
		}

		s.mu.Lock()
		st := s.states[name]
		st.Running = false
		st.Runs++
		st.LastRunAt = start
		st.LastSuccess = out.Success
		st.LastDuration = out.Duration
		st.LastError = ""
		if out.Err != nil {
			st.LastError = out.Err.Error()
		}
		s.mu.Unlock()
	}()

	s.log.Debug("collection started", zap.String("collector", name))
	return c.Run(ctx)
}

// RunAll runs every enabled collector once, concurrently, and waits for all of them.
// Results follow registration order.
func (s *Scheduler) RunAll(ctx context.Context) []Result {
	var enabled []*job
	for _, j := range s.jobs {
		if j.entry.Enabled() {
			enabled = append(enabled, j)
		}
	}

	results := make([]Result, len(enabled))
	var g errgroup.Group
	for i, j := range enabled {
		results[i].Name = j.entry.Collector.Name()
		g.Go(func() error {
			results[i].Outcome = s.run(ctx, j.entry.Collector)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// States returns a snapshot of every registered collector in registration order.
func (s *Scheduler) States() []RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunState, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *s.states[j.entry.Collector.Name()])
	}
	return out
}

// Stop cancels all loops, stops the cleanup job and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, group, c := s.cancel, s.group, s.cron
	s.cancel, s.group, s.cron = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if c != nil {
		<-c.Stop().Done()
	}
	_ = group.Wait()
	s.log.Info("scheduler stopped")
}
