package executor

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// Breaker is the part of the circuit breaker the executor drives.
type Breaker interface {
	AllowRequest(endpoint string) bool
	RecordOutcome(endpoint string, success bool)
}

// Settings controls retries of one logical call.
type Settings struct {
	MaxAttempts   int
	BackoffFactor time.Duration
}

func DefaultSettings() Settings {
	return Settings{MaxAttempts: 3, BackoffFactor: time.Second}
}

// Attempt performs one try of a call. Returning a *CallError classifies the failure;
// any other error is treated as a network failure, or a timeout for deadline errors.
type Attempt func(ctx context.Context) error

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSleep replaces the backoff wait. The function must return ctx.Err() if ctx ends first.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// Executor runs calls through the breaker with bounded retries, reporting exactly one
// outcome per logical call.
type Executor struct {
	breaker  Breaker
	settings Settings
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zap.Logger
}

func New(breaker Breaker, settings Settings, opts ...Option) *Executor {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	e := &Executor{
		breaker:  breaker,
		settings: settings,
		sleep:    sleepCtx,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs attempt for endpoint.
//
// An open breaker rejects the call without invoking attempt. Rate limiting, 5xx gateway
// errors and timeouts are retried with backoff factor*2^(n-1). Auth and other 4xx answers
// return at once and leave the breaker untouched. Anything else ends the call and counts
// as a single breaker failure.
func (e *Executor) Execute(ctx context.Context, endpoint string, attempt Attempt) error {
	if !e.breaker.AllowRequest(endpoint) {
		return &CallError{Kind: KindBreakerOpen, Endpoint: endpoint, Err: ErrCircuitOpen}
	}

	var last *CallError
	for n := 1; n <= e.settings.MaxAttempts; n++ {
		err := attempt(ctx)
		if err == nil {
			e.breaker.RecordOutcome(endpoint, true)
			return nil
		}

		// shutdown in progress; the upstream is not to blame
		if ctx.Err() != nil {
			return &CallError{Kind: KindNetwork, Endpoint: endpoint, Err: ctx.Err()}
		}

		last = classify(endpoint, err)
		if !last.Kind.retryable() {
			break
		}
		if n == e.settings.MaxAttempts {
			e.log.Warn("giving up after retries",
				zap.String("endpoint", endpoint),
				zap.Int("attempts", n),
				zap.Stringer("kind", last.Kind))
			break
		}

		wait := e.settings.BackoffFactor * time.Duration(1<<(n-1))
		e.log.Debug("retrying upstream call",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", n),
			zap.Stringer("kind", last.Kind),
			zap.Int("status", last.StatusCode),
			zap.Duration("backoff", wait))
		if err := e.sleep(ctx, wait); err != nil {
			return &CallError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
		}
	}

	if last.Kind.reportsFailure() {
		e.breaker.RecordOutcome(endpoint, false)
	}
	return last
}

func classify(endpoint string, err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		if ce.Endpoint == "" {
			ce.Endpoint = endpoint
		}
		return ce
	}

	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &CallError{Kind: kind, Endpoint: endpoint, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
