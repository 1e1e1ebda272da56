package executor_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5xc-exporter/internal/circuitbreaker"
	"github.com/f5xc-exporter/internal/executor"
)

const ep = "/api/web/namespaces"

type recordedSleep struct {
	waits []time.Duration
}

func (r *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newExecutor(t *testing.T) (*executor.Executor, *circuitbreaker.Breaker, *recordedSleep) {
	t.Helper()
	b := circuitbreaker.New(circuitbreaker.DefaultSettings())
	rs := &recordedSleep{}
	e := executor.New(b, executor.DefaultSettings(), executor.WithSleep(rs.sleep))
	return e, b, rs
}

func status(code int) executor.Attempt {
	return func(context.Context) error {
		return &executor.CallError{Kind: executor.KindForStatus(code), StatusCode: code}
	}
}

func counting(calls *int32, a executor.Attempt) executor.Attempt {
	return func(ctx context.Context) error {
		atomic.AddInt32(calls, 1)
		return a(ctx)
	}
}

func TestRateLimitedExhaustsRetriesAndReportsOnce(t *testing.T) {
	e, b, rs := newExecutor(t)
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, status(http.StatusTooManyRequests)))

	require.Error(t, err)
	assert.True(t, executor.IsRetryable(err))
	assert.EqualValues(t, 3, calls)
	assert.Equal(t, 1, b.Failures(ep))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rs.waits)
}

func TestAuthFailureIsNotRetriedNorReported(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			e, b, rs := newExecutor(t)
			b.RecordFailure(ep)
			var calls int32

			err := e.Execute(context.Background(), ep, counting(&calls, status(code)))

			assert.True(t, executor.IsAuth(err))
			assert.EqualValues(t, 1, calls)
			assert.Equal(t, 1, b.Failures(ep), "failure count must be unchanged")
			assert.Empty(t, rs.waits)
		})
	}
}

func TestNotFoundIsNotRetriedNorReported(t *testing.T) {
	e, b, _ := newExecutor(t)
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, status(http.StatusNotFound)))

	assert.True(t, executor.IsNotFound(err))
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 0, b.Failures(ep))
}

func TestOpenBreakerMakesNoAttempt(t *testing.T) {
	e, b, _ := newExecutor(t)
	for i := 0; i < 5; i++ {
		b.RecordFailure(ep)
	}
	require.Equal(t, circuitbreaker.StateOpen, b.State(ep))
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, func(context.Context) error { return nil }))

	assert.True(t, executor.IsBreakerOpen(err))
	assert.ErrorIs(t, err, executor.ErrCircuitOpen)
	assert.EqualValues(t, 0, calls)
	assert.Equal(t, 5, b.Failures(ep))
}

func TestSuccessOnRetryReportsOneSuccess(t *testing.T) {
	e, b, rs := newExecutor(t)
	b.RecordFailure(ep)
	b.RecordFailure(ep)
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, func(context.Context) error {
		if atomic.LoadInt32(&calls) == 1 {
			return &executor.CallError{Kind: executor.KindServerError, StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	}))

	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
	assert.Equal(t, 0, b.Failures(ep))
	assert.Len(t, rs.waits, 1)
}

func TestPlainNetworkErrorReportsWithoutRetry(t *testing.T) {
	e, b, _ := newExecutor(t)
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, func(context.Context) error {
		return errors.New("connection refused")
	}))

	var ce *executor.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, executor.KindNetwork, ce.Kind)
	assert.Equal(t, ep, ce.Endpoint)
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 1, b.Failures(ep))
}

func TestDeadlineExceededIsRetriedAsTimeout(t *testing.T) {
	e, b, _ := newExecutor(t)
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, func(context.Context) error {
		return fmt.Errorf("do request: %w", context.DeadlineExceeded)
	}))

	var ce *executor.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, executor.KindTimeout, ce.Kind)
	assert.EqualValues(t, 3, calls)
	assert.Equal(t, 1, b.Failures(ep))
}

func TestCancelledContextStopsWithoutReporting(t *testing.T) {
	b := circuitbreaker.New(circuitbreaker.DefaultSettings())
	e := executor.New(b, executor.Settings{MaxAttempts: 3, BackoffFactor: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan error, 1)
	go func() {
		done <- e.Execute(ctx, ep, counting(&calls, status(http.StatusBadGateway)))
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("backoff did not honour cancellation")
	}
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 0, b.Failures(ep))
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]executor.Kind{
		200: executor.KindSuccess,
		204: executor.KindSuccess,
		401: executor.KindAuth,
		403: executor.KindAuth,
		404: executor.KindNotFound,
		400: executor.KindClient,
		409: executor.KindClient,
		429: executor.KindRateLimited,
		500: executor.KindServerError,
		502: executor.KindServerError,
		503: executor.KindServerError,
		504: executor.KindServerError,
		501: executor.KindUnexpectedStatus,
	}
	for code, want := range cases {
		assert.Equal(t, want, executor.KindForStatus(code), code)
	}
}

func TestUnexpectedStatusReportsWithoutRetry(t *testing.T) {
	e, b, _ := newExecutor(t)
	var calls int32

	err := e.Execute(context.Background(), ep, counting(&calls, status(http.StatusNotImplemented)))

	require.Error(t, err)
	assert.False(t, executor.IsRetryable(err))
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 1, b.Failures(ep))
}

func TestCallErrorMessage(t *testing.T) {
	err := &executor.CallError{Kind: executor.KindRateLimited, StatusCode: 429, Endpoint: ep, Err: errors.New("slow down")}
	assert.Equal(t, "/api/web/namespaces rate_limited (HTTP 429): slow down", err.Error())
}
