package executor

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies the result of one upstream attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindServerError
	KindTimeout
	KindAuth
	KindNotFound
	KindClient
	KindNetwork
	KindBreakerOpen
	KindUnexpectedStatus
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindTimeout:
		return "timeout"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindClient:
		return "client_error"
	case KindNetwork:
		return "network"
	case KindBreakerOpen:
		return "breaker_open"
	case KindUnexpectedStatus:
		return "unexpected_status"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is wrapped by the CallError returned when the breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CallError is the typed failure of a logical upstream call.
type CallError struct {
	Kind       Kind
	StatusCode int
	Endpoint   string
	Err        error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// retryable kinds are retried with backoff and count against the breaker once exhausted.
func (k Kind) retryable() bool {
	return k == KindRateLimited || k == KindServerError || k == KindTimeout
}

// reportsFailure reports whether a final failure of this kind counts against the breaker.
// Auth and other 4xx answers prove the upstream is reachable.
func (k Kind) reportsFailure() bool {
	switch k {
	case KindAuth, KindNotFound, KindClient, KindBreakerOpen:
		return false
	default:
		return true
	}
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(code int) Kind {
	switch {
	case code >= 200 && code < 300:
		return KindSuccess
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusInternalServerError, code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return KindServerError
	case code >= 400 && code < 500:
		return KindClient
	default:
		// other 5xx and 1xx/3xx: counted against the breaker, never retried
		return KindUnexpectedStatus
	}
}

func kindOf(err error) (Kind, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

func is(err error, k Kind) bool {
	got, ok := kindOf(err)
	return ok && got == k
}

func IsAuth(err error) bool        { return is(err, KindAuth) }
func IsNotFound(err error) bool    { return is(err, KindNotFound) }
func IsBreakerOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || is(err, KindBreakerOpen)
}

func IsRetryable(err error) bool {
	k, ok := kindOf(err)
	return ok && k.retryable()
}
