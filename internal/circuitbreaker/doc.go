// Package circuitbreaker implements a per-endpoint circuit breaker for upstream API calls.
//
// Every endpoint has its own state machine:
//
//   - CLOSED: calls pass; consecutive failures are counted
//   - OPEN: calls are rejected until the timeout elapses
//   - HALF_OPEN: probes pass; enough successes close, any failure reopens
//
// Usage:
//
//	b := circuitbreaker.New(circuitbreaker.DefaultSettings())
//	if b.AllowRequest("/api/web/namespaces") {
//	    err := call()
//	    b.RecordOutcome("/api/web/namespaces", err == nil)
//	}
//
// Endpoints are created lazily and removed by CleanupStale once idle longer than a TTL.
package circuitbreaker
