package client_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f5xc-exporter/internal/circuitbreaker"
	"github.com/f5xc-exporter/internal/client"
	"github.com/f5xc-exporter/internal/executor"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

func newClient(t *testing.T, handler http.Handler, maxConcurrent int) (*client.Client, *circuitbreaker.Breaker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return clientFor(t, srv.URL, maxConcurrent, 2*time.Second)
}

func clientFor(t *testing.T, baseURL string, maxConcurrent int, timeout time.Duration) (*client.Client, *circuitbreaker.Breaker) {
	t.Helper()
	b := circuitbreaker.New(circuitbreaker.DefaultSettings())
	exec := executor.New(b, executor.DefaultSettings(), executor.WithSleep(noSleep))
	c, err := client.New(client.Config{
		BaseURL:               baseURL + "/",
		AccessToken:           "secret-token",
		UserAgent:             "f5xc-prom-exporter/test",
		RequestTimeout:        timeout,
		MaxConcurrentRequests: maxConcurrent,
	}, exec, client.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return c, b
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListNamespacesSendsHeadersAndFilters(t *testing.T) {
	var got http.Header
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.Equal(t, "/api/web/namespaces", r.URL.Path)
		writeJSON(w, map[string]any{"items": []map[string]string{
			{"name": "prod"}, {"name": "system"}, {"name": "ves-io-shared"}, {"name": ""}, {"name": "staging"},
		}})
	}), 5)

	names, err := c.ListNamespaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"prod", "staging"}, names)

	assert.Equal(t, "APIToken secret-token", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "f5xc-prom-exporter/test", got.Get("User-Agent"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestRateLimitedCallIsRetriedThenReported(t *testing.T) {
	var calls int32
	c, b := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}), 5)

	_, err := c.ListNamespaces(context.Background())
	require.Error(t, err)
	assert.True(t, executor.IsRetryable(err))
	assert.EqualValues(t, 3, calls)
	assert.Equal(t, 1, b.Failures("/api/web/namespaces"))
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	var calls int32
	c, b := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}), 5)

	_, err := c.QuotaUsage(context.Background(), "system")
	require.Error(t, err)
	assert.True(t, executor.IsAuth(err))
	assert.Contains(t, err.Error(), "invalid token")
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 0, b.Failures("/api/web/namespaces/system/quota/usage"))
}

func TestConcurrencyIsBounded(t *testing.T) {
	var inFlight, peak int32
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		writeJSON(w, map[string]any{"items": []any{}})
	}), 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListNamespaces(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestServiceGraphPayloadAndNamespace(t *testing.T) {
	var payload map[string]any
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/data/namespaces/prod/graph/service", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
		writeJSON(w, map[string]any{"data": map[string]any{"nodes": []any{
			map[string]any{
				"id": map[string]any{"vhost": "web", "site": "ce-1", "virtual_host_type": "HTTP_LOAD_BALANCER"},
				"data": map[string]any{"metric": map[string]any{"downstream": []any{
					map[string]any{"type": "HTTP_REQUEST_RATE", "value": map[string]any{"raw": []any{
						map[string]any{"timestamp": 1, "value": "1.5"},
						map[string]any{"timestamp": 2, "value": "2.5"},
					}}},
				}}},
			},
		}}})
	}), 5)

	nodes, err := c.ServiceGraph(context.Background(), "prod", 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "prod", nodes[0].ID.Namespace)
	latest, ok := client.Latest(nodes[0].Data.Metric.Downstream[0].Value.Raw)
	require.True(t, ok)
	v, err := latest.Value.Float()
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	assert.Equal(t, "120s", payload["step"])
	assert.Equal(t, "1748779080", payload["start_time"])
	assert.Equal(t, "1748779200", payload["end_time"])
	assert.Equal(t, []any{"VHOST", "SITE", "VIRTUAL_HOST_TYPE"}, payload["group_by"])
}

func TestSecurityEventQuery(t *testing.T) {
	var payload map[string]any
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		writeJSON(w, map[string]any{"aggs": map[string]any{"by_event_type": map[string]any{
			"field_aggregation": map[string]any{"buckets": []any{
				map[string]any{"key": "waf_sec_event", "count": "20"},
			}},
		}}})
	}), 5)

	buckets, err := c.SecurityEventCounts(context.Background(), "prod", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "waf_sec_event", buckets[0].Key)
	assert.Equal(t, client.Value("20"), buckets[0].Count)

	assert.Equal(t, "2025-06-01T11:55:00.000Z", payload["start_time"])
	assert.Equal(t, "2025-06-01T12:00:00.000Z", payload["end_time"])
	assert.Contains(t, payload["query"], `waf_sec_event|bot_defense_sec_event`)
}

func TestSyntheticSummaryQueryAndNotFound(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("monitorType") == "dns" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{"number_of_monitors": 3, "healthy_monitor_count": 2, "critical_monitor_count": 1})
	}), 5)

	sum, err := c.SyntheticSummary(context.Background(), "prod", "http")
	require.NoError(t, err)
	assert.Equal(t, client.Value("3"), sum.NumberOfMonitors)

	_, err = c.SyntheticSummary(context.Background(), "prod", "dns")
	assert.True(t, executor.IsNotFound(err))
}

func TestMalformedBodyIsClientError(t *testing.T) {
	var calls int32
	c, b := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [`))
	}), 5)

	_, err := c.ListNamespaces(context.Background())
	require.Error(t, err)
	var ce *executor.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, executor.KindClient, ce.Kind)
	assert.Contains(t, err.Error(), "decode")
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, 0, b.Failures("/api/web/namespaces"))
	assert.Equal(t, circuitbreaker.StateClosed, b.State("/api/web/namespaces"))
}

func TestBodyTimeoutIsRetriedAsTimeout(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [`))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c, b := clientFor(t, srv.URL, 5, 50*time.Millisecond)

	_, err := c.ListNamespaces(context.Background())
	require.Error(t, err)
	var ce *executor.CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, executor.KindTimeout, ce.Kind)
	assert.EqualValues(t, 3, calls)
	assert.Equal(t, 1, b.Failures("/api/web/namespaces"))
}

func TestErrorBodyIsDrainedForConnectionReuse(t *testing.T) {
	var conns int32
	body := strings.Repeat("x", 256*1024)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, body)
	}))
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt32(&conns, 1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)
	c, _ := clientFor(t, srv.URL, 1, 2*time.Second)

	for i := 0; i < 3; i++ {
		_, err := c.QuotaUsage(context.Background(), "system")
		require.True(t, executor.IsNotFound(err))
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&conns))
}

func TestValueDecoding(t *testing.T) {
	var v struct {
		A client.Value `json:"a"`
		B client.Value `json:"b"`
		C client.Value `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.25","b":7,"c":null}`), &v))

	a, err := v.A.Float()
	require.NoError(t, err)
	assert.Equal(t, 1.25, a)
	b, err := v.B.Float()
	require.NoError(t, err)
	assert.Equal(t, 7.0, b)
	_, err = v.C.Float()
	assert.Error(t, err)
}

func TestNewRejectsBadURL(t *testing.T) {
	exec := executor.New(circuitbreaker.New(circuitbreaker.DefaultSettings()), executor.DefaultSettings())
	_, err := client.New(client.Config{BaseURL: "not a url"}, exec)
	assert.Error(t, err)
}
