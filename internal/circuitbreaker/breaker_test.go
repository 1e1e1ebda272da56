package circuitbreaker_test

import (
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/f5xc-exporter/internal/circuitbreaker"
	"github.com/f5xc-exporter/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const ep = "/api/web/namespaces"

var _ = Describe("Breaker", func() {
	var (
		clock *fakeClock
		b     *circuitbreaker.Breaker
	)

	trip := func() {
		for i := 0; i < 5; i++ {
			Expect(b.AllowRequest(ep)).To(BeTrue())
			b.RecordFailure(ep)
		}
	}

	BeforeEach(func() {
		clock = &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
		b = circuitbreaker.New(circuitbreaker.DefaultSettings(), circuitbreaker.WithClock(clock.Now))
	})

	Describe("a new endpoint", func() {
		It("starts CLOSED and allows requests", func() {
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateClosed))
			Expect(b.AllowRequest(ep)).To(BeTrue())
			Expect(b.Failures(ep)).To(Equal(0))
		})
	})

	Context("when CLOSED", func() {
		It("stays closed below the failure threshold", func() {
			for i := 0; i < 4; i++ {
				b.RecordFailure(ep)
			}
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateClosed))
			Expect(b.Failures(ep)).To(Equal(4))
		})

		It("resets the failure count on success", func() {
			for i := 0; i < 4; i++ {
				b.RecordFailure(ep)
			}
			b.RecordSuccess(ep)
			Expect(b.Failures(ep)).To(Equal(0))
			b.RecordFailure(ep)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateClosed))
		})

		It("opens after 5 consecutive failures", func() {
			trip()
			snap, ok := b.Snapshot(ep)
			Expect(ok).To(BeTrue())
			Expect(snap.State).To(Equal(circuitbreaker.StateOpen))
			Expect(snap.OpenedAt).To(Equal(clock.Now()))
		})

		It("tracks endpoints independently", func() {
			trip()
			Expect(b.State("/other")).To(Equal(circuitbreaker.StateClosed))
			Expect(b.AllowRequest("/other")).To(BeTrue())
		})
	})

	Context("when OPEN", func() {
		BeforeEach(trip)

		It("rejects requests for the whole timeout", func() {
			Expect(b.AllowRequest(ep)).To(BeFalse())
			clock.Advance(59 * time.Second)
			Expect(b.AllowRequest(ep)).To(BeFalse())
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateOpen))
		})

		It("moves to HALF_OPEN lazily on the first check after the timeout", func() {
			clock.Advance(60 * time.Second)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateOpen))
			Expect(b.AllowRequest(ep)).To(BeTrue())
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("ignores a late success from a call admitted earlier", func() {
			b.RecordSuccess(ep)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateOpen))
			Expect(b.AllowRequest(ep)).To(BeFalse())
		})
	})

	Context("when HALF_OPEN", func() {
		BeforeEach(func() {
			trip()
			clock.Advance(60 * time.Second)
			Expect(b.AllowRequest(ep)).To(BeTrue())
		})

		It("closes after 2 consecutive successes with failures reset", func() {
			b.RecordSuccess(ep)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateHalfOpen))
			b.RecordSuccess(ep)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateClosed))
			Expect(b.Failures(ep)).To(Equal(0))
		})

		It("reopens on a single failure with a fresh opened_at and no carried successes", func() {
			b.RecordSuccess(ep)
			clock.Advance(5 * time.Second)
			b.RecordFailure(ep)

			snap, _ := b.Snapshot(ep)
			Expect(snap.State).To(Equal(circuitbreaker.StateOpen))
			Expect(snap.OpenedAt).To(Equal(clock.Now()))
			Expect(snap.ConsecutiveSuccesses).To(Equal(0))
			Expect(b.AllowRequest(ep)).To(BeFalse())

			// the new timeout counts from the reopen, not the first trip
			clock.Advance(59 * time.Second)
			Expect(b.AllowRequest(ep)).To(BeFalse())
			clock.Advance(time.Second)
			Expect(b.AllowRequest(ep)).To(BeTrue())
			b.RecordSuccess(ep)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("admits any number of concurrent probes", func() {
			var wg sync.WaitGroup
			allowed := make(chan bool, 50)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					allowed <- b.AllowRequest(ep)
				}()
			}
			wg.Wait()
			close(allowed)
			for a := range allowed {
				Expect(a).To(BeTrue())
			}
		})

		It("reopens on one failing probe even while others are in flight", func() {
			for i := 0; i < 3; i++ {
				Expect(b.AllowRequest(ep)).To(BeTrue())
			}
			b.RecordSuccess(ep)
			b.RecordFailure(ep)
			b.RecordSuccess(ep)
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateOpen))
			Expect(b.AllowRequest(ep)).To(BeFalse())
		})
	})

	Describe("CleanupStale", func() {
		It("removes endpoints idle longer than the ttl and keeps recent ones", func() {
			trip()
			clock.Advance(2 * time.Hour)
			Expect(b.AllowRequest("/recent")).To(BeTrue())
			clock.Advance(23 * time.Hour)

			Expect(b.CleanupStale(24 * time.Hour)).To(Equal(1))
			Expect(b.Endpoints()).To(ConsistOf("/recent"))
		})

		It("lets a swept endpoint start fresh in CLOSED", func() {
			trip()
			clock.Advance(25 * time.Hour)
			Expect(b.CleanupStale(24 * time.Hour)).To(Equal(1))

			_, ok := b.Snapshot(ep)
			Expect(ok).To(BeFalse())
			Expect(b.AllowRequest(ep)).To(BeTrue())
			Expect(b.State(ep)).To(Equal(circuitbreaker.StateClosed))
			Expect(b.Failures(ep)).To(Equal(0))
		})

		It("returns zero when nothing is stale", func() {
			b.AllowRequest(ep)
			Expect(b.CleanupStale(time.Hour)).To(Equal(0))
		})
	})

	Describe("metrics", func() {
		It("publishes state and failures and counts cleaned endpoints", func() {
			reg := prometheus.NewRegistry()
			m := circuitbreaker.NewMetrics(metrics.NewMetricFactory(reg))
			b = circuitbreaker.New(circuitbreaker.DefaultSettings(),
				circuitbreaker.WithClock(clock.Now), circuitbreaker.WithMetrics(m))

			trip()
			expected := `
# HELP f5xc_circuit_breaker_state Circuit breaker state (0=closed, 1=open, 2=half_open)
# TYPE f5xc_circuit_breaker_state gauge
f5xc_circuit_breaker_state{endpoint="/api/web/namespaces"} 1
# HELP f5xc_circuit_breaker_failures Circuit breaker consecutive failure count
# TYPE f5xc_circuit_breaker_failures gauge
f5xc_circuit_breaker_failures{endpoint="/api/web/namespaces"} 5
`
			Expect(testutil.GatherAndCompare(reg, strings.NewReader(expected),
				"f5xc_circuit_breaker_state", "f5xc_circuit_breaker_failures")).To(Succeed())

			clock.Advance(48 * time.Hour)
			Expect(b.CleanupStale(24 * time.Hour)).To(Equal(1))

			n, err := testutil.GatherAndCount(reg, "f5xc_circuit_breaker_state")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(0))

			cleaned := `
# HELP f5xc_circuit_breaker_endpoints_cleaned_total Total number of stale circuit breaker endpoints removed
# TYPE f5xc_circuit_breaker_endpoints_cleaned_total counter
f5xc_circuit_breaker_endpoints_cleaned_total 1
`
			Expect(testutil.GatherAndCompare(reg, strings.NewReader(cleaned),
				"f5xc_circuit_breaker_endpoints_cleaned_total")).To(Succeed())
		})
	})

	Describe("State.String", func() {
		It("names every state", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF_OPEN"))
			Expect(circuitbreaker.State(9).String()).To(Equal("UNKNOWN"))
		})
	})
})
