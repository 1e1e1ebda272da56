package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	errAPIUnreachable = "API connection failed"
	errNotChecked     = "API check has not completed yet"
)

// NamespaceLister is the one upstream call the readiness probe makes.
type NamespaceLister interface {
	ListNamespaces(ctx context.Context) ([]string, error)
}

// Readiness is the cached result of the last probe.
type Readiness struct {
	Ready          bool
	NamespaceCount int
	Error          string
	LastCheck      time.Time
}

// Prober keeps a cached readiness verdict fresh so /ready never blocks on the upstream API.
type Prober struct {
	api      NamespaceLister
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last Readiness
}

func NewProber(api NamespaceLister, interval time.Duration, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	p := &Prober{api: api, interval: interval, log: log, now: time.Now}
	p.last = Readiness{Error: errNotChecked, LastCheck: p.now().UTC()}
	return p
}

// Check probes the API once and caches the verdict.
func (p *Prober) Check(ctx context.Context) Readiness {
	namespaces, err := p.api.ListNamespaces(ctx)
	r := Readiness{LastCheck: p.now().UTC()}
	if err != nil {
		r.Error = errAPIUnreachable
		p.log.Warn("readiness check failed", zap.Error(err))
	} else {
		r.Ready = true
		r.NamespaceCount = len(namespaces)
		p.log.Debug("readiness check passed", zap.Int("namespace_count", r.NamespaceCount))
	}

	p.mu.Lock()
	p.last = r
	p.mu.Unlock()
	return r
}

// Status returns the cached verdict.
func (p *Prober) Status() Readiness {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
