package collector

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry pairs a collector with its run interval. Interval <= 0 disables it.
type Entry struct {
	Collector Collector
	Interval  time.Duration
}

func (e Entry) Enabled() bool { return e.Interval > 0 }

// Registry keeps collectors in registration order. Names are unique.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log}
}

// Register adds c. A second collector with the same name is rejected.
func (r *Registry) Register(c Collector, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.Collector.Name() == c.Name() {
			return fmt.Errorf("collector %q already registered", c.Name())
		}
	}
	r.entries = append(r.entries, Entry{Collector: c, Interval: interval})
	r.log.Info("registered collector",
		zap.String("collector", c.Name()),
		zap.Duration("interval", interval),
		zap.Bool("enabled", interval > 0))
	return nil
}

// Entries returns a copy of the registered collectors.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
