// Package metrics accumulates routing counters and exports them to
// Prometheus.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/0xcro3dile/faqroute/internal/domain/entities"
	"github.com/0xcro3dile/faqroute/internal/domain/ports"
)

// Uncategorized is the bucket for hits on entries without a category.
const Uncategorized = "uncategorized"

// Counters holds process-wide routing counters. All methods are safe for
// concurrent use; Snapshot is not a consistent cut across counters.
type Counters struct {
	total            atomic.Uint64
	hits             atomic.Uint64
	misses           atomic.Uint64
	fallbackFailures atomic.Uint64

	mu         sync.RWMutex
	byCategory map[string]*atomic.Uint64
}

var _ ports.Recorder = (*Counters)(nil)

func NewCounters() *Counters {
	return &Counters{byCategory: make(map[string]*atomic.Uint64)}
}

// Record counts one finished Answer call.
func (c *Counters) Record(o entities.QueryOutcome, fallbackFailed bool) {
	c.total.Add(1)
	if !o.Hit() {
		c.misses.Add(1)
		if fallbackFailed {
			c.fallbackFailures.Add(1)
		}
		return
	}
	c.hits.Add(1)
	c.category(o.Category).Add(1)
}

func (c *Counters) category(name string) *atomic.Uint64 {
	if name == "" {
		name = Uncategorized
	}

	c.mu.RLock()
	ctr, ok := c.byCategory[name]
	c.mu.RUnlock()
	if ok {
		return ctr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok = c.byCategory[name]; !ok {
		ctr = new(atomic.Uint64)
		c.byCategory[name] = ctr
	}
	return ctr
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total            uint64            `json:"total"`
	Hits             uint64            `json:"hits"`
	Misses           uint64            `json:"misses"`
	FallbackFailures uint64            `json:"fallback_failures"`
	HitsByCategory   map[string]uint64 `json:"hits_by_category"`
	// HitRate is hits/total: the share of queries that avoided a fallback call.
	HitRate float64 `json:"hit_rate"`
}

func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Total:            c.total.Load(),
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		FallbackFailures: c.fallbackFailures.Load(),
		HitsByCategory:   make(map[string]uint64),
	}

	c.mu.RLock()
	for name, ctr := range c.byCategory {
		s.HitsByCategory[name] = ctr.Load()
	}
	c.mu.RUnlock()

	if s.Total > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Total)
	}
	return s
}

// Categories returns the category names seen so far, sorted.
func (s Snapshot) Categories() []string {
	names := make([]string, 0, len(s.HitsByCategory))
	for name := range s.HitsByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset zeroes every counter. Only operator reinitialization should call it.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total.Store(0)
	c.hits.Store(0)
	c.misses.Store(0)
	c.fallbackFailures.Store(0)
	c.byCategory = make(map[string]*atomic.Uint64)
}

// Tee fans one outcome out to several recorders.
type Tee []ports.Recorder

func (t Tee) Record(o entities.QueryOutcome, fallbackFailed bool) {
	for _, r := range t {
		if r != nil {
			r.Record(o, fallbackFailed)
		}
	}
}
