// Package queue orders, deduplicates, and delivers extracted points to a
// downstream sink. Delivery is at-least-once against the sink but
// at-most-once in effect: re-enqueuing a point with a previously seen
// identity key is a no-op, which makes whole-document retries idempotent.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/billbuster/billpoints/internal/point"
)

// Sink receives delivered points. Implementations must tolerate concurrent
// deliveries from multiple documents and rely on point identity for
// correctness rather than external locking.
type Sink interface {
	Deliver(ctx context.Context, pts []point.Point) error
}

const defaultMaxAttempts = 3

// Manager is a thread-safe point buffer with dedup and ordered delivery.
type Manager struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	pending     []point.Point
	sink        Sink
	maxAttempts int
}

// NewManager creates a queue manager. sink may be nil; points are then
// held for Drain only.
func NewManager(sink Sink, maxAttempts int) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Manager{
		seen:        make(map[string]struct{}),
		sink:        sink,
		maxAttempts: maxAttempts,
	}
}

// Enqueue accepts points not seen before and returns the accepted subset.
// A point re-enqueued after a retried chunk is silently skipped.
func (m *Manager) Enqueue(pts []point.Point) []point.Point {
	m.mu.Lock()
	defer m.mu.Unlock()

	accepted := make([]point.Point, 0, len(pts))
	for _, p := range pts {
		key := p.Key()
		if _, dup := m.seen[key]; dup {
			continue
		}
		m.seen[key] = struct{}{}
		m.pending = append(m.pending, p)
		accepted = append(accepted, p)
	}
	return accepted
}

// Flush delivers all pending points to the sink in non-decreasing chunk
// index order, retrying transient failures. On persistent failure it
// returns a *point.SinkError and keeps the points pending for a later
// flush; nothing already delivered is rolled back.
func (m *Manager) Flush(ctx context.Context) error {
	if m.sink == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.takeLocked()
	m.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(deliveryBackoff(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				m.requeue(batch)
				return &point.SinkError{Attempts: attempt, Err: lastErr}
			}
		}
		lastErr = m.sink.Deliver(ctx, batch)
		if lastErr == nil {
			return nil
		}
	}

	m.requeue(batch)
	return &point.SinkError{Attempts: m.maxAttempts, Err: lastErr}
}

// Drain returns all pending points in non-decreasing chunk index order and
// empties the buffer. Identity keys are retained, so a drained point can
// never be accepted twice.
func (m *Manager) Drain() []point.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.takeLocked()
}

// Size returns the number of pending points.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) takeLocked() []point.Point {
	out := m.pending
	m.pending = nil
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out
}

func (m *Manager) requeue(pts []point.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(pts, m.pending...)
}

func deliveryBackoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
