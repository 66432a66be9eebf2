// Package monitor records one terminal row per client request: a bounded
// in-memory ring for cheap recent-history queries, a write-through
// persistent sink for durable history, and a fan-out to whatever event
// subscribers the caller wired in. Sink I/O is fire-and-forget so a slow
// or failing store never holds up a request.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/relaymux/relaymux/internal/events"
)

// DefaultRingCapacity bounds the in-memory ring when the caller doesn't
// pick a size.
const DefaultRingCapacity = 10000

// Row is the terminal record of one client request. Exactly one Row is
// appended per request, once the pipeline has its final outcome and before
// the handler writes that response (or error) to the client.
type Row struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	Status       int       `json:"status"`
	DurationMS   int64     `json:"duration_ms"`
	Model        string    `json:"model"`
	MappedModel  string    `json:"mapped_model"`
	AccountEmail string    `json:"account_email,omitempty"`
	InputTokens  int64     `json:"input_tokens,omitempty"`
	OutputTokens int64     `json:"output_tokens,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// LogSink is the persistence capability the monitor writes through to.
// Implementations must tolerate concurrent calls; errors are logged and
// swallowed by the monitor, never surfaced to the request path.
type LogSink interface {
	Append(ctx context.Context, row Row) error
	Recent(ctx context.Context, limit int) ([]Row, error)
	Clear(ctx context.Context) error
}

// Monitor owns the ring, the sink, and the subscriber fan-out.
type Monitor struct {
	mu    sync.RWMutex
	ring  []Row
	head  int
	count int

	sink      LogSink
	publisher events.Publisher
}

// New constructs a Monitor. A capacity <= 0 falls back to
// DefaultRingCapacity; sink and publisher may be nil.
func New(capacity int, sink LogSink, publisher events.Publisher) *Monitor {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Monitor{
		ring:      make([]Row, capacity),
		sink:      sink,
		publisher: publisher,
	}
}

// Append records one terminal row: ring first (synchronous, cheap), then
// the sink as a fire-and-forget task, then the event fan-out. Missing IDs
// and timestamps are filled in here so every caller doesn't have to.
func (m *Monitor) Append(ctx context.Context, row Row) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.ring[m.head] = row
	m.head = (m.head + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.mu.Unlock()

	if m.sink != nil {
		go func(r Row) {
			sinkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.sink.Append(sinkCtx, r); err != nil {
				log.WithError(err).Warn("request log sink append failed")
			}
		}(row)
	}

	if m.publisher != nil {
		m.publisher.Publish(ctx, events.TopicRequestCompleted, row, map[string]string{
			"model":    row.Model,
			"resolved": row.MappedModel,
		})
	}
}

// GetLogs returns up to limit rows, newest first. The persistent sink is
// the preferred source; the ring only answers when the sink is absent or
// failing.
func (m *Monitor) GetLogs(ctx context.Context, limit int) []Row {
	if limit <= 0 {
		limit = 100
	}
	if m.sink != nil {
		rows, err := m.sink.Recent(ctx, limit)
		if err == nil {
			return rows
		}
		log.WithError(err).Warn("request log sink read failed, serving from ring")
	}
	return m.recentFromRing(limit)
}

func (m *Monitor) recentFromRing(limit int) []Row {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.count
	if limit < n {
		n = limit
	}
	out := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		idx := (m.head - 1 - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out
}

// Len reports how many rows the ring currently holds.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Clear drops both the ring and the persistent rows.
func (m *Monitor) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.head = 0
	m.count = 0
	for i := range m.ring {
		m.ring[i] = Row{}
	}
	m.mu.Unlock()

	if m.sink != nil {
		return m.sink.Clear(ctx)
	}
	return nil
}

var defaultMonitor struct {
	mu  sync.RWMutex
	ref *Monitor
}

// SetDefault registers the shared Monitor instance for process-wide
// access by components constructed away from the server wiring.
func SetDefault(m *Monitor) {
	defaultMonitor.mu.Lock()
	defaultMonitor.ref = m
	defaultMonitor.mu.Unlock()
}

// Default returns the registered Monitor, if any.
func Default() *Monitor {
	defaultMonitor.mu.RLock()
	defer defaultMonitor.mu.RUnlock()
	return defaultMonitor.ref
}
