package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu   sync.Mutex
	rows []Row
	fail bool
}

func (s *memSink) Append(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink down")
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *memSink) Recent(_ context.Context, limit int) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("sink down")
	}
	rows := s.rows
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]Row, len(rows))
	for i := range rows {
		out[i] = rows[len(rows)-1-i]
	}
	return out, nil
}

func (s *memSink) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = nil
	return nil
}

func (s *memSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func TestRingBounded(t *testing.T) {
	m := New(3, nil, nil)
	for i := 0; i < 5; i++ {
		m.Append(context.Background(), Row{Model: fmt.Sprintf("m%d", i), Status: 200})
	}

	assert.Equal(t, 3, m.Len())
	rows := m.GetLogs(context.Background(), 10)
	require.Len(t, rows, 3)
	// newest first, oldest two evicted
	assert.Equal(t, "m4", rows[0].Model)
	assert.Equal(t, "m2", rows[2].Model)
}

func TestAppendFillsIDAndTimestamp(t *testing.T) {
	m := New(4, nil, nil)
	m.Append(context.Background(), Row{Status: 200})

	rows := m.GetLogs(context.Background(), 1)
	require.Len(t, rows, 1)
	assert.NotEmpty(t, rows[0].ID)
	assert.False(t, rows[0].Timestamp.IsZero())
}

func TestWriteThroughSink(t *testing.T) {
	sink := &memSink{}
	m := New(8, sink, nil)
	m.Append(context.Background(), Row{Model: "gpt-4o", MappedModel: "gemini-2.5-pro", Status: 200})

	// sink writes are async
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)

	rows := m.GetLogs(context.Background(), 10)
	require.Len(t, rows, 1)
	assert.Equal(t, "gemini-2.5-pro", rows[0].MappedModel)
}

func TestGetLogsFallsBackToRingWhenSinkFails(t *testing.T) {
	sink := &memSink{fail: true}
	m := New(8, sink, nil)
	m.Append(context.Background(), Row{Model: "a", Status: 503})

	rows := m.GetLogs(context.Background(), 10)
	require.Len(t, rows, 1)
	assert.Equal(t, 503, rows[0].Status)
}

func TestClearDropsRingAndSink(t *testing.T) {
	sink := &memSink{}
	m := New(8, sink, nil)
	m.Append(context.Background(), Row{Model: "a"})
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Clear(context.Background()))
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 0, sink.len())
	assert.Empty(t, m.GetLogs(context.Background(), 10))
}

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, sink.Append(context.Background(), Row{ID: fmt.Sprintf("r%d", i), Status: 200}))
	}

	rows, err := sink.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r3", rows[0].ID)
	assert.Equal(t, "r2", rows[1].ID)

	require.NoError(t, sink.Clear(context.Background()))
	rows, err = sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
