package monitor

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileSink persists request-log rows as one JSON object per line. It is
// the default LogSink for file-backed deployments; Redis/Mongo/Postgres
// deployments can substitute their own implementation behind the same
// interface.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates the data directory if needed and returns a sink
// writing to request_logs.jsonl inside it.
func NewFileSink(dataDir string) (*FileSink, error) {
	if dataDir == "" {
		dataDir = "./data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &FileSink{path: filepath.Join(dataDir, "request_logs.jsonl")}, nil
}

// Append writes one row to the end of the log file.
func (f *FileSink) Append(_ context.Context, row Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = file.Write(data)
	return err
}

// Recent returns up to limit rows, newest first. Rows that fail to parse
// (e.g. a partial line from a crashed writer) are skipped.
func (f *FileSink) Recent(_ context.Context, limit int) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Row{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var row Row
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	// newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Clear truncates the log file.
func (f *FileSink) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Truncate(f.path, 0)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
