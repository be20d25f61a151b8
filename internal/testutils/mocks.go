package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

// MockEmitter records batches handed to it and can be told to fail or stall,
// to exercise the flush loop's failure handling.
type MockEmitter struct {
	SentBatches [][]logging.LogEntry
	EmptyCalls  int
	CloseCalls  int
	mu          sync.Mutex
	ShouldFail  bool
	Delay       time.Duration
}

func (m *MockEmitter) EmitBatch(_ context.Context, entries []logging.LogEntry) error {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return fmt.Errorf("mock emit failed")
	}

	batch := make([]logging.LogEntry, len(entries))
	copy(batch, entries)
	m.SentBatches = append(m.SentBatches, batch)
	return nil
}

func (m *MockEmitter) EmitEmpty(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmptyCalls++
	return nil
}

func (m *MockEmitter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

func (m *MockEmitter) GetSentBatches() [][]logging.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	batches := make([][]logging.LogEntry, len(m.SentBatches))
	copy(batches, m.SentBatches)
	return batches
}

func (m *MockEmitter) TotalEntries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.SentBatches {
		total += len(b)
	}
	return total
}

// MockEntryEmitter is a producer-facing sink that just remembers entries.
type MockEntryEmitter struct {
	Entries   []logging.LogEntry
	mu        sync.Mutex
	EmitDelay time.Duration
	EmitCalls int
}

func (m *MockEntryEmitter) Emit(entry logging.LogEntry) {
	if m.EmitDelay > 0 {
		time.Sleep(m.EmitDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	m.EmitCalls++
}

func (m *MockEntryEmitter) GetEntries() []logging.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]logging.LogEntry, len(m.Entries))
	copy(entries, m.Entries)
	return entries
}

func (m *MockEntryEmitter) GetStats() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries), m.EmitCalls
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"default_pod-1_uid123/container-1/app.log":          "log content 1\nline 2\n",
		"default_pod-1_uid123/container-2/app.log":          "log content 2\nerror log\n",
		"kube-system_pod-2_uid456/container/app.log":        "log content 3\ninfo message\n",
		"default_pod-3_uid789/container/app.log":            "log content 4\n",
		"monitoring_pod-4_uid101/grafana/grafana.log":       "grafana starting\n",
		"monitoring_pod-4_uid101/prometheus/prometheus.log": "prometheus ready\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
