package daemon

import (
	"sync"
)

// Metrics are the tailing service's internal counters, read periodically by
// the stats reporter and the scaling monitor.
type Metrics struct {
	FilesDiscovered     int
	FilesProcessed      int
	FilesFailed         int
	QueuedFiles         int
	FilesQueueCapacity  int
	WorkersActive       int
	WorkersBusy         int
	ScaleUpOperations   int
	ScaleDownOperations int
	mu                  sync.RWMutex
}

func (m *Metrics) IncFilesDiscovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesDiscovered++
}

func (m *Metrics) IncFilesProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesProcessed++
}

func (m *Metrics) IncFilesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FilesFailed++
}

func (m *Metrics) IncQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles++
}

func (m *Metrics) DecQueuedFiles() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueuedFiles--
}

func (m *Metrics) IncWorkersActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersActive++
}

func (m *Metrics) DecWorkersActive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersActive--
}

func (m *Metrics) IncWorkersBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersBusy++
}

func (m *Metrics) DecWorkersBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WorkersBusy--
}

func (m *Metrics) IncScaleUpOperations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScaleUpOperations++
}

func (m *Metrics) IncScaleDownOperations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScaleDownOperations++
}

func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		FilesDiscovered:     m.FilesDiscovered,
		FilesProcessed:      m.FilesProcessed,
		FilesFailed:         m.FilesFailed,
		QueuedFiles:         m.QueuedFiles,
		FilesQueueCapacity:  m.FilesQueueCapacity,
		WorkersActive:       m.WorkersActive,
		WorkersBusy:         m.WorkersBusy,
		ScaleUpOperations:   m.ScaleUpOperations,
		ScaleDownOperations: m.ScaleDownOperations,
	}
}

func (m *Metrics) GetQueueUsage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FilesQueueCapacity == 0 {
		return 0
	}
	return float64(m.QueuedFiles) / float64(m.FilesQueueCapacity)
}
