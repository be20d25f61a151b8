// Package daemon discovers pod log files on a node and tails them into the
// shipping pipeline. Tailing work is spread over a worker pool that grows and
// shrinks with queue pressure.
package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/logging"
)

type Config struct {
	LogRootPath        string
	ScanInterval       time.Duration
	MinWorkers         int
	MaxWorkers         int
	FileQueueSize      int
	NodeName           string
	ScaleUpThreshold   float64 // default: 0.9
	ScaleDownThreshold float64 // default: 0.3
	ScaleCheckInterval time.Duration
	// If > 0, stop tailing a file after this period without new lines
	FileIdleTimeout time.Duration
}

// Service owns the discovery scanner and the tailing workers. Every line read
// becomes one logging.LogEntry handed to the emitter; the emitter never blocks,
// so a slow downstream cannot stall tailing.
type Service struct {
	config        Config
	emitter       logging.EntryEmitter
	fileQueue     chan string
	workers       []*worker
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       *Metrics

	scaleMutex     sync.RWMutex
	currentWorkers int
	maxWorkers     int
	minWorkers     int

	seenFiles map[string]struct{}
}

type worker struct {
	id     int
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService always creates 3 + config.MinWorkers goroutines on Start()
func NewService(ctx context.Context, config Config, emitter logging.EntryEmitter) *Service {
	nCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		config:    config,
		emitter:   emitter,
		fileQueue: make(chan string, config.FileQueueSize),
		ctx:       nCtx,
		cancel:    cancel,
		metrics: &Metrics{
			FilesQueueCapacity: config.FileQueueSize,
		},
		minWorkers:     config.MinWorkers,
		maxWorkers:     config.MaxWorkers,
		currentWorkers: config.MinWorkers,
		seenFiles:      make(map[string]struct{}),
	}

	service.workers = make([]*worker, config.MaxWorkers+1)

	return service
}

func (s *Service) Start() {
	log.Infof("Starting tailing service: min workers=%d, max workers=%d, queue size=%d",
		s.minWorkers, s.maxWorkers, s.config.FileQueueSize)

	for i := 0; i < s.minWorkers; i++ {
		s.startWorker(i)
	}

	s.subServicesWg.Add(1)
	go s.scanner()

	s.subServicesWg.Add(1)
	go s.monitorAndScale()

	s.subServicesWg.Add(1)
	go s.statsReporter()

	log.Info("Tailing service started")
}

func (s *Service) Stop() {
	log.Info("Stopping tailing service...")
	s.cancel()

	s.subServicesWg.Wait()

	close(s.fileQueue)
	s.workersWg.Wait()

	log.Info("Tailing service stopped")
}

func (s *Service) startWorker(id int) {
	if id >= len(s.workers) || s.workers[id] != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(s.ctx)
	worker := &worker{
		id:     id,
		ctx:    workerCtx,
		cancel: cancel,
	}
	s.workers[id] = worker

	s.workersWg.Add(1)
	go s.worker(worker)

	s.metrics.IncWorkersActive()
	log.Debugf("Worker %d started", id)
}

func (s *Service) stopWorker(id int) {
	if id >= len(s.workers) || s.workers[id] == nil {
		return
	}

	s.workers[id].cancel()
	s.workers[id] = nil

	s.metrics.DecWorkersActive()
	log.Debugf("Worker %d stopped", id)
}

func (s *Service) worker(worker *worker) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Worker %d panicked: %v", worker.id, r)
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.DecQueuedFiles()
			s.metrics.IncWorkersBusy()
			s.tailFile(worker.ctx, filePath)
			s.metrics.DecWorkersBusy()

		case <-worker.ctx.Done():
			return
		}
	}
}

func (s *Service) tailFile(ctx context.Context, filePath string) {
	defer s.metrics.IncFilesProcessed()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Tailing panicked for %s: %v", filePath, r)
			s.metrics.IncFilesFailed()
		}
	}()

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		log.Errorf("Failed to tail file %s: %v", filePath, err)
		s.metrics.IncFilesFailed()
		return
	}
	defer t.Cleanup()

	checkTicker := time.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line := <-t.Lines:
			if line == nil {
				continue
			}
			if line.Err != nil {
				log.Warnf("Error reading from %s: %v", filePath, line.Err)
				continue
			}

			s.emitter.Emit(logging.LogEntry{
				Timestamp: time.Now(),
				Message:   line.Text,
				File:      filePath,
				Labels:    s.extractLabels(filePath),
			})
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check context status and idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) scanner() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		log.Errorf("Error discovering log files: %v", err)
		return
	}

	for _, file := range files {
		if _, ok := s.seenFiles[file]; !ok {
			s.metrics.IncFilesDiscovered()
			s.seenFiles[file] = struct{}{}
		}
		select {
		case s.fileQueue <- file:
			s.metrics.IncQueuedFiles()
		case <-s.ctx.Done():
			return

		default:
			log.Warnf("File queue full (%d/%d), skipping %s",
				len(s.fileQueue), cap(s.fileQueue), file)
		}
	}
}

func (s *Service) monitorAndScale() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(s.config.ScaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.adjustWorkers()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) adjustWorkers() {
	metrics := s.metrics.Snapshot()

	if s.currentWorkers >= s.maxWorkers && s.currentWorkers <= s.minWorkers {
		return
	}

	queueUsage := metrics.GetQueueUsage()
	workerUtilization := 0.0
	if s.currentWorkers > 0 {
		workerUtilization = float64(metrics.WorkersBusy) / float64(s.currentWorkers)
	}

	if queueUsage > s.config.ScaleUpThreshold &&
		workerUtilization > s.config.ScaleUpThreshold &&
		s.currentWorkers < s.maxWorkers {
		s.scaleUp()
	} else if queueUsage < s.config.ScaleDownThreshold &&
		workerUtilization < s.config.ScaleDownThreshold &&
		s.currentWorkers > s.minWorkers {
		s.scaleDown()
	}
}

func (s *Service) scaleUp() {
	s.scaleMutex.Lock()
	defer s.scaleMutex.Unlock()

	if s.currentWorkers >= s.maxWorkers {
		return
	}

	newWorkerID := s.currentWorkers
	s.currentWorkers++

	s.startWorker(newWorkerID)
	s.metrics.IncScaleUpOperations()

	log.Infof("Scaled up to %d workers (queue usage: %d%%)",
		s.currentWorkers, int(s.metrics.GetQueueUsage()*100))
}

func (s *Service) scaleDown() {
	s.scaleMutex.Lock()
	defer s.scaleMutex.Unlock()

	if s.currentWorkers <= s.minWorkers {
		return
	}

	workerToStop := s.currentWorkers - 1
	s.currentWorkers--

	s.stopWorker(workerToStop)
	s.metrics.IncScaleDownOperations()

	log.Infof("Scaled down to %d workers (queue usage: %d%%)",
		s.currentWorkers, int(s.metrics.GetQueueUsage()*100))
}

func (s *Service) statsReporter() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics := s.metrics.Snapshot()
			queueUsage := s.metrics.GetQueueUsage()

			log.WithFields(log.Fields{
				"workers_active": metrics.WorkersActive,
				"workers_max":    s.maxWorkers,
				"workers_busy":   metrics.WorkersBusy,
				"queued_files":   metrics.QueuedFiles,
				"queue_capacity": s.config.FileQueueSize,
				"queue_usage":    int(queueUsage * 100),
				"files_found":    metrics.FilesDiscovered,
				"files_done":     metrics.FilesProcessed,
				"scale_up":       metrics.ScaleUpOperations,
				"scale_down":     metrics.ScaleDownOperations,
			}).Info("Tailing service stats")

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %s: %v", path, err)
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}

func (s *Service) extractLabels(filePath string) map[string]string {
	labels := map[string]string{
		"node": s.config.NodeName,
		"file": filepath.Base(filePath),
	}

	parts := strings.Split(filePath, "/")
	if len(parts) >= 5 {
		podParts := strings.Split(parts[4], "_")
		if len(podParts) >= 3 {
			labels["namespace"] = podParts[0]
			labels["pod"] = podParts[1]
			labels["pod_uid"] = podParts[2]
		}

		if len(parts) >= 6 {
			labels["container"] = parts[5]
		}
	}

	return labels
}
