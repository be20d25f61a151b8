package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/Chichichkin/LogShipper/internal/config"
	"github.com/Chichichkin/LogShipper/internal/daemon"
	"github.com/Chichichkin/LogShipper/internal/logging"
	"github.com/Chichichkin/LogShipper/internal/logging/batch"
	"github.com/Chichichkin/LogShipper/internal/logging/loki"
	"github.com/Chichichkin/LogShipper/internal/logging/selflog"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Loading configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor, tailer := buildPipeline(ctx, cfg)
	tailer.Start()

	batch.RegisterMetrics()
	metricsServer := startMetricsServer(cfg.MetricsAddr)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	<-signalChan
	log.Info("Received shutdown signal")

	// Stop producing before the final flush so nothing arrives after it
	tailer.Stop()
	processor.Dispose()
	_ = metricsServer.Shutdown(context.Background())
	log.Info("Shut down")
}

func buildPipeline(ctx context.Context, cfg config.Config) (*batch.Processor[logging.LogEntry], *daemon.Service) {
	diag := selflog.New()
	if cfg.SelfLog {
		diag.Enable(log.StandardLogger().Writer())
	}

	emitter := loki.NewEmitter(loki.Options{
		BaseURL:  cfg.Loki.URL,
		TenantID: cfg.Loki.TenantID,
		Username: cfg.Loki.Username,
		Password: cfg.Loki.Password,
		StaticLabels: map[string]string{
			"job":  "node-logger",
			"node": cfg.Daemon.NodeName,
		},
		Compress:    cfg.Loki.Compress,
		MaxAttempts: cfg.Loki.MaxAttempts,
		Timeout:     cfg.Loki.Timeout,
	})

	processor, err := batch.NewProcessor[logging.LogEntry](ctx, emitter, batch.Options{
		BatchSizeLimit:        cfg.Batch.SizeLimit,
		Period:                cfg.Batch.Period,
		QueueLimit:            cfg.Batch.QueueLimit,
		EagerlyEmitFirstEvent: cfg.Batch.EagerlyEmitFirstEvent,
		MinimumBackoff:        cfg.Batch.MinimumBackoff,
		MaximumBackoff:        cfg.Batch.MaximumBackoff,
		DropBatchThreshold:    cfg.Batch.DropBatchThreshold,
		DropQueueThreshold:    cfg.Batch.DropQueueThreshold,
		Diagnostics:           diag,
	})
	if err != nil {
		log.Fatalf("Building batch processor: %v", err)
	}

	tailer := daemon.NewService(ctx, daemon.Config{
		LogRootPath:        cfg.Daemon.LogRootPath,
		ScanInterval:       cfg.Daemon.ScanInterval,
		MinWorkers:         cfg.Daemon.MinWorkers,
		MaxWorkers:         cfg.Daemon.MaxWorkers,
		FileQueueSize:      cfg.Daemon.FileQueueSize,
		NodeName:           cfg.Daemon.NodeName,
		ScaleUpThreshold:   cfg.Daemon.ScaleUpThreshold,
		ScaleDownThreshold: cfg.Daemon.ScaleDownThreshold,
		ScaleCheckInterval: cfg.Daemon.ScaleCheckInterval,
		FileIdleTimeout:    cfg.Daemon.FileIdleTimeout,
	}, processor)

	return processor, tailer
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server: %v", err)
		}
	}()
	return server
}
