// memory-worker is the Extraction Worker subprocess (§4.9). It runs in
// its own OS process, invoked by memory-supervisor, and speaks a
// strictly line-delimited JSON protocol on stdout (§6.3). Logs go to a
// file, never stdout.
//
// Usage:
//
//	memory-worker
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jg-phare/memoryd/pkg/memory"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := memory.LoadConfig()
	storageDir := cfg.ResolvedStorageDir()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logPath, err := memory.NewWorkerLogPath(storageDir, time.Now())
	if err == nil {
		if f, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
			logger.SetOutput(f)
			defer f.Close()
		}
	}

	registry := memory.NewRegistry(storageDir, nil)
	store := memory.NewStore(storageDir, cfg)
	client := memory.NewLLMClient(cfg.ExtractionModel)
	extractor := memory.NewExtractor(client, cfg, logger)
	progress := memory.NewProgressTracker(storageDir, cfg)

	worker := memory.NewWorker(cfg, registry, store, extractor, progress, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return worker.Run(ctx)
}
