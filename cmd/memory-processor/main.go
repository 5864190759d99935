// memory-processor runs the Background Processor (§4.8) as a long-lived
// daemon: drain the Extraction Queue on an interval, run the two-pass
// extractor per job, write results to the Memory Store. It is the only
// always-on component that calls the LLM.
//
// Usage:
//
//	memory-processor
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jg-phare/memoryd/pkg/memory"
	"github.com/sirupsen/logrus"
)

func main() {
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
	queue := memory.NewQueue(storageDir)
	store := memory.NewStore(storageDir, cfg)
	client := memory.NewLLMClient(cfg.ExtractionModel)
	extractor := memory.NewExtractor(client, cfg, logger)

	processor := memory.NewProcessor(cfg, registry, queue, store, extractor, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	queueDir := filepath.Dir(filepath.Join(storageDir, "extraction_queue.jsonl"))
	if err := processor.Run(ctx, queueDir); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("processor exited unexpectedly")
		os.Exit(1)
	}
}
