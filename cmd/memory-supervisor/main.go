// memory-supervisor is the Watchdog (§4.10): it owns the one real OS
// subprocess this module ever spawns (the Extraction Worker), translates
// its progress protocol into a Progress State, and exposes a cleanup
// inspection subcommand over the same on-disk state (§7).
//
// Usage:
//
//	memory-supervisor run [-worker path/to/memory-worker] [-broadcast :8765]
//	memory-supervisor inspect
//	memory-supervisor resume
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jg-phare/memoryd/pkg/memory"
	"github.com/sirupsen/logrus"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "inspect":
		os.Exit(inspectCmd())
	case "resume":
		os.Exit(resumeCmd())
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: memory-supervisor <run|inspect|resume> [flags]")
}

func runCmd(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	workerBinary := fs.String("worker", "memory-worker", "path to the memory-worker binary")
	broadcastAddr := fs.String("broadcast", "", "optional address to serve a /progress WebSocket on (e.g. :8765)")
	fs.Parse(args)

	cfg := memory.LoadConfig()
	storageDir := cfg.ResolvedStorageDir()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	progress := memory.NewProgressTracker(storageDir, cfg)

	var broadcaster *memory.ProgressBroadcaster
	if *broadcastAddr != "" {
		broadcaster = memory.NewProgressBroadcaster(logger)
		mux := http.NewServeMux()
		mux.HandleFunc("/progress", broadcaster.Handler)
		go func() {
			if err := http.ListenAndServe(*broadcastAddr, mux); err != nil {
				logger.WithError(err).Warn("progress broadcast server stopped")
			}
		}()
	}

	supervisor := memory.NewSupervisor(cfg, progress, *workerBinary, nil, broadcaster, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	result, err := supervisor.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("supervisor run failed")
		return 1
	}
	if result.RefusedActive {
		fmt.Fprintln(os.Stderr, "memory-supervisor: another run is already in progress")
	} else {
		fmt.Printf("memory-supervisor: %d transcripts, %d memories\n", result.Transcripts, result.Memories)
	}
	return result.ExitCode
}

func inspectCmd() int {
	cfg := memory.LoadConfig()
	storageDir := cfg.ResolvedStorageDir()
	progress := memory.NewProgressTracker(storageDir, cfg)

	inspection, err := memory.Inspect(context.Background(), progress, storageDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memory-supervisor: inspect failed: %v\n", err)
		return 1
	}

	fmt.Printf("state: %s\n", inspection.State)
	if inspection.Progress != nil {
		fmt.Printf("pid: %d\n", inspection.Progress.PID)
		fmt.Printf("started_at: %s\n", inspection.Progress.StartedAt)
		fmt.Printf("last_update: %s\n", inspection.Progress.LastUpdate)
		fmt.Printf("transcripts: %d\n", len(inspection.Progress.Transcripts))
	}
	if inspection.LogPath != "" {
		fmt.Printf("log: %s\n", inspection.LogPath)
	}
	return 0
}

func resumeCmd() int {
	cfg := memory.LoadConfig()
	storageDir := cfg.ResolvedStorageDir()
	progress := memory.NewProgressTracker(storageDir, cfg)

	if err := memory.Resume(context.Background(), progress); err != nil {
		fmt.Fprintf(os.Stderr, "memory-supervisor: resume failed: %v\n", err)
		return 1
	}
	fmt.Println("memory-supervisor: cleared progress state, ready for a fresh run")
	return 0
}
