package memory

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// logDir is the worker log directory under the storage base (§6.4).
const logDir = "memories/logs"
const workerLogGlob = "extraction_worker_*.log"

// RetentionStats reports the outcome of a log retention sweep.
type RetentionStats struct {
	LogsDeleted int
	BytesFreed  int64
}

// PruneWorkerLogs deletes extraction_worker_*.log files under
// storageDir older than retentionDays (SPEC_FULL.md supplement #1,
// grounded on pkg/session/cleanup.go's retention sweep, adapted to
// match worker log files by glob via doublestar rather than a fixed
// directory listing).
func PruneWorkerLogs(storageDir string, retentionDays int) (RetentionStats, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var stats RetentionStats
	dir := filepath.Join(storageDir, logDir)

	matches, err := doublestar.FilepathGlob(filepath.Join(dir, workerLogGlob))
	if err != nil {
		return stats, err
	}

	for _, path := range matches {
		info, statErr := os.Stat(path)
		if statErr != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		size := info.Size()
		if rmErr := os.Remove(path); rmErr == nil {
			stats.LogsDeleted++
			stats.BytesFreed += size
		}
	}

	return stats, nil
}

// Inspection is the operator-facing "/cleanup-equivalent" view (§7
// "A /cleanup-equivalent inspection interface shows the derived state").
type Inspection struct {
	State       CrashState
	Progress    *ProgressState
	LogPath     string
}

// Inspect derives the current run's crash classification and locates
// its most recent worker log, for a CLI operator command to display.
func Inspect(ctx context.Context, tracker *ProgressTracker, storageDir string) (Inspection, error) {
	state, progress, err := tracker.Classify(ctx, processAlive)
	if err != nil {
		return Inspection{}, err
	}

	logPath := latestWorkerLog(storageDir)
	return Inspection{State: state, Progress: progress, LogPath: logPath}, nil
}

func latestWorkerLog(storageDir string) string {
	dir := filepath.Join(storageDir, logDir)
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, workerLogGlob))
	if err != nil || len(matches) == 0 {
		return ""
	}

	var latest string
	var latestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(latestMod) {
			latestMod = info.ModTime()
			latest = path
		}
	}
	return latest
}

// Resume clears a stale or crashed progress record so a fresh run can
// start (§7 "resume, view-logs, or clear").
func Resume(ctx context.Context, tracker *ProgressTracker) error {
	return tracker.Clear(ctx)
}

// NewWorkerLogPath returns the path a fresh Worker run should log to
// (§6.4 "<base>/memories/logs/extraction_worker_<ts>.log"), creating
// the log directory if needed.
func NewWorkerLogPath(storageDir string, ts time.Time) (string, error) {
	dir := filepath.Join(storageDir, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "extraction_worker_"+ts.Format("20060102T150405")+".log"), nil
}
