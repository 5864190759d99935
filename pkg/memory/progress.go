package memory

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const progressFile = ".extraction_state.json"

// ProgressTracker is the Foreground Progress State (K, §3.5, §4.11) —
// present only while a Worker run is active or its terminal state is
// being retained for operator inspection.
type ProgressTracker struct {
	path           string
	staleThreshold time.Duration
}

// NewProgressTracker creates a ProgressTracker rooted at
// storageDir/.extraction_state.json.
func NewProgressTracker(storageDir string, cfg Config) *ProgressTracker {
	return &ProgressTracker{
		path:           filepath.Join(storageDir, progressFile),
		staleThreshold: cfg.StaleThreshold,
	}
}

// Save persists state, overwriting any prior state (§4.11 "save").
func (t *ProgressTracker) Save(ctx context.Context, state *ProgressState) error {
	return withFileLock(ctx, t.path, func() error {
		return atomicWriteJSON(t.path, state)
	})
}

// Load returns the current state, or nil if no state file exists
// (§4.11 "load() → state | none").
func (t *ProgressTracker) Load(ctx context.Context) (*ProgressState, error) {
	var state *ProgressState
	err := withFileRLock(ctx, t.path, func() error {
		var s ProgressState
		loadErr := readJSON(t.path, &s)
		if os.IsNotExist(loadErr) {
			return nil
		}
		if loadErr != nil {
			return loadErr
		}
		state = &s
		return nil
	})
	return state, err
}

// Clear removes the progress state file entirely (§4.11 "clear()").
func (t *ProgressTracker) Clear(ctx context.Context) error {
	return withFileLock(ctx, t.path, func() error {
		err := os.Remove(t.path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
}

// UpdateTranscript sets status (and, for completed, memory count) on one
// transcript entry within the current state, bumping LastUpdate (§4.11
// "update_transcript"). No-ops if no state is present.
func (t *ProgressTracker) UpdateTranscript(ctx context.Context, sessionID string, status TranscriptProgressStatus, memories int, errMsg string) error {
	return withFileLock(ctx, t.path, func() error {
		var state ProgressState
		err := readJSON(t.path, &state)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}

		found := false
		for i := range state.Transcripts {
			if state.Transcripts[i].ID == sessionID {
				state.Transcripts[i].Status = status
				if status == TranscriptCompleted {
					state.Transcripts[i].Memories = memories
					now := time.Now().UTC()
					state.Transcripts[i].CompletedAt = &now
				}
				if status == TranscriptFailed {
					state.Transcripts[i].Error = errMsg
				}
				found = true
				break
			}
		}
		if !found {
			state.Transcripts = append(state.Transcripts, TranscriptProgress{
				ID: sessionID, Status: status, Memories: memories, Error: errMsg,
			})
		}
		state.LastUpdate = time.Now().UTC()
		return atomicWriteJSON(t.path, &state)
	})
}

// Classify derives the crash-classification of the current state
// (§4.11 "Crash classification"). pidAlive reports whether a process
// with the given PID is currently running; callers on Unix pass
// processAlive so the check is real rather than guessed.
func (t *ProgressTracker) Classify(ctx context.Context, pidAlive func(pid int) bool) (CrashState, *ProgressState, error) {
	state, err := t.Load(ctx)
	if err != nil {
		return "", nil, err
	}
	if state == nil {
		return CrashStateNone, nil, nil
	}

	switch state.Status {
	case ProgressCompleted:
		return CrashStateCompleted, state, nil
	case ProgressFailed:
		return CrashStateFailed, state, nil
	case ProgressCancelled:
		return CrashStateCancelled, state, nil
	}

	// status == running
	if !pidAlive(state.PID) {
		return CrashStateCrashed, state, nil
	}
	if time.Since(state.LastUpdate) > t.staleThreshold {
		return CrashStateStale, state, nil
	}
	return CrashStateRunning, state, nil
}

// processAlive reports whether pid names a live process, via the
// portable os.FindProcess + signal-0 probe (§4.11 "pid does not
// exist").
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
