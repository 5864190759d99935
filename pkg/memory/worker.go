package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Worker is the Extraction Worker subprocess (I, §4.9). It runs in its
// own OS process, invoked by the Supervisor, and speaks a strictly
// line-delimited JSON protocol on stdout (§6.3) while logging to a file
// (never stdout, so the protocol stays unambiguous).
type Worker struct {
	cfg       Config
	registry  *Registry
	queue     *Queue
	store     *Store
	extractor *Extractor
	progress  *ProgressTracker
	out       io.Writer
	pid       int
}

// NewWorker wires a Worker. out is the stream the line-delimited
// protocol is written to — production callers pass os.Stdout.
func NewWorker(cfg Config, registry *Registry, store *Store, extractor *Extractor, progress *ProgressTracker, out io.Writer) *Worker {
	return &Worker{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		extractor: extractor,
		progress:  progress,
		out:       out,
		pid:       os.Getpid(),
	}
}

func (w *Worker) emit(ev WorkerEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		return // a marshal failure here would itself violate the protocol; nothing to do but drop it
	}
	fmt.Fprintln(w.out, string(line))
}

// Run executes the full batch against the transcripts the registry
// reports unprocessed at start (§4.9 step 1, "snapshot at start" — later
// enqueues during this run are picked up by a subsequent run, not this
// one). Returns the process exit code per §6.6.
func (w *Worker) Run(ctx context.Context) int {
	// The snapshot and the first progress save use a context without
	// cancellation, so a run cancelled before it starts still records a
	// cancelled progress state.
	lockCtx := context.WithoutCancel(ctx)
	records, err := w.registry.GetUnprocessed(lockCtx)
	if err != nil {
		w.emit(WorkerEvent{Type: EventError, Error: "registry read failed: " + err.Error()})
		return 1
	}
	if len(records) == 0 {
		w.emit(WorkerEvent{Type: EventNoWork})
		return 0
	}

	state := &ProgressState{
		Status:    ProgressRunning,
		StartedAt: time.Now().UTC(),
		PID:       w.pid,
	}
	for _, r := range records {
		state.Transcripts = append(state.Transcripts, TranscriptProgress{ID: r.SessionID, Status: TranscriptPending})
	}
	state.LastUpdate = time.Now().UTC()
	_ = w.progress.Save(lockCtx, state)

	w.emit(WorkerEvent{Type: EventStart, TotalTranscripts: len(records)})

	total := len(records)
	var totalMemories int
	var totalCost float64
	var anyFailure bool

	for i, rec := range records {
		select {
		case <-ctx.Done():
			_ = w.progress.UpdateTranscript(context.Background(), rec.SessionID, TranscriptFailed, 0, "cancelled")
			w.finalizeCancel(records[i:])
			return 130
		default:
		}

		current := i + 1
		w.emit(WorkerEvent{Type: EventProgress, Current: current, Total: total, SessionID: rec.SessionID, Stage: "triage"})
		_ = w.progress.UpdateTranscript(ctx, rec.SessionID, TranscriptInProgress, 0, "")

		memories, costUSD, runErr := w.runOne(ctx, rec)
		if runErr != nil {
			anyFailure = true
			w.emit(WorkerEvent{Type: EventError, SessionID: rec.SessionID, Error: runErr.Error()})
			_ = w.progress.UpdateTranscript(ctx, rec.SessionID, TranscriptFailed, 0, runErr.Error())
			continue
		}

		totalMemories += memories
		totalCost += costUSD
		w.emit(WorkerEvent{Type: EventExtractionComplete, SessionID: rec.SessionID, Memories: memories, CostUSD: costUSD})
		_ = w.progress.UpdateTranscript(ctx, rec.SessionID, TranscriptCompleted, memories, "")
	}

	w.emit(WorkerEvent{Type: EventSummary, Transcripts: total, Memories: totalMemories, Time: time.Now().UTC().Format(time.RFC3339), CostUSD: totalCost})

	if anyFailure {
		st, _ := w.progress.Load(ctx)
		if st != nil {
			st.Status = ProgressFailed
			_ = w.progress.Save(ctx, st)
		}
		return 1
	}

	_ = w.progress.Clear(ctx)
	return 0
}

// runOne runs triage + deep extraction + persistence for one transcript
// (§4.9 steps 3.c-3.e), emitting triage_complete and optional
// extraction_progress events along the way.
func (w *Worker) runOne(ctx context.Context, rec *TranscriptRecord) (int, float64, error) {
	raw, err := os.ReadFile(rec.TranscriptPath)
	if err != nil {
		_ = w.registry.MarkTranscriptProcessed(ctx, rec.SessionID, 0, "transcript unreadable: "+err.Error())
		return 0, 0, fmt.Errorf("read transcript: %w", err)
	}

	filtered := FilterTranscript(raw, rec.SessionID, nil)
	if len(filtered) == 0 {
		_ = w.registry.MarkTranscriptProcessed(ctx, rec.SessionID, 0, "")
		return 0, 0, nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, w.cfg.ExtractionTimeout)
	defer cancel()

	result := w.extractor.Extract(extractCtx, filtered, firstUserText(filtered))
	w.emit(WorkerEvent{Type: EventTriageComplete, SessionID: rec.SessionID, Ranges: result.Ranges, Coverage: result.Coverage})

	candidates := make([]*Memory, 0, len(result.Candidates))
	for i, c := range result.Candidates {
		candidates = append(candidates, &Memory{
			Content:  c.Content,
			Category: c.Category,
			Metadata: Metadata{
				Tags:             c.Tags,
				Importance:       c.Importance,
				ExtractionMethod: c.ExtractionMethod,
				SourceSessionID:  rec.SessionID,
			},
		})
		w.emit(WorkerEvent{
			Type:              EventExtractionProgress,
			SessionID:         rec.SessionID,
			MessagesProcessed: i + 1,
			MessagesTotal:     len(result.Candidates),
			Percent:           float64(i+1) / float64(len(result.Candidates)) * 100,
		})
	}

	if len(candidates) > 0 {
		if err := w.store.AddBatch(ctx, candidates); err != nil {
			return 0, result.CostUSD, fmt.Errorf("store write: %w", err)
		}
		if err := w.store.RotateIfNeeded(ctx); err != nil {
			return 0, result.CostUSD, fmt.Errorf("rotate: %w", err)
		}
	}

	if err := w.registry.MarkTranscriptProcessed(ctx, rec.SessionID, len(candidates), ""); err != nil {
		return len(candidates), result.CostUSD, fmt.Errorf("mark processed: %w", err)
	}

	return len(candidates), result.CostUSD, nil
}

// finalizeCancel marks the remaining, not-yet-attempted transcripts as
// failed and writes a final cancelled line (§4.9 "Signal handling").
func (w *Worker) finalizeCancel(remaining []*TranscriptRecord) {
	ctx := context.Background()
	for _, rec := range remaining[1:] {
		_ = w.progress.UpdateTranscript(ctx, rec.SessionID, TranscriptFailed, 0, "cancelled")
	}
	st, _ := w.progress.Load(ctx)
	if st != nil {
		st.Status = ProgressCancelled
		_ = w.progress.Save(ctx, st)
	}
	w.emit(WorkerEvent{Type: EventError, Error: "worker cancelled"})
}
