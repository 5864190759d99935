package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newTestWorker(t *testing.T, cfg Config) (*Worker, *Registry, *Store, *ProgressTracker, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	registry := NewRegistry(dir, nil)
	store := NewStore(dir, cfg)
	progress := NewProgressTracker(dir, cfg)
	extractor := NewExtractor(nil, cfg, nil)
	var out bytes.Buffer
	w := NewWorker(cfg, registry, store, extractor, progress, &out)
	return w, registry, store, progress, &out
}

func decodeEvents(t *testing.T, out *bytes.Buffer) []WorkerEvent {
	t.Helper()
	var events []WorkerEvent
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var ev WorkerEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("malformed worker event line %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestWorker_Run_NoWork(t *testing.T) {
	cfg := DefaultConfig()
	w, _, _, _, out := newTestWorker(t, cfg)

	code := w.Run(context.Background())
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	events := decodeEvents(t, out)
	if len(events) != 1 || events[0].Type != EventNoWork {
		t.Fatalf("expected a single no_work event, got %+v", events)
	}
}

func TestWorker_Run_FullSuccess(t *testing.T) {
	cfg := DefaultConfig()
	w, registry, store, progress, out := newTestWorker(t, cfg)
	ctx := context.Background()

	path := writeTranscript(t, `{"type":"user","sessionId":"s1","message":{"role":"user","content":"hello there, friend"}}`)
	registry.AddTranscriptRecord(ctx, "s1", path)

	code := w.Run(ctx)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	events := decodeEvents(t, out)
	var sawStart, sawComplete, sawSummary bool
	for _, ev := range events {
		switch ev.Type {
		case EventStart:
			sawStart = true
			if ev.TotalTranscripts != 1 {
				t.Errorf("total_transcripts = %d, want 1", ev.TotalTranscripts)
			}
		case EventExtractionComplete:
			sawComplete = true
		case EventSummary:
			sawSummary = true
			if ev.Transcripts != 1 {
				t.Errorf("summary transcripts = %d, want 1", ev.Transcripts)
			}
		}
	}
	if !sawStart || !sawComplete || !sawSummary {
		t.Fatalf("missing expected event types, got %+v", events)
	}

	rec, _ := registry.Get(ctx, "s1")
	if !rec.Processed {
		t.Error("expected the transcript marked processed")
	}

	state, _ := progress.Load(ctx)
	if state != nil {
		t.Errorf("expected progress state cleared after full success, got %+v", state)
	}
	_ = store
}

func TestWorker_Run_PartialFailureReturnsOne(t *testing.T) {
	cfg := DefaultConfig()
	w, registry, _, progress, _ := newTestWorker(t, cfg)
	ctx := context.Background()

	registry.AddTranscriptRecord(ctx, "bad", "/does/not/exist.jsonl")

	code := w.Run(ctx)
	if code != 1 {
		t.Errorf("exit code = %d, want 1 on a per-transcript failure", code)
	}

	state, _ := progress.Load(ctx)
	if state == nil || state.Status != ProgressFailed {
		t.Fatalf("expected a retained failed progress state, got %+v", state)
	}
}

func TestWorker_Run_SurfacesCostUSD(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	registry := NewRegistry(dir, nil)
	store := NewStore(dir, cfg)
	progress := NewProgressTracker(dir, cfg)

	client := &mockLLMClient{responses: []*mockStream{
		toolUseStreamWithUsage("emit_triage_ranges", triageOutput{
			Ranges: []triageRangeOut{{Start: 0, End: 0}},
		}, 1000, 100),
		toolUseStreamWithUsage("emit_memory_candidates", extractionOutput{
			Memories: []candidateOut{
				{Content: "kept", Category: "learning", Importance: floatPtr(0.6)},
			},
		}, 2000, 200),
	}}
	extractor := NewExtractor(client, cfg, nil)

	var out bytes.Buffer
	w := NewWorker(cfg, registry, store, extractor, progress, &out)

	path := writeTranscript(t, `{"type":"user","sessionId":"s1","message":{"role":"user","content":"hello there, friend"}}`)
	registry.AddTranscriptRecord(context.Background(), "s1", path)

	code := w.Run(context.Background())
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	events := decodeEvents(t, &out)
	var sawCompleteCost, sawSummaryCost float64
	for _, ev := range events {
		switch ev.Type {
		case EventExtractionComplete:
			sawCompleteCost = ev.CostUSD
		case EventSummary:
			sawSummaryCost = ev.CostUSD
		}
	}
	if sawCompleteCost <= 0 {
		t.Errorf("expected a positive cost_usd on extraction_complete, got %v", sawCompleteCost)
	}
	if sawSummaryCost != sawCompleteCost {
		t.Errorf("summary cost_usd = %v, want it to equal the single transcript's cost %v", sawSummaryCost, sawCompleteCost)
	}
}

func TestWorker_Run_CancelledMidBatch(t *testing.T) {
	cfg := DefaultConfig()
	w, registry, _, progress, _ := newTestWorker(t, cfg)

	path1 := writeTranscript(t, `{"type":"user","sessionId":"s1","message":{"role":"user","content":"first"}}`)
	path2 := writeTranscript(t, `{"type":"user","sessionId":"s2","message":{"role":"user","content":"second"}}`)
	registry.AddTranscriptRecord(context.Background(), "s1", path1)
	registry.AddTranscriptRecord(context.Background(), "s2", path2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already-cancelled context: the very first select hits ctx.Done()

	code := w.Run(ctx)
	if code != 130 {
		t.Errorf("exit code = %d, want 130 on cancellation", code)
	}

	state, _ := progress.Load(context.Background())
	if state == nil || state.Status != ProgressCancelled {
		t.Fatalf("expected a cancelled progress state, got %+v", state)
	}
}
