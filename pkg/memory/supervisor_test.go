package memory

import (
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func TestSupervisor_Run_RefusesWhenAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	progress := NewProgressTracker(dir, cfg)
	progress.Save(context.Background(), &ProgressState{
		PID:        os.Getpid(), // alive: this very test process
		Status:     ProgressRunning,
		LastUpdate: time.Now().UTC(),
	})

	sup := NewSupervisor(cfg, progress, "/bin/sh", []string{"-c", "true"}, nil, nil)
	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.RefusedActive || result.ExitCode != 2 {
		t.Errorf("expected a refusal with exit code 2, got %+v", result)
	}
}

func TestSupervisor_Run_SuccessfulCompletion(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	progress := NewProgressTracker(dir, cfg)

	script := `echo '{"type":"start","total_transcripts":1}'; echo '{"type":"summary","transcripts":1,"memories":3}'`
	sup := NewSupervisor(cfg, progress, "/bin/sh", []string{"-c", script}, nil, nil)

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if result.Transcripts != 1 || result.Memories != 3 {
		t.Errorf("result = %+v, want transcripts=1 memories=3", result)
	}

	state, _ := progress.Load(context.Background())
	if state != nil {
		t.Errorf("expected progress state cleared on a clean completion, got %+v", state)
	}
}

func TestSupervisor_Run_WorkerFailureSetsExitOne(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	progress := NewProgressTracker(dir, cfg)

	sup := NewSupervisor(cfg, progress, "/bin/sh", []string{"-c", "exit 1"}, nil, nil)
	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
}

func TestSupervisor_Run_IgnoresMalformedLines(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	progress := NewProgressTracker(dir, cfg)

	script := `echo 'not json at all'; echo '{"type":"summary","transcripts":0,"memories":0}'`
	sup := NewSupervisor(cfg, progress, "/bin/sh", []string{"-c", script}, nil, nil)

	result, err := sup.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("a malformed protocol line must not fail the run, got exit code %d", result.ExitCode)
	}
}

func TestSupervisor_Run_ContextCancelSendsSigtermThenExitsOneThirty(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	progress := NewProgressTracker(dir, cfg)

	// A worker that ignores nothing special and just sleeps; SIGTERM's
	// default disposition kills it well within the grace period.
	sup := NewSupervisor(cfg, progress, "/bin/sh", []string{"-c", "sleep 30"}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result, err := sup.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 130 {
		t.Errorf("exit code = %d, want 130 on interrupt", result.ExitCode)
	}

	state, _ := progress.Load(context.Background())
	if state == nil || state.Status != ProgressCancelled {
		t.Fatalf("expected a cancelled progress state, got %+v", state)
	}
}

func TestSupervisor_HandleEvent_TracksStartAndSummary(t *testing.T) {
	sup := &Supervisor{}
	var result SupervisorResult

	sup.handleEvent(WorkerEvent{Type: EventStart, TotalTranscripts: 5}, &result)
	if result.Transcripts != 5 {
		t.Errorf("transcripts after start = %d, want 5", result.Transcripts)
	}

	sup.handleEvent(WorkerEvent{Type: EventSummary, Transcripts: 5, Memories: 9}, &result)
	if result.Transcripts != 5 || result.Memories != 9 {
		t.Errorf("result after summary = %+v", result)
	}
}

func TestProgressBroadcaster_BroadcastReachesConnectedClient(t *testing.T) {
	b := NewProgressBroadcaster(nil)
	srv := httptest.NewServer(b.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server goroutine a moment to register the client before
	// broadcasting into what would otherwise be an empty client set.
	time.Sleep(50 * time.Millisecond)

	b.Broadcast(WorkerEvent{Type: EventSummary, Transcripts: 2, Memories: 4})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"summary"`) {
		t.Errorf("expected the broadcast event in the client payload, got %q", data)
	}
}
