package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/jg-phare/memoryd/pkg/transport"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

// gracePeriod bounds how long the Supervisor waits after SIGTERM before
// escalating to SIGKILL (§4.10 step 6).
const gracePeriod = 5 * time.Second

// SupervisorResult is returned by Run for the caller to report/exit
// with (§6.6 "Supervisor CLI: mirrors worker semantics").
type SupervisorResult struct {
	ExitCode      int
	Transcripts   int
	Memories      int
	RefusedActive bool
}

// Supervisor is the Watchdog (J, §4.10). It owns the one real OS
// subprocess this module ever spawns — the Extraction Worker — and
// translates its line-delimited stdout protocol into Progress State
// updates and, optionally, a WebSocket broadcast for an external
// terminal-UI renderer (§4.10 step 4, an explicit external collaborator).
type Supervisor struct {
	cfg          Config
	progress     *ProgressTracker
	workerBinary string
	workerArgs   []string
	log          *logrus.Entry
	broadcaster  *ProgressBroadcaster
}

// NewSupervisor wires a Supervisor. workerBinary/workerArgs describe how
// to exec the Worker subprocess (e.g. the built cmd/memory-worker
// binary); broadcaster may be nil to disable the WebSocket fan-out.
func NewSupervisor(cfg Config, progress *ProgressTracker, workerBinary string, workerArgs []string, broadcaster *ProgressBroadcaster, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
	}
	return &Supervisor{
		cfg:          cfg,
		progress:     progress,
		workerBinary: workerBinary,
		workerArgs:   workerArgs,
		log:          logger.WithField("component", "supervisor"),
		broadcaster:  broadcaster,
	}
}

// Run implements §4.10 steps 1-6. ctx cancellation is treated as a
// caller-side interrupt (step 6): SIGTERM, grace period, SIGKILL.
func (s *Supervisor) Run(ctx context.Context) (SupervisorResult, error) {
	existing, _, err := s.progress.Classify(ctx, processAlive)
	if err != nil {
		return SupervisorResult{ExitCode: 1}, fmt.Errorf("memory: classify existing state: %w", err)
	}
	if existing == CrashStateRunning {
		s.log.Warn("refusing to start: another run is already in progress")
		return SupervisorResult{ExitCode: 2, RefusedActive: true}, nil
	}

	// A plain exec.Command, not CommandContext: ctx cancellation must go
	// through our own SIGTERM→grace→SIGKILL escalation (§4.10 step 6),
	// not CommandContext's immediate unconditional kill.
	cmd := exec.Command(s.workerBinary, s.workerArgs...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return SupervisorResult{ExitCode: 1}, fmt.Errorf("memory: worker stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	// The progress state exists from the start of the run; the worker
	// replaces it with its own transcript list once it is up.
	now := time.Now().UTC()
	_ = s.progress.Save(ctx, &ProgressState{Status: ProgressRunning, StartedAt: now, LastUpdate: now, PID: os.Getpid()})

	if err := cmd.Start(); err != nil {
		_ = s.progress.Clear(ctx)
		return SupervisorResult{ExitCode: 1}, fmt.Errorf("memory: start worker: %w", err)
	}

	result := SupervisorResult{}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			var ev WorkerEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				s.log.WithError(err).Warn("protocol violation: non-JSON worker stdout line, ignoring")
				continue
			}
			s.handleEvent(ev, &result)
			if s.broadcaster != nil {
				s.broadcaster.Broadcast(ev)
			}
		}
	}()

	select {
	case waitErr := <-done:
		<-drained
		return s.finish(ctx, waitErr, result)
	case <-ctx.Done():
		return s.interrupt(cmd, done, drained, result)
	}
}

func (s *Supervisor) handleEvent(ev WorkerEvent, result *SupervisorResult) {
	switch ev.Type {
	case EventSummary:
		result.Transcripts = ev.Transcripts
		result.Memories = ev.Memories
	case EventStart:
		result.Transcripts = ev.TotalTranscripts
	}
}

// finish implements §4.10 step 5.
func (s *Supervisor) finish(ctx context.Context, waitErr error, result SupervisorResult) (SupervisorResult, error) {
	state, loadErr := s.progress.Load(ctx)
	if loadErr != nil {
		s.log.WithError(loadErr).Warn("failed to load final progress state")
	}

	hasFailures := false
	if state != nil {
		for _, t := range state.Transcripts {
			if t.Status == TranscriptFailed {
				hasFailures = true
				break
			}
		}
	}

	switch {
	case waitErr == nil && !hasFailures:
		_ = s.progress.Clear(ctx)
		result.ExitCode = 0
	case waitErr == nil && hasFailures:
		if state != nil {
			state.Status = ProgressFailed
			_ = s.progress.Save(ctx, state)
		}
		result.ExitCode = 1
	default:
		if state != nil {
			state.Status = ProgressFailed
			_ = s.progress.Save(ctx, state)
		}
		result.ExitCode = 1
	}
	return result, nil
}

// interrupt implements §4.10 step 6: SIGTERM, grace period, SIGKILL.
func (s *Supervisor) interrupt(cmd *exec.Cmd, done chan error, drained chan struct{}, result SupervisorResult) (SupervisorResult, error) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-done:
	case <-time.After(gracePeriod):
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
	<-drained

	ctx := context.Background()
	state, _ := s.progress.Load(ctx)
	if state != nil {
		state.Status = ProgressCancelled
		_ = s.progress.Save(ctx, state)
	}
	result.ExitCode = 130
	return result, nil
}

// ProgressBroadcaster fans worker events out to connected WebSocket
// clients — the external terminal-UI renderer (§4.10 step 4). Adapted
// from pkg/transport/websocket.go: each accepted connection is wrapped
// as a transport.WebSocketTransport purely for its Write/Close methods,
// since the renderer is a write-only consumer here.
type ProgressBroadcaster struct {
	mu      sync.Mutex
	clients map[*transport.WebSocketTransport]struct{}
	log     *logrus.Entry
}

// NewProgressBroadcaster creates an empty broadcaster.
func NewProgressBroadcaster(logger *logrus.Logger) *ProgressBroadcaster {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
	}
	return &ProgressBroadcaster{
		clients: make(map[*transport.WebSocketTransport]struct{}),
		log:     logger.WithField("component", "progress_broadcaster"),
	}
}

// Handler is an http.HandlerFunc that accepts a WebSocket connection and
// registers it as a broadcast target until it disconnects.
func (b *ProgressBroadcaster) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.log.WithError(err).Warn("websocket accept failed")
		return
	}

	t := transport.NewWebSocketTransport(r.Context(), conn)
	b.mu.Lock()
	b.clients[t] = struct{}{}
	b.mu.Unlock()

	<-r.Context().Done()

	b.mu.Lock()
	delete(b.clients, t)
	b.mu.Unlock()
	_ = t.Close()
}

// Broadcast writes ev as JSON to every connected client, dropping any
// client whose write fails.
func (b *ProgressBroadcaster) Broadcast(ev WorkerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for t := range b.clients {
		if err := t.Write(data); err != nil {
			delete(b.clients, t)
		}
	}
}
