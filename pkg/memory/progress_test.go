package memory

import (
	"context"
	"os"
	"testing"
	"time"
)

func newTestTracker(t *testing.T, staleThreshold time.Duration) *ProgressTracker {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StaleThreshold = staleThreshold
	return NewProgressTracker(t.TempDir(), cfg)
}

func TestProgressTracker_SaveLoadClear(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	ctx := context.Background()

	state, err := tr.Load(ctx)
	if err != nil {
		t.Fatalf("load before save: %v", err)
	}
	if state != nil {
		t.Fatal("expected nil state before any save")
	}

	want := &ProgressState{Status: ProgressRunning, PID: os.Getpid(), StartedAt: time.Now().UTC()}
	if err := tr.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := tr.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.PID != want.PID || got.Status != ProgressRunning {
		t.Fatalf("got %+v", got)
	}

	if err := tr.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, err = tr.Load(ctx)
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil state after clear")
	}
}

func TestProgressTracker_Clear_NoStateIsNotAnError(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	if err := tr.Clear(context.Background()); err != nil {
		t.Fatalf("clearing absent state must not error: %v", err)
	}
}

func TestProgressTracker_UpdateTranscript_FindOrAppend(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	ctx := context.Background()
	tr.Save(ctx, &ProgressState{
		Status: ProgressRunning,
		Transcripts: []TranscriptProgress{
			{ID: "t1", Status: TranscriptPending},
		},
	})

	if err := tr.UpdateTranscript(ctx, "t1", TranscriptCompleted, 4, ""); err != nil {
		t.Fatalf("update existing: %v", err)
	}
	if err := tr.UpdateTranscript(ctx, "t2", TranscriptFailed, 0, "boom"); err != nil {
		t.Fatalf("update new: %v", err)
	}

	state, _ := tr.Load(ctx)
	if len(state.Transcripts) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(state.Transcripts))
	}
	var t1, t2 *TranscriptProgress
	for i := range state.Transcripts {
		switch state.Transcripts[i].ID {
		case "t1":
			t1 = &state.Transcripts[i]
		case "t2":
			t2 = &state.Transcripts[i]
		}
	}
	if t1 == nil || t1.Status != TranscriptCompleted || t1.Memories != 4 || t1.CompletedAt == nil {
		t.Errorf("t1 = %+v", t1)
	}
	if t2 == nil || t2.Status != TranscriptFailed || t2.Error != "boom" {
		t.Errorf("t2 = %+v", t2)
	}
}

func TestProgressTracker_UpdateTranscript_NoStateIsNoOp(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	if err := tr.UpdateTranscript(context.Background(), "t1", TranscriptCompleted, 1, ""); err != nil {
		t.Fatalf("update with no state present must not error: %v", err)
	}
}

func TestProgressTracker_Classify_NoState(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	state, got, err := tr.Classify(context.Background(), processAlive)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if state != CrashStateNone || got != nil {
		t.Errorf("state = %v, got = %+v", state, got)
	}
}

func TestProgressTracker_Classify_TerminalStates(t *testing.T) {
	for _, tc := range []struct {
		status ProgressStatus
		want   CrashState
	}{
		{ProgressCompleted, CrashStateCompleted},
		{ProgressFailed, CrashStateFailed},
		{ProgressCancelled, CrashStateCancelled},
	} {
		tr := newTestTracker(t, time.Minute)
		ctx := context.Background()
		tr.Save(ctx, &ProgressState{Status: tc.status})

		state, _, err := tr.Classify(ctx, processAlive)
		if err != nil {
			t.Fatalf("classify %v: %v", tc.status, err)
		}
		if state != tc.want {
			t.Errorf("status %v => %v, want %v", tc.status, state, tc.want)
		}
	}
}

func TestProgressTracker_Classify_CrashedWhenPidDead(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	ctx := context.Background()
	tr.Save(ctx, &ProgressState{Status: ProgressRunning, PID: 999999, LastUpdate: time.Now().UTC()})

	state, _, err := tr.Classify(ctx, func(pid int) bool { return false })
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if state != CrashStateCrashed {
		t.Errorf("state = %v, want crashed", state)
	}
}

func TestProgressTracker_Classify_RunningWhenPidAliveAndFresh(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	ctx := context.Background()
	tr.Save(ctx, &ProgressState{Status: ProgressRunning, PID: os.Getpid(), LastUpdate: time.Now().UTC()})

	state, _, err := tr.Classify(ctx, func(pid int) bool { return true })
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if state != CrashStateRunning {
		t.Errorf("state = %v, want running", state)
	}
}

func TestProgressTracker_Classify_StaleWhenPidAliveButOld(t *testing.T) {
	tr := newTestTracker(t, time.Minute)
	ctx := context.Background()
	tr.Save(ctx, &ProgressState{
		Status:     ProgressRunning,
		PID:        os.Getpid(),
		LastUpdate: time.Now().Add(-2 * time.Minute).UTC(),
	})

	state, _, err := tr.Classify(ctx, func(pid int) bool { return true })
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if state != CrashStateStale {
		t.Errorf("state = %v, want stale", state)
	}
}

func TestProcessAlive_SelfPID(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("the test process itself should be reported alive")
	}
}

func TestProcessAlive_InvalidPID(t *testing.T) {
	if processAlive(0) || processAlive(-1) {
		t.Error("non-positive PIDs must never be reported alive")
	}
}
