// Package memory implements the conversation memory pipeline: transcript
// registry, durable extraction queue, circuit breaker, message filter,
// two-pass LLM extractor, memory store, retrieval, and claim validation.
package memory

import (
	"fmt"
	"strings"
	"time"
)

// Category is the fixed enum of memory kinds.
type Category string

const (
	CategoryLearning    Category = "learning"
	CategoryDecision    Category = "decision"
	CategoryIssueSolved Category = "issue_solved"
	CategoryPattern     Category = "pattern"
	CategoryPreference  Category = "preference"
	CategoryContext     Category = "context"
)

// validCategories is the fixed enum set (§3.1 invariants).
var validCategories = map[Category]bool{
	CategoryLearning:    true,
	CategoryDecision:    true,
	CategoryIssueSolved: true,
	CategoryPattern:     true,
	CategoryPreference:  true,
	CategoryContext:     true,
}

// IsValid reports whether c is one of the six recognized categories.
func (c Category) IsValid() bool {
	return validCategories[c]
}

// ExtractionMethod records how a Memory was produced.
type ExtractionMethod string

const (
	ExtractionMethodSDK     ExtractionMethod = "sdk"
	ExtractionMethodPattern ExtractionMethod = "pattern"
	ExtractionMethodManual  ExtractionMethod = "manual"
)

// DefaultMaxContentLength bounds Memory.Content (§3.1 "bounded in length
// by a configured maximum") when Validate is given a non-positive maximum.
// Store passes Config.ExtractionMaxContentLen as that maximum.
const DefaultMaxContentLength = 4000

// Metadata holds the non-identity attributes of a Memory.
type Metadata struct {
	Tags             []string         `json:"tags"`
	Importance       float64          `json:"importance"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	SourceSessionID  string           `json:"source_session_id,omitempty"`
}

// Memory is an immutable-after-creation extracted learning (§3.1).
type Memory struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Category      Category  `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
	Metadata      Metadata  `json:"metadata"`
	AccessedCount int       `json:"accessed_count"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`
}

// Validate enforces the §3.1 invariants, clamping where the spec calls
// for clamping and erroring where it calls for rejection.
func (m *Memory) Validate(maxContentLength int) error {
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("memory: content must be non-empty")
	}
	if maxContentLength <= 0 {
		maxContentLength = DefaultMaxContentLength
	}
	if len(m.Content) > maxContentLength {
		m.Content = m.Content[:maxContentLength]
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("memory: invalid category %q", m.Category)
	}
	if m.Metadata.Importance < 0 {
		m.Metadata.Importance = 0
	}
	if m.Metadata.Importance > 1 {
		m.Metadata.Importance = 1
	}
	if m.ID == "" {
		return fmt.Errorf("memory: id must be set")
	}
	return nil
}

// StoreDocument is the persisted JSON shape of the Memory Store (§3.2).
type StoreDocument struct {
	Version     int       `json:"version"`
	Created     time.Time `json:"created"`
	LastUpdated time.Time `json:"last_updated"`
	Count       int       `json:"count"`
	Memories    []*Memory `json:"memories"`
}

const storeSchemaVersion = 1

// TranscriptRecord is one entry in the Transcript Registry (§3.3).
type TranscriptRecord struct {
	SessionID         string     `json:"session_id"`
	TranscriptPath    string     `json:"transcript_path"`
	CreatedAt         time.Time  `json:"created_at"`
	Processed         bool       `json:"processed"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	MemoriesExtracted int        `json:"memories_extracted"`
	// Note records why a transcript was force-marked processed with 0
	// memories (corrupt/missing file, empty after filtering, extractor
	// timeout). Additive field — see DESIGN.md Open Question 3.
	Note string `json:"note,omitempty"`
}

// RegistryDocument is the persisted JSON shape of the Transcript Registry.
type RegistryDocument struct {
	SchemaVersion int                 `json:"schema_version"`
	Transcripts   []*TranscriptRecord `json:"transcripts"`
}

const registrySchemaVersion = 1

// QueueRecord is one line in the Extraction Queue (§3.4).
type QueueRecord struct {
	SessionID      string    `json:"session_id"`
	TranscriptPath string    `json:"transcript_path"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	HookEvent      string    `json:"hook_event"`
	// ContentHash guards against a corrupted/duplicated line being
	// silently reprocessed twice within one drain (SPEC_FULL.md
	// "Supplemented features" #2).
	ContentHash string `json:"content_hash"`
}

// HookEventStop is the only hook event that may enqueue work (§3.4).
const HookEventStop = "Stop"

// BreakerState is the persisted Circuit Breaker state (§3.6).
type BreakerState struct {
	WindowStart time.Time `json:"window_start"`
	EventCount  int       `json:"event_count"`
}

// ProgressStatus is the lifecycle status of a foreground run (§3.5).
type ProgressStatus string

const (
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
	ProgressCancelled ProgressStatus = "cancelled"
)

// TranscriptProgressStatus is the per-transcript status within a run.
type TranscriptProgressStatus string

const (
	TranscriptPending    TranscriptProgressStatus = "pending"
	TranscriptInProgress TranscriptProgressStatus = "in_progress"
	TranscriptCompleted  TranscriptProgressStatus = "completed"
	TranscriptFailed     TranscriptProgressStatus = "failed"
)

// TranscriptProgress is one transcript's entry in the Progress State (§3.5).
type TranscriptProgress struct {
	ID          string                    `json:"id"`
	Status      TranscriptProgressStatus  `json:"status"`
	Memories    int                       `json:"memories,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// ProgressState is the persisted Foreground Progress State (§3.5).
type ProgressState struct {
	Status      ProgressStatus        `json:"status"`
	StartedAt   time.Time             `json:"started_at"`
	LastUpdate  time.Time             `json:"last_update"`
	PID         int                   `json:"pid"`
	Transcripts []TranscriptProgress `json:"transcripts"`
}

// CrashState is the derived classification of a Progress State (§4.11).
type CrashState string

const (
	CrashStateNone      CrashState = "no_state"
	CrashStateCompleted CrashState = "completed"
	CrashStateFailed    CrashState = "failed"
	CrashStateCancelled CrashState = "cancelled"
	CrashStateCrashed   CrashState = "crashed"
	CrashStateStale     CrashState = "stale"
	CrashStateRunning   CrashState = "running"
)

// FilteredMessage is the normalized output of the Message Filter (§4.3).
type FilteredMessage struct {
	Role string
	Text string
}

// Candidate is a proposed Memory emitted by the extractor, prior to
// validation/ID assignment (§4.7).
type Candidate struct {
	Content          string
	Category         Category
	Tags             []string
	Importance       float64
	ExtractionMethod ExtractionMethod
}

// Range is a contiguous span of message indices selected by triage (§4.7).
type Range struct {
	Start int
	End   int // inclusive
}
