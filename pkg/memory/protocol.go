package memory

import "encoding/json"

// HookInput is the superset of fields the host may send on stdin across
// all recognized hook events (§6.1). Unrecognized fields are ignored;
// fields irrelevant to the current event are simply left zero.
type HookInput struct {
	HookEventName  string          `json:"hook_event_name"`
	Prompt         string          `json:"prompt,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	TranscriptPath string          `json:"transcript_path,omitempty"`
	Message        *HookMessage    `json:"message,omitempty"`
	Extra          json.RawMessage `json:"-"`
}

// HookMessage is the nested message object on a tool_completed event.
type HookMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HookOutput is the single-line JSON response every hook writes to
// stdout (§6.1). Only the fields relevant to the triggering event are
// populated; all are omitted when zero.
type HookOutput struct {
	AdditionalContext string         `json:"additionalContext,omitempty"`
	Warning           string         `json:"warning,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Worker progress protocol event type strings (§4.9, §6.3). Exactly one
// JSON object per stdout line, each carrying one of these as its "type".
const (
	EventStart              = "start"
	EventProgress           = "progress"
	EventTriageComplete     = "triage_complete"
	EventExtractionProgress = "extraction_progress"
	EventExtractionComplete = "extraction_complete"
	EventError              = "error"
	EventSummary            = "summary"
	EventNoWork             = "no_work"
)

// WorkerEvent is the single wire shape emitted for every worker stdout
// line. Fields are a union over all event types; only those relevant to
// Type are populated (kept flat, rather than one struct per event type,
// so the worker can marshal a single value per line — §6.3 "exactly one
// JSON object per line").
type WorkerEvent struct {
	Type string `json:"type"`

	// start
	TotalTranscripts int `json:"total_transcripts,omitempty"`

	// progress / extraction_progress
	Current          int     `json:"current,omitempty"`
	Total            int     `json:"total,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	Stage            string  `json:"stage,omitempty"`
	MessagesProcessed int    `json:"messages_processed,omitempty"`
	MessagesTotal    int     `json:"messages_total,omitempty"`
	Percent          float64 `json:"percent,omitempty"`

	// triage_complete
	Ranges   []Range `json:"ranges,omitempty"`
	Coverage float64 `json:"coverage,omitempty"`

	// extraction_complete; also summary's total memory count (§4.9 step 4,
	// "memories":total shares the same key as extraction_complete's).
	Memories int `json:"memories,omitempty"`

	// error
	Error string `json:"error,omitempty"`

	// summary
	Transcripts int    `json:"transcripts,omitempty"`
	Time        string `json:"time,omitempty"`

	// extraction_complete / summary: estimated USD cost of the LLM calls
	// behind this transcript's (or the whole run's) extraction, mirroring
	// pkg/llm/cost.go's CostTracker. Additive field, not part of the
	// original fixed type set.
	CostUSD float64 `json:"cost_usd,omitempty"`
}
