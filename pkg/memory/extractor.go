package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/jg-phare/memoryd/pkg/llm"
	"github.com/sirupsen/logrus"
)

// Extractor runs the two-pass LLM extraction algorithm (§4.7): triage
// selects important ranges, deep extraction turns each range into memory
// candidates. It is a pure function of (messages, context, prompts,
// model) — deduplication against the existing store is explicitly not
// its job (§9.2).
type Extractor struct {
	client llm.Client
	cfg    Config
	log    *logrus.Entry
	costs  *llm.CostTracker
}

// NewExtractor creates an Extractor. client may be nil, in which case
// every extraction falls back to tail-sampling with zero LLM calls —
// this mirrors §4.7's "missing LLM credentials" fallback path.
func NewExtractor(client llm.Client, cfg Config, logger *logrus.Logger) *Extractor {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
	}
	return &Extractor{client: client, cfg: cfg, log: logger.WithField("component", "extractor"), costs: llm.NewCostTracker()}
}

// TotalCostUSD returns the cumulative estimated USD cost of every LLM
// call this Extractor has made across its lifetime (SPEC_FULL.md
// SUPPLEMENTED FEATURES #3, grounded on pkg/llm/cost.go's CostTracker).
func (e *Extractor) TotalCostUSD() float64 {
	return e.costs.TotalCost()
}

// ExtractResult carries the candidates plus triage telemetry for the
// worker progress protocol (§4.9 "triage_complete" coverage field).
// CostUSD is the cost incurred by this single Extract call (SPEC_FULL.md
// SUPPLEMENTED FEATURES #3 "per session"), not the Extractor's running
// total.
type ExtractResult struct {
	Candidates []Candidate
	Ranges     []Range
	Coverage   float64
	CostUSD    float64
}

// Extract runs triage then deep extraction over filtered messages.
func (e *Extractor) Extract(ctx context.Context, messages []FilteredMessage, sessionContext string) ExtractResult {
	if len(messages) == 0 {
		return ExtractResult{Coverage: 0.0}
	}

	costBefore := e.costs.TotalCost()

	ranges, coverage := e.triage(ctx, messages)

	var candidates []Candidate
	for _, r := range ranges {
		if len(candidates) >= e.cfg.ExtractionMaxMemories {
			break
		}
		sub := messages[r.Start : r.End+1]
		got := e.deepExtract(ctx, sub, sessionContext)
		for _, c := range got {
			if len(candidates) >= e.cfg.ExtractionMaxMemories {
				break
			}
			candidates = append(candidates, c)
		}
	}

	return ExtractResult{
		Candidates: candidates,
		Ranges:     ranges,
		Coverage:   coverage,
		CostUSD:    e.costs.TotalCost() - costBefore,
	}
}

// triage implements Pass 1 (§4.7). On timeout, malformed output, or a
// nil client, it falls back to the last cfg.ExtractionMaxMessages
// messages as a single range.
func (e *Extractor) triage(ctx context.Context, messages []FilteredMessage) ([]Range, float64) {
	if !e.cfg.IntelligentSamplingEnabled || e.client == nil {
		return e.fallbackTail(messages)
	}

	triageCtx, cancel := context.WithTimeout(ctx, e.cfg.TriageTimeout)
	defer cancel()

	truncated := truncateMessages(messages, e.cfg.ExtractionMaxContentLen)
	prompt := buildTriagePrompt(truncated, e.cfg.TriageMaxRanges)

	out, err := e.callStructured(triageCtx, e.cfg.ExtractionModel, prompt, triageTool())
	if err != nil {
		e.log.WithError(err).Warn("triage call failed, falling back to tail sampling")
		return e.fallbackTail(messages)
	}

	var result triageOutput
	if err := json.Unmarshal(out, &result); err != nil {
		e.log.WithError(err).Warn("triage output malformed, falling back to tail sampling")
		return e.fallbackTail(messages)
	}

	ranges := coalesceRanges(result.Ranges, len(messages), e.cfg.TriageMaxRanges)
	return ranges, coverageOf(ranges, len(messages))
}

// fallbackTail returns the last cfg.ExtractionMaxMessages messages (all
// of them when that is non-positive or exceeds the count) as one range
// (§4.7, §8.3).
func (e *Extractor) fallbackTail(messages []FilteredMessage) ([]Range, float64) {
	n := len(messages)
	if n == 0 {
		return nil, 0.0
	}
	tail := e.cfg.ExtractionMaxMessages
	if tail <= 0 || tail > n {
		tail = n
	}
	r := []Range{{Start: n - tail, End: n - 1}}
	return r, coverageOf(r, n)
}

// deepExtract implements Pass 2 for one range (§4.7). Per-call failures
// are logged and contribute zero candidates; the caller still proceeds
// to the other ranges.
func (e *Extractor) deepExtract(ctx context.Context, sub []FilteredMessage, sessionContext string) []Candidate {
	if e.client == nil {
		return nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, e.cfg.ExtractionTimeout)
	defer cancel()

	prompt := buildExtractionPrompt(sub, sessionContext, e.cfg.ExtractionMaxMemories)

	out, err := e.callStructured(extractCtx, e.cfg.ExtractionModel, prompt, extractionTool())
	if err != nil {
		e.log.WithError(err).Warn("deep extraction call failed for range, contributing 0 memories")
		return nil
	}

	var result extractionOutput
	if err := json.Unmarshal(out, &result); err != nil {
		e.log.WithError(err).Warn("deep extraction output malformed, contributing 0 memories")
		return nil
	}

	var out2 []Candidate
	for _, m := range result.Memories {
		cat := Category(strings.ToLower(strings.TrimSpace(m.Category)))
		if strings.TrimSpace(m.Content) == "" || !cat.IsValid() {
			continue // §4.7 "invalid candidates are dropped"
		}
		importance := 0.5 // §4.7 "Importance defaults to 0.5 when absent"
		if m.Importance != nil {
			importance = *m.Importance
		}
		out2 = append(out2, Candidate{
			Content:          m.Content,
			Category:         cat,
			Tags:             m.Tags,
			Importance:       importance,
			ExtractionMethod: ExtractionMethodSDK,
		})
	}
	return out2
}

// callStructured sends a forced single-tool-call request and returns the
// raw JSON arguments of the first tool_use block.
func (e *Extractor) callStructured(ctx context.Context, model, prompt string, tool llm.Tool) (json.RawMessage, error) {
	req := llm.BuildCompletionRequest(
		llm.ClientConfig{Model: model, MaxTokens: 4096},
		"You produce structured output by calling the provided tool exactly once. Never respond with prose.",
		[]llm.ChatMessage{{Role: "user", Content: prompt}},
		[]llm.Tool{tool},
		llm.LoopState{},
	)
	req.ToolChoice = map[string]any{
		"type":     "function",
		"function": map[string]any{"name": tool.ToolName()},
	}

	stream, err := e.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("memory: llm call: %w", err)
	}
	resp, err := stream.Accumulate()
	if err != nil {
		return nil, fmt.Errorf("memory: llm accumulate: %w", err)
	}
	e.costs.Add(model, resp.Usage)

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == tool.ToolName() {
			data, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("memory: marshal tool input: %w", err)
			}
			return data, nil
		}
	}
	return nil, fmt.Errorf("memory: no %s tool call in response", tool.ToolName())
}

// --- structured-output schemas (SPEC_FULL.md domain stack) ---

type triageRangeOut struct {
	Start  int    `json:"start" jsonschema_description:"inclusive start message index"`
	End    int    `json:"end" jsonschema_description:"inclusive end message index"`
	Reason string `json:"reason,omitempty" jsonschema_description:"why this range matters"`
}

type triageOutput struct {
	Ranges []triageRangeOut `json:"ranges" jsonschema_description:"non-overlapping important ranges, ordered by position"`
}

type candidateOut struct {
	Content  string   `json:"content" jsonschema_description:"the durable memory statement"`
	Category string   `json:"category" jsonschema_description:"one of: learning, decision, issue_solved, pattern, preference, context"`
	Tags     []string `json:"tags,omitempty"`
	// Importance is a pointer so a field the LLM omits (nil) can be told
	// apart from one it explicitly set to 0.0 — both unmarshal to the
	// same float64 zero value otherwise, and §4.7 only defaults the
	// absent case.
	Importance *float64 `json:"importance,omitempty" jsonschema_description:"0.0 to 1.0"`
}

type extractionOutput struct {
	Memories []candidateOut `json:"memories"`
}

// schemaTool adapts a reflected JSON Schema to the llm.Tool interface
// (SPEC_FULL.md DOMAIN STACK: invopop/jsonschema).
type schemaTool struct {
	name        string
	description string
	schema      map[string]any
}

func (t *schemaTool) ToolName() string             { return t.name }
func (t *schemaTool) Description() string          { return t.description }
func (t *schemaTool) InputSchema() map[string]any  { return t.schema }

func buildSchemaTool(name, description string, example any) *schemaTool {
	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.Reflect(example)
	data, err := json.Marshal(schema)
	if err != nil {
		return &schemaTool{name: name, description: description, schema: map[string]any{"type": "object"}}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		m = map[string]any{"type": "object"}
	}
	return &schemaTool{name: name, description: description, schema: m}
}

func triageTool() llm.Tool {
	return buildSchemaTool(
		"emit_triage_ranges",
		"Record the important contiguous message ranges worth deep extraction.",
		&triageOutput{},
	)
}

func extractionTool() llm.Tool {
	return buildSchemaTool(
		"emit_memory_candidates",
		"Record durable memory candidates extracted from this conversation range.",
		&extractionOutput{},
	)
}

// --- prompt assembly ---

func truncateMessages(messages []FilteredMessage, maxLen int) []FilteredMessage {
	if maxLen <= 0 {
		return messages
	}
	out := make([]FilteredMessage, len(messages))
	for i, m := range messages {
		if len(m.Text) > maxLen {
			m.Text = m.Text[:maxLen]
		}
		out[i] = m
	}
	return out
}

func buildTriagePrompt(messages []FilteredMessage, maxRanges int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Identify at most %d contiguous message-index ranges that contain decisions, solved issues, breakthroughs, or strong preferences.\n\n", maxRanges)
	for i, m := range messages {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i, m.Role, m.Text)
	}
	return b.String()
}

func buildExtractionPrompt(sub []FilteredMessage, sessionContext string, maxMemories int) string {
	var b strings.Builder
	if sessionContext != "" {
		fmt.Fprintf(&b, "Session context: %s\n\n", sessionContext)
	}
	fmt.Fprintf(&b, "Extract at most %d durable memories (decisions, learnings, solved issues, patterns, preferences, context) from this excerpt:\n\n", maxMemories)
	for _, m := range sub {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	return b.String()
}

// --- range coalescing (§4.7, §8.3) ---

// coalesceRanges clamps ranges to list bounds, drops invalid/empty
// ranges, sorts by start, merges overlapping or adjacent ranges, and
// caps the result at maxRanges. Never raises on malformed input.
func coalesceRanges(ranges []triageRangeOut, n int, maxRanges int) []Range {
	if n == 0 {
		return nil
	}
	var clamped []Range
	for _, r := range ranges {
		start, end := r.Start, r.End
		if start < 0 {
			start = 0
		}
		if end > n-1 {
			end = n - 1
		}
		if start > end {
			continue
		}
		clamped = append(clamped, Range{Start: start, End: end})
	}
	if len(clamped) == 0 {
		return nil
	}

	sort.Slice(clamped, func(i, j int) bool { return clamped[i].Start < clamped[j].Start })

	merged := []Range{clamped[0]}
	for _, r := range clamped[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 { // overlapping or adjacent → coalesce
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}

	if maxRanges > 0 && len(merged) > maxRanges {
		merged = merged[:maxRanges]
	}
	return merged
}

// coverageOf computes covered_messages / total_messages, defined as 0.0
// for an empty message list (§9.2 "Triage coverage reporting").
func coverageOf(ranges []Range, total int) float64 {
	if total == 0 {
		return 0.0
	}
	covered := 0
	for _, r := range ranges {
		covered += r.End - r.Start + 1
	}
	cov := float64(covered) / float64(total)
	if cov < 0 {
		cov = 0
	}
	if cov > 1 {
		cov = 1
	}
	return cov
}
