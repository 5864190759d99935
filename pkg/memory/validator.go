package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jg-phare/memoryd/pkg/llm"
	"github.com/sirupsen/logrus"
)

// ClaimWarning is one contradiction flagged against stored memories
// (§4.13).
type ClaimWarning struct {
	Claim             string  `json:"claim"`
	Confidence        float64 `json:"confidence"`
	SupportingMemory  string  `json:"supporting_memory,omitempty"`
}

// Validator is the Claim Validator (M, §4.13): checks an assistant
// message against stored memories for contradictions, surfacing a
// bounded number of warnings.
type Validator struct {
	client    llm.Client
	cfg       Config
	store     *Store
	log       *logrus.Entry
}

// NewValidator wires a Validator. client may be nil, in which case
// validation always returns no warnings (§9.2-style graceful
// degradation, consistent with the extractor's nil-client fallback).
func NewValidator(client llm.Client, cfg Config, store *Store, logger *logrus.Logger) *Validator {
	entry := logrus.NewEntry(logrus.StandardLogger())
	if logger != nil {
		entry = logger.WithField("component", "validator")
	}
	return &Validator{client: client, cfg: cfg, store: store, log: entry}
}

// ValidateText implements §4.13 steps 1-4.
func (v *Validator) ValidateText(ctx context.Context, text string) ([]ClaimWarning, error) {
	if !v.cfg.Enabled {
		return nil, nil
	}
	if len(strings.TrimSpace(text)) < v.cfg.ValidatorMinChars {
		return nil, nil
	}
	if v.client == nil {
		return nil, nil
	}

	memories, err := v.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: load memories for validation: %w", err)
	}
	if len(memories) == 0 {
		return nil, nil
	}

	claims, err := v.extractClaims(ctx, text, memories)
	if err != nil {
		v.log.WithError(err).Warn("claim validation call failed, returning no warnings")
		return nil, nil
	}

	var warnings []ClaimWarning
	for _, c := range claims {
		if len(warnings) >= v.cfg.ValidatorMaxWarnings {
			break
		}
		if c.Contradicts && c.Confidence > 0.6 {
			warnings = append(warnings, ClaimWarning{
				Claim:            c.Claim,
				Confidence:       c.Confidence,
				SupportingMemory: c.SupportingMemory,
			})
		}
	}
	return warnings, nil
}

type claimOut struct {
	Claim            string  `json:"claim"`
	Contradicts      bool    `json:"contradicts"`
	Confidence       float64 `json:"confidence"`
	SupportingMemory string  `json:"supporting_memory,omitempty"`
}

type claimsOutput struct {
	Claims []claimOut `json:"claims"`
}

func (v *Validator) extractClaims(ctx context.Context, text string, memories []*Memory) ([]claimOut, error) {
	var b strings.Builder
	b.WriteString("Stored memories:\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Category, m.Content)
	}
	fmt.Fprintf(&b, "\nAssistant message to check for contradictions:\n%s\n", text)

	tool := buildSchemaTool(
		"emit_claim_validation",
		"Record claims from the message and whether each contradicts a stored memory.",
		&claimsOutput{},
	)

	req := llm.BuildCompletionRequest(
		llm.ClientConfig{Model: v.cfg.ExtractionModel, MaxTokens: 2048},
		"You check assistant claims against known facts and call the provided tool exactly once. Never respond with prose.",
		[]llm.ChatMessage{{Role: "user", Content: b.String()}},
		[]llm.Tool{tool},
		llm.LoopState{},
	)
	req.ToolChoice = map[string]any{
		"type":     "function",
		"function": map[string]any{"name": tool.ToolName()},
	}

	stream, err := v.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}
	resp, err := stream.Accumulate()
	if err != nil {
		return nil, fmt.Errorf("llm accumulate: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == tool.ToolName() {
			data, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool input: %w", err)
			}
			var out claimsOutput
			if err := json.Unmarshal(data, &out); err != nil {
				return nil, fmt.Errorf("unmarshal claims: %w", err)
			}
			return out.Claims, nil
		}
	}
	return nil, fmt.Errorf("no %s tool call in response", tool.ToolName())
}
