package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/jg-phare/memoryd/pkg/memory"
)

// MemoryHookCallback wraps the external memory-hook binary as a
// HookCallback, translating this host's typed hook inputs into
// memory.HookInput and its single-line memory.HookOutput response back
// into this host's HookJSONOutput. This is the real caller
// cmd/memory-hook is built against — the host dispatches it the same
// way it dispatches any other shell hook (see ShellHookCallback),
// except the translation is typed instead of a raw passthrough, since
// the two protocols differ. Wired against UserPromptSubmit, Stop,
// SubagentStop and PostToolUse — see toMemoryHookInput.
func MemoryHookCallback(binary string) HookCallback {
	return func(input any, toolUseID string, ctx context.Context) (HookJSONOutput, error) {
		memIn, ok := toMemoryHookInput(input)
		if !ok {
			return HookJSONOutput{}, nil
		}

		payload, err := json.Marshal(memIn)
		if err != nil {
			return HookJSONOutput{}, err
		}

		cmd := exec.CommandContext(ctx, binary)
		cmd.Stdin = bytes.NewReader(payload)
		var stdout bytes.Buffer
		cmd.Stdout = &stdout

		if err := cmd.Run(); err != nil {
			// The memory pipeline never fails the host's own hook chain
			// (§4.6): a broken or missing binary degrades to no output.
			return HookJSONOutput{}, nil
		}

		var memOut memory.HookOutput
		if stdout.Len() == 0 {
			return HookJSONOutput{}, nil
		}
		if err := json.Unmarshal(stdout.Bytes(), &memOut); err != nil {
			return HookJSONOutput{}, nil
		}

		return HookJSONOutput{Sync: toSyncOutput(memOut)}, nil
	}
}

// toMemoryHookInput maps the host's typed per-event hook inputs onto
// memory.HookInput's flat superset shape (§6.1).
func toMemoryHookInput(input any) (memory.HookInput, bool) {
	switch v := input.(type) {
	case *UserPromptSubmitHookInput:
		// Retrieval fires on the first prompt of a turn, not on
		// SessionStart: SessionStartHookInput carries no prompt text for
		// the Retrieval Interface to score against (§4.2).
		return memory.HookInput{
			HookEventName: memory.HookSessionStart,
			SessionID:     v.SessionID,
			Prompt:        v.Prompt,
		}, true
	case *StopHookInput:
		return memory.HookInput{
			HookEventName:  memory.HookSessionStop,
			SessionID:      v.SessionID,
			TranscriptPath: v.TranscriptPath,
		}, true
	case *SubagentStopHookInput:
		return memory.HookInput{
			HookEventName:  memory.HookSubagentSessionStop,
			SessionID:      v.AgentID,
			TranscriptPath: v.AgentTranscriptPath,
		}, true
	case *PostToolUseHookInput:
		return memory.HookInput{
			HookEventName: memory.HookToolCompleted,
			SessionID:     v.SessionID,
			Message:       toolResultMessage(v),
		}, true
	default:
		return memory.HookInput{}, false
	}
}

// toolResultMessage renders a PostToolUseHookInput's response as the
// plain-text assistant claim the Claim Validator checks (§4.13). Only a
// string-shaped response is carried through; structured responses carry
// no meaningful claim text to validate.
func toolResultMessage(v *PostToolUseHookInput) *memory.HookMessage {
	text, ok := v.ToolResponse.(string)
	if !ok || text == "" {
		return nil
	}
	return &memory.HookMessage{Role: "assistant", Content: text}
}

// toSyncOutput folds memory.HookOutput into the host's SyncHookJSONOutput
// shape: AdditionalContext surfaces as a system message, Warning as the
// decision reason, and an empty HookOutput yields a nil Sync (no hook
// output at all, rather than an empty-but-present object).
func toSyncOutput(out memory.HookOutput) *SyncHookJSONOutput {
	if out.AdditionalContext == "" && out.Warning == "" {
		return nil
	}
	sync := &SyncHookJSONOutput{}
	if out.AdditionalContext != "" {
		sync.SystemMessage = out.AdditionalContext
	}
	if out.Warning != "" {
		sync.Decision = "warn"
		sync.Reason = out.Warning
	}
	return sync
}
