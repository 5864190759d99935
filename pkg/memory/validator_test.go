package memory

import (
	"context"
	"testing"
	"time"
)

func seededValidatorStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	s := NewStore(t.TempDir(), cfg)
	s.AddBatch(context.Background(), []*Memory{
		{ID: "m1", Content: "We use Postgres, not MySQL.", Category: CategoryDecision, Timestamp: time.Now().UTC()},
	})
	return s
}

func TestValidator_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s := seededValidatorStore(t)
	v := NewValidator(&mockLLMClient{}, cfg, s, nil)

	warnings, err := v.ValidateText(context.Background(), "this is a long enough assistant claim to check")
	if err != nil || warnings != nil {
		t.Fatalf("disabled validator should return (nil, nil), got (%v, %v)", warnings, err)
	}
}

func TestValidator_TooShort(t *testing.T) {
	cfg := DefaultConfig()
	s := seededValidatorStore(t)
	v := NewValidator(&mockLLMClient{}, cfg, s, nil)

	warnings, err := v.ValidateText(context.Background(), "too short")
	if err != nil || warnings != nil {
		t.Fatalf("short text should be skipped, got (%v, %v)", warnings, err)
	}
}

func TestValidator_NilClient(t *testing.T) {
	cfg := DefaultConfig()
	s := seededValidatorStore(t)
	v := NewValidator(nil, cfg, s, nil)

	text := "This is a sufficiently long claim about database choice to validate."
	warnings, err := v.ValidateText(context.Background(), text)
	if err != nil || warnings != nil {
		t.Fatalf("nil client should degrade to (nil, nil), got (%v, %v)", warnings, err)
	}
}

func TestValidator_EmptyStore(t *testing.T) {
	cfg := DefaultConfig()
	s := NewStore(t.TempDir(), cfg)
	v := NewValidator(&mockLLMClient{}, cfg, s, nil)

	text := "This is a sufficiently long claim about database choice to validate."
	warnings, err := v.ValidateText(context.Background(), text)
	if err != nil || warnings != nil {
		t.Fatalf("empty store should skip the llm call, got (%v, %v)", warnings, err)
	}
}

func TestValidator_FlagsHighConfidenceContradiction(t *testing.T) {
	cfg := DefaultConfig()
	s := seededValidatorStore(t)
	client := &mockLLMClient{responses: []*mockStream{
		toolUseStream("emit_claim_validation", claimsOutput{
			Claims: []claimOut{
				{Claim: "We use MySQL", Contradicts: true, Confidence: 0.9, SupportingMemory: "m1"},
				{Claim: "unrelated aside", Contradicts: false, Confidence: 0.1},
			},
		}),
	}}
	v := NewValidator(client, cfg, s, nil)

	text := "We use MySQL for the new service, it's a great fit."
	warnings, err := v.ValidateText(context.Background(), text)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].Claim != "We use MySQL" {
		t.Errorf("claim = %q", warnings[0].Claim)
	}
}

func TestValidator_LowConfidenceNotFlagged(t *testing.T) {
	cfg := DefaultConfig()
	s := seededValidatorStore(t)
	client := &mockLLMClient{responses: []*mockStream{
		toolUseStream("emit_claim_validation", claimsOutput{
			Claims: []claimOut{
				{Claim: "borderline claim", Contradicts: true, Confidence: 0.5},
			},
		}),
	}}
	v := NewValidator(client, cfg, s, nil)

	text := "This is a sufficiently long claim about database choice to validate."
	warnings, err := v.ValidateText(context.Background(), text)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("confidence below the 0.6 threshold should not be flagged, got %d warnings", len(warnings))
	}
}

func TestValidator_BoundedWarningCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidatorMaxWarnings = 1
	s := seededValidatorStore(t)
	client := &mockLLMClient{responses: []*mockStream{
		toolUseStream("emit_claim_validation", claimsOutput{
			Claims: []claimOut{
				{Claim: "first", Contradicts: true, Confidence: 0.9},
				{Claim: "second", Contradicts: true, Confidence: 0.8},
			},
		}),
	}}
	v := NewValidator(client, cfg, s, nil)

	text := "This is a sufficiently long claim about database choice to validate."
	warnings, err := v.ValidateText(context.Background(), text)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("expected warnings capped at 1, got %d", len(warnings))
	}
}

func TestValidator_LLMFailureDegradesToNoWarnings(t *testing.T) {
	cfg := DefaultConfig()
	s := seededValidatorStore(t)
	client := &mockLLMClient{} // no responses programmed, Complete returns errExhausted
	v := NewValidator(client, cfg, s, nil)

	text := "This is a sufficiently long claim about database choice to validate."
	warnings, err := v.ValidateText(context.Background(), text)
	if err != nil {
		t.Fatalf("an llm failure must degrade gracefully, not propagate: %v", err)
	}
	if warnings != nil {
		t.Errorf("expected no warnings on llm failure, got %v", warnings)
	}
}
