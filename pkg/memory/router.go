package memory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Hook event names recognized on stdin (§6.1).
const (
	HookSessionStart        = "session_start"
	HookSessionStop          = "session_stop"
	HookSubagentSessionStop  = "subagent_session_stop"
	HookToolCompleted        = "tool_completed"
	HookPreCompaction        = "pre_compaction"
)

// Router is the Hook Router (F, §4.6): the synchronous, LLM-free entry
// point every host hook invocation goes through. It never blocks on an
// LLM call, never spawns a subprocess, and never writes to the Memory
// Store directly (§4.6 closing constraint).
type Router struct {
	cfg       Config
	breaker   *Breaker
	registry  *Registry
	queue     *Queue
	retrieval *Retrieval
	validator *Validator
	log       *logrus.Entry
}

// NewRouter wires a Router from its dependencies.
func NewRouter(cfg Config, breaker *Breaker, registry *Registry, queue *Queue, retrieval *Retrieval, validator *Validator, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.New()
	}
	return &Router{
		cfg:       cfg,
		breaker:   breaker,
		registry:  registry,
		queue:     queue,
		retrieval: retrieval,
		validator: validator,
		log:       logger.WithField("component", "router"),
	}
}

// Handle dispatches one HookInput and returns the HookOutput to write to
// stdout (§4.6, §6.1). It never returns an error: every failure is
// logged and degrades to an empty/successful response (§4.15 "Hook-path
// failures never propagate to the host").
func (r *Router) Handle(ctx context.Context, in HookInput) HookOutput {
	switch in.HookEventName {
	case HookSessionStart:
		return r.handleSessionStart(ctx, in)
	case HookToolCompleted:
		return r.handleToolCompleted(ctx, in)
	case HookSessionStop:
		return r.handleSessionStop(ctx, in)
	case HookSubagentSessionStop:
		// §4.6 "explicitly ignored" — known cascade hazard, returns
		// success without touching queue, breaker, or registry.
		return HookOutput{}
	case HookPreCompaction:
		// External archival collaborator; not part of the core pipeline.
		return HookOutput{}
	default:
		r.log.WithField("hook_event_name", in.HookEventName).Debug("unrecognized hook event, ignoring")
		return HookOutput{}
	}
}

func (r *Router) handleSessionStart(ctx context.Context, in HookInput) HookOutput {
	if !r.cfg.Enabled || r.retrieval == nil {
		return HookOutput{}
	}
	result := r.retrieval.Context(ctx, in.Prompt, true)
	if result.ContextMarkdown == "" {
		return HookOutput{}
	}
	return HookOutput{
		AdditionalContext: result.ContextMarkdown,
		Metadata: map[string]any{
			"loaded_count": result.LoadedCount,
			"source":       result.Source,
		},
	}
}

func (r *Router) handleToolCompleted(ctx context.Context, in HookInput) HookOutput {
	if !r.cfg.Enabled || r.validator == nil || in.Message == nil {
		return HookOutput{}
	}
	warnings, err := r.validator.ValidateText(ctx, in.Message.Content)
	if err != nil || len(warnings) == 0 {
		return HookOutput{}
	}
	return HookOutput{
		Warning: warnings[0].Claim,
		Metadata: map[string]any{
			"warnings": warnings,
		},
	}
}

// handleSessionStop implements §4.6's session_stop steps 1-5. This is
// the hot path that must return in under 10ms: no LLM call is ever on
// it, matching the Two-Pass Extractor and Background Processor being
// the only LLM-calling components.
func (r *Router) handleSessionStop(ctx context.Context, in HookInput) HookOutput {
	if !r.cfg.Enabled {
		return HookOutput{}
	}

	allowed, err := r.breaker.Allow(ctx, time.Now().UTC())
	if err != nil {
		r.log.WithError(err).Warn("breaker check failed, dropping enqueue")
		return HookOutput{}
	}
	if !allowed {
		r.log.WithField("session_id", in.SessionID).Info("breaker denied: too many session_stop events in window")
		return HookOutput{Metadata: map[string]any{"queued": false}}
	}

	if err := r.registry.AddTranscriptRecord(ctx, in.SessionID, in.TranscriptPath); err != nil {
		r.log.WithError(err).Warn("registry write failed, dropping enqueue")
		return HookOutput{Metadata: map[string]any{"queued": false}}
	}

	if err := r.queue.Enqueue(ctx, in.SessionID, in.TranscriptPath); err != nil {
		// §4.15 "Queue enqueue failures degrade to drop on the floor with
		// log; the transcript remains in the registry as unprocessed".
		r.log.WithError(err).Warn("queue enqueue failed, transcript remains unprocessed in registry")
		return HookOutput{Metadata: map[string]any{"queued": false}}
	}

	return HookOutput{Metadata: map[string]any{"queued": true}}
}
