package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// RelevanceScorer is the external search contract §4.12 step 3 names:
// given (prompt, memories, limit), return at most limit memories
// ordered by descending relevance score, ties broken by recency. The
// algorithm itself is out of scope; callers supply an implementation.
type RelevanceScorer interface {
	Score(ctx context.Context, prompt string, memories []*Memory, limit int) ([]ScoredMemory, error)
}

// ScoredMemory pairs a Memory with a relevance score in [0,1].
type ScoredMemory struct {
	Memory *Memory
	Score  float64
}

// RetrievalResult is returned to the host at session start (§4.12 step 6).
type RetrievalResult struct {
	ContextMarkdown string
	LoadedCount     int
	Source          string
}

// Retrieval is the Retrieval Interface (L, §4.12).
type Retrieval struct {
	store   *Store
	cfg     Config
	scorer  RelevanceScorer
	timeout time.Duration
}

// NewRetrieval wires a Retrieval. scorer may be nil, in which case step 3
// is skipped and only the recent-memories section is populated.
func NewRetrieval(store *Store, cfg Config, scorer RelevanceScorer, timeout time.Duration) *Retrieval {
	if timeout <= 0 {
		timeout = 10 * time.Second // §4.12 "default 10s"
	}
	return &Retrieval{store: store, cfg: cfg, scorer: scorer, timeout: timeout}
}

// Context implements §4.12 steps 1-6, including the hard session-start
// timeout: on exceed, it returns an empty context rather than blocking
// the host.
func (r *Retrieval) Context(ctx context.Context, prompt string, bump bool) RetrievalResult {
	if !r.cfg.Enabled {
		return RetrievalResult{}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result RetrievalResult
	}
	done := make(chan outcome, 1)

	go func() {
		done <- outcome{result: r.buildContext(timeoutCtx, prompt, bump)}
	}()

	select {
	case o := <-done:
		return o.result
	case <-timeoutCtx.Done():
		return RetrievalResult{}
	}
}

func (r *Retrieval) buildContext(ctx context.Context, prompt string, bump bool) RetrievalResult {
	memories, err := r.store.GetAll(ctx)
	if err != nil || len(memories) == 0 {
		return RetrievalResult{}
	}

	var relevant []ScoredMemory
	if r.scorer != nil {
		relevant, err = r.scorer.Score(ctx, prompt, memories, recentDefaultLimit(r.cfg))
		if err != nil {
			relevant = nil
		}
		sortByRecency(relevant)
	}

	recent, err := r.store.SearchRecent(ctx, r.cfg.RecentLimit, bump)
	if err != nil {
		recent = nil
	}

	seen := make(map[string]bool)
	md := formatRetrievalMarkdown(relevant, recent, seen)

	return RetrievalResult{
		ContextMarkdown: md,
		LoadedCount:     len(memories),
		Source:          "memory",
	}
}

func recentDefaultLimit(cfg Config) int {
	if cfg.RecentLimit > 0 {
		return cfg.RecentLimit * 2 // relevant section gets a slightly wider pool than recent
	}
	return 5
}

// formatRetrievalMarkdown builds the two-section markdown block (§4.12
// step 5), deduplicating by id across both sections.
func formatRetrievalMarkdown(relevant []ScoredMemory, recent []*Memory, seen map[string]bool) string {
	var b strings.Builder

	var relevantLines []string
	for _, sm := range relevant {
		if seen[sm.Memory.ID] {
			continue
		}
		seen[sm.Memory.ID] = true
		relevantLines = append(relevantLines, fmt.Sprintf("- [%s] %s (relevance: %.2f)", sm.Memory.Category, sm.Memory.Content, sm.Score))
	}
	if len(relevantLines) > 0 {
		b.WriteString("## Relevant Memories\n")
		b.WriteString(strings.Join(relevantLines, "\n"))
		b.WriteString("\n\n")
	}

	var recentLines []string
	for _, m := range recent {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		recentLines = append(recentLines, fmt.Sprintf("- [%s] %s", m.Category, m.Content))
	}
	if len(recentLines) > 0 {
		b.WriteString("## Recent Context\n")
		b.WriteString(strings.Join(recentLines, "\n"))
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

// sortByRecency is a convenience a RelevanceScorer implementation may
// use to break score ties by recency (§4.12 "ties broken by recency").
func sortByRecency(memories []ScoredMemory) {
	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].Score != memories[j].Score {
			return memories[i].Score > memories[j].Score
		}
		return memories[i].Memory.Timestamp.After(memories[j].Memory.Timestamp)
	})
}
