package memory

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

const breakerFile = ".breaker_state.json"

// Breaker is the frequency throttle guarding queue ingress (§3.6, §4.5).
// State is file-owned so short-lived hook processes share it.
type Breaker struct {
	path        string
	window      time.Duration
	maxPerWindow int
}

// NewBreaker creates a Breaker rooted at baseDir/.breaker_state.json.
func NewBreaker(baseDir string, cfg Config) *Breaker {
	return &Breaker{
		path:         filepath.Join(baseDir, breakerFile),
		window:       cfg.BreakerWindow,
		maxPerWindow: cfg.BreakerMaxPerWindow,
	}
}

func (b *Breaker) load() (*BreakerState, error) {
	var st BreakerState
	err := readJSON(b.path, &st)
	if os.IsNotExist(err) {
		return &BreakerState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Allow implements §4.5: under the file's exclusive lock, reset the
// window if expired, then admit if under the per-window cap.
func (b *Breaker) Allow(ctx context.Context, eventTime time.Time) (bool, error) {
	var allowed bool
	err := withFileLock(ctx, b.path, func() error {
		st, err := b.load()
		if err != nil {
			return err
		}

		if st.WindowStart.IsZero() || eventTime.Sub(st.WindowStart) > b.window {
			st.WindowStart = eventTime
			st.EventCount = 0
		}

		if st.EventCount < b.maxPerWindow {
			st.EventCount++
			allowed = true
		} else {
			allowed = false
		}

		return atomicWriteJSON(b.path, st)
	})
	return allowed, err
}
