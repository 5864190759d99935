package memory

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the §6.5 configuration surface, read once from the
// environment at process start with sane defaults. Each field documents
// the env var that controls it.
type Config struct {
	Enabled bool // MEMORY_SYSTEM_ENABLED

	StorageDir string // MEMORY_STORAGE_DIR (relative → resolved against ProjectRoot)
	ProjectRoot string

	MaxMemories int // MEMORY_MAX_MEMORIES, clamped [10, 100000]

	ExtractionModel          string        // MEMORY_EXTRACTION_MODEL
	ExtractionTimeout        time.Duration // MEMORY_EXTRACTION_TIMEOUT (seconds)
	ExtractionMaxMessages    int           // MEMORY_EXTRACTION_MAX_MESSAGES (fallback tail size)
	ExtractionMaxContentLen  int           // MEMORY_EXTRACTION_MAX_CONTENT_LENGTH
	ExtractionMaxMemories    int           // MEMORY_EXTRACTION_MAX_MEMORIES

	QueueInterval time.Duration // EXTRACTION_QUEUE_INTERVAL (seconds)

	IntelligentSamplingEnabled bool          // INTELLIGENT_SAMPLING_ENABLED
	TriageMaxRanges            int           // TRIAGE_MAX_RANGES
	TriageTimeout              time.Duration // TRIAGE_TIMEOUT (seconds)

	// Not in §6.5's table but required by other sections; given explicit
	// defaults matching the spec prose.
	BreakerWindow       time.Duration // §4.5 WINDOW, default 60s
	BreakerMaxPerWindow int           // §4.5 MAX_PER_WINDOW, default 5
	RecentLimit         int           // §4.12 RECENT_LIMIT, default 3
	StaleThreshold      time.Duration // §4.11 stale threshold, default 10m
	ValidatorMinChars   int           // §4.13 floor, default 50
	ValidatorMaxWarnings int          // §4.13 bound, default 3
	LogRetentionDays    int           // SPEC_FULL supplement #1
}

// DefaultConfig returns the documented defaults (§6.5, §4.5, §4.7, §4.12,
// §4.11, §4.13).
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		StorageDir:  "memories",
		MaxMemories: 1000,

		ExtractionModel:         "claude-haiku-4-5-20251001",
		ExtractionTimeout:       120 * time.Second,
		ExtractionMaxMessages:   50,
		ExtractionMaxContentLen: 500,
		ExtractionMaxMemories:   10,

		QueueInterval: 30 * time.Second,

		IntelligentSamplingEnabled: true,
		TriageMaxRanges:            5,
		TriageTimeout:              30 * time.Second,

		BreakerWindow:        60 * time.Second,
		BreakerMaxPerWindow:  5,
		RecentLimit:          3,
		StaleThreshold:       10 * time.Minute,
		ValidatorMinChars:    50,
		ValidatorMaxWarnings: 3,
		LogRetentionDays:     30,
	}
}

// LoadConfig builds a Config from environment variables layered over
// DefaultConfig, following the teacher's plain os.Getenv style
// (pkg/agent/config.go, pkg/teams/gate.go) rather than a config-file
// parser.
func LoadConfig() Config {
	c := DefaultConfig()

	c.Enabled = getBoolEnv("MEMORY_SYSTEM_ENABLED", c.Enabled)

	if v := os.Getenv("MEMORY_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	c.ProjectRoot = resolveProjectRoot()

	c.MaxMemories = clampInt(getIntEnv("MEMORY_MAX_MEMORIES", c.MaxMemories), 10, 100000)

	if v := os.Getenv("MEMORY_EXTRACTION_MODEL"); v != "" {
		c.ExtractionModel = v
	}
	c.ExtractionTimeout = getSecondsEnv("MEMORY_EXTRACTION_TIMEOUT", c.ExtractionTimeout)
	c.ExtractionMaxMessages = getIntEnv("MEMORY_EXTRACTION_MAX_MESSAGES", c.ExtractionMaxMessages)
	c.ExtractionMaxContentLen = getIntEnv("MEMORY_EXTRACTION_MAX_CONTENT_LENGTH", c.ExtractionMaxContentLen)
	c.ExtractionMaxMemories = getIntEnv("MEMORY_EXTRACTION_MAX_MEMORIES", c.ExtractionMaxMemories)

	c.QueueInterval = getSecondsEnv("EXTRACTION_QUEUE_INTERVAL", c.QueueInterval)

	c.IntelligentSamplingEnabled = getBoolEnv("INTELLIGENT_SAMPLING_ENABLED", c.IntelligentSamplingEnabled)
	c.TriageMaxRanges = getIntEnv("TRIAGE_MAX_RANGES", c.TriageMaxRanges)
	c.TriageTimeout = getSecondsEnv("TRIAGE_TIMEOUT", c.TriageTimeout)

	return c
}

// ResolvedStorageDir returns the absolute base directory for memory
// state (§6.4 "Path resolution").
func (c Config) ResolvedStorageDir() string {
	if filepath.IsAbs(c.StorageDir) {
		return c.StorageDir
	}
	return filepath.Join(c.ProjectRoot, c.StorageDir)
}

// resolveProjectRoot implements §6.4's "relative base paths resolve
// against a project root environment variable, with cwd as fallback".
func resolveProjectRoot() string {
	if v := os.Getenv("MEMORY_PROJECT_ROOT"); v != "" {
		return v
	}
	if v := os.Getenv("CLAUDE_PROJECT_DIR"); v != "" {
		return v
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getSecondsEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
