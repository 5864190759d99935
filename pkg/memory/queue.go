package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const queueFile = "extraction_queue.jsonl"

// Queue is the append-only durable FIFO of pending extraction jobs (§3.4,
// §4.4).
type Queue struct {
	path string
}

// NewQueue creates a Queue rooted at baseDir/extraction_queue.jsonl.
func NewQueue(baseDir string) *Queue {
	return &Queue{path: filepath.Join(baseDir, queueFile)}
}

func contentHash(sessionID, transcriptPath string) string {
	sum := sha256.Sum256([]byte(sessionID + "\x00" + transcriptPath))
	return hex.EncodeToString(sum[:])[:16]
}

// Enqueue appends a durable, fsynced record under an exclusive lock
// (§4.4 "enqueue appends a line under a shared append lock" — we use the
// same exclusive-lock primitive as every other state file, since the
// Queue is also drained destructively by the same lock).
func (q *Queue) Enqueue(ctx context.Context, sessionID, transcriptPath string) error {
	rec := QueueRecord{
		SessionID:      sessionID,
		TranscriptPath: transcriptPath,
		EnqueuedAt:     time.Now().UTC(),
		HookEvent:      HookEventStop,
		ContentHash:    contentHash(sessionID, transcriptPath),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal queue record: %w", err)
	}
	return withFileLock(ctx, q.path, func() error {
		return appendLineFsync(q.path, line)
	})
}

// Size returns the current number of pending queue records.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var n int
	err := withFileRLock(ctx, q.path, func() error {
		recs, _, err := q.readAll()
		if err != nil {
			return err
		}
		n = len(recs)
		return nil
	})
	return n, err
}

// Drain takes the exclusive lock, reads all lines, truncates the file,
// and returns the parsed records (§4.4). Malformed lines are skipped and
// logged by the caller via the returned skipped count; drain never fails
// because of a single bad line (§4.15, §8.3 "Corrupt queue line").
func (q *Queue) Drain(ctx context.Context) ([]QueueRecord, int, error) {
	var recs []QueueRecord
	var skipped int
	err := withFileLock(ctx, q.path, func() error {
		var err error
		recs, skipped, err = q.readAll()
		if err != nil {
			return err
		}
		if len(recs) == 0 && skipped == 0 {
			return nil
		}
		return atomicTruncate(q.path)
	})
	return recs, skipped, err
}

func (q *Queue) readAll() ([]QueueRecord, int, error) {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var recs []QueueRecord
	var skipped int
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec QueueRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		if rec.ContentHash != "" && seen[rec.ContentHash] {
			// Duplicate line within the same drain — supplemented
			// idempotency guard (SPEC_FULL.md supplement #2).
			continue
		}
		if rec.ContentHash != "" {
			seen[rec.ContentHash] = true
		}
		recs = append(recs, rec)
	}
	return recs, skipped, nil
}

// atomicTruncate replaces path with an empty file via the same
// write-temp+rename path as atomicWriteJSON, so a crash mid-truncate
// never leaves a half-written queue file.
func atomicTruncate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
