package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout mirrors pkg/session.ErrLockTimeout: a cross-process
// advisory lock could not be acquired within lockTimeout.
var ErrLockTimeout = errors.New("memory: lock timeout")

const lockTimeout = 5 * time.Second
const lockPollInterval = 50 * time.Millisecond

// withFileLock acquires an exclusive advisory lock on path+".lock" and
// runs fn while holding it. Every full-file rewrite in this package
// (Store, Registry, Queue, Progress State, Breaker State) goes through
// this helper — the single-file-ownership model in SPEC_FULL.md §3.7.
func withFileLock(ctx context.Context, path string, fn func() error) error {
	fl := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, lockPollInterval)
	if err != nil || !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	return fn()
}

// withFileRLock acquires a shared advisory lock for reads.
func withFileRLock(ctx context.Context, path string, fn func() error) error {
	fl := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fl.TryRLockContext(lockCtx, lockPollInterval)
	if err != nil || !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	return fn()
}

// atomicWriteJSON serializes v and replaces path via write-temp+rename,
// the §5 "Atomic replace" requirement. Caller must already hold the
// file's write lock.
func atomicWriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: mkdir for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("memory: create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("memory: write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("memory: fsync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("memory: close temp for %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("memory: rename temp for %s: %w", path, err)
	}
	return nil
}

// readJSON reads and unmarshals path into v. Returns os.IsNotExist
// errors unwrapped so callers can special-case "file absent".
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// appendLineFsync appends data (with a trailing newline) to path under
// the caller's lock, flushing and fsyncing before return — the §3.4
// "append-only from producers" durability requirement.
func appendLineFsync(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("memory: mkdir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("memory: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("memory: append %s: %w", path, err)
	}
	return f.Sync()
}
