package memory

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

const memoryStoreFile = "memory.json"

// Store is the persistent set of memories with rotation and search (§3.2,
// §4.2). One Store value owns one file on disk; every mutating method
// reloads from disk under lock before writing, so multiple processes can
// share the same storage directory safely (§5 "no in-memory singletons
// cross process boundaries").
type Store struct {
	path             string
	maxMemories      int
	maxContentLength int
}

// NewStore creates a Store rooted at storageDir/memory.json.
func NewStore(storageDir string, cfg Config) *Store {
	return &Store{
		path:             filepath.Join(storageDir, memoryStoreFile),
		maxMemories:      clampInt(cfg.MaxMemories, 10, 100000),
		maxContentLength: cfg.ExtractionMaxContentLen,
	}
}

func (s *Store) load() (*StoreDocument, error) {
	var doc StoreDocument
	err := readJSON(s.path, &doc)
	if os.IsNotExist(err) {
		return &StoreDocument{
			Version: storeSchemaVersion,
			Created: time.Now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Version == 0 {
		doc.Version = storeSchemaVersion
	}
	return &doc, nil
}

func (s *Store) save(doc *StoreDocument) error {
	doc.Count = len(doc.Memories)
	doc.LastUpdated = time.Now().UTC()
	return atomicWriteJSON(s.path, doc)
}

// Add appends a single memory and rotates if needed. Most callers should
// prefer AddBatch (§4.2 "Rotation runs at the end of every add_batch, not
// on every single add").
func (s *Store) Add(ctx context.Context, m *Memory) error {
	return s.AddBatch(ctx, []*Memory{m})
}

// AddBatch appends candidates-turned-memories, assigning IDs/timestamps
// where absent, then rotates once at the end (§4.2, §4.8.e).
func (s *Store) AddBatch(ctx context.Context, memories []*Memory) error {
	if len(memories) == 0 {
		return nil
	}
	return withFileLock(ctx, s.path, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, m := range memories {
			if m.ID == "" {
				m.ID = uuid.NewString()
			}
			if m.Timestamp.IsZero() {
				m.Timestamp = now
			}
			if err := m.Validate(s.maxContentLength); err != nil {
				continue // §4.7 "invalid candidates are dropped"
			}
			doc.Memories = append(doc.Memories, m)
		}
		rotate(doc, s.maxMemories)
		return s.save(doc)
	})
}

// GetAll returns every stored memory (no bookkeeping side effects).
func (s *Store) GetAll(ctx context.Context) ([]*Memory, error) {
	var out []*Memory
	err := withFileRLock(ctx, s.path, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		out = doc.Memories
		return nil
	})
	return out, err
}

// SearchRecent returns the `limit` most recent memories, newest first
// (§4.2). If bump is true, matched memories have AccessedCount
// incremented and LastAccessed set and the store is rewritten — callers
// opt in explicitly to avoid retrieval loops polluting scores (§9.2).
func (s *Store) SearchRecent(ctx context.Context, limit int, bump bool) ([]*Memory, error) {
	var result []*Memory
	err := withFileLock(ctx, s.path, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		sorted := append([]*Memory(nil), doc.Memories...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.After(sorted[j].Timestamp)
		})
		if limit > 0 && limit < len(sorted) {
			sorted = sorted[:limit]
		}
		result = sorted

		if bump && len(sorted) > 0 {
			now := time.Now().UTC()
			matched := make(map[string]bool, len(sorted))
			for _, m := range sorted {
				matched[m.ID] = true
			}
			for _, m := range doc.Memories {
				if matched[m.ID] {
					m.AccessedCount++
					m.LastAccessed = &now
				}
			}
			return s.save(doc)
		}
		return nil
	})
	return result, err
}

// RotateIfNeeded re-applies the rotation policy outside of AddBatch (e.g.
// after a MaxMemories config change). Best-effort per §4.15 ("Rotation is
// best-effort: if rotation itself fails, the store is still consistent").
func (s *Store) RotateIfNeeded(ctx context.Context) error {
	return withFileLock(ctx, s.path, func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		if len(doc.Memories) <= s.maxMemories {
			return nil
		}
		rotate(doc, s.maxMemories)
		return s.save(doc)
	})
}

// Purge deletes all stored memories.
func (s *Store) Purge(ctx context.Context) error {
	return withFileLock(ctx, s.path, func() error {
		doc := &StoreDocument{Version: storeSchemaVersion, Created: time.Now().UTC()}
		return s.save(doc)
	})
}

// rotate enforces count <= maxMemories by discarding the tail ranked by
// (accessed_count ASC, timestamp ASC) — i.e. keep the highest
// accessed_count, breaking ties by newest timestamp (§4.2, §8.1 "Rotation
// ranking").
func rotate(doc *StoreDocument, maxMemories int) {
	if maxMemories <= 0 || len(doc.Memories) <= maxMemories {
		return
	}
	kept := append([]*Memory(nil), doc.Memories...)
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].AccessedCount != kept[j].AccessedCount {
			return kept[i].AccessedCount > kept[j].AccessedCount
		}
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	doc.Memories = kept[:maxMemories]
}
