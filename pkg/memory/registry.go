package memory

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const registryFile = "transcripts.json"

// Registry is the authoritative list of known transcripts and their
// processing status (§3.3, §4.1). One file on disk, one Registry per
// base directory.
type Registry struct {
	path   string
	logger *log.Logger
}

// NewRegistry creates a Registry rooted at baseDir/transcripts.json.
func NewRegistry(baseDir string, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stderr, "memory/registry: ", log.LstdFlags)
	}
	return &Registry{path: filepath.Join(baseDir, registryFile), logger: logger}
}

func (r *Registry) load() (*RegistryDocument, error) {
	var doc RegistryDocument
	err := readJSON(r.path, &doc)
	if os.IsNotExist(err) {
		return &RegistryDocument{SchemaVersion: registrySchemaVersion}, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = registrySchemaVersion
	}
	return &doc, nil
}

func (r *Registry) save(doc *RegistryDocument) error {
	return atomicWriteJSON(r.path, doc)
}

// AddTranscriptRecord appends a new record. Idempotent on a duplicate
// session_id: warns and no-ops rather than erroring (§4.1, §8.1
// "Idempotent registry").
func (r *Registry) AddTranscriptRecord(ctx context.Context, sessionID, transcriptPath string) error {
	return withFileLock(ctx, r.path, func() error {
		doc, err := r.load()
		if err != nil {
			return err
		}
		for _, t := range doc.Transcripts {
			if t.SessionID == sessionID {
				r.logger.Printf("duplicate transcript record for session %s, ignoring", sessionID)
				return nil
			}
		}
		doc.Transcripts = append(doc.Transcripts, &TranscriptRecord{
			SessionID:      sessionID,
			TranscriptPath: transcriptPath,
			CreatedAt:      time.Now().UTC(),
		})
		return r.save(doc)
	})
}

// MarkTranscriptProcessed sets processed=true/processed_at/memories_extracted
// for sessionID. Fails silently (logs a warning) if the id is unknown
// (§4.1).
func (r *Registry) MarkTranscriptProcessed(ctx context.Context, sessionID string, memoriesCount int, note string) error {
	return withFileLock(ctx, r.path, func() error {
		doc, err := r.load()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, t := range doc.Transcripts {
			if t.SessionID == sessionID {
				t.Processed = true
				t.ProcessedAt = &now
				t.MemoriesExtracted = memoriesCount
				t.Note = note
				return r.save(doc)
			}
		}
		r.logger.Printf("mark-processed: unknown session %s", sessionID)
		return nil
	})
}

// GetUnprocessed returns unprocessed records ordered by CreatedAt
// ascending (§4.1).
func (r *Registry) GetUnprocessed(ctx context.Context) ([]*TranscriptRecord, error) {
	var out []*TranscriptRecord
	err := withFileRLock(ctx, r.path, func() error {
		doc, err := r.load()
		if err != nil {
			return err
		}
		for _, t := range doc.Transcripts {
			if !t.Processed {
				out = append(out, t)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
		return nil
	})
	return out, err
}

// Get returns the record for sessionID, or nil if unknown.
func (r *Registry) Get(ctx context.Context, sessionID string) (*TranscriptRecord, error) {
	var found *TranscriptRecord
	err := withFileRLock(ctx, r.path, func() error {
		doc, err := r.load()
		if err != nil {
			return err
		}
		for _, t := range doc.Transcripts {
			if t.SessionID == sessionID {
				found = t
				return nil
			}
		}
		return nil
	})
	return found, err
}
