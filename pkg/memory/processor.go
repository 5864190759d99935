package memory

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Processor is the Background Processor (H, §4.8): a long-lived loop
// that drains the Extraction Queue and runs the full two-pass pipeline
// for each job. It is the only always-on component that calls the LLM;
// hooks stay LLM-free (§4.8 "Isolation rule").
type Processor struct {
	cfg       Config
	registry  *Registry
	queue     *Queue
	store     *Store
	filterLog *logrus.Entry
	extractor *Extractor
	log       *logrus.Entry
}

// NewProcessor wires the processor's dependencies. extractor may use a
// nil llm.Client, in which case every job degrades to tail-sampled
// fallback extraction (§4.7).
func NewProcessor(cfg Config, registry *Registry, queue *Queue, store *Store, extractor *Extractor, logger *logrus.Logger) *Processor {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
	}
	return &Processor{
		cfg:       cfg,
		registry:  registry,
		queue:     queue,
		store:     store,
		extractor: extractor,
		log:       logger.WithField("component", "processor"),
	}
}

// Run blocks until ctx is cancelled, sleeping QueueInterval between
// drains (§4.8 step 1). A fsnotify watch on the queue file's directory
// wakes the loop early on writes, without changing the documented poll
// bound — this only shortens the wait, per SPEC_FULL.md's fsnotify
// wiring.
func (p *Processor) Run(ctx context.Context, queueDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if werr := watcher.Add(queueDir); werr != nil {
			p.log.WithError(werr).Debug("queue directory watch unavailable, polling only")
		}
	} else {
		p.log.WithError(err).Debug("fsnotify unavailable, polling only")
	}

	timer := time.NewTimer(p.cfg.QueueInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			p.drainOnce(ctx)
			timer.Reset(p.cfg.QueueInterval)
		case ev, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.drainOnce(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.cfg.QueueInterval)
		}
	}
}

// watcherEvents returns w.Events, or a nil channel (which blocks
// forever in a select) if w is nil.
func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

// drainOnce implements §4.8 steps 2-3 for a single drain. Errors from
// an individual job never stop the batch.
func (p *Processor) drainOnce(ctx context.Context) {
	jobs, skipped, err := p.queue.Drain(ctx)
	if err != nil {
		p.log.WithError(err).Error("queue drain failed")
		return
	}
	if skipped > 0 {
		p.log.WithField("skipped", skipped).Warn("dropped corrupt queue lines")
	}
	if len(jobs) == 0 {
		return
	}

	for _, job := range jobs {
		p.processJob(ctx, job)
	}
}

func (p *Processor) processJob(ctx context.Context, job QueueRecord) {
	jobLog := p.log.WithFields(logrus.Fields{"session_id": job.SessionID, "transcript_path": job.TranscriptPath})

	rec, err := p.registry.Get(ctx, job.SessionID)
	if err != nil {
		jobLog.WithError(err).Error("registry lookup failed, skipping job")
		return
	}
	if rec != nil && rec.Processed {
		jobLog.Debug("already processed, skipping (idempotency gate)")
		return
	}

	raw, err := os.ReadFile(job.TranscriptPath)
	if err != nil {
		jobLog.WithError(err).Warn("transcript missing or unreadable, marking processed with 0 memories")
		p.markProcessed(ctx, job.SessionID, 0, "transcript unreadable: "+err.Error())
		return
	}

	filtered := FilterTranscript(raw, job.SessionID, nil)
	if len(filtered) == 0 {
		jobLog.Debug("no messages survived filtering, marking processed with 0 memories")
		p.markProcessed(ctx, job.SessionID, 0, "")
		return
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.cfg.ExtractionTimeout)
	result := p.extractor.Extract(extractCtx, filtered, firstUserText(filtered))
	cancel()

	candidates := make([]*Memory, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		candidates = append(candidates, &Memory{
			Content:  c.Content,
			Category: c.Category,
			Metadata: Metadata{
				Tags:             c.Tags,
				Importance:       c.Importance,
				ExtractionMethod: c.ExtractionMethod,
				SourceSessionID:  job.SessionID,
			},
		})
	}

	if len(candidates) > 0 {
		if err := p.store.AddBatch(ctx, candidates); err != nil {
			jobLog.WithError(err).Error("store write failed, leaving unprocessed for retry")
			return // §4.15 "Store write failures... does not mark processed, and retries"
		}
		if err := p.store.RotateIfNeeded(ctx); err != nil {
			jobLog.WithError(err).Warn("rotation failed, store still consistent")
		}
	}

	p.markProcessed(ctx, job.SessionID, len(candidates), "")
	jobLog.WithField("memories", len(candidates)).Info("transcript processed")
}

func (p *Processor) markProcessed(ctx context.Context, sessionID string, count int, note string) {
	if err := p.registry.MarkTranscriptProcessed(ctx, sessionID, count, note); err != nil {
		p.log.WithError(err).WithField("session_id", sessionID).Error("failed to mark transcript processed")
	}
}

// firstUserText returns the first user message's text as session
// context for the extractor (§4.8.d "context=first_user_text").
func firstUserText(messages []FilteredMessage) string {
	for _, m := range messages {
		if m.Role == "user" {
			return m.Text
		}
	}
	return ""
}
