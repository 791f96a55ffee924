// Package pipeline runs vision extractions through a bounded worker
// pool. Jobs are persisted in the store's queue so a restart picks up
// where the previous process stopped.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/docsheet/internal/config"
	apperrors "github.com/gmsas95/docsheet/internal/errors"
	"github.com/gmsas95/docsheet/internal/extract"
	"github.com/gmsas95/docsheet/internal/metrics"
	"github.com/gmsas95/docsheet/internal/store"
)

const queueName = "extract"

// pollInterval bounds how long a job can sit in the durable queue
// before an idle worker notices it without a wake signal.
const pollInterval = 2 * time.Second

// Job is the durable queue payload. The JobID ties log lines from
// enqueue to completion across restarts.
type Job struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
}

// Pool drains the extraction queue with a fixed set of workers.
type Pool struct {
	store     *store.Store
	extractor extract.Extractor
	metrics   *metrics.Metrics
	logger    *zap.Logger

	workers    int
	retries    int
	retryDelay time.Duration
	jobTimeout time.Duration
	limiter    *rate.Limiter

	wake chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

func NewPool(st *store.Store, ex extract.Extractor, cfg config.VisionConfig, m *metrics.Metrics, logger *zap.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		rps := float64(cfg.RequestsPerMinute) / 60.0
		limiter = rate.NewLimiter(rate.Limit(rps), workers)
	}

	return &Pool{
		store:      st,
		extractor:  ex,
		metrics:    m,
		logger:     logger,
		workers:    workers,
		retries:    cfg.Retries,
		retryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
		jobTimeout: time.Duration(cfg.JobTimeoutSeconds) * time.Second,
		limiter:    limiter,
		wake:       make(chan struct{}, 1),
	}
}

// Start spawns the workers. Jobs left over from a previous run are
// still in the durable queue, so the workers pick them up immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	pending, err := p.store.QueueLen(queueName)
	if err != nil {
		p.logger.Error("queue length check failed", zap.Error(err))
		pending = 0
	}
	p.metrics.SetQueueDepth(int64(pending))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}

	p.logger.Info("extraction pool started",
		zap.Int("workers", p.workers),
		zap.Int("pending_jobs", pending),
		zap.Duration("job_timeout", p.jobTimeout),
	)
	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("extraction pool stopped")
}

// Submit persists the job and nudges an idle worker. The durable queue
// is the source of truth, so a burst larger than the worker count just
// waits its turn instead of being lost.
func (p *Pool) Submit(docID string) error {
	job := Job{JobID: uuid.NewString(), DocumentID: docID}

	payload, err := json.Marshal(job)
	if err != nil {
		return apperrors.Wrap(err, "GEN_003", "failed to encode job")
	}
	if err := p.store.Enqueue(queueName, payload); err != nil {
		return err
	}
	p.metrics.IncQueueDepth()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// worker pulls jobs straight off the durable queue. Dequeue deletes
// the entry transactionally, so each job runs on exactly one worker
// and nothing is lost between Submit and processing.
func (p *Pool) worker(ctx context.Context, workerID int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := p.store.Dequeue(queueName)
		if err == store.ErrQueueEmpty {
			select {
			case <-p.wake:
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			continue
		}
		if err != nil {
			p.logger.Error("queue read failed", zap.Error(err))
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			continue
		}
		p.metrics.DecQueueDepth()

		var job Job
		if err := json.Unmarshal(payload, &job); err != nil {
			p.logger.Warn("dropping malformed queue entry", zap.Error(err))
			continue
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				// Shutting down with a job in hand; put it back so
				// the next run picks it up.
				if err := p.store.Enqueue(queueName, payload); err == nil {
					p.metrics.IncQueueDepth()
				}
				return
			}
		}
		p.process(ctx, workerID, job)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	doc, err := p.store.GetDocument(job.DocumentID)
	if err != nil {
		p.logger.Warn("queued document no longer exists",
			zap.String("job_id", job.JobID),
			zap.String("document_id", job.DocumentID),
		)
		return
	}
	if doc.Status != store.StatusQueued {
		return
	}

	now := time.Now()
	doc.Status = store.StatusProcessing
	doc.StartedAt = &now
	if err := p.store.UpdateDocument(doc); err != nil {
		p.logger.Error("failed to mark document processing", zap.Error(err))
		return
	}

	image, err := p.loadImage(doc)
	if err != nil {
		p.fail(doc, err)
		return
	}

	start := time.Now()
	text, err := p.extractWithRetry(ctx, image, doc)
	elapsed := time.Since(start)

	if err != nil {
		p.metrics.RecordExtraction(false)
		p.fail(doc, err)
		p.logger.Error("extraction failed",
			zap.Int("worker", workerID),
			zap.String("job_id", job.JobID),
			zap.String("document_id", doc.ID),
			zap.String("type", doc.Type),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}

	fields := extract.ParseFields(text)

	completed := time.Now()
	doc.Status = store.StatusCompleted
	doc.Fields = store.ToJSON(fields)
	doc.Report = text
	doc.Error = ""
	doc.CompletedAt = &completed
	if err := p.store.UpdateDocument(doc); err != nil {
		p.logger.Error("failed to store extraction result", zap.Error(err))
		return
	}

	p.metrics.RecordExtraction(true)
	p.metrics.RecordExtractionTime(elapsed)
	p.metrics.RecordProviderRequest(p.extractor.Name())

	p.logger.Info("extraction complete",
		zap.Int("worker", workerID),
		zap.String("job_id", job.JobID),
		zap.String("document_id", doc.ID),
		zap.String("type", doc.Type),
		zap.Int("fields", len(fields)),
		zap.Duration("elapsed", elapsed),
	)
}

func (p *Pool) extractWithRetry(ctx context.Context, image []byte, doc *store.Document) (string, error) {
	var text string
	var err error

	for attempt := 0; attempt <= p.retries; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.jobTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		}

		text, err = p.extractor.Extract(attemptCtx, image, doc.OriginalName, doc.Type)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return text, nil
		}

		// Configuration problems do not heal on retry
		if apperrors.GetCode(err) == "VISION_001" {
			return "", err
		}

		if attempt < p.retries {
			p.metrics.RecordExtractionRetry()
			p.logger.Warn("extraction attempt failed, retrying",
				zap.String("document_id", doc.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-time.After(p.retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", err
}

func (p *Pool) fail(doc *store.Document, cause error) {
	completed := time.Now()
	doc.Status = store.StatusFailed
	doc.Error = cause.Error()
	doc.CompletedAt = &completed
	if err := p.store.UpdateDocument(doc); err != nil {
		p.logger.Error("failed to record document failure",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}
}

// loadImage prefers the blob cache and falls back to disk.
func (p *Pool) loadImage(doc *store.Document) ([]byte, error) {
	data, err := p.store.GetBlob(doc.ID)
	if err == nil {
		return data, nil
	}
	if !store.IsBlobMissing(err) {
		return nil, err
	}

	if doc.StoredPath == "" {
		return nil, apperrors.New("DOC_001", fmt.Sprintf("no stored content for document %s", doc.ID))
	}
	data, err = os.ReadFile(doc.StoredPath)
	if err != nil {
		return nil, apperrors.Wrap(err, "DOC_001", "stored file unreadable")
	}
	return data, nil
}
