package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/metrics"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/store"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

const (
	defaultWorkers    = 2
	defaultJobTimeout = 60 * time.Second
)

// Titler generates a title from a document's content.
type Titler interface {
	Title(ctx context.Context, docID string) (string, error)
}

// Sessions is the session storage the worker reads and updates.
type Sessions interface {
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	// UpdateSessionTitle reports false when the session no longer exists.
	UpdateSessionTitle(ctx context.Context, token, title string) (bool, error)
}

// Worker drains a Queue with a fixed pool of goroutines. Job failures are logged and
// never retried.
type Worker struct {
	queue      Queue
	titler     Titler
	sessions   Sessions
	workers    int
	jobTimeout time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithWorkers sets the pool size.
func WithWorkers(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithJobTimeout bounds a single job.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// NewWorker creates a worker. Call Start to begin processing.
func NewWorker(queue Queue, titler Titler, sessions Sessions, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:      queue,
		titler:     titler,
		sessions:   sessions,
		workers:    defaultWorkers,
		jobTimeout: defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Submit enqueues a job and returns immediately. A rejected job is dropped.
func (w *Worker) Submit(ctx context.Context, job Job) {
	if err := w.queue.Enqueue(ctx, job); err != nil {
		w.metrics.ObserveEnrichment(metrics.EnrichmentDropped)
		w.logger.Warn("Title enrichment dropped",
			zap.String("session_token", job.SessionToken),
			zap.Error(err))
	}
}

// Start launches the pool. It runs until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Debug("enrichment workers starting", zap.Int("workers", w.workers))
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Stop cancels the pool, waits for in-flight jobs and closes the queue.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		_ = w.queue.Close()
		w.wg.Wait()
	})
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job synchronously and returns its outcome, one of the
// metrics.Enrichment* results. A session deleted before or during the job is skipped.
func (w *Worker) Process(ctx context.Context, job Job) string {
	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result := w.process(ctx, job)
	w.metrics.ObserveEnrichment(result)
	return result
}

func (w *Worker) process(ctx context.Context, job Job) string {
	log := w.logger.With(zap.String("session_token", job.SessionToken), zap.String("doc_id", job.DocID))

	if _, err := w.sessions.GetSessionByToken(ctx, job.SessionToken); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("session gone before enrichment")
			return metrics.EnrichmentSkipped
		}
		log.Warn("Title enrichment failed", zap.Error(err))
		return metrics.EnrichmentFailed
	}

	title, err := w.titler.Title(ctx, job.DocID)
	if err != nil {
		log.Warn("Title enrichment failed", zap.Error(err))
		return metrics.EnrichmentFailed
	}

	updated, err := w.sessions.UpdateSessionTitle(ctx, job.SessionToken, title)
	if err != nil {
		log.Warn("Title enrichment failed", zap.Error(err))
		return metrics.EnrichmentFailed
	}
	if !updated {
		log.Debug("session gone before title update")
		return metrics.EnrichmentSkipped
	}
	log.Info("Session title updated", zap.String("title", title))
	return metrics.EnrichmentUpdated
}
