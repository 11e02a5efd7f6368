package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	id "caregate/pkg/domain"
)

// task is one queued processing job. Raw bytes travel with the task because
// the blob write happens inside Process, not at upload time.
type task struct {
	documentID id.DocumentID
	data       []byte
}

// WorkerPool runs document processing on a bounded set of goroutines so a
// burst of uploads cannot exhaust the process. Enqueue never blocks the
// upload path beyond queue capacity.
type WorkerPool struct {
	pipeline *Pipeline
	tasks    chan task
	workers  int
	logger   *slog.Logger
}

func NewWorkerPool(pipeline *Pipeline, workers, queueSize int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		pipeline: pipeline,
		tasks:    make(chan task, queueSize),
		workers:  workers,
		logger:   logger,
	}
}

// Enqueue schedules processing for an uploaded document. Returns false when
// the queue is full or the pool is shutting down; the document stays in
// UPLOADED and can be processed later.
func (w *WorkerPool) Enqueue(ctx context.Context, documentID id.DocumentID, data []byte) bool {
	select {
	case w.tasks <- task{documentID: documentID, data: data}:
		return true
	case <-ctx.Done():
		return false
	default:
		w.logger.WarnContext(ctx, "processing queue full, document deferred",
			"document_id", documentID.String(),
		)
		return false
	}
}

// Run blocks until ctx is cancelled, then drains in-flight work.
func (w *WorkerPool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case t := <-w.tasks:
					if _, err := w.pipeline.Process(ctx, t.documentID, t.data); err != nil {
						w.logger.ErrorContext(ctx, "document processing failed",
							"document_id", t.documentID.String(),
							"error", err,
						)
					}
				}
			}
		})
	}
	return g.Wait()
}
