package worker

import (
	"context"
	"time"

	"github.com/ayo6706/exchange-ledger/internal/observability"
	"go.uber.org/zap"
)

// PostingProcessor drains the pending postings outbox.
type PostingProcessor interface {
	ProcessPendingPostings(ctx context.Context, limit int32) (int, error)
}

// PostingWorker retries accounting postings that could not be written with
// their financial transaction. Concurrent instances are safe: each posting is
// locked with SKIP LOCKED and the dedup key makes a repeat a no-op.
type PostingWorker struct {
	*loop
	processor PostingProcessor
	batchSize int32
}

func NewPostingWorker(processor PostingProcessor) *PostingWorker {
	w := &PostingWorker{loop: newLoop("postings", 10*time.Second, false), processor: processor, batchSize: 50}
	w.tick = func(ctx context.Context) { _ = w.ProcessOnce(ctx) }
	return w
}

func (w *PostingWorker) WithPollInterval(interval time.Duration) *PostingWorker {
	w.setInterval(interval)
	return w
}

func (w *PostingWorker) WithBatchSize(size int32) *PostingWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// ProcessOnce drains a single batch immediately.
func (w *PostingWorker) ProcessOnce(ctx context.Context) error {
	n, err := w.processor.ProcessPendingPostings(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun(w.name, "failed")
		zap.L().Error("pending postings batch had failures", zap.Int("attempted", n), zap.Error(err))
		return err
	}
	observability.IncrementWorkerRun(w.name, "success")
	if n > 0 {
		zap.L().Info("pending postings drained", zap.Int("count", n))
	}
	return nil
}
