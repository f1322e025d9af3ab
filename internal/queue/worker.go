package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/quadrel/pecbridge/internal/claim"
	"go.uber.org/zap"
)

// Source hands envelopes to the worker and takes failed ones back.
type Source interface {
	Dequeue(ctx context.Context, idle time.Duration) (*Envelope, error)
	Requeue(ctx context.Context, env Envelope) error
}

// Processor drives one claim and finalizes poisoned ones.
type Processor interface {
	Process(ctx context.Context, item claim.QueueItem) error
	MarkFailed(ctx context.Context, organizationCode, note string) error
}

// Worker consumes claim envelopes and drives them through the claim
// service. A failed envelope goes back on the queue until it exhausts its
// attempts; then the membership is finalized as Failed so the item never
// poisons the queue.
type Worker struct {
	queue       Source
	svc         Processor
	log         *zap.Logger
	idle        time.Duration
	maxAttempts int
}

func NewWorker(q Source, svc Processor, idle time.Duration, maxAttempts int, log *zap.Logger) *Worker {
	if idle <= 0 {
		idle = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		queue:       q,
		svc:         svc,
		log:         log.Named("claim.worker"),
		idle:        idle,
		maxAttempts: maxAttempts,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("claim worker iteration failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// RunOnce waits for at most one envelope and processes it. Returning nil
// on an empty window keeps the forever loop quiet.
func (w *Worker) RunOnce(ctx context.Context) error {
	env, err := w.queue.Dequeue(ctx, w.idle)
	if err != nil {
		return err
	}
	if env == nil {
		return nil
	}

	if err := w.svc.Process(ctx, env.Item); err != nil {
		return w.retryOrFail(ctx, *env, err)
	}
	return nil
}

func (w *Worker) retryOrFail(ctx context.Context, env Envelope, cause error) error {
	if env.Attempts+1 < w.maxAttempts {
		w.log.Warn("claim processing failed, requeueing",
			zap.String("message_id", env.MessageID),
			zap.String("organization_code", env.Item.OrganizationCode),
			zap.Int("attempts", env.Attempts+1),
			zap.Error(cause),
		)
		return w.queue.Requeue(ctx, env)
	}

	w.log.Error("claim processing exhausted attempts",
		zap.String("message_id", env.MessageID),
		zap.String("organization_code", env.Item.OrganizationCode),
		zap.Error(cause),
	)
	note := fmt.Sprintf("%s | gave up after %d attempts", cause.Error(), w.maxAttempts)
	if err := w.svc.MarkFailed(ctx, env.Item.OrganizationCode, note); err != nil {
		return fmt.Errorf("mark membership failed for %s: %w", env.Item.OrganizationCode, err)
	}
	return nil
}
