package accrual

import (
	"context"
	"fmt"

	"github.com/Radia-Labs/radia-collectibles/pkg/consumer"
	"github.com/Radia-Labs/radia-collectibles/pkg/jobs"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/worker"

	"go.uber.org/zap"
)

// Service wires the check-job consumer to the worker pool.
type Service struct {
	logger     *logger.Logger
	consumer   consumer.Consumer
	workerPool *worker.WorkerPool
}

// NewService creates a new accrual service instance
func NewService(
	l *logger.Logger,
	c consumer.Consumer,
	p *worker.WorkerPool,
) *Service {
	return &Service{
		logger:     l,
		consumer:   c,
		workerPool: p,
	}
}

// Start begins the job consumption and processing loop
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting accrual service")

	s.workerPool.Start(ctx)

	msgChan, errChan := s.consumer.Consume(ctx)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}

			if err := s.handleMessage(ctx, msg); err != nil {
				s.logger.Error("failed to handle message", err, zap.Int64("offset", msg.Offset))
			}

		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("consumer error: %w", err)
			}

		case <-ctx.Done():
			return s.Shutdown(context.Background())
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg consumer.Message) error {
	job, err := jobs.ParseCheckJob(msg.Value)
	if err != nil {
		// Malformed jobs can never succeed; skip past them.
		s.logger.Warn("skipping malformed check job",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("payload", msg.Value))

		return s.consumer.Commit(ctx, msg)
	}

	// The pool commits the offset once the run settles.
	return s.workerPool.Submit(ctx, worker.Job{
		Check:   job,
		Message: msg,
	})
}

// Shutdown stops the service gracefully
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down accrual service")

	errPool := s.workerPool.Shutdown(ctx)
	errCons := s.consumer.Close()

	if errPool != nil || errCons != nil {
		return fmt.Errorf("shutdown errors: pool=%v, consumer=%v", errPool, errCons)
	}
	return nil
}
