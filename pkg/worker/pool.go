package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/Radia-Labs/radia-collectibles/pkg/consumer"
	"github.com/Radia-Labs/radia-collectibles/pkg/jobs"
	"github.com/Radia-Labs/radia-collectibles/pkg/logger"
	"github.com/Radia-Labs/radia-collectibles/pkg/metrics"
	"github.com/Radia-Labs/radia-collectibles/pkg/spotify"

	"go.uber.org/zap"
)

// Runner executes one user's check job to completion. Per-item failures are
// absorbed inside the run; only setup failures come back as errors.
type Runner interface {
	Run(ctx context.Context, job jobs.CheckJob) error
}

// Job pairs a parsed check job with its Kafka message for offset commits
type Job struct {
	Check   jobs.CheckJob
	Message consumer.Message
}

// WorkerPool fans check jobs out to a fixed set of goroutines. Jobs are
// partitioned by user id upstream, so two workers never run the same user
// concurrently.
type WorkerPool struct {
	logger     *logger.Logger
	runner     Runner
	consumer   consumer.Consumer
	numWorkers int
	inputChan  chan Job
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// NewWorkerPool creates a new WorkerPool instance
func NewWorkerPool(l *logger.Logger, r Runner, c consumer.Consumer, numWorkers int) *WorkerPool {
	return &WorkerPool{
		logger:     l,
		runner:     r,
		consumer:   c,
		numWorkers: numWorkers,
		inputChan:  make(chan Job, numWorkers*2), // Buffered for smooth handoff
	}
}

// Start initializes the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(workerCtx, i)
	}
}

// Submit sends a job to the pool for processing
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case p.inputChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for {
		select {
		case job, ok := <-p.inputChan:
			if !ok {
				return
			}
			p.process(ctx, job)

		case <-ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, job Job) {
	err := p.runner.Run(ctx, job.Check)
	if err == nil {
		metrics.AccrualRunsTotal.Inc()
		p.commit(ctx, job)
		return
	}

	metrics.AccrualRunFailuresTotal.Inc()
	p.logger.Error("accrual run failed", err,
		zap.String("user_id", job.Check.UserID),
		zap.String("job_id", job.Check.JobID))

	// Transient setup failures stay uncommitted so the group redelivers
	// them. Anything else (revoked tokens above all) is committed: the job
	// cannot succeed on retry and would poison the partition.
	if errors.Is(err, spotify.ErrTransient) {
		return
	}
	p.commit(ctx, job)
}

func (p *WorkerPool) commit(ctx context.Context, job Job) {
	if err := p.consumer.Commit(ctx, job.Message); err != nil {
		p.logger.Error("failed to commit offset", err, zap.Int64("offset", job.Message.Offset))
	}
}

// Shutdown stops all workers and waits for them to finish
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	close(p.inputChan)

	// Wait for workers to finish current work
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
