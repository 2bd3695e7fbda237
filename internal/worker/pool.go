package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"attendify-backend/internal/models"
)

// Processor handles one verification job. Fail records a job that could not
// be processed, including one whose Process call panicked.
type Processor interface {
	Process(ctx context.Context, job models.VerificationJob) error
	Fail(ctx context.Context, job models.VerificationJob, cause error)
}

// Pool drains the verification queue with a fixed number of workers. Each
// worker takes the next job only after finishing its current one, so at most
// workerCount verifications are in flight.
type Pool struct {
	queue       Queue
	processor   Processor
	workerCount int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(queue Queue, processor Processor, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		queue:       queue,
		processor:   processor,
		workerCount: workerCount,
	}
}

// Enqueue adds a job without waiting for it to run.
func (p *Pool) Enqueue(ctx context.Context, job models.VerificationJob) error {
	return p.queue.Push(ctx, job)
}

func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	log.Info().Int("workers", p.workerCount).Msg("verification workers started")
}

// Stop stops taking new jobs and waits for in-flight ones to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for ctx.Err() == nil {
		job, err := p.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Debug().Int("worker", id).Msg("verification worker shutting down")
				return
			}
			log.Error().Err(err).Int("worker", id).Msg("failed to pop verification job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// A popped job is off the queue; it runs even if Stop raced the pop.
		p.run(context.Background(), id, job)
	}
}

func (p *Pool) run(ctx context.Context, id int, job models.VerificationJob) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Str("submission_id", job.SubmissionID.String()).
				Interface("panic", r).Bytes("stack", debug.Stack()).Msg("verification job panicked")
			p.processor.Fail(ctx, job, fmt.Errorf("panic: %v", r))
		}
	}()

	log.Debug().Int("worker", id).Str("submission_id", job.SubmissionID.String()).Msg("processing verification job")
	if err := p.processor.Process(ctx, job); err != nil {
		log.Error().Err(err).Int("worker", id).Str("submission_id", job.SubmissionID.String()).Msg("verification job failed")
	}
}
