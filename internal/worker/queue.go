package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"attendify-backend/internal/models"
)

const verificationQueueKey = "queue:attendance-verification"

// Queue is a FIFO of verification jobs. Pop blocks until a job is available
// or ctx is done.
type Queue interface {
	Push(ctx context.Context, job models.VerificationJob) error
	Pop(ctx context.Context) (models.VerificationJob, error)
	Len(ctx context.Context) (int, error)
}

// MemoryQueue is an unbounded in-process FIFO.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []models.VerificationJob
	signal chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Push(_ context.Context, job models.VerificationJob) error {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context) (models.VerificationJob, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = models.VerificationJob{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			if remaining > 0 {
				q.wake()
			}
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.VerificationJob{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// RedisQueue keeps jobs in a redis list so they survive a restart and can be
// drained by any replica. LPUSH plus BRPOP gives FIFO order.
type RedisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: verificationQueueKey, timeout: 5 * time.Second}
}

func (q *RedisQueue) Push(ctx context.Context, job models.VerificationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode verification job")
	}
	return errors.Wrap(q.client.LPush(ctx, q.key, data).Err(), "push verification job")
}

func (q *RedisQueue) Pop(ctx context.Context) (models.VerificationJob, error) {
	for {
		result, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
		if ctx.Err() != nil {
			return models.VerificationJob{}, ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return models.VerificationJob{}, errors.Wrap(err, "pop verification job")
		}
		if len(result) < 2 {
			continue
		}

		var job models.VerificationJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			return models.VerificationJob{}, errors.Wrap(err, "decode verification job")
		}
		return job, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "verification queue length")
	}
	return int(n), nil
}
