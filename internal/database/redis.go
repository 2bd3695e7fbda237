package database

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/redis/go-redis/v9"
)

// RedisClients keeps blocking queue reads off the connection used for pub/sub
// and rate limiting.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

func NewRedisClients(redisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	queueClient := redis.NewClient(opt)
	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)

	err = retry.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := queueClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping Redis (queue): %w", err)
		}
		if err := pubsubClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping Redis (pubsub): %w", err)
		}
		return nil
	},
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		queueClient.Close()
		pubsubClient.Close()
		return nil, err
	}

	return &RedisClients{
		Queue:  queueClient,
		PubSub: pubsubClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
