package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list holding pending jobs.
const DefaultRedisKey = "ragdocs:enrich:titles"

// popTimeout bounds each BRPOP so Close and ctx cancellation are noticed.
const popTimeout = 2 * time.Second

// RedisQueue is a Redis list shared by every server process. Jobs are pushed with
// LPUSH and popped with BRPOP, so a popped job is never delivered again.
type RedisQueue struct {
	rdb    *redis.Client
	key    string
	maxLen int64
	done   chan struct{}
	once   sync.Once
}

// NewRedisQueue connects to redisURL and verifies the connection.
// maxLen caps pending jobs; zero means unbounded.
func NewRedisQueue(ctx context.Context, redisURL, key string, maxLen int) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisQueueFromClient(rdb, key, maxLen), nil
}

// NewRedisQueueFromClient wraps an existing client.
func NewRedisQueueFromClient(rdb *redis.Client, key string, maxLen int) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{rdb: rdb, key: key, maxLen: int64(maxLen), done: make(chan struct{})}
}

// Enqueue pushes job. When the list is at maxLen the job is rejected with ErrQueueFull.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	if q.maxLen > 0 {
		n, err := q.rdb.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("llen %s: %w", q.key, err)
		}
		if n >= q.maxLen {
			return ErrQueueFull
		}
	}
	data, err := encodeJob(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue pops the oldest job, polling until one arrives.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.done:
			return Job{}, ErrQueueClosed
		default:
		}
		res, err := q.rdb.BRPop(ctx, popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("brpop %s: %w", q.key, err)
		}
		// res is [key, value].
		if len(res) != 2 {
			return Job{}, fmt.Errorf("brpop %s: unexpected reply %v", q.key, res)
		}
		return decodeJob([]byte(res[1]))
	}
}

// Close stops Dequeue and closes the client.
func (q *RedisQueue) Close() error {
	var err error
	q.once.Do(func() {
		close(q.done)
		err = q.rdb.Close()
	})
	return err
}
