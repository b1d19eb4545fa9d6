// Package queue drains job documents from a Redis list and pushes result
// envelopes back. It is the serverless-style intake next to the HTTP
// surface: producers LPUSH onto the jobs list, the consumer BRPOPs, runs
// the job, and LPUSHes the result onto the results list.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Source is the queue seam the consumer drains. Pop returns redis.Nil when
// the wait times out with nothing to do.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, doc []byte) error
}

// RedisQueue wraps the jobs and results lists of one Redis instance.
type RedisQueue struct {
	rdb     *redis.Client
	jobs    string
	results string
}

func NewRedisQueue(rdb *redis.Client, jobs, results string) *RedisQueue {
	return &RedisQueue{rdb: rdb, jobs: jobs, results: results}
}

// Pop blocks until a job document is available or timeout elapses (BRPOP).
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.jobs).Result()
	if err != nil {
		return "", err
	}
	// BRPOP answers [key, value].
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Push appends a result document to the results list.
func (q *RedisQueue) Push(ctx context.Context, doc []byte) error {
	return q.rdb.LPush(ctx, q.results, doc).Err()
}
