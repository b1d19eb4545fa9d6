package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"comfyd/pkg/types"
)

const pushTimeout = 5 * time.Second

// Runner runs one job to completion.
type Runner interface {
	Run(ctx context.Context, req types.JobRequest) (types.JobResult, error)
}

// Consumer drains job documents from a Source and runs them one at a time.
type Consumer struct {
	queue   Source
	runner  Runner
	log     zerolog.Logger
	popWait time.Duration
}

func NewConsumer(q Source, r Runner, log zerolog.Logger, popWait time.Duration) *Consumer {
	if popWait <= 0 {
		popWait = 5 * time.Second
	}
	return &Consumer{
		queue:   q,
		runner:  r,
		log:     log.With().Str("component", "queue").Logger(),
		popWait: popWait,
	}
}

// Run loops until ctx is canceled. Pop errors other than an empty poll are
// logged and retried after a short pause so a Redis restart does not kill
// the worker.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("queue consumer stopping")
			return ctx.Err()
		default:
		}

		doc, err := c.queue.Pop(ctx, c.popWait)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("queue consumer stopping")
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			c.log.Warn().Err(err).Msg("queue pop failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if doc == "" {
			continue
		}
		c.handle(ctx, doc)
	}
}

func (c *Consumer) handle(ctx context.Context, doc string) {
	var qj types.QueuedJob
	if err := json.Unmarshal([]byte(doc), &qj); err != nil {
		c.log.Warn().Err(err).Msg("malformed job document")
		c.publish(types.QueuedResult{
			ID: uuid.NewString(),
			Output: types.JobResult{
				Status: types.StatusFailed,
				Error:  "invalid job document: " + err.Error(),
			},
		})
		return
	}
	if qj.ID == "" {
		qj.ID = uuid.NewString()
	}

	log := c.log.With().Str("job_id", qj.ID).Logger()
	log.Info().Msg("processing queued job")
	start := time.Now()
	res, err := c.runner.Run(ctx, qj.Input)
	if err != nil {
		log.Warn().Err(err).Dur("dur", time.Since(start)).Msg("queued job failed")
	} else {
		log.Info().Dur("dur", time.Since(start)).Msg("queued job completed")
	}
	c.publish(types.QueuedResult{ID: qj.ID, Output: res})
}

// publish uses a detached context so a result finished right as shutdown
// begins still reaches the results list.
func (c *Consumer) publish(res types.QueuedResult) {
	doc, err := json.Marshal(res)
	if err != nil {
		c.log.Error().Err(err).Str("job_id", res.ID).Msg("encode queued result")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := c.queue.Push(ctx, doc); err != nil {
		c.log.Error().Err(err).Str("job_id", res.ID).Msg("push queued result")
	}
}
