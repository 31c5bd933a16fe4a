package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Client enqueues cart tasks. A nil asynq client disables enqueueing.
type Client struct {
	client *asynq.Client
	queue  string
}

// RedisOpt parses a redis:// URL into asynq connection options.
func RedisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opt, nil
}

// NewClient wraps an asynq client.
func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(opt), queue: DefaultQueue}
}

// Enabled reports whether tasks are actually enqueued.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// RecordCouponUsage enqueues the usage increment for a handed-off cart. A
// repeated hand-off of the same cart enqueues nothing.
func (c *Client) RecordCouponUsage(ctx context.Context, couponID int64, cartID string) error {
	if !c.Enabled() {
		return nil
	}
	payload := CouponUsagePayload{CouponID: couponID, CartID: cartID}
	task, err := NewCouponUsageTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(couponUsageTaskID(payload)),
		asynq.MaxRetry(10),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskCouponUsage, err)
	}
	return nil
}
