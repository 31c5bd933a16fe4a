package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/coupon"
)

// Consumer processes cart tasks.
type Consumer struct {
	Coupons coupon.Repository
	Logger  zerolog.Logger
}

// Register mounts the task handlers.
func (c *Consumer) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskCouponUsage, c.HandleCouponUsage)
}

// HandleCouponUsage increments the coupon usage counter. Unknown coupons and
// malformed payloads are not retried.
func (c *Consumer) HandleCouponUsage(ctx context.Context, task *asynq.Task) error {
	var payload CouponUsagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		c.Logger.Warn().Err(err).Str("task", TaskCouponUsage).Msg("malformed payload")
		observe(TaskCouponUsage, outcomeDropped)
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.CouponID <= 0 {
		observe(TaskCouponUsage, outcomeDropped)
		return nil
	}
	err := c.Coupons.IncrementUsage(ctx, payload.CouponID)
	if errors.Is(err, coupon.ErrNotFound) {
		c.Logger.Warn().Int64("coupon_id", payload.CouponID).Str("cart_id", payload.CartID).Msg("coupon vanished before usage was recorded")
		observe(TaskCouponUsage, outcomeDropped)
		return nil
	}
	if err != nil {
		observe(TaskCouponUsage, outcomeRetry)
		return fmt.Errorf("increment coupon %d: %w", payload.CouponID, err)
	}
	observe(TaskCouponUsage, outcomeOK)
	c.Logger.Debug().Int64("coupon_id", payload.CouponID).Str("cart_id", payload.CartID).Msg("coupon usage recorded")
	return nil
}

// NewServer builds the asynq server for the cart queue.
func NewServer(opt asynq.RedisConnOpt, concurrency int, logger zerolog.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{DefaultQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
}
