// Package queue hands work that must survive the cart request, such as coupon
// usage increments, to asynq workers.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskCouponUsage increments the usage counter of a redeemed coupon.
const TaskCouponUsage = "coupon:increment_usage"

// DefaultQueue is the asynq queue cart tasks are enqueued on.
const DefaultQueue = "cart"

// CouponUsagePayload identifies the coupon and the cart that redeemed it.
type CouponUsagePayload struct {
	CouponID int64  `json:"coupon_id"`
	CartID   string `json:"cart_id"`
}

// NewCouponUsageTask encodes the payload.
func NewCouponUsageTask(payload CouponUsagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCouponUsage, body), nil
}

// couponUsageTaskID keeps one increment per handed-off cart even when the
// hand-off is retried.
func couponUsageTaskID(p CouponUsagePayload) string {
	return fmt.Sprintf("coupon-usage:%d:%s", p.CouponID, p.CartID)
}
