package common

import "context"

type ctxKey string

const customerKey ctxKey = "auth/customer"

// Customer is the authenticated shopper attached to a request.
type Customer struct {
	ID          int64
	GroupID     int64
	NewCustomer bool
}

// WithCustomer stores the authenticated customer on the provided context.
func WithCustomer(ctx context.Context, c Customer) context.Context {
	return context.WithValue(ctx, customerKey, c)
}

// CustomerFrom extracts the authenticated customer from the context if present.
func CustomerFrom(ctx context.Context) (Customer, bool) {
	c, ok := ctx.Value(customerKey).(Customer)
	if !ok || c.ID == 0 {
		return Customer{}, false
	}
	return c, true
}
