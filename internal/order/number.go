package order

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// NumberProber answers whether a candidate order number is already taken.
type NumberProber interface {
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
}

// NumberGenerator draws human-readable order numbers from a bounded random
// range. The range is small on purpose so numbers stay short; the unique
// index on orders.order_number is the real guard against races.
type NumberGenerator struct {
	Prefix      string
	Min         int
	Max         int
	MaxAttempts int
}

// Next returns an order number not currently present in storage. It retries
// up to MaxAttempts times before giving up with ErrOrderNumberExhausted.
func (g NumberGenerator) Next(ctx context.Context, probe NumberProber) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = 50
	}
	for i := 0; i < attempts; i++ {
		candidate := fmt.Sprintf("%s%d", g.Prefix, g.Min+rand.IntN(g.Max-g.Min+1))
		taken, err := probe.OrderNumberExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe order number: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrOrderNumberExhausted
}
