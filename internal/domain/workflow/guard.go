package workflow

import "context"

type guardKey struct{}

// WithRemainingSteps stores the number of approval steps still pending after the
// current action, so approve guards can decide between IN_APPROVAL and APPROVED.
func WithRemainingSteps(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, guardKey{}, n)
}

// RemainingSteps returns the value stored by WithRemainingSteps, or 0.
func RemainingSteps(ctx context.Context) int {
	if n, ok := ctx.Value(guardKey{}).(int); ok {
		return n
	}
	return 0
}

// HasRemainingSteps passes when at least one step is still pending.
func HasRemainingSteps(ctx context.Context) bool {
	return RemainingSteps(ctx) > 0
}

// ChainExhausted passes when no step is left pending.
func ChainExhausted(ctx context.Context) bool {
	return RemainingSteps(ctx) == 0
}
