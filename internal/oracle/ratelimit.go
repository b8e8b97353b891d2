package oracle

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited spaces calls to the wrapped client. It waits; it never retries.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of rps and burst.
// A non-positive rps returns next unchanged.
func NewRateLimited(next Client, rps float64, burst int) Client {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", Transient("rate limiter wait failed", err)
	}
	return r.next.Complete(ctx, systemPrompt, userPrompt)
}
