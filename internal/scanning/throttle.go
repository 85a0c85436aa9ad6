package scanning

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/time/rate"
)

// Throttled limits how often the wrapped Recognizer is called
type Throttled struct {
	next    Recognizer
	limiter *rate.Limiter
}

// NewThrottled allows perSecond calls with the given burst
func NewThrottled(next Recognizer, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Name returns the wrapped engine's name
func (t *Throttled) Name() string {
	return t.next.Name()
}

// Recognize waits for the limiter, then delegates
func (t *Throttled) Recognize(ctx context.Context, frame image.Image) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limit: %w", err)
	}
	return t.next.Recognize(ctx, frame)
}

// Close closes the wrapped engine
func (t *Throttled) Close() error {
	return t.next.Close()
}
