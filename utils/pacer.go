package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer gates sends. Wait blocks until the next send may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// IntervalPacer lets one send through per interval. The first Wait returns
// immediately; every later one is spaced at least interval after the last.
type IntervalPacer struct {
	limiter *rate.Limiter
}

func NewIntervalPacer(interval time.Duration) *IntervalPacer {
	if interval <= 0 {
		return &IntervalPacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &IntervalPacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (p *IntervalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
