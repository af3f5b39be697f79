package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCampaignRunning  = errors.New("a campaign is already running")
	ErrNoActiveCampaign = errors.New("no campaign is running")
)

// Coordinator admits at most one campaign at a time and lets another
// caller cancel it.
type Coordinator struct {
	mu        sync.Mutex
	cancel    context.CancelFunc
	startedAt time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Begin claims the campaign slot. The returned context is cancelled by
// Cancel or by release, which must be called when the campaign ends.
func (c *Coordinator) Begin(parent context.Context) (context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return nil, nil, ErrCampaignRunning
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.startedAt = time.Now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			c.mu.Lock()
			c.cancel = nil
			c.startedAt = time.Time{}
			c.mu.Unlock()
		})
	}
	return ctx, release, nil
}

func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return ErrNoActiveCampaign
	}
	c.cancel()
	return nil
}

// Running reports whether a campaign holds the slot and since when.
func (c *Coordinator) Running() (bool, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil, c.startedAt
}
