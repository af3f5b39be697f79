package utils

import (
	"sync"
	"time"
)

// ProgressEvent is pushed to websocket subscribers while a campaign runs.
type ProgressEvent struct {
	RunID   string    `json:"run_id"`
	Email   string    `json:"email,omitempty"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	Percent int       `json:"percent"`
	At      time.Time `json:"at"`
}

const subscriberBuffer = 32

// ProgressHub fans events out to subscribers. A subscriber that falls
// behind loses events; publishing never blocks.
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[chan ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[chan ProgressEvent]struct{})}
}

// Subscribe on a nil hub returns a closed channel.
func (h *ProgressHub) Subscribe() (<-chan ProgressEvent, func()) {
	if h == nil {
		ch := make(chan ProgressEvent)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan ProgressEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *ProgressHub) Publish(ev ProgressEvent) {
	if h == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Total > 0 {
		ev.Percent = ev.Done * 100 / ev.Total
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *ProgressHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
