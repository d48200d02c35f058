package preview

import (
	"sync"

	"gamesmith/studio/internal/metrics"
)

const (
	StreamConsole = "console"
	StreamUpdated = "preview_updated"
)

// StreamEvent is one event on the preview event stream.
type StreamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Broadcaster fans StreamEvents out to SSE subscribers. Publishing never
// blocks; slow consumers lose events rather than stalling the studio.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan StreamEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan StreamEvent]struct{})}
}

// Subscribe registers a consumer. The caller must Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan StreamEvent {
	ch := make(chan StreamEvent, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(b.Count())
	return ch
}

// Unsubscribe removes a consumer and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan StreamEvent) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
	metrics.SetSSEConnectionsActive(b.Count())
}

func (b *Broadcaster) Publish(event StreamEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
