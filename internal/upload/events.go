// Package upload drives items through compression, the ordered transport
// tiers and persistence: the orchestrator owns one item's state machine,
// the session coordinator fans a batch out over a bounded pool.
package upload

import (
	"sync"

	"github.com/dmitrijs2005/mediaup/internal/models"
)

// Event is one progress notification. Consumers must key their updates by
// ItemID: completion order across items is not submission order.
type Event struct {
	ItemID   string
	Status   models.Status
	Progress int
	Attempt  int
	Error    string
}

// Listener receives events. Callbacks run synchronously on pipeline
// goroutines and should return quickly.
type Listener func(Event)

// Publisher fans events out to subscribers. The zero value is ready to use.
type Publisher struct {
	mu        sync.RWMutex
	listeners []Listener
}

// Subscribe registers a listener for all subsequent events.
func (p *Publisher) Subscribe(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *Publisher) publish(e Event) {
	p.mu.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, l := range listeners {
		l(e)
	}
}
