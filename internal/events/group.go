package events

import "sync"

// Group collects the subscriptions of one operation so they can be torn
// down together on success, failure or cancellation.
type Group struct {
	bus    *Bus
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// NewGroup creates an empty group on b.
func (b *Bus) NewGroup() *Group {
	return &Group{bus: b}
}

// On subscribes h and tracks the subscription. Subscribing on a closed
// group is a no-op so late arming cannot leak listeners.
func (g *Group) On(kind Kind, source string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.subs = append(g.subs, g.bus.Subscribe(kind, source, h))
}

// Close removes every subscription in the group.
func (g *Group) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.closed = true
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Closed reports whether Close has been called.
func (g *Group) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
