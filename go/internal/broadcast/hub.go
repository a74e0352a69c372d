package broadcast

import (
	"context"
	"sync"
)

// Hub is an in-process set of named channels. Listeners run on the
// publishing goroutine.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]func(Notice)
	nextID    uint64
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[uint64]func(Notice))}
}

// Channel returns the named channel on this hub.
func (h *Hub) Channel(name string) *LocalChannel {
	return &LocalChannel{hub: h, name: name}
}

// LocalChannel is a Channel backed by a Hub.
type LocalChannel struct {
	hub  *Hub
	name string
}

func (c *LocalChannel) Publish(ctx context.Context, n Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Type == "" {
		n.Type = TypeStateUpdated
	}

	c.hub.mu.RLock()
	fns := make([]func(Notice), 0, len(c.hub.listeners[c.name]))
	for _, fn := range c.hub.listeners[c.name] {
		fns = append(fns, fn)
	}
	c.hub.mu.RUnlock()

	for _, fn := range fns {
		fn(n)
	}
	return nil
}

func (c *LocalChannel) Listen(fn func(Notice)) (func(), error) {
	h := c.hub
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.listeners[c.name] == nil {
		h.listeners[c.name] = make(map[uint64]func(Notice))
	}
	h.listeners[c.name][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners[c.name], id)
			h.mu.Unlock()
		})
	}, nil
}
