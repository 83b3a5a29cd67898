package cmrpc

import "sync"

// Event is embedded as a named field by a server DTO to expose something
// beyond the built-in PropertyChanged notification that a client can
// subscribe to with EventAdd/EventRemove. The registry discovers Event
// fields by type when building a DTO's descriptor table.
type Event struct {
	mu       sync.Mutex
	handlers []func(payload any)
}

// subscribe attaches a handler and returns a function that detaches it.
func (e *Event) subscribe(h func(payload any)) func() {
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	idx := len(e.handlers) - 1
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		if idx < len(e.handlers) {
			e.handlers[idx] = nil
		}
		e.mu.Unlock()
	}
}

// Raise notifies every current subscriber with payload.
func (e *Event) Raise(payload any) {
	e.mu.Lock()
	handlers := append([]func(payload any){}, e.handlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(payload)
		}
	}
}
