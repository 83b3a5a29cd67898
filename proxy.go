package cmrpc

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// EventHandler receives a decoded event argument.
type EventHandler func(args any)

// ProxyBase is the client-side stub for a single remote Dto: identity, a
// back-reference to the session used to talk to its origin, a table of
// locally attached event handlers, and a cache of the last property
// values observed via Get, written via Set, or carried by a
// PropertyChanged notification.
type ProxyBase struct {
	id      Identifier
	session *Session

	mu       sync.Mutex
	handlers map[string][]EventHandler
	cached   map[string]any
}

var _ Dto = (*ProxyBase)(nil)

func newProxyBase(id Identifier, session *Session) *ProxyBase {
	return &ProxyBase{
		id:       id,
		session:  session,
		handlers: make(map[string][]EventHandler),
		cached:   make(map[string]any),
	}
}

// Id returns the proxy's identifier, stable for its whole lifetime.
func (p *ProxyBase) Id() Identifier { return p.id }

func (p *ProxyBase) setId(id Identifier) { p.id = id }

// Session returns the session this proxy forwards requests through.
func (p *ProxyBase) Session() *Session { return p.session }

// populate applies any field values that arrived with the reference that
// created this proxy. Nothing on the wire currently carries inline field
// values alongside a DTO reference — every reference decodes to a bare
// identifier and properties are always fetched with an explicit Get — so
// this is only ever called with nil. It takes a map rather than being a
// no-arg method so a future wire format that does inline initial field
// values has somewhere to feed them without another round trip.
func (p *ProxyBase) populate(values map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range values {
		p.cached[k] = v
	}
}

func (p *ProxyBase) cachedProperty(name string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.cached[name]
	return v, ok
}

func (p *ProxyBase) setCachedProperty(name string, value any) {
	p.mu.Lock()
	p.cached[name] = value
	p.mu.Unlock()
}

func (p *ProxyBase) addHandler(name string, h EventHandler) {
	p.mu.Lock()
	p.handlers[name] = append(p.handlers[name], h)
	p.mu.Unlock()
}

func (p *ProxyBase) removeHandlers(name string) {
	p.mu.Lock()
	delete(p.handlers, name)
	p.mu.Unlock()
}

func (p *ProxyBase) hasHandlers(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handlers[name]) > 0
}

func (p *ProxyBase) dispatchEvent(name string, value any) {
	p.mu.Lock()
	hs := append([]EventHandler{}, p.handlers[name]...)
	p.mu.Unlock()
	for _, h := range hs {
		h(value)
	}
}

// finalizeArg is the payload handed to the process-wide finalize hook.
// It deliberately excludes the proxy pointer itself: runtime.AddCleanup
// requires the cleanup closure not retain the tracked object, or the
// object would never become eligible for collection.
type finalizeArg struct {
	id      Identifier
	session *Session
}

// DynamicProxy is the sole client-side proxy concrete type. There is no
// schema negotiation and so no generated per-DTO-type proxy class; every
// received identifier resolves to one late-bound DynamicProxy exposing
// Get/Set/Invoke/On, the same way a COM IDispatch client talks to an
// object it has no static type information about.
type DynamicProxy struct {
	*ProxyBase
}

var _ Dto = (*DynamicProxy)(nil)

// newDynamicProxy constructs a proxy and arms its finalizer. It must only
// be called by the client resolver, which alone is responsible for placing
// the result into the weak table before releasing its lock.
func newDynamicProxy(id Identifier, session *Session) *DynamicProxy {
	dp := &DynamicProxy{ProxyBase: newProxyBase(id, session)}
	runtime.AddCleanup(dp, func(arg finalizeArg) {
		requestFinalize(arg.id, arg.session)
	}, finalizeArg{id: id, session: session})
	return dp
}

// Get reads a property; it never reads the local cache, always issues a
// Get request and returns the freshly observed value, updating the cache
// as a side effect.
func (p *DynamicProxy) Get(ctx context.Context, property string) (any, error) {
	v, err := p.session.getProperty(ctx, p.id, property)
	if err != nil {
		return nil, err
	}
	p.setCachedProperty(property, v)
	return v, nil
}

// CachedGet returns the last value known for property (via Get, Set, or a
// PropertyChanged notification) without a round trip, and whether one has
// ever been recorded.
func (p *DynamicProxy) CachedGet(property string) (any, bool) {
	return p.cachedProperty(property)
}

// Set writes a property.
func (p *DynamicProxy) Set(ctx context.Context, property string, value any) error {
	if err := p.session.setProperty(ctx, p.id, property, value); err != nil {
		return err
	}
	p.setCachedProperty(property, value)
	return nil
}

// Invoke calls a method by name with the given arguments and returns its
// decoded result.
func (p *DynamicProxy) Invoke(ctx context.Context, method string, args ...any) (any, error) {
	return p.session.invokeMethod(ctx, p.id, method, args)
}

// On subscribes handler to the named event, issuing EventAdd on the first
// local subscriber for that name, and returns an unsubscribe function.
// That function detaches every local handler for the name, not only
// handler, and issues EventRemove.
func (p *DynamicProxy) On(ctx context.Context, event string, handler EventHandler) (func(), error) {
	first := !p.hasHandlers(event)
	p.addHandler(event, handler)
	if first {
		if err := p.session.addEvent(ctx, p.id, event); err != nil {
			return nil, err
		}
	}
	return func() {
		p.removeHandlers(event)
		_ = p.session.removeEvent(context.Background(), p.id, event)
	}, nil
}

func (p *DynamicProxy) String() string {
	return fmt.Sprintf("DynamicProxy(%s)", p.id.String())
}
