package cmrpc

import (
	"sync"
	"weak"
)

// ClientResolver maps identifiers to DynamicProxy instances held weakly, so
// a proxy the application has stopped referencing becomes eligible for
// garbage collection without the resolver keeping it alive. One instance
// is owned by each Session.
type ClientResolver struct {
	mu      sync.Mutex
	table   map[Identifier]weak.Pointer[DynamicProxy]
	pending []*DynamicProxy
}

// NewClientResolver constructs an empty weak-reference table.
func NewClientResolver() *ClientResolver {
	return &ClientResolver{table: make(map[Identifier]weak.Pointer[DynamicProxy])}
}

// ResolveReference looks up id for event routing. It attempts resurrection
// if the weak reference was reclaimed but a ProxyFinalized send is still
// pending for it; otherwise a dead or absent entry yields (nil, false) —
// it never fabricates a proxy for an identifier the client has not
// already been told about through decoding a value.
func (r *ClientResolver) ResolveReference(id Identifier, session *Session) (*DynamicProxy, bool) {
	if id.IsEmpty() {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wp, ok := r.table[id]
	if !ok {
		return nil, false
	}
	if p := wp.Value(); p != nil {
		return p, true
	}
	if !takeFinalizeRequested(id) {
		delete(r.table, id)
		return nil, false
	}
	p := newDynamicProxy(id, session)
	r.table[id] = weak.Make(p)
	return p, true
}

// resolveForDecode is the entry point used while decoding a value that
// contains an identifier reference. It always returns a usable proxy:
//   - absent or dead with no pending finalize: a fresh proxy, as if id
//     were seen for the first time.
//   - dead with a pending finalize: resurrection — a fresh proxy bound to
//     the same identifier, and the queued ProxyFinalized send is
//     cancelled.
//   - alive: the existing proxy, queued for population rather than
//     replaced, since a live proxy may still be mid-construction.
func (r *ClientResolver) resolveForDecode(id Identifier, session *Session) *DynamicProxy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wp, ok := r.table[id]; ok {
		if p := wp.Value(); p != nil {
			r.pending = append(r.pending, p)
			return p
		}
		takeFinalizeRequested(id)
	}

	p := newDynamicProxy(id, session)
	r.table[id] = weak.Make(p)
	r.pending = append(r.pending, p)
	return p
}

// GetReference returns the identifier of obj if it is a proxy this
// resolver knows about, for substitution when serializing an argument
// back toward the object's origin.
func (r *ClientResolver) GetReference(obj any) (Identifier, bool) {
	dto, ok := obj.(Dto)
	if !ok {
		return Identifier{}, false
	}
	id := dto.Id()
	if id.IsEmpty() {
		return Identifier{}, false
	}
	r.mu.Lock()
	_, tracked := r.table[id]
	r.mu.Unlock()
	if !tracked {
		return Identifier{}, false
	}
	return id, true
}

// IsReferenced reports whether obj is a live, tracked proxy.
func (r *ClientResolver) IsReferenced(obj any) bool {
	dto, ok := obj.(Dto)
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.table[dto.Id()]
	if !ok {
		return false
	}
	return wp.Value() != nil
}

// isLive reports whether id currently resolves to a live proxy. The
// finalize pump consults this immediately before sending ProxyFinalized:
// a cleanup callback armed against a since-reclaimed proxy can fire after
// resolveForDecode has already rebound the same identifier to a fresh
// live proxy (resurrection, or an ordinary new sighting racing the
// cleanup), and that rebinding must win.
func (r *ClientResolver) isLive(id Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.table[id]
	if !ok {
		return false
	}
	return wp.Value() != nil
}

// TakeProxiesToPopulate drains and returns the proxies queued for
// population by decode calls since the last drain, in arrival order.
func (r *ClientResolver) TakeProxiesToPopulate() []*DynamicProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// Len reports the number of identifiers with a live or not-yet-swept weak
// entry, for diagnostics and tests.
func (r *ClientResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}
