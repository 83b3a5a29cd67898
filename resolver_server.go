package cmrpc

import (
	"sync"

	"go.uber.org/zap"
)

// serverEntry tracks a server object and the set of sessions that currently
// hold it exposed. An object may be handed out to more than one session
// (the same root object exposed to every accepted connection, for
// instance), and each of those sessions independently drops its own
// exposure on ProxyFinalized or Close; the entry survives in the table
// until refs is empty.
type serverEntry struct {
	obj  Dto
	refs map[*Session]struct{}
}

// ServerResolver maps identifiers to server objects. One instance is
// typically shared by every Session accepted from a given root object
// factory. An object stays in the strong table as long as at least one
// session has exposed it; that liveness is judged per-session via refs, so
// one session finalizing its proxy or closing never tears an object out
// from under another session that still holds a live reference to it.
type ServerResolver struct {
	mu    sync.Mutex
	table map[Identifier]*serverEntry
	log   *zap.Logger
}

// NewServerResolver constructs an empty resolver. logger may be nil, in
// which case a no-op logger is used.
func NewServerResolver(logger *zap.Logger) *ServerResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerResolver{
		table: make(map[Identifier]*serverEntry),
		log:   logger,
	}
}

// IsReferenced reports whether obj exposes the DTO capability at all —
// it does not require obj to currently be tracked in the table.
func (r *ServerResolver) IsReferenced(obj any) bool {
	_, ok := obj.(Dto)
	return ok
}

// ResolveReference returns the server object bound to id, or nil. It never
// creates one and does not affect any session's exposure of it.
func (r *ServerResolver) ResolveReference(id Identifier) Dto {
	if id.IsEmpty() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.table[id]
	if !ok {
		return nil
	}
	return entry.obj
}

// GetOrAssignReference assigns a fresh identifier to obj the first time it
// is seen and tracks it strongly; idempotent on subsequent calls for the
// same object. session is recorded as one of the exposing sessions for id,
// and — the first time this session picks up that exposure — mirrored into
// the session's own exposed set so Close later knows exactly which ids to
// release.
func (r *ServerResolver) GetOrAssignReference(obj Dto, session *Session) Identifier {
	r.mu.Lock()
	id := obj.Id()
	var entry *serverEntry
	if !id.IsEmpty() {
		entry = r.table[id]
	}
	if entry == nil {
		id = NewIdentifier()
		obj.setId(id)
		entry = &serverEntry{obj: obj, refs: make(map[*Session]struct{})}
		r.table[id] = entry
		r.log.Debug("assigned reference", zap.String("dto", id.String()))
	}
	_, alreadyExposed := entry.refs[session]
	entry.refs[session] = struct{}{}
	r.mu.Unlock()

	if session != nil && !alreadyExposed {
		session.trackExposed(id)
	}
	return id
}

// RemoveReference releases session's claim on obj, the same as
// removeReferenceById but starting from the object rather than its id.
func (r *ServerResolver) RemoveReference(obj Dto, session *Session) {
	id := obj.Id()
	if id.IsEmpty() {
		return
	}
	r.removeReferenceById(id, session)
}

// removeReferenceById releases session's exposure of id. It is used both by
// ProxyFinalized handling, where only the wire identifier is known, and by
// Session.Close releasing everything that session exposed. The table entry
// is only physically deleted once no session still holds it exposed, so a
// finalize or close from one session never removes an object another
// session still references.
func (r *ServerResolver) removeReferenceById(id Identifier, session *Session) {
	r.mu.Lock()
	entry, ok := r.table[id]
	removed := false
	if ok {
		delete(entry.refs, session)
		if len(entry.refs) == 0 {
			delete(r.table, id)
			removed = true
		}
	}
	r.mu.Unlock()
	if ok {
		r.log.Debug("released exposure", zap.String("dto", id.String()), zap.Bool("removed", removed))
	}
}

// Len reports the number of strongly-tracked objects.
func (r *ServerResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}
