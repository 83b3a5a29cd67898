package cmrpc

import (
	"sync"
	"time"
)

const defaultFinalizeQuiescence = 50 * time.Millisecond

const finalizePumpInterval = 10 * time.Millisecond

type finalizeEntry struct {
	session  *Session
	deadline time.Time
}

var (
	finalizeMu   sync.Mutex
	finalizeSet  = make(map[Identifier]*finalizeEntry)
	finalizeOnce sync.Once
)

// requestFinalize records that id's proxy became unreachable and starts (or
// restarts) the quiescence window before ProxyFinalized is actually sent.
// It is called from the runtime cleanup registered in newDynamicProxy,
// which runs on an arbitrary goroutine with no guarantees about timing, so
// the set itself carries its own lock rather than relying on the session.
func requestFinalize(id Identifier, session *Session) {
	finalizeMu.Lock()
	finalizeSet[id] = &finalizeEntry{
		session:  session,
		deadline: time.Now().Add(session.finalizeQuiescence()),
	}
	finalizeMu.Unlock()
	startFinalizePump()
}

// takeFinalizeRequested cancels a pending finalize for id if one exists,
// reporting whether it did. Resurrection uses this both to suppress the
// ProxyFinalized send and to detect that this is a resurrection rather
// than an ordinary first sighting of id.
func takeFinalizeRequested(id Identifier) bool {
	finalizeMu.Lock()
	defer finalizeMu.Unlock()
	_, ok := finalizeSet[id]
	if ok {
		delete(finalizeSet, id)
	}
	return ok
}

// startFinalizePump lazily starts the single process-wide goroutine that
// drains elapsed entries from finalizeSet. One goroutine services every
// session in the process since resurrection must be checked against a
// single shared set, not one set per session.
func startFinalizePump() {
	finalizeOnce.Do(func() {
		go runFinalizePump()
	})
}

func runFinalizePump() {
	ticker := time.NewTicker(finalizePumpInterval)
	defer ticker.Stop()
	for range ticker.C {
		drainFinalizeSet()
	}
}

func drainFinalizeSet() {
	now := time.Now()
	var due []struct {
		id      Identifier
		session *Session
	}

	finalizeMu.Lock()
	for id, entry := range finalizeSet {
		if now.After(entry.deadline) || now.Equal(entry.deadline) {
			due = append(due, struct {
				id      Identifier
				session *Session
			}{id, entry.session})
			delete(finalizeSet, id)
		}
	}
	finalizeMu.Unlock()

	for _, d := range due {
		// A cleanup for the proxy that originally requested this finalize
		// can lose the race against a decode that has since rebound id to
		// a new live proxy (see ClientResolver.isLive). Sending
		// ProxyFinalized here would tear down a server object the new
		// proxy still references, so skip it and let that proxy's own
		// eventual cleanup arm the next finalize.
		if d.session.clientResolver != nil && d.session.clientResolver.isLive(d.id) {
			continue
		}
		d.session.sendProxyFinalized(d.id)
	}
}
