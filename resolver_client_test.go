package cmrpc

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	return &Session{cfg: defaultSessionConfig()}
}

func TestClientResolverDecodeCreatesAndCaches(t *testing.T) {
	r := NewClientResolver()
	s := newTestSession()
	id := NewIdentifier()

	p1 := r.resolveForDecode(id, s)
	require.NotNil(t, p1)

	p2 := r.resolveForDecode(id, s)
	require.Same(t, p1, p2)

	pending := r.TakeProxiesToPopulate()
	require.Len(t, pending, 2)
	require.Empty(t, r.TakeProxiesToPopulate())
}

func TestClientResolverResolveReferenceUnknown(t *testing.T) {
	r := NewClientResolver()
	_, ok := r.ResolveReference(NewIdentifier(), newTestSession())
	require.False(t, ok)
}

func TestClientResolverGetReferenceRequiresTracking(t *testing.T) {
	r := NewClientResolver()
	s := newTestSession()

	untracked := newDynamicProxy(NewIdentifier(), s)
	_, ok := r.GetReference(untracked)
	require.False(t, ok, "a proxy never registered with this resolver must not resolve to a wire identifier")

	id := NewIdentifier()
	tracked := r.resolveForDecode(id, s)
	got, ok := r.GetReference(tracked)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func waitForFinalizeRequested(t *testing.T, id Identifier) {
	t.Helper()
	for i := 0; i < 50; i++ {
		runtime.GC()
		finalizeMu.Lock()
		_, ok := finalizeSet[id]
		finalizeMu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("proxy finalization was never requested after reclaim")
}

func TestClientResolverResurrection(t *testing.T) {
	r := NewClientResolver()
	s := newTestSession()
	id := NewIdentifier()

	func() {
		p := r.resolveForDecode(id, s)
		require.NotNil(t, p)
	}()
	r.TakeProxiesToPopulate()

	waitForFinalizeRequested(t, id)

	resurrected, ok := r.ResolveReference(id, s)
	require.True(t, ok)
	require.NotNil(t, resurrected)

	finalizeMu.Lock()
	_, stillPending := finalizeSet[id]
	finalizeMu.Unlock()
	require.False(t, stillPending, "resurrection must cancel the pending ProxyFinalized send")
}
