package cmrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	ServerObjectBase
	Name string
}

func TestServerResolverAssignsAndResolves(t *testing.T) {
	r := NewServerResolver(nil)
	s := newTestSession()
	w := &widget{Name: "gizmo"}

	id := r.GetOrAssignReference(w, s)
	require.False(t, id.IsEmpty())
	require.Equal(t, id, w.Id())
	require.Equal(t, 1, r.Len())

	again := r.GetOrAssignReference(w, s)
	require.Equal(t, id, again)
	require.Equal(t, 1, r.Len(), "re-exposing to the same session must not create a second entry")

	got := r.ResolveReference(id)
	require.Same(t, w, got)
}

func TestServerResolverSurvivesUntilLastSessionReleases(t *testing.T) {
	r := NewServerResolver(nil)
	a := newTestSession()
	b := newTestSession()
	w := &widget{Name: "shared"}

	id := r.GetOrAssignReference(w, a)
	require.Equal(t, id, r.GetOrAssignReference(w, b))
	require.Equal(t, 1, r.Len())

	r.removeReferenceById(id, a)
	require.Equal(t, 1, r.Len(), "session b still has the object exposed")
	require.NotNil(t, r.ResolveReference(id), "an object referenced by one live session must remain resolvable")

	r.removeReferenceById(id, b)
	require.Equal(t, 0, r.Len(), "the last exposing session releasing its claim must remove the entry")
	require.Nil(t, r.ResolveReference(id))
}

func TestServerResolverReleaseByUnknownSessionIsNoop(t *testing.T) {
	r := NewServerResolver(nil)
	a := newTestSession()
	stranger := newTestSession()
	w := &widget{Name: "solo"}

	id := r.GetOrAssignReference(w, a)
	r.removeReferenceById(id, stranger)
	require.Equal(t, 1, r.Len(), "a session that never exposed the object cannot release someone else's claim")
}

func TestSessionTrackExposedRecordsAssignment(t *testing.T) {
	r := NewServerResolver(nil)
	s := newTestSession()
	s.exposed = make(map[Identifier]struct{})
	w := &widget{Name: "tracked"}

	id := r.GetOrAssignReference(w, s)

	s.mu.Lock()
	_, ok := s.exposed[id]
	s.mu.Unlock()
	require.True(t, ok)
}
