package cmrpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type room struct {
	ServerObjectBase
	Topic    string
	Messages Event
}

func (r *room) Post(text string) string {
	r.Messages.Raise(text)
	return "posted: " + text
}

type staticRootFactory struct {
	root Dto
}

func (f *staticRootFactory) RootObject(ctx context.Context, principal Principal) (Dto, error) {
	return f.root, nil
}

func newTestSessionPair(t *testing.T, root Dto, opts ...Option) (*Session, *Session) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})

	resolver := NewServerResolver(nil)
	factory := &staticRootFactory{root: root}

	serverOpts := append([]Option{WithRequestTimeout(2 * time.Second)}, opts...)
	clientOpts := append([]Option{WithRequestTimeout(2 * time.Second)}, opts...)

	serverSession, err := NewServerSession(context.Background(), serverConn, resolver, factory, Principal{}, serverOpts...)
	require.NoError(t, err)
	clientSession := NewClientSession(clientConn, clientOpts...)
	t.Cleanup(func() {
		serverSession.Close()
		clientSession.Close()
	})
	return serverSession, clientSession
}

func TestSessionEndToEnd(t *testing.T) {
	Register[room]()
	r := &room{Topic: "general"}
	_, client := newTestSessionPair(t, r)

	ctx := context.Background()

	proxy, err := client.RootQuery(ctx)
	require.NoError(t, err)
	require.NotNil(t, proxy)

	topic, err := proxy.Get(ctx, "Topic")
	require.NoError(t, err)
	require.Equal(t, "general", topic)

	require.NoError(t, proxy.Set(ctx, "Topic", "updates"))
	require.Equal(t, "updates", r.Topic)

	result, err := proxy.Invoke(ctx, "Post", "hello")
	require.NoError(t, err)
	require.Equal(t, "posted: hello", result)

	received := make(chan any, 1)
	unsub, err := proxy.On(ctx, "Messages", func(payload any) {
		received <- payload
	})
	require.NoError(t, err)
	defer unsub()

	_, err = proxy.Invoke(ctx, "Post", "world")
	require.NoError(t, err)

	select {
	case payload := <-received:
		require.Equal(t, "world", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event notification")
	}
}

func TestSessionUnknownMethod(t *testing.T) {
	Register[room]()
	r := &room{Topic: "general"}
	_, client := newTestSessionPair(t, r)

	ctx := context.Background()
	proxy, err := client.RootQuery(ctx)
	require.NoError(t, err)

	_, err = proxy.Invoke(ctx, "DoesNotExist")
	require.Error(t, err)

	var asErr *Error
	require.ErrorAs(t, err, &asErr)
	require.Equal(t, ErrKindUnknownMember, asErr.Kind)
}

func TestSessionArityMismatch(t *testing.T) {
	Register[room]()
	r := &room{Topic: "general"}
	_, client := newTestSessionPair(t, r)

	ctx := context.Background()
	proxy, err := client.RootQuery(ctx)
	require.NoError(t, err)

	_, err = proxy.Invoke(ctx, "Post", "one", "two")
	require.Error(t, err)

	var asErr *Error
	require.ErrorAs(t, err, &asErr)
	require.Equal(t, ErrKindArityMismatch, asErr.Kind)
}

func TestSessionUnknownProperty(t *testing.T) {
	Register[room]()
	r := &room{Topic: "general"}
	_, client := newTestSessionPair(t, r)

	ctx := context.Background()
	proxy, err := client.RootQuery(ctx)
	require.NoError(t, err)

	_, err = proxy.Get(ctx, "DoesNotExist")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown property")
}

func TestSessionRootObjectIdentityStableAcrossQueries(t *testing.T) {
	Register[room]()
	r := &room{Topic: "general"}
	_, client := newTestSessionPair(t, r)

	ctx := context.Background()
	first, err := client.RootQuery(ctx)
	require.NoError(t, err)
	second, err := client.RootQuery(ctx)
	require.NoError(t, err)

	require.Equal(t, first.Id(), second.Id())
}

func TestNewServerSessionRejectsUnauthorizedPrincipal(t *testing.T) {
	Register[room]()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	provider := PrincipalProviderFunc(func(ctx context.Context) (Principal, error) {
		return Principal{}, ErrUnauthorized
	})

	session, err := NewServerSession(
		context.Background(),
		serverConn,
		NewServerResolver(nil),
		&staticRootFactory{root: &room{}},
		Principal{},
		WithPrincipalProvider(provider),
	)
	require.Nil(t, session)
	require.Error(t, err)

	var asErr *Error
	require.ErrorAs(t, err, &asErr)
	require.Equal(t, ErrKindUnauthorized, asErr.Kind)
}

func TestSessionCloseReleasesSharedObjectOnlyAfterEverySessionDrops(t *testing.T) {
	Register[room]()
	r := &room{Topic: "general"}
	resolver := NewServerResolver(nil)
	factory := &staticRootFactory{root: r}

	newLeg := func() (*Session, *Session) {
		serverConn, clientConn := net.Pipe()
		serverSession, err := NewServerSession(context.Background(), serverConn, resolver, factory, Principal{}, WithRequestTimeout(2*time.Second))
		require.NoError(t, err)
		clientSession := NewClientSession(clientConn, WithRequestTimeout(2*time.Second))
		return serverSession, clientSession
	}

	serverA, clientA := newLeg()
	serverB, clientB := newLeg()
	defer clientA.Close()
	defer clientB.Close()
	defer serverA.Close()
	defer serverB.Close()

	ctx := context.Background()
	proxyA, err := clientA.RootQuery(ctx)
	require.NoError(t, err)
	proxyB, err := clientB.RootQuery(ctx)
	require.NoError(t, err)
	require.Equal(t, proxyA.Id(), proxyB.Id())
	require.Equal(t, 1, resolver.Len())

	require.NoError(t, serverA.Close())
	require.Equal(t, 1, resolver.Len(), "root object is still exposed to session B")

	topic, err := proxyB.Get(ctx, "Topic")
	require.NoError(t, err)
	require.Equal(t, "general", topic, "session B's proxy must keep working after session A closes")

	require.NoError(t, serverB.Close())
	require.Equal(t, 0, resolver.Len(), "the last exposing session closing must release the object")
}

func TestNewServerSessionAcceptsAuthorizedPrincipal(t *testing.T) {
	Register[room]()
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	provider := PrincipalProviderFunc(func(ctx context.Context) (Principal, error) {
		return Principal{Name: "alice"}, nil
	})

	session, err := NewServerSession(
		context.Background(),
		serverConn,
		NewServerResolver(nil),
		&staticRootFactory{root: &room{}},
		Principal{},
		WithPrincipalProvider(provider),
	)
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "alice", session.principal.Name)
	session.Close()
}
