package cmrpc

import "context"

// RootObjectFactory produces the object a session returns in response to
// RootQuery. The session calls it for every RootQuery it serves, passing
// the session's principal, so a server can hand out per-session root state
// (a per-connection session object) or always return a shared singleton;
// a factory that builds a new object on each call answers repeated
// RootQueries with different objects.
type RootObjectFactory interface {
	RootObject(ctx context.Context, principal Principal) (Dto, error)
}

// RootObjectFactoryFunc adapts a function to RootObjectFactory.
type RootObjectFactoryFunc func(ctx context.Context, principal Principal) (Dto, error)

func (f RootObjectFactoryFunc) RootObject(ctx context.Context, principal Principal) (Dto, error) {
	return f(ctx, principal)
}
