package cmrpc

import "context"

// Principal identifies whoever is on the other end of a session, as
// established during transport setup (TLS client cert, MQTT credentials,
// an HTTP upgrade header) before any RootQuery is served.
type Principal struct {
	Name   string
	Claims map[string]string
}

// PrincipalProvider authorizes a newly accepted connection and extracts
// its Principal. Returning an error refuses the session before any
// envelope is read; sessions constructed without a provider treat every
// connection as anonymous and always authorized.
type PrincipalProvider interface {
	Authorize(ctx context.Context) (Principal, error)
}

// PrincipalProviderFunc adapts a function to PrincipalProvider.
type PrincipalProviderFunc func(ctx context.Context) (Principal, error)

func (f PrincipalProviderFunc) Authorize(ctx context.Context) (Principal, error) {
	return f(ctx)
}
