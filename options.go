package cmrpc

import (
	"crypto/tls"
	"time"

	"github.com/jaskie/componentmodelrpc/codec"
	"go.uber.org/zap"
)

// SessionConfig collects the tunables a Session is built with. Zero value
// is not directly usable; newSession (behind NewClientSession and
// NewServerSession) applies defaultSessionConfig first
// and then each supplied Option, mirroring the functional-options pattern
// used throughout this codebase's dial/listen surface.
type SessionConfig struct {
	MaxFrameSize        uint32
	QueueDepth          int
	RequestTimeout      time.Duration
	FinalizeQuiescence  time.Duration
	Logger              *zap.Logger
	TLSConfig           *tls.Config
	PrincipalProvider   PrincipalProvider
	Codec               codec.Codec
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxFrameSize:       DefaultMaxFrameSize,
		QueueDepth:         10000,
		RequestTimeout:     30 * time.Second,
		FinalizeQuiescence: defaultFinalizeQuiescence,
		Logger:             zap.NewNop(),
		Codec:              codec.NewJSONCodec(),
	}
}

// Option customizes a SessionConfig at construction time.
type Option func(*SessionConfig)

// WithMaxFrameSize caps the payload size of any single frame.
func WithMaxFrameSize(n uint32) Option {
	return func(c *SessionConfig) { c.MaxFrameSize = n }
}

// WithQueueDepth bounds the number of dispatch-queued requests before a
// session starts rejecting new ones with a Congestion fault.
func WithQueueDepth(n int) Option {
	return func(c *SessionConfig) { c.QueueDepth = n }
}

// WithRequestTimeout bounds how long a caller waits for a Response before
// its pending completion fails with a Timeout fault.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *SessionConfig) { c.RequestTimeout = d }
}

// WithFinalizeQuiescence overrides the window a reclaimed proxy's
// identifier stays eligible for resurrection before ProxyFinalized ships.
func WithFinalizeQuiescence(d time.Duration) Option {
	return func(c *SessionConfig) { c.FinalizeQuiescence = d }
}

// WithLogger attaches a zap logger; nil is treated as a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *SessionConfig) {
		if l == nil {
			l = zap.NewNop()
		}
		c.Logger = l
	}
}

// WithTLSConfig stores an existing TLS config in SessionConfig.TLSConfig.
// The Session does not read that field and never wraps its conn in TLS;
// TLS on a stream is negotiated by the stream package's DialTCP and
// ListenTCP, which take their own *tls.Config.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *SessionConfig) { c.TLSConfig = cfg }
}

// WithSelfSignedCert generates a throwaway ed25519 certificate valid for
// expiration and stores it in SessionConfig.TLSConfig, which, as with
// WithTLSConfig, the Session itself does not apply to its conn. If
// generation fails, TLSConfig is left unchanged.
func WithSelfSignedCert(expiration time.Duration) Option {
	return func(c *SessionConfig) {
		cert, err := GenerateCertificate(expiration)
		if err != nil {
			return
		}
		c.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
}

// WithPrincipalProvider installs the collaborator consulted to authorize
// an incoming connection before RootQuery is served.
func WithPrincipalProvider(p PrincipalProvider) Option {
	return func(c *SessionConfig) { c.PrincipalProvider = p }
}

// WithCodec overrides the value codec used for every envelope's
// ValueStream; the default is JSON.
func WithCodec(cd codec.Codec) Option {
	return func(c *SessionConfig) { c.Codec = cd }
}
