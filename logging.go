package cmrpc

import "go.uber.org/zap"

// NewDevelopmentLogger returns a human-readable zap logger suitable for
// local runs; production callers should build their
// own zap.Config and pass it via WithLogger instead.
func NewDevelopmentLogger() *zap.Logger {
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}
