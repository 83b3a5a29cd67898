package codec

import "fmt"

// SerializationError wraps a failure surfaced by a specific codec
// operation, distinguishing an encoding-layer fault from an
// application-level Exception.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }
