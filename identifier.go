package cmrpc

import "github.com/google/uuid"

// Identifier is the 128-bit value naming a Dto across the wire.
// Equality is bitwise. Only the server mints identifiers; the zero value
// denotes "no identifier" (root query, or an unbound event notification).
type Identifier struct {
	id uuid.UUID
}

// NewIdentifier returns a freshly generated identifier. Only called from
// the server side, at the moment a Dto is first serialized.
func NewIdentifier() Identifier {
	return Identifier{id: uuid.New()}
}

// ParseIdentifier decodes the canonical textual form produced by String.
func ParseIdentifier(s string) (Identifier, error) {
	if s == "" {
		return Identifier{}, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Identifier{}, &Error{Kind: ErrKindProtocolViolation, Message: "malformed identifier: " + err.Error()}
	}
	return Identifier{id: u}, nil
}

// IsEmpty reports whether the identifier is the sentinel "not a reference"
// value used for RootQuery and for unbound server-originated events.
func (id Identifier) IsEmpty() bool {
	return id.id == uuid.Nil
}

// String returns the canonical textual form used on the wire and in the
// resolver tables.
func (id Identifier) String() string {
	if id.IsEmpty() {
		return ""
	}
	return id.id.String()
}
