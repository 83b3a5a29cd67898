package cmrpc

import "encoding/json"

// MessageType enumerates the kinds of envelope that can cross the wire.
type MessageType byte

const (
	MessageTypeRootQuery MessageType = iota
	MessageTypeQuery
	MessageTypeGet
	MessageTypeSet
	MessageTypeEventAdd
	MessageTypeEventRemove
	MessageTypeEventNotification
	MessageTypeProxyFinalized
	MessageTypeResponse
	MessageTypeException
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeRootQuery:
		return "RootQuery"
	case MessageTypeQuery:
		return "Query"
	case MessageTypeGet:
		return "Get"
	case MessageTypeSet:
		return "Set"
	case MessageTypeEventAdd:
		return "EventAdd"
	case MessageTypeEventRemove:
		return "EventRemove"
	case MessageTypeEventNotification:
		return "EventNotification"
	case MessageTypeProxyFinalized:
		return "ProxyFinalized"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeException:
		return "Exception"
	default:
		return "Unknown"
	}
}

// Envelope is one framed message on the wire.
type Envelope struct {
	MessageGuid     string
	DtoGuid         string
	MessageType     MessageType
	MemberName      string
	ParametersCount int
	ValueStream     []byte
}

func newEnvelope(mt MessageType, dtoGuid, member string) *Envelope {
	return &Envelope{
		MessageGuid: NewIdentifier().String(),
		DtoGuid:     dtoGuid,
		MessageType: mt,
		MemberName:  member,
	}
}

// NewRootQuery builds the client's initial request for the root object.
func NewRootQuery() *Envelope {
	return newEnvelope(MessageTypeRootQuery, "", "")
}

// NewQuery builds a method-invocation request.
func NewQuery(dtoGuid, method string, paramsCount int, args []byte) *Envelope {
	e := newEnvelope(MessageTypeQuery, dtoGuid, method)
	e.ParametersCount = paramsCount
	e.ValueStream = args
	return e
}

// NewGet builds a property-read request.
func NewGet(dtoGuid, property string) *Envelope {
	return newEnvelope(MessageTypeGet, dtoGuid, property)
}

// NewSet builds a property-write request.
func NewSet(dtoGuid, property string, value []byte) *Envelope {
	e := newEnvelope(MessageTypeSet, dtoGuid, property)
	e.ValueStream = value
	return e
}

// NewEventAdd builds an event-subscribe request.
func NewEventAdd(dtoGuid, event string) *Envelope {
	return newEnvelope(MessageTypeEventAdd, dtoGuid, event)
}

// NewEventRemove builds an event-unsubscribe request.
func NewEventRemove(dtoGuid, event string) *Envelope {
	return newEnvelope(MessageTypeEventRemove, dtoGuid, event)
}

// NewEventNotification builds an unsolicited server-to-client event
// delivery. It is not correlated to any request: MessageGuid is fresh but
// never awaited.
func NewEventNotification(dtoGuid, event string, value []byte) *Envelope {
	e := newEnvelope(MessageTypeEventNotification, dtoGuid, event)
	e.ValueStream = value
	return e
}

// NewProxyFinalized builds the fire-and-forget teardown notice a client
// sends when a proxy has been reclaimed.
func NewProxyFinalized(dtoGuid string) *Envelope {
	return newEnvelope(MessageTypeProxyFinalized, dtoGuid, "")
}

// replyTo builds a Response envelope correlated to req.
func replyTo(req *Envelope, value []byte) *Envelope {
	return &Envelope{
		MessageGuid: req.MessageGuid,
		DtoGuid:     req.DtoGuid,
		MessageType: MessageTypeResponse,
		ValueStream: value,
	}
}

func exceptionTo(req *Envelope, err error) *Envelope {
	summary := newExceptionSummary(err)
	data, marshalErr := json.Marshal(summary)
	if marshalErr != nil {
		data = []byte(`{"message":"` + err.Error() + `"}`)
	}
	return &Envelope{
		MessageGuid: req.MessageGuid,
		DtoGuid:     req.DtoGuid,
		MessageType: MessageTypeException,
		ValueStream: data,
	}
}

// IsRequest reports whether e is request-shaped, as opposed to a reply or
// an unsolicited event. Every request type except ProxyFinalized, which is
// fire-and-forget, is answered with a Response or Exception.
func (e *Envelope) IsRequest() bool {
	switch e.MessageType {
	case MessageTypeResponse, MessageTypeException, MessageTypeEventNotification:
		return false
	default:
		return true
	}
}

// wireEnvelope is the on-the-wire shape of Envelope. It exists separately
// so ValueStream's raw bytes are base64-framed by the JSON encoder rather
// than interpreted, keeping the header codec independent of whichever
// value codec produced ValueStream's contents.
type wireEnvelope struct {
	MessageGuid     string      `json:"id"`
	DtoGuid         string      `json:"dto,omitempty"`
	MessageType     MessageType `json:"type"`
	MemberName      string      `json:"member,omitempty"`
	ParametersCount int         `json:"paramsCount,omitempty"`
	ValueStream     []byte      `json:"value,omitempty"`
}

// encode renders e as the payload of a single frame.
func (e *Envelope) encode() ([]byte, error) {
	return json.Marshal(wireEnvelope{
		MessageGuid:     e.MessageGuid,
		DtoGuid:         e.DtoGuid,
		MessageType:     e.MessageType,
		MemberName:      e.MemberName,
		ParametersCount: e.ParametersCount,
		ValueStream:     e.ValueStream,
	})
}

// decodeEnvelope reverses encode, used by the reader goroutine on each
// frame read off the wire.
func decodeEnvelope(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &Error{Kind: ErrKindProtocolViolation, Message: "malformed envelope", Cause: err}
	}
	return &Envelope{
		MessageGuid:     w.MessageGuid,
		DtoGuid:         w.DtoGuid,
		MessageType:     w.MessageType,
		MemberName:      w.MemberName,
		ParametersCount: w.ParametersCount,
		ValueStream:     w.ValueStream,
	}, nil
}
