package codec

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct{}

// NewProtoCodec returns a Codec backed by structpb.Value, letting a value
// tree cross the wire as protobuf's dynamic JSON-compatible encoding
// instead of raw encoding/json. Useful when a transport already speaks
// protobuf for everything else and a second wire format is undesirable.
func NewProtoCodec() Codec { return protoCodec{} }

func (protoCodec) Serialize(value any, sub Substituter) ([]byte, error) {
	tree := substituteOut(value, sub)
	val, err := structpb.NewValue(tree)
	if err != nil {
		return nil, &SerializationError{Op: "serialize", Err: err}
	}
	data, err := protojson.Marshal(val)
	if err != nil {
		return nil, &SerializationError{Op: "serialize", Err: err}
	}
	return data, nil
}

func (protoCodec) Deserialize(data []byte, sub Substituter) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	val := &structpb.Value{}
	if err := protojson.Unmarshal(data, val); err != nil {
		return nil, &SerializationError{Op: "deserialize", Err: err}
	}
	return substituteIn(val.AsInterface(), sub), nil
}
