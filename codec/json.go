package codec

import "encoding/json"

type jsonCodec struct{}

// NewJSONCodec returns a Codec backed by encoding/json. It is the codec
// every session uses unless another one is chosen with WithCodec,
// whichever stream transport carries the session.
func NewJSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Serialize(value any, sub Substituter) ([]byte, error) {
	tree := substituteOut(value, sub)
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, &SerializationError{Op: "serialize", Err: err}
	}
	return data, nil
}

func (jsonCodec) Deserialize(data []byte, sub Substituter) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, &SerializationError{Op: "deserialize", Err: err}
	}
	return substituteIn(tree, sub), nil
}
