package codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type dtoStub struct {
	Name string
}

type fakeSubstituter struct {
	objects map[string]any
	next    int
}

func newFakeSubstituter() *fakeSubstituter {
	return &fakeSubstituter{objects: make(map[string]any)}
}

func (s *fakeSubstituter) ToWire(obj any) (string, bool) {
	stub, ok := obj.(*dtoStub)
	if !ok {
		return "", false
	}
	for id, existing := range s.objects {
		if existing == any(stub) {
			return id, true
		}
	}
	s.next++
	id := fmt.Sprintf("id-%d", s.next)
	s.objects[id] = stub
	return id, true
}

func (s *fakeSubstituter) FromWire(id string) any {
	return s.objects[id]
}

func TestJSONCodecRoundTripsScalarsAndSlices(t *testing.T) {
	c := NewJSONCodec()
	sub := newFakeSubstituter()

	data, err := c.Serialize([]any{1, "two", true, nil}, sub)
	require.NoError(t, err)

	out, err := c.Deserialize(data, sub)
	require.NoError(t, err)
	arr, ok := out.([]any)
	require.True(t, ok)
	require.Equal(t, float64(1), arr[0])
	require.Equal(t, "two", arr[1])
	require.Equal(t, true, arr[2])
	require.Nil(t, arr[3])
}

func TestJSONCodecSubstitutesDtoReferences(t *testing.T) {
	c := NewJSONCodec()
	sub := newFakeSubstituter()
	obj := &dtoStub{Name: "room-1"}

	data, err := c.Serialize(obj, sub)
	require.NoError(t, err)

	out, err := c.Deserialize(data, sub)
	require.NoError(t, err)
	require.Same(t, obj, out)
}

func TestProtoCodecSubstitutesDtoReferences(t *testing.T) {
	c := NewProtoCodec()
	sub := newFakeSubstituter()
	obj := &dtoStub{Name: "room-1"}

	data, err := c.Serialize(obj, sub)
	require.NoError(t, err)

	out, err := c.Deserialize(data, sub)
	require.NoError(t, err)
	require.Same(t, obj, out)
}

func TestJSONCodecEmptyPayload(t *testing.T) {
	c := NewJSONCodec()
	sub := newFakeSubstituter()
	out, err := c.Deserialize(nil, sub)
	require.NoError(t, err)
	require.Nil(t, out)
}
