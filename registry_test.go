package cmrpc

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type calculator struct {
	ServerObjectBase
	Total  float64
	Ticked Event
}

func (c *calculator) Add(a, b float64) float64 {
	return a + b
}

func (c *calculator) AddThree(a, b, c2 float64) float64 {
	return a + b + c2
}

func (c *calculator) Fail() error {
	return &Error{Kind: ErrKindInvocationFailed, Message: "boom"}
}

func TestRegistryDiscoversMethodsPropertiesAndEvents(t *testing.T) {
	Register[calculator]()
	desc, _ := descriptorFor(&calculator{})

	_, ok := desc.findMethod("Add", 2)
	require.True(t, ok)

	_, ok = desc.findMethod("Add", 3)
	require.False(t, ok)
	require.True(t, desc.hasMethodName("Add"))
	require.False(t, desc.hasMethodName("Subtract"))

	_, ok = desc.properties["Total"]
	require.True(t, ok)

	_, ok = desc.events["Ticked"]
	require.True(t, ok)

	_, ok = desc.events["PropertyChanged"]
	require.True(t, ok, "PropertyChanged from the embedded ServerObjectBase must be promoted")
}

func TestAlignArgumentWidensNumeric(t *testing.T) {
	v, err := alignArgument(reflect.TypeOf(float64(0)), float32(3))
	require.NoError(t, err)
	require.Equal(t, float64(3), v.Interface())
}

func TestAlignArgumentRejectsIncompatibleTypes(t *testing.T) {
	_, err := alignArgument(reflect.TypeOf(calculator{}), 5)
	require.Error(t, err)
}

func TestAlignArgumentNilForPointerType(t *testing.T) {
	v, err := alignArgument(reflect.TypeOf(&calculator{}), nil)
	require.NoError(t, err)
	require.True(t, v.IsNil())
}
