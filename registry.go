package cmrpc

import (
	"fmt"
	"reflect"
	"sync"
)

var eventType = reflect.TypeOf(Event{})

// methodKey selects an overload by name and parameter count, since the
// wire carries no type information for arguments.
type methodKey struct {
	name  string
	arity int
}

// typeDescriptor is the per-type table built once at Register[T] time,
// modeled on the reflection-based action tables a dynamic RPC server
// builds so every call after registration is a map lookup, not a scan.
type typeDescriptor struct {
	methods     map[methodKey]reflect.Method
	methodNames map[string]bool
	properties  map[string][]int
	events      map[string][]int
}

var (
	registryMu sync.RWMutex
	registry   = make(map[reflect.Type]*typeDescriptor)
)

// Register builds and caches the descriptor table for T. Application code
// calls it once per DTO type before accepting sessions; RootObjectFactory
// implementations typically call it from an init function.
func Register[T any]() {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	describeType(rt)
}

func describeType(rt reflect.Type) *typeDescriptor {
	registryMu.RLock()
	d, ok := registry[rt]
	registryMu.RUnlock()
	if ok {
		return d
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if d, ok := registry[rt]; ok {
		return d
	}

	d = &typeDescriptor{
		methods:     make(map[methodKey]reflect.Method),
		methodNames: make(map[string]bool),
		properties:  make(map[string][]int),
		events:      make(map[string][]int),
	}

	ptrType := reflect.PointerTo(rt)
	for i := 0; i < ptrType.NumMethod(); i++ {
		m := ptrType.Method(i)
		if m.Name == "Id" || m.Name == "String" {
			continue
		}
		arity := m.Type.NumIn() - 1 // drop the receiver
		d.methods[methodKey{name: m.Name, arity: arity}] = m
		d.methodNames[m.Name] = true
	}

	collectFields(rt, nil, func(f reflect.StructField, index []int) {
		if f.Type == eventType {
			d.events[f.Name] = index
			return
		}
		d.properties[f.Name] = index
	})

	registry[rt] = d
	return d
}

// collectFields walks rt's exported fields, descending into anonymous
// embedded structs (ServerObjectBase's PropertyChanged event, in
// particular) so promoted fields are discoverable by name just like
// fields declared directly on the DTO.
func collectFields(rt reflect.Type, prefix []int, visit func(f reflect.StructField, index []int)) {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		index := append(append([]int{}, prefix...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != eventType {
			collectFields(f.Type, index, visit)
			continue
		}
		if !f.IsExported() {
			continue
		}
		visit(f, index)
	}
}

func descriptorFor(obj Dto) (*typeDescriptor, reflect.Value) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() == reflect.Ptr {
		return describeType(rv.Elem().Type()), rv
	}
	return describeType(rv.Type()), rv
}

// findMethod resolves a (name, arity) pair against obj's descriptor.
func (d *typeDescriptor) findMethod(name string, arity int) (reflect.Method, bool) {
	m, ok := d.methods[methodKey{name: name, arity: arity}]
	return m, ok
}

// hasMethodName reports whether any overload of name exists, distinguishing
// an unknown member from an arity mismatch on a known one.
func (d *typeDescriptor) hasMethodName(name string) bool {
	return d.methodNames[name]
}

// alignArgument converts got (typically a decoded JSON/structpb scalar,
// or a resolved Dto) to want, widening numeric types and coercing to
// named/enum types, but never narrowing silently — narrowing conversions
// that would lose information are rejected as an ArityMismatch fault.
func alignArgument(want reflect.Type, got any) (reflect.Value, error) {
	if got == nil {
		switch want.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		default:
			return reflect.Value{}, fmt.Errorf("nil not assignable to %s", want)
		}
	}

	gv := reflect.ValueOf(got)
	if gv.Type().AssignableTo(want) {
		return gv, nil
	}
	if gv.Type().ConvertibleTo(want) {
		switch want.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
			cv := gv.Convert(want)
			numericIn := gv.CanInt() || gv.CanUint() || gv.CanFloat()
			numericOut := cv.CanInt() || cv.CanUint() || cv.CanFloat()
			if numericIn && numericOut && !cv.Convert(gv.Type()).Equal(gv) {
				return reflect.Value{}, fmt.Errorf("converting %v to parameter type %s would lose information", got, want)
			}
			return cv, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot align value of type %s to parameter type %s", gv.Type(), want)
}
