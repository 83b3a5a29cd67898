// Package codec turns arbitrary Go values into wire bytes and back,
// substituting DTO references for identifiers along the way so neither
// json nor protobuf ever has to know what a proxy or a server object is.
package codec

import (
	"fmt"
	"reflect"
	"strings"
)

// Substituter resolves between local objects and wire identifiers during
// (de)serialization. The root package adapts its ServerResolver and
// ClientResolver to it (serverSubstituter and clientSubstituter), hiding
// from the codec whether the caller holds a strong table with
// eager assignment or a weak table with resurrection.
type Substituter interface {
	// ToWire reports the wire identifier for obj if it carries DTO
	// identity, assigning one on first sight where the implementation
	// allows that (server side); ok is false for anything else.
	ToWire(obj any) (id string, ok bool)
	// FromWire returns the local value a reference to id should resolve
	// to: a server object, or a client proxy.
	FromWire(id string) any
}

// Codec serializes and deserializes a single value for one Envelope
// field (a Query's arguments, a Set's new value, a Response's result).
type Codec interface {
	Serialize(value any, sub Substituter) ([]byte, error)
	Deserialize(data []byte, sub Substituter) (any, error)
}

// substituteOut walks v, replacing anything sub recognizes as a DTO with
// a {"$ref": id} marker and everything else with a plain map/slice tree
// suitable for json.Marshal or structpb.NewValue.
func substituteOut(v any, sub Substituter) any {
	if v == nil {
		return nil
	}
	if id, ok := sub.ToWire(v); ok {
		return map[string]any{"$ref": id}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return substituteOut(rv.Elem().Interface(), sub)
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = substituteOut(rv.Index(i).Interface(), sub)
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = substituteOut(iter.Value().Interface(), sub)
		}
		return out
	case reflect.Struct:
		t := rv.Type()
		out := make(map[string]any, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue // unexported
			}
			name := f.Tag.Get("json")
			if idx := strings.IndexByte(name, ','); idx >= 0 {
				name = name[:idx]
			}
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			out[name] = substituteOut(rv.Field(i).Interface(), sub)
		}
		return out
	default:
		return v
	}
}

// substituteIn reverses substituteOut over a value produced by generic
// JSON/structpb decoding (map[string]any, []any, and primitives).
func substituteIn(v any, sub Substituter) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			if ref, ok := t["$ref"]; ok {
				if s, ok := ref.(string); ok {
					return sub.FromWire(s)
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = substituteIn(vv, sub)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = substituteIn(vv, sub)
		}
		return out
	default:
		return v
	}
}
