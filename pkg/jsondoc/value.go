// Package jsondoc represents JSON documents as an explicit tagged union so that
// field masking can be written as total functions over a closed set of types.
// Object keys keep their document order, so a document that is parsed and
// written back without changes keeps its layout.
package jsondoc

import (
	"math/big"
)

// Kind identifies the type of a JSON value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is one of Null, Bool, Number, String, Array or *Object.
type Value interface {
	Kind() Kind
}

// Null is the JSON null literal.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number, stored as its literal text so that it is written
// back exactly as it was read.
type Number string

// String is a JSON string.
type String string

// Array is a JSON array.
type Array []Value

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }

// Object is a JSON object whose keys are ordered by first insertion.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: map[string]Value{}}
}

// Kind implements Value.
func (o *Object) Kind() Kind { return KindObject }

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Set stores v under key. New keys are appended; existing keys keep their
// position.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Delete removes key, and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the object's keys in order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	return len(o.keys)
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, elem := range t {
			out[i] = Clone(elem)
		}
		return out
	case *Object:
		out := NewObject()
		for _, k := range t.keys {
			out.Set(k, Clone(t.values[k]))
		}
		return out
	default:
		// Scalars are immutable values.
		return v
	}
}

// Equal reports whether a and b are semantically equal: object key order is
// irrelevant, types must match exactly (the string "1" is not the number 1),
// and numbers are equal when they denote the same value (1 equals 1.0).
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}

	switch at := a.(type) {
	case Null:
		return true
	case Bool:
		return at == b.(Bool)
	case String:
		return at == b.(String)
	case Number:
		return numbersEqual(at, b.(Number))
	case Array:
		bt := b.(Array)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	case *Object:
		bt := b.(*Object)
		if at.Len() != bt.Len() {
			return false
		}
		for _, k := range at.keys {
			other, ok := bt.values[k]
			if !ok || !Equal(at.values[k], other) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b Number) bool {
	if a == b {
		return true
	}
	af, aok := parseNumber(a)
	bf, bok := parseNumber(b)
	if !aok || !bok {
		return false
	}
	return af.Cmp(bf) == 0
}

func parseNumber(n Number) (*big.Float, bool) {
	f, ok := new(big.Float).SetPrec(256).SetString(string(n))
	return f, ok
}
