package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind identifies which member of the Value union is set.
type Kind int

const (
	// KindInvalid is the zero Value.
	KindInvalid Kind = iota
	// KindBool holds a boolean.
	KindBool
	// KindInt holds a signed 64-bit integer.
	KindInt
	// KindUint holds an unsigned 64-bit integer that does not fit in int64.
	KindUint
	// KindFloat holds a float64.
	KindFloat
	// KindString holds a string.
	KindString
	// KindObject holds a nested mapping of key to Value.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Value is a configuration value: a scalar or a nested object.
// Values held by a Snapshot are never mutated.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	obj  map[string]Value
}

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a signed integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Uint returns an unsigned integer Value. Values that fit in int64 are stored
// as KindInt so that equal numbers always compare equal.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, u: u}
}

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Object returns an object Value holding a copy of m.
func Object(m map[string]Value) Value {
	obj := make(map[string]Value, len(m))
	for k, v := range m {
		obj[k] = v.clone()
	}
	return Value{kind: KindObject, obj: obj}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsObject reports whether v is a nested object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt returns v as int64. Unsigned values in range and integral floats convert.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindUint:
		return 0, false
	case KindFloat:
		if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < math.MaxInt64 {
			return int64(v.f), true
		}
	}
	return 0, false
}

// AsUint returns v as uint64. Negative numbers do not convert.
func (v Value) AsUint() (uint64, bool) {
	switch v.kind {
	case KindInt:
		if v.i >= 0 {
			return uint64(v.i), true
		}
	case KindUint:
		return v.u, true
	case KindFloat:
		if v.f >= 0 && v.f == math.Trunc(v.f) && v.f < math.MaxUint64 {
			return uint64(v.f), true
		}
	}
	return 0, false
}

// AsFloat returns v as float64. Any numeric kind converts.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindUint:
		return float64(v.u), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// Keys returns the sorted child keys of an object value.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Child returns the direct child named key of an object value.
func (v Value) Child(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	c, ok := v.obj[key]
	return c, ok
}

// Equal reports whether two values resolve to the same leaf or tree.
// Numbers compare by value across kinds, so Int(3) equals Float(3).
func (v Value) Equal(o Value) bool {
	if isNumeric(v.kind) && isNumeric(o.kind) {
		return numericEqual(v, o)
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, child := range v.obj {
			other, ok := o.obj[k]
			if !ok || !child.Equal(other) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func isNumeric(k Kind) bool {
	return k == KindInt || k == KindUint || k == KindFloat
}

func numericEqual(a, b Value) bool {
	if a.kind == KindFloat || b.kind == KindFloat {
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return af == bf
	}
	if a.kind == KindUint || b.kind == KindUint {
		au, aok := a.AsUint()
		bu, bok := b.AsUint()
		return aok && bok && au == bu
	}
	return a.i == b.i
}

// String renders the value for logs and CLI output.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindObject:
		b, err := json.Marshal(v.ToAny())
		if err != nil {
			return "{}"
		}
		return string(b)
	default:
		return "<invalid>"
	}
}

// ToAny converts v into plain Go values suitable for JSON or YAML encoding.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindObject:
		m := make(map[string]any, len(v.obj))
		for k, child := range v.obj {
			m[k] = child.ToAny()
		}
		return m
	default:
		return nil
	}
}

func (v Value) clone() Value {
	if v.kind != KindObject {
		return v
	}
	obj := make(map[string]Value, len(v.obj))
	for k, child := range v.obj {
		obj[k] = child.clone()
	}
	return Value{kind: KindObject, obj: obj}
}

// FromAny converts decoded JSON or YAML data into a Value. Arrays and nulls are
// rejected because the configuration model has no representation for them.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case Value:
		return x.clone(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Uint(uint64(x)), nil
	case uint8:
		return Uint(uint64(x)), nil
	case uint16:
		return Uint(uint64(x)), nil
	case uint32:
		return Uint(uint64(x)), nil
	case uint64:
		return Uint(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		return numberValue(x)
	case string:
		return String(x), nil
	case map[string]any:
		obj := make(map[string]Value, len(x))
		for k, child := range x {
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = cv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case map[any]any:
		obj := make(map[string]Value, len(x))
		for k, child := range x {
			key := fmt.Sprint(k)
			cv, err := FromAny(child)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", key, err)
			}
			obj[key] = cv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case map[string]Value:
		return Object(x), nil
	case []any:
		return Value{}, fmt.Errorf("arrays are not supported")
	case nil:
		return Value{}, fmt.Errorf("null values are not supported")
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Uint(u), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Float(f), nil
}
