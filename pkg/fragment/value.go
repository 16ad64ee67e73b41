package fragment

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Kind discriminates the variants of a configuration value.
type Kind uint8

const (
	// KindScalar marks string, bool, integer, float, or null leaves.
	KindScalar Kind = iota
	// KindList marks ordered sequences.
	KindList
	// KindMap marks string-keyed mappings.
	KindMap
)

// Value is a tagged variant holding one node of a configuration tree.
// Exactly one of Scalar, List, or Map is meaningful depending on Kind.
type Value struct {
	Kind   Kind
	Scalar any
	List   []Value
	Map    map[string]Value
}

// FromAny converts a decoded YAML/JSON document into a Value tree.
// Integers are normalised to int64 so equality checks do not depend on the
// decoder's choice of width.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindScalar, Scalar: nil}, nil
	case string:
		return Value{Kind: KindScalar, Scalar: t}, nil
	case bool:
		return Value{Kind: KindScalar, Scalar: t}, nil
	case int:
		return Value{Kind: KindScalar, Scalar: int64(t)}, nil
	case int64:
		return Value{Kind: KindScalar, Scalar: t}, nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("integer %d overflows the signed 64-bit range", t)
		}
		return Value{Kind: KindScalar, Scalar: int64(t)}, nil
	case float64:
		return Value{Kind: KindScalar, Scalar: t}, nil
	case time.Time:
		// yaml.v3 resolves unquoted timestamps to time.Time; keep them as
		// RFC3339 string leaves so the tree stays purely scalar/list/map.
		return Value{Kind: KindScalar, Scalar: t.UTC().Format(time.RFC3339)}, nil
	case []any:
		list := make([]Value, 0, len(t))
		for i, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			list = append(list, child)
		}
		return Value{Kind: KindList, List: list}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for key, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", key, err)
			}
			m[key] = child
		}
		return Value{Kind: KindMap, Map: m}, nil
	case map[any]any:
		m := make(map[string]Value, len(t))
		for key, item := range t {
			name, ok := key.(string)
			if !ok {
				return Value{}, fmt.Errorf("mapping key %v is not a string", key)
			}
			child, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", name, err)
			}
			m[name] = child
		}
		return Value{Kind: KindMap, Map: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// Equal reports whether two values are structurally identical.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindScalar:
		return scalarEqual(v.Scalar, o.Scalar)
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for key, item := range v.Map {
			other, ok := o.Map[key]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// scalarEqual compares leaves. Whole-number floats compare equal to the same
// integer: JSON output drops the trailing ".0", so a re-parsed document may
// carry int64 where the merged tree holds float64.
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(float64); ok {
			return float64(x) == y
		}
	case float64:
		if y, ok := b.(int64); ok {
			return x == float64(y)
		}
	}
	return false
}

// Clone produces a deep copy so future mutations do not affect the original.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindList:
		list := make([]Value, len(v.List))
		for i := range v.List {
			list[i] = v.List[i].Clone()
		}
		return Value{Kind: KindList, List: list}
	case KindMap:
		m := make(map[string]Value, len(v.Map))
		for key, item := range v.Map {
			m[key] = item.Clone()
		}
		return Value{Kind: KindMap, Map: m}
	default:
		return v
	}
}

// SortedKeys returns the map keys in lexical order. Empty for non-map values.
func (v Value) SortedKeys() []string {
	if v.Kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.Map))
	for key := range v.Map {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON renders the value with map keys in lexical order, so repeated
// serialisation of the same tree is byte-identical.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindScalar:
		return json.Marshal(v.Scalar)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case KindMap:
		if v.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Map)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}
