package engine

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Canonical mode so identical heaps encode to identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("engine: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireValue struct {
	Type  ValueType   `cbor:"t"`
	Num   float64     `cbor:"n,omitempty"`
	Str   string      `cbor:"s,omitempty"`
	Bool  bool        `cbor:"b,omitempty"`
	Items []wireValue `cbor:"i,omitempty"`
}

func toWire(v Value) wireValue {
	w := wireValue{Type: v.Type, Num: v.Num, Str: v.Str, Bool: v.Bool}
	if v.Type == TypeList && v.List != nil {
		w.Items = make([]wireValue, len(v.List.Items))
		for i, item := range v.List.Items {
			w.Items[i] = toWire(item)
		}
	}
	return w
}

func fromWire(w wireValue) Value {
	switch w.Type {
	case TypeNumber:
		return Number(w.Num)
	case TypeString:
		return String(w.Str)
	case TypeBool:
		return Bool(w.Bool)
	case TypeList:
		items := make([]Value, len(w.Items))
		for i, item := range w.Items {
			items[i] = fromWire(item)
		}
		return ListOf(items...)
	default:
		return Undefined()
	}
}

// MarshalValue serializes a single value to CBOR bytes.
func MarshalValue(v Value) ([]byte, error) {
	return cborEncMode.Marshal(toWire(v))
}

// UnmarshalValue deserializes a value from CBOR bytes.
func UnmarshalValue(data []byte) (Value, error) {
	var w wireValue
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Undefined(), fmt.Errorf("engine: unmarshal value: %w", err)
	}
	return fromWire(w), nil
}

// MarshalSnapshot serializes heap bindings to CBOR bytes.
func MarshalSnapshot(vars map[string]Value) ([]byte, error) {
	wire := make(map[string]wireValue, len(vars))
	for name, v := range vars {
		wire[name] = toWire(v)
	}
	return cborEncMode.Marshal(wire)
}

// UnmarshalSnapshot deserializes heap bindings from CBOR bytes.
func UnmarshalSnapshot(data []byte) (map[string]Value, error) {
	var wire map[string]wireValue
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("engine: unmarshal snapshot: %w", err)
	}
	vars := make(map[string]Value, len(wire))
	for name, w := range wire {
		vars[name] = fromWire(w)
	}
	return vars, nil
}
