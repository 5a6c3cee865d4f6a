package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType tags the variants of Value.
type ValueType int

const (
	TypeUndefined ValueType = iota
	TypeNumber
	TypeString
	TypeBool
	TypeList
)

func (t ValueType) String() string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBool:
		return "boolean"
	case TypeList:
		return "list"
	default:
		return fmt.Sprintf("ValueType(%d)", t)
	}
}

// Value is a runtime value held in the heap or returned by a handler.
// Only the field matching Type is meaningful.
type Value struct {
	Type ValueType
	Num  float64
	Str  string
	Bool bool
	List *List
}

// Undefined returns the value of a declared but never assigned variable.
func Undefined() Value {
	return Value{Type: TypeUndefined}
}

// Number creates a numeric value.
func Number(n float64) Value {
	return Value{Type: TypeNumber, Num: n}
}

// String creates a string value.
func String(s string) Value {
	return Value{Type: TypeString, Str: s}
}

// Bool creates a boolean value.
func Bool(b bool) Value {
	return Value{Type: TypeBool, Bool: b}
}

// ListOf creates a list value holding the given items. The list is shared:
// copies of the Value see each other's mutations.
func ListOf(items ...Value) Value {
	return Value{Type: TypeList, List: &List{Items: items}}
}

// IsUndefined reports whether v has never been assigned.
func (v Value) IsUndefined() bool {
	return v.Type == TypeUndefined
}

// AsNumber converts v to a number. Strings are parsed, booleans map to 0/1,
// undefined and empty strings are 0. Anything else is a TypeMismatchError.
func (v Value) AsNumber() (float64, error) {
	switch v.Type {
	case TypeNumber:
		return v.Num, nil
	case TypeBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	case TypeUndefined:
		return 0, nil
	case TypeString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) {
			return 0, &TypeMismatchError{Want: TypeNumber, Got: v}
		}
		return n, nil
	default:
		return 0, &TypeMismatchError{Want: TypeNumber, Got: v}
	}
}

// AsInt converts v to a number and truncates it toward zero.
func (v Value) AsInt() (int, error) {
	n, err := v.AsNumber()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// AsList returns the list held by v.
func (v Value) AsList() (*List, error) {
	if v.Type != TypeList || v.List == nil {
		return nil, &TypeMismatchError{Want: TypeList, Got: v}
	}
	return v.List, nil
}

// Truthy returns true for values considered true in conditions.
func (v Value) Truthy() bool {
	switch v.Type {
	case TypeBool:
		return v.Bool
	case TypeNumber:
		return v.Num != 0 && !math.IsNaN(v.Num)
	case TypeString:
		s := strings.ToLower(strings.TrimSpace(v.Str))
		return s != "" && s != "false" && s != "0"
	case TypeList:
		return v.List != nil && len(v.List.Items) > 0
	default:
		return false
	}
}

// String returns the display form of v.
func (v Value) String() string {
	switch v.Type {
	case TypeUndefined:
		return ""
	case TypeNumber:
		return formatNumber(v.Num)
	case TypeString:
		return v.Str
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	case TypeList:
		if v.List == nil {
			return ""
		}
		return v.List.String()
	default:
		return ""
	}
}

// Equal compares values the way block editors do: numerically when both
// sides convert to numbers, otherwise as case-insensitive strings.
func (v Value) Equal(o Value) bool {
	if v.Type == TypeList || o.Type == TypeList {
		return v.Type == o.Type && v.List == o.List
	}
	if isNumeric(v) && isNumeric(o) {
		a, _ := v.AsNumber()
		b, _ := o.AsNumber()
		return a == b
	}
	return strings.EqualFold(v.String(), o.String())
}

// Compare orders v and o numerically when possible, else by string.
// The result is -1, 0 or 1.
func (v Value) Compare(o Value) int {
	if isNumeric(v) && isNumeric(o) {
		a, _ := v.AsNumber()
		b, _ := o.AsNumber()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(v.String()), strings.ToLower(o.String()))
}

func isNumeric(v Value) bool {
	switch v.Type {
	case TypeNumber, TypeBool:
		return true
	case TypeString:
		if strings.TrimSpace(v.Str) == "" {
			return false
		}
		_, err := v.AsNumber()
		return err == nil
	}
	return false
}

// formatNumber prints integers exactly representable in a float64 without an
// exponent.
func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// List is the mutable sequence stored in list variables.
type List struct {
	Items []Value
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.Items)
}

// At returns the item at idx, or Undefined when idx is out of range.
func (l *List) At(idx int) Value {
	if idx < 0 || idx >= len(l.Items) {
		return Undefined()
	}
	return l.Items[idx]
}

// Push appends an item.
func (l *List) Push(v Value) {
	l.Items = append(l.Items, v)
}

// Insert places v before idx; idx == Len appends.
func (l *List) Insert(idx int, v Value) bool {
	if idx < 0 || idx > len(l.Items) {
		return false
	}
	l.Items = append(l.Items, Value{})
	copy(l.Items[idx+1:], l.Items[idx:])
	l.Items[idx] = v
	return true
}

// Delete removes the item at idx.
func (l *List) Delete(idx int) bool {
	if idx < 0 || idx >= len(l.Items) {
		return false
	}
	l.Items = append(l.Items[:idx], l.Items[idx+1:]...)
	return true
}

// Set replaces the item at idx.
func (l *List) Set(idx int, v Value) bool {
	if idx < 0 || idx >= len(l.Items) {
		return false
	}
	l.Items[idx] = v
	return true
}

// Clear removes every item.
func (l *List) Clear() {
	l.Items = l.Items[:0]
}

// IndexOf returns the position of the first item equal to v, or -1.
func (l *List) IndexOf(v Value) int {
	for i, item := range l.Items {
		if item.Equal(v) {
			return i
		}
	}
	return -1
}

func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		parts[i] = item.String()
	}
	return strings.Join(parts, " ")
}
