// Package modules provides opcode handlers for the common Scratch block
// categories. The engine ships none of these itself; hosts register the
// ones they want alongside their own device modules.
package modules

import (
	"fmt"
	"math"
	"sort"

	"github.com/chazu/blockrun/engine"
)

// Standard returns every module in this package keyed by module name.
func Standard() map[string]engine.Module {
	return map[string]engine.Module{
		"control":  Control(),
		"data":     Data(),
		"event":    Event(),
		"operator": Operator(),
	}
}

// Names returns the names of the modules in Standard, sorted.
func Names() []string {
	var names []string
	for name := range Standard() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named subset of Standard.
func Select(names ...string) (map[string]engine.Module, error) {
	all := Standard()
	out := make(map[string]engine.Module, len(names))
	for _, name := range names {
		m, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown module %q", name)
		}
		out[name] = m
	}
	return out, nil
}

// number resolves a value slot and converts it to a number.
func number(s *engine.Scope, slot string) (float64, error) {
	v, err := s.ResolveValue(slot)
	if err != nil {
		return 0, err
	}
	n, err := v.AsNumber()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", slot, err)
	}
	return n, nil
}

func integer(s *engine.Scope, slot string) (int, error) {
	n, err := number(s, slot)
	if err != nil {
		return 0, err
	}
	return toInt(n), nil
}

// toInt truncates n, saturating at the int range. NaN is 0.
func toInt(n float64) int {
	switch {
	case math.IsNaN(n):
		return 0
	case n >= math.MaxInt:
		return math.MaxInt
	case n <= math.MinInt:
		return math.MinInt
	}
	return int(n)
}

// condition resolves a boolean slot. An empty slot is false.
func condition(s *engine.Scope, slot string) (bool, error) {
	if !s.HasValue(slot) {
		return false, nil
	}
	v, err := s.ResolveValue(slot)
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// body runs a statement slot. An empty slot runs nothing.
func body(s *engine.Scope, slot string) error {
	if !s.HasStatement(slot) {
		return nil
	}
	_, err := s.ExecuteStatement(slot)
	return err
}

// fieldName returns the text stored in a field, usually a variable name.
func fieldName(s *engine.Scope, slot string) (string, error) {
	f, err := s.GetField(slot)
	if err != nil {
		return "", err
	}
	return f.Value, nil
}

var none = engine.Undefined()
