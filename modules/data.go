package modules

import (
	"fmt"

	"github.com/chazu/blockrun/engine"
)

// Data returns variable and list handlers. Variables are named by the
// VARIABLE or LIST field; list indexes are 0-based. A list variable that
// was never assigned reads as empty and becomes a list on first write.
func Data() engine.Module {
	return engine.Module{
		"variable":          variable,
		"setvariableto":     setVariableTo,
		"changevariableby":  changeVariableBy,
		"showvariable":      visibility("VARIABLE", (*engine.Scope).Show),
		"hidevariable":      visibility("VARIABLE", (*engine.Scope).Hide),
		"showlist":          visibility("LIST", (*engine.Scope).Show),
		"hidelist":          visibility("LIST", (*engine.Scope).Hide),
		"listcontents":      listContents,
		"itemoflist":        itemOfList,
		"lengthoflist":      lengthOfList,
		"itemnumoflist":     itemNumOfList,
		"addtolist":         addToList,
		"deletealloflist":   deleteAllOfList,
		"deleteoflist":      deleteOfList,
		"insertatlist":      insertAtList,
		"replaceitemoflist": replaceItemOfList,
		"listcontainsitem":  listContainsItem,
	}
}

func variable(s *engine.Scope) (engine.Value, error) {
	return s.ResolveField("VARIABLE")
}

func setVariableTo(s *engine.Scope) (engine.Value, error) {
	name, err := fieldName(s, "VARIABLE")
	if err != nil {
		return none, err
	}
	v, err := s.ResolveValue("VALUE")
	if err != nil {
		return none, err
	}
	return none, s.Heap().Set(name, v)
}

func changeVariableBy(s *engine.Scope) (engine.Value, error) {
	name, err := fieldName(s, "VARIABLE")
	if err != nil {
		return none, err
	}
	cur, err := s.Heap().Lookup(name)
	if err != nil {
		return none, err
	}
	base, err := cur.AsNumber()
	if err != nil {
		return none, fmt.Errorf("VARIABLE %s: %w", name, err)
	}
	delta, err := number(s, "VALUE")
	if err != nil {
		return none, err
	}
	return none, s.Heap().Set(name, engine.Number(base+delta))
}

func visibility(slot string, fn func(*engine.Scope, string)) engine.Handler {
	return func(s *engine.Scope) (engine.Value, error) {
		name, err := fieldName(s, slot)
		if err != nil {
			return none, err
		}
		fn(s, name)
		return none, nil
	}
}

// list returns the list stored in the variable named by the LIST field.
// With create set, an unassigned variable is given a fresh list.
func list(s *engine.Scope, create bool) (*engine.List, error) {
	name, err := fieldName(s, "LIST")
	if err != nil {
		return nil, err
	}
	v, err := s.Heap().Lookup(name)
	if err != nil {
		return nil, err
	}
	if v.IsUndefined() {
		empty := engine.ListOf()
		if create {
			if err := s.Heap().Set(name, empty); err != nil {
				return nil, err
			}
		}
		return empty.List, nil
	}
	l, err := v.AsList()
	if err != nil {
		return nil, fmt.Errorf("LIST %s: %w", name, err)
	}
	return l, nil
}

func listContents(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, false)
	if err != nil {
		return none, err
	}
	return engine.String(l.String()), nil
}

func itemOfList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, false)
	if err != nil {
		return none, err
	}
	idx, err := integer(s, "INDEX")
	if err != nil {
		return none, err
	}
	return l.At(idx), nil
}

func lengthOfList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, false)
	if err != nil {
		return none, err
	}
	return engine.Number(float64(l.Len())), nil
}

func itemNumOfList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, false)
	if err != nil {
		return none, err
	}
	item, err := s.ResolveValue("ITEM")
	if err != nil {
		return none, err
	}
	return engine.Number(float64(l.IndexOf(item))), nil
}

func addToList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, true)
	if err != nil {
		return none, err
	}
	item, err := s.ResolveValue("ITEM")
	if err != nil {
		return none, err
	}
	l.Push(item)
	return none, nil
}

func deleteAllOfList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, true)
	if err != nil {
		return none, err
	}
	l.Clear()
	return none, nil
}

func deleteOfList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, true)
	if err != nil {
		return none, err
	}
	idx, err := integer(s, "INDEX")
	if err != nil {
		return none, err
	}
	l.Delete(idx)
	return none, nil
}

func insertAtList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, true)
	if err != nil {
		return none, err
	}
	idx, err := integer(s, "INDEX")
	if err != nil {
		return none, err
	}
	item, err := s.ResolveValue("ITEM")
	if err != nil {
		return none, err
	}
	l.Insert(idx, item)
	return none, nil
}

func replaceItemOfList(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, true)
	if err != nil {
		return none, err
	}
	idx, err := integer(s, "INDEX")
	if err != nil {
		return none, err
	}
	item, err := s.ResolveValue("ITEM")
	if err != nil {
		return none, err
	}
	l.Set(idx, item)
	return none, nil
}

func listContainsItem(s *engine.Scope) (engine.Value, error) {
	l, err := list(s, false)
	if err != nil {
		return none, err
	}
	item, err := s.ResolveValue("ITEM")
	if err != nil {
		return none, err
	}
	return engine.Bool(l.IndexOf(item) >= 0), nil
}
