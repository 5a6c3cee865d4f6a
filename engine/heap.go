package engine

import (
	"fmt"

	"github.com/chazu/blockrun/ast"
)

// Heap maps declared variable names to their current values. The key set
// is fixed when the heap is seeded; only values change during a run.
type Heap struct {
	vars  map[string]Value
	order []string
}

// NewHeap creates a heap with every declared variable Undefined.
func NewHeap(vars []ast.Variable) *Heap {
	h := &Heap{vars: make(map[string]Value, len(vars))}
	for _, v := range vars {
		h.declare(v.Name)
	}
	return h
}

func (h *Heap) declare(name string) {
	if _, ok := h.vars[name]; !ok {
		h.order = append(h.order, name)
	}
	h.vars[name] = Undefined()
}

// Get returns the value of name and whether it is declared.
func (h *Heap) Get(name string) (Value, bool) {
	v, ok := h.vars[name]
	return v, ok
}

// Lookup returns the value of name or ErrUnknownVariable.
func (h *Heap) Lookup(name string) (Value, error) {
	v, ok := h.vars[name]
	if !ok {
		return Undefined(), fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	return v, nil
}

// Set assigns a declared variable. The change is visible immediately.
func (h *Heap) Set(name string, v Value) error {
	if _, ok := h.vars[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	h.vars[name] = v
	return nil
}

// Has reports whether name is declared.
func (h *Heap) Has(name string) bool {
	_, ok := h.vars[name]
	return ok
}

// Names returns the declared names in declaration order.
func (h *Heap) Names() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// Len returns the number of declared variables.
func (h *Heap) Len() int {
	return len(h.order)
}

// Snapshot copies the current bindings. Lists are copied too so later
// mutation does not leak into the snapshot.
func (h *Heap) Snapshot() map[string]Value {
	out := make(map[string]Value, len(h.vars))
	for name, v := range h.vars {
		if v.Type == TypeList && v.List != nil {
			items := make([]Value, len(v.List.Items))
			copy(items, v.List.Items)
			v = ListOf(items...)
		}
		out[name] = v
	}
	return out
}
