package engine

import (
	"sort"

	"github.com/chazu/blockrun/ast"
)

// Scope is a handler's view of the block being executed: its slots by
// name, the shared heap, and re-entry points into the engine.
type Scope struct {
	engine *Engine
	block  *ast.Block
	route  Route
	result Value

	values     map[string]*ast.Value
	statements map[string]*ast.Statement
	fields     map[string]*ast.Field
}

// newScope classifies b's members by kind. A later member with the same
// name replaces an earlier one of the same kind.
func newScope(e *Engine, b *ast.Block, r Route) *Scope {
	s := &Scope{
		engine:     e,
		block:      b,
		route:      r,
		values:     make(map[string]*ast.Value),
		statements: make(map[string]*ast.Statement),
		fields:     make(map[string]*ast.Field),
	}
	for _, m := range b.Members {
		switch m := m.(type) {
		case *ast.Value:
			s.values[m.Name] = m
		case *ast.Statement:
			s.statements[m.Name] = m
		case *ast.Field:
			s.fields[m.Name] = m
		}
	}
	return s
}

// Block returns the block being executed.
func (s *Scope) Block() *ast.Block { return s.block }

// Module returns the name of the module handling the block.
func (s *Scope) Module() string { return s.route.Module }

// Function returns the handler's function name within its module.
func (s *Scope) Function() string { return s.route.Function }

// Result returns the handler's result once it has returned.
func (s *Scope) Result() Value { return s.result }

// Heap returns the shared variable heap.
func (s *Scope) Heap() *Heap { return s.engine.heap }

// Depth returns the current nesting depth of the engine.
func (s *Scope) Depth() int { return s.engine.depth }

// GetValue returns the named value slot.
func (s *Scope) GetValue(name string) (*ast.Value, error) {
	if v, ok := s.values[name]; ok {
		return v, nil
	}
	return nil, s.missing(ast.MemberValue, name)
}

// GetStatement returns the named statement slot.
func (s *Scope) GetStatement(name string) (*ast.Statement, error) {
	if st, ok := s.statements[name]; ok {
		return st, nil
	}
	return nil, s.missing(ast.MemberStatement, name)
}

// GetField returns the named field slot.
func (s *Scope) GetField(name string) (*ast.Field, error) {
	if f, ok := s.fields[name]; ok {
		return f, nil
	}
	return nil, s.missing(ast.MemberField, name)
}

// HasValue reports whether the block has the named value slot.
func (s *Scope) HasValue(name string) bool {
	_, ok := s.values[name]
	return ok
}

// HasStatement reports whether the block has the named statement slot.
func (s *Scope) HasStatement(name string) bool {
	_, ok := s.statements[name]
	return ok
}

// HasField reports whether the block has the named field slot.
func (s *Scope) HasField(name string) bool {
	_, ok := s.fields[name]
	return ok
}

func (s *Scope) missing(kind ast.MemberKind, name string) error {
	return &SlotNotFoundError{Kind: kind, Name: name, Opcode: s.block.Opcode}
}

// Slots returns the distinct slot names across all three kinds, sorted.
func (s *Scope) Slots() []string {
	seen := make(map[string]bool)
	for n := range s.values {
		seen[n] = true
	}
	for n := range s.statements {
		seen[n] = true
	}
	for n := range s.fields {
		seen[n] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveValue evaluates the named value slot.
func (s *Scope) ResolveValue(name string) (Value, error) {
	v, err := s.GetValue(name)
	if err != nil {
		return Undefined(), err
	}
	return s.engine.Resolve(v)
}

// ResolveField reads the heap variable whose name the field stores.
func (s *Scope) ResolveField(name string) (Value, error) {
	f, err := s.GetField(name)
	if err != nil {
		return Undefined(), err
	}
	return s.engine.heap.Lookup(f.Value)
}

// Execute runs a block chain through the engine.
func (s *Scope) Execute(b *ast.Block) (Value, error) {
	return s.engine.Execute(b)
}

// Resolve evaluates a value slot through the engine.
func (s *Scope) Resolve(v *ast.Value) (Value, error) {
	return s.engine.Resolve(v)
}

// ExecuteStatement runs the body of the named statement slot.
func (s *Scope) ExecuteStatement(name string) (Value, error) {
	st, err := s.GetStatement(name)
	if err != nil {
		return Undefined(), err
	}
	return s.engine.Execute(st.Block)
}

// Show asks the host to reveal the named heap entry.
func (s *Scope) Show(name string) { s.engine.show(s, name) }

// Hide asks the host to hide the named heap entry.
func (s *Scope) Hide(name string) { s.engine.hide(s, name) }
