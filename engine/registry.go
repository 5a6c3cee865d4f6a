package engine

import (
	"maps"
	"sort"
	"strings"
)

// OpcodeDelimiter separates the module name from the function name.
const OpcodeDelimiter = "_"

// Handler implements one opcode.
type Handler func(s *Scope) (Value, error)

// Module is a named table of opcode handlers, keyed by function name.
type Module map[string]Handler

// Route is an opcode split into its owning module and function.
type Route struct {
	Opcode   string
	Module   string
	Function string
	Handler  Handler
}

// Registry holds the registered modules and resolves opcodes against them.
// Module names are kept sorted longest first so that "data_list" wins over
// "data" for the opcode "data_list_add". Resolved routes are cached until
// the module set changes.
type Registry struct {
	modules map[string]Module
	names   []string
	routes  map[string]Route
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
		routes:  make(map[string]Route),
	}
}

// Register inserts or replaces a module. The table is copied, so later
// changes to m do not affect routing.
func (r *Registry) Register(name string, m Module) {
	r.modules[name] = maps.Clone(m)
	r.reindex()
}

// Unregister removes a module and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	if _, ok := r.modules[name]; !ok {
		return false
	}
	delete(r.modules, name)
	r.reindex()
	return true
}

// Module returns the named module's table.
func (r *Registry) Module(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns module names in match order: longest first, ties by name.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) reindex() {
	r.names = r.names[:0]
	for name := range r.modules {
		r.names = append(r.names, name)
	}
	sort.Slice(r.names, func(i, j int) bool {
		a, b := r.names[i], r.names[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	clear(r.routes)
}

// Resolve splits opcode into module and function using the longest
// registered module name followed by the delimiter.
func (r *Registry) Resolve(opcode string) (Route, error) {
	if route, ok := r.routes[opcode]; ok {
		return route, nil
	}

	for _, name := range r.names {
		prefix := name + OpcodeDelimiter
		if !strings.HasPrefix(opcode, prefix) {
			continue
		}
		fn := opcode[len(prefix):]
		h, ok := r.modules[name][fn]
		if !ok || h == nil {
			return Route{}, &UnknownOpcodeError{Opcode: opcode, Module: name, Function: fn}
		}
		route := Route{Opcode: opcode, Module: name, Function: fn, Handler: h}
		r.routes[opcode] = route
		return route, nil
	}

	module, _, _ := strings.Cut(opcode, OpcodeDelimiter)
	return Route{}, &UnknownModuleError{Opcode: opcode, Module: module}
}
