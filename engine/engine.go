// Package engine executes parsed block documents.
//
// An Engine owns the variable heap and the module registry for exactly one
// run. Each block is dispatched to the handler its opcode routes to; the
// handler sees the block through a Scope and may re-enter the engine to run
// nested statements or evaluate sub-expressions.
package engine

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/blockrun/ast"
)

// DefaultMaxDepth bounds how deeply blocks may nest through handlers
// re-entering the engine (loop bodies, branches, sub-expressions).
const DefaultMaxDepth = 1000

// Option configures an Engine.
type Option func(*Engine)

// WithModule registers a module at construction.
func WithModule(name string, m Module) Option {
	return func(e *Engine) { e.registry.Register(name, m) }
}

// WithModules registers several modules at construction.
func WithModules(modules map[string]Module) Option {
	return func(e *Engine) {
		for name, m := range modules {
			e.registry.Register(name, m)
		}
	}
}

// WithShow sets the callback modules use to reveal a heap entry.
func WithShow(fn func(s *Scope, name string)) Option {
	return func(e *Engine) { e.show = fn }
}

// WithHide sets the callback modules use to hide a heap entry.
func WithHide(fn func(s *Scope, name string)) Option {
	return func(e *Engine) { e.hide = fn }
}

// WithStepObserver sets a hook called after every completed block.
func WithStepObserver(fn func(s *Scope)) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// WithLogger replaces the engine's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// Engine walks a document's blocks and dispatches them to modules.
// It is not safe for concurrent use; one Engine drives one run.
type Engine struct {
	doc      *ast.Document
	heap     *Heap
	registry *Registry

	show     func(*Scope, string)
	hide     func(*Scope, string)
	observer func(*Scope)

	maxDepth int
	depth    int
	steps    int

	log commonlog.Logger
}

// New creates an engine for doc.
func New(doc *ast.Document, opts ...Option) *Engine {
	e := &Engine{
		doc:      doc,
		heap:     NewHeap(doc.Variables),
		registry: NewRegistry(),
		maxDepth: DefaultMaxDepth,
		log:      commonlog.GetLogger("blockrun.engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.show == nil {
		e.show = e.logVisibility("show")
	}
	if e.hide == nil {
		e.hide = e.logVisibility("hide")
	}
	return e
}

func (e *Engine) logVisibility(verb string) func(*Scope, string) {
	return func(s *Scope, name string) {
		v, _ := e.heap.Get(name)
		e.log.Infof("%s %s = %s", verb, name, v)
	}
}

// RegisterModule inserts or replaces a module.
func (e *Engine) RegisterModule(name string, m Module) {
	e.registry.Register(name, m)
}

// UnregisterModule removes a module.
func (e *Engine) UnregisterModule(name string) bool {
	return e.registry.Unregister(name)
}

// Registry returns the engine's module registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Heap returns the variable heap.
func (e *Engine) Heap() *Heap { return e.heap }

// Document returns the document being run.
func (e *Engine) Document() *ast.Document { return e.doc }

// Steps returns the number of blocks completed so far.
func (e *Engine) Steps() int { return e.steps }

// Run seeds the heap from the declared variables and executes the entry
// block chain. The first failure aborts the run and is returned.
func (e *Engine) Run() error {
	e.heap = NewHeap(e.doc.Variables)
	e.steps = 0
	e.log.Debugf("run: %d variables, modules %v", e.heap.Len(), e.registry.Names())

	if _, err := e.Execute(e.doc.Entry); err != nil {
		e.log.Errorf("run aborted after %d steps: %s", e.steps, err)
		return err
	}
	e.log.Debugf("run finished after %d steps", e.steps)
	return nil
}

// Execute runs b and every block chained after it, returning the result of
// the last one. The chain is walked in a loop; only nesting through
// handlers counts against MaxDepth.
func (e *Engine) Execute(b *ast.Block) (Value, error) {
	if b == nil {
		return Undefined(), nil
	}
	if e.depth >= e.maxDepth {
		return Undefined(), fmt.Errorf("%w (%d) at block %q", ErrDepthExceeded, e.maxDepth, b.ID)
	}
	e.depth++
	defer func() { e.depth-- }()

	result := Undefined()
	for ; b != nil; b = b.Next {
		v, err := e.executeOne(b)
		if err != nil {
			return Undefined(), err
		}
		result = v
	}
	return result, nil
}

func (e *Engine) executeOne(b *ast.Block) (Value, error) {
	route, err := e.registry.Resolve(b.Opcode)
	if err != nil {
		return Undefined(), err
	}

	s := newScope(e, b, route)
	e.log.Debugf("dispatch %s.%s block=%s depth=%d", route.Module, route.Function, b.ID, e.depth)

	result, err := invoke(route.Handler, s)
	if err != nil {
		return Undefined(), wrapHandlerError(route, b.ID, err)
	}
	s.result = result
	e.steps++

	if e.observer != nil {
		e.observe(s)
	}
	return result, nil
}

// invoke calls h, turning a panic into an error.
func invoke(h Handler, s *Scope) (v Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			if perr, ok := r.(error); ok {
				err = fmt.Errorf("handler panic: %w", perr)
			} else {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}
	}()
	return h(s)
}

// observe runs the step observer; its failures are logged and never reach
// the run.
func (e *Engine) observe(s *Scope) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warningf("step observer panicked at block %s: %v", s.block.ID, r)
		}
	}()
	e.observer(s)
}

// Resolve evaluates a value slot: a connected block is executed and its
// result returned, a shadow yields its literal without any dispatch.
func (e *Engine) Resolve(v *ast.Value) (Value, error) {
	switch v.Child.Kind {
	case ast.ChildBlock:
		return e.Execute(v.Child.Block)
	case ast.ChildShadow:
		return String(v.Child.Shadow.Field.Value), nil
	default:
		return Undefined(), fmt.Errorf("value %q: unknown child kind %d", v.Name, v.Child.Kind)
	}
}
