package engine

import (
	"errors"
	"fmt"

	"github.com/chazu/blockrun/ast"
)

var (
	// ErrUnknownVariable is returned when a handler writes a heap name the
	// document never declared.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrDepthExceeded is returned when nested block execution goes deeper
	// than the engine's MaxDepth.
	ErrDepthExceeded = errors.New("maximum nesting depth exceeded")
)

// UnknownModuleError reports an opcode no registered module claims.
type UnknownModuleError struct {
	Opcode string
	Module string // text before the first delimiter
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("no module %q registered for opcode %q", e.Module, e.Opcode)
}

// UnknownOpcodeError reports a module without the requested function.
type UnknownOpcodeError struct {
	Opcode   string
	Module   string
	Function string
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("module %q has no function %q (opcode %q)", e.Module, e.Function, e.Opcode)
}

// SlotNotFoundError reports a handler asking for a slot its block lacks.
type SlotNotFoundError struct {
	Kind   ast.MemberKind
	Name   string
	Opcode string
}

func (e *SlotNotFoundError) Error() string {
	return fmt.Sprintf("%s: no %s named %s", e.Opcode, e.Kind, e.Name)
}

// TypeMismatchError reports a value of the wrong variant.
type TypeMismatchError struct {
	Want ValueType
	Got  Value
}

func (e *TypeMismatchError) Error() string {
	if e.Got.Type == TypeString {
		return fmt.Sprintf("expected %s, got %s %q", e.Want, e.Got.Type, e.Got.Str)
	}
	return fmt.Sprintf("expected %s, got %s", e.Want, e.Got.Type)
}

// ExecutionError attaches routing context to a failure raised while a
// handler ran. Err is the original failure.
type ExecutionError struct {
	Module   string
	Function string
	BlockID  string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s.%s (block %s): %v", e.Module, e.Function, e.BlockID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// wrapHandlerError wraps err in an ExecutionError unless a nested block
// already did; the innermost routing is the one worth reporting.
func wrapHandlerError(r Route, blockID string, err error) error {
	var exec *ExecutionError
	if errors.As(err, &exec) {
		return err
	}
	return &ExecutionError{
		Module:   r.Module,
		Function: r.Function,
		BlockID:  blockID,
		Err:      err,
	}
}
