package engine

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/blockrun/ast"
)

// block builds a block with the given opcode and members.
func block(opcode string, members ...ast.Member) *ast.Block {
	return &ast.Block{Opcode: opcode, ID: opcode, Members: members}
}

// chain links blocks through Next and returns the head.
func chain(blocks ...*ast.Block) *ast.Block {
	for i := 0; i+1 < len(blocks); i++ {
		blocks[i].Next = blocks[i+1]
	}
	return blocks[0]
}

func shadow(name, literal string) *ast.Value {
	return ast.ShadowValue(name, &ast.Shadow{Type: "text", Field: ast.Field{Name: "TEXT", Value: literal}})
}

func field(name, value string) *ast.Field {
	return &ast.Field{Name: name, Value: value}
}

func doc(entry *ast.Block, vars ...string) *ast.Document {
	d := &ast.Document{Entry: entry}
	for _, v := range vars {
		d.Variables = append(d.Variables, ast.Variable{Name: v})
	}
	return d
}

// testModule records calls and exposes a few generic opcodes.
type testModule struct {
	calls []string
}

func (m *testModule) table() Module {
	return Module{
		"noop": func(s *Scope) (Value, error) {
			m.calls = append(m.calls, s.Block().ID)
			return Undefined(), nil
		},
		"const": func(s *Scope) (Value, error) {
			m.calls = append(m.calls, s.Block().ID)
			return s.ResolveValue("V")
		},
		"set": func(s *Scope) (Value, error) {
			m.calls = append(m.calls, s.Block().ID)
			f, err := s.GetField("VARIABLE")
			if err != nil {
				return Undefined(), err
			}
			v, err := s.ResolveValue("VALUE")
			if err != nil {
				return Undefined(), err
			}
			return Undefined(), s.Heap().Set(f.Value, v)
		},
		"get": func(s *Scope) (Value, error) {
			m.calls = append(m.calls, s.Block().ID)
			return s.ResolveField("VARIABLE")
		},
		"body": func(s *Scope) (Value, error) {
			m.calls = append(m.calls, s.Block().ID)
			return s.ExecuteStatement("SUBSTACK")
		},
		"fail": func(s *Scope) (Value, error) {
			m.calls = append(m.calls, s.Block().ID)
			return Undefined(), errBoom
		},
		"panic": func(s *Scope) (Value, error) {
			panic("kaboom")
		},
	}
}

var errBoom = errors.New("boom")

func TestLongestPrefixRouting(t *testing.T) {
	r := NewRegistry()
	a := Module{"b_x": func(*Scope) (Value, error) { return String("a"), nil }}
	ab := Module{"x": func(*Scope) (Value, error) { return String("ab"), nil }}
	r.Register("a", a)
	r.Register("ab", ab)

	route, err := r.Resolve("ab_x")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if route.Module != "ab" || route.Function != "x" {
		t.Errorf("route = %s/%s, want ab/x", route.Module, route.Function)
	}

	route, err = r.Resolve("a_b_x")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if route.Module != "a" || route.Function != "b_x" {
		t.Errorf("route = %s/%s, want a/b_x", route.Module, route.Function)
	}

	if got := r.Names(); !reflect.DeepEqual(got, []string{"ab", "a"}) {
		t.Errorf("Names() = %v, want [ab a]", got)
	}
}

func TestRegisterInvalidatesRoutes(t *testing.T) {
	r := NewRegistry()
	r.Register("data", Module{"list_add": func(*Scope) (Value, error) { return String("data"), nil }})

	route, err := r.Resolve("data_list_add")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if route.Module != "data" || route.Function != "list_add" {
		t.Fatalf("route = %s/%s, want data/list_add", route.Module, route.Function)
	}

	r.Register("data_list", Module{"add": func(*Scope) (Value, error) { return String("list"), nil }})
	route, err = r.Resolve("data_list_add")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if route.Module != "data_list" || route.Function != "add" {
		t.Errorf("after register route = %s/%s, want data_list/add", route.Module, route.Function)
	}

	if !r.Unregister("data_list") {
		t.Fatal("Unregister(data_list) = false")
	}
	route, _ = r.Resolve("data_list_add")
	if route.Module != "data" {
		t.Errorf("after unregister module = %q, want data", route.Module)
	}
}

func TestRegisterCopiesTable(t *testing.T) {
	r := NewRegistry()
	m := Module{"x": func(*Scope) (Value, error) { return Undefined(), nil }}
	r.Register("m", m)
	delete(m, "x")
	if _, err := r.Resolve("m_x"); err != nil {
		t.Errorf("routing changed after caller mutated its table: %v", err)
	}
}

func TestUnknownModule(t *testing.T) {
	e := New(doc(block("foo_bar")))
	err := e.Run()
	var unknown *UnknownModuleError
	if !errors.As(err, &unknown) {
		t.Fatalf("Run() error = %v, want UnknownModuleError", err)
	}
	if unknown.Module != "foo" || unknown.Opcode != "foo_bar" {
		t.Errorf("error = %+v, want module foo", unknown)
	}
}

func TestUnknownOpcode(t *testing.T) {
	tm := &testModule{}
	e := New(doc(block("test_missing")), WithModule("test", tm.table()))
	err := e.Run()
	var unknown *UnknownOpcodeError
	if !errors.As(err, &unknown) {
		t.Fatalf("Run() error = %v, want UnknownOpcodeError", err)
	}
	if unknown.Module != "test" || unknown.Function != "missing" {
		t.Errorf("error = %+v", unknown)
	}
}

func TestExecutionErrorWrapsHandlerFailure(t *testing.T) {
	tm := &testModule{}
	e := New(doc(block("test_fail")), WithModule("test", tm.table()))
	err := e.Run()

	var exec *ExecutionError
	if !errors.As(err, &exec) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	if exec.Module != "test" || exec.Function != "fail" || exec.BlockID != "test_fail" {
		t.Errorf("routing = %s/%s/%s", exec.Module, exec.Function, exec.BlockID)
	}
	if !errors.Is(err, errBoom) {
		t.Error("original error lost")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("message %q lost the original text", err)
	}
}

func TestNestedFailureKeepsInnermostRouting(t *testing.T) {
	tm := &testModule{}
	body := block("test_body", &ast.Statement{Name: "SUBSTACK", Block: block("test_fail")})
	e := New(doc(body), WithModule("test", tm.table()))

	var exec *ExecutionError
	if err := e.Run(); !errors.As(err, &exec) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	if exec.Function != "fail" {
		t.Errorf("function = %q, want fail", exec.Function)
	}
}

func TestRoutingFailureInsideBodyIsWrapped(t *testing.T) {
	tm := &testModule{}
	body := block("test_body", &ast.Statement{Name: "SUBSTACK", Block: block("foo_bar")})
	e := New(doc(body), WithModule("test", tm.table()))

	err := e.Run()
	var exec *ExecutionError
	if !errors.As(err, &exec) || exec.Function != "body" {
		t.Fatalf("Run() error = %v, want ExecutionError from test.body", err)
	}
	var unknown *UnknownModuleError
	if !errors.As(err, &unknown) || unknown.Module != "foo" {
		t.Errorf("wrapped error = %v, want UnknownModuleError foo", err)
	}
}

func TestPanicBecomesExecutionError(t *testing.T) {
	tm := &testModule{}
	e := New(doc(block("test_panic")), WithModule("test", tm.table()))
	err := e.Run()
	var exec *ExecutionError
	if !errors.As(err, &exec) {
		t.Fatalf("Run() error = %v, want ExecutionError", err)
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("error = %q, want panic message", err)
	}
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	tm := &testModule{}
	first, second, third := block("test_noop"), block("test_fail"), block("test_noop")
	first.ID, second.ID, third.ID = "one", "two", "three"
	e := New(doc(chain(first, second, third)), WithModule("test", tm.table()))

	if err := e.Run(); err == nil {
		t.Fatal("expected error")
	}
	if !reflect.DeepEqual(tm.calls, []string{"one", "two"}) {
		t.Errorf("calls = %v, want [one two]", tm.calls)
	}
	if e.Steps() != 1 {
		t.Errorf("Steps() = %d, want 1", e.Steps())
	}
}

func TestChainReturnsLastResult(t *testing.T) {
	tm := &testModule{}
	e := New(doc(nil), WithModule("test", tm.table()))
	head := chain(
		block("test_const", shadow("V", "first")),
		block("test_const", shadow("V", "last")),
	)
	got, err := e.Execute(head)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got.String() != "last" {
		t.Errorf("Execute() = %q, want last", got)
	}
}

func TestResolveShadowDoesNotDispatch(t *testing.T) {
	e := New(doc(nil))
	got, err := e.Resolve(shadow("NUM", "7"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.Type != TypeString || got.Str != "7" {
		t.Errorf("Resolve() = %#v, want string 7", got)
	}
	if n, _ := got.AsNumber(); n != 7 {
		t.Errorf("AsNumber() = %v, want 7", n)
	}
	if e.Steps() != 0 {
		t.Errorf("Steps() = %d, want 0", e.Steps())
	}
}

func TestResolveBlockExecutes(t *testing.T) {
	tm := &testModule{}
	e := New(doc(nil), WithModule("test", tm.table()))
	v := ast.BlockValue("X", block("test_const", shadow("V", "computed")))
	got, err := e.Resolve(v)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got.String() != "computed" || len(tm.calls) != 1 {
		t.Errorf("Resolve() = %q after %d calls", got, len(tm.calls))
	}
}

func TestHeapMutationVisibleToNextBlock(t *testing.T) {
	tm := &testModule{}
	var seen Value
	e := New(doc(chain(
		block("test_set", field("VARIABLE", "x"), shadow("VALUE", "5")),
		block("test_get", field("VARIABLE", "x")),
	), "x"),
		WithModule("test", tm.table()),
		WithStepObserver(func(s *Scope) {
			if s.Function() == "get" {
				seen = s.Result()
			}
		}),
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if n, _ := seen.AsNumber(); n != 5 {
		t.Errorf("next block read %v, want 5", seen)
	}
}

func TestRunSeedsDeclaredVariables(t *testing.T) {
	tm := &testModule{}
	e := New(doc(block("test_noop"), "a", "b"), WithModule("test", tm.table()))
	e.Heap().Set("a", Number(99))
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := e.Heap().Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Names() = %v", got)
	}
	for _, name := range []string{"a", "b"} {
		if v, _ := e.Heap().Get(name); !v.IsUndefined() {
			t.Errorf("%s = %v, want undefined after seeding", name, v)
		}
	}
}

func TestUndeclaredVariableRejected(t *testing.T) {
	tm := &testModule{}
	e := New(doc(block("test_set", field("VARIABLE", "ghost"), shadow("VALUE", "1")), "x"),
		WithModule("test", tm.table()))
	err := e.Run()
	if !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("Run() error = %v, want ErrUnknownVariable", err)
	}
	if e.Heap().Has("ghost") {
		t.Error("handler introduced a new heap key")
	}
}

func TestSlotLookupErrors(t *testing.T) {
	e := New(doc(nil))
	s := newScope(e, block("test_x"), Route{Module: "test", Function: "x"})

	_, err := s.GetValue("A")
	var missing *SlotNotFoundError
	if !errors.As(err, &missing) || missing.Kind != ast.MemberValue || missing.Name != "A" {
		t.Errorf("GetValue error = %v", err)
	}
	if _, err := s.GetStatement("B"); !errors.As(err, &missing) || missing.Kind != ast.MemberStatement {
		t.Errorf("GetStatement error = %v", err)
	}
	if _, err := s.GetField("C"); !errors.As(err, &missing) || missing.Kind != ast.MemberField {
		t.Errorf("GetField error = %v", err)
	}
	if _, err := s.ResolveValue("A"); !errors.As(err, &missing) {
		t.Errorf("ResolveValue error = %v", err)
	}
}

func TestScopeLastWriteWins(t *testing.T) {
	e := New(doc(nil))
	b := block("test_x",
		field("A", "first"),
		shadow("B", "value"),
		field("A", "second"),
		&ast.Statement{Name: "C", Block: block("test_noop")},
		field("B", "field"),
	)
	s := newScope(e, b, Route{})

	f, err := s.GetField("A")
	if err != nil || f.Value != "second" {
		t.Errorf("field A = %v, %v; want second", f, err)
	}
	if got := s.Slots(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("Slots() = %v, want [A B C]", got)
	}
	if !s.HasValue("B") || !s.HasField("B") || !s.HasStatement("C") {
		t.Error("B should be both a value and a field, C a statement")
	}
}

func TestStepObserver(t *testing.T) {
	tm := &testModule{}
	var seen []string
	e := New(doc(chain(
		block("test_noop"),
		block("test_body", &ast.Statement{Name: "SUBSTACK", Block: block("test_noop")}),
	)),
		WithModule("test", tm.table()),
		WithStepObserver(func(s *Scope) {
			seen = append(seen, s.Module()+"."+s.Function())
			panic("observer must not break the run")
		}),
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"test.noop", "test.noop", "test.body"}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("observed %v, want %v", seen, want)
	}
}

func TestDepthExceeded(t *testing.T) {
	tm := &testModule{}
	inner := block("test_noop")
	for i := 0; i < 10; i++ {
		inner = block("test_body", &ast.Statement{Name: "SUBSTACK", Block: inner})
	}
	e := New(doc(inner), WithModule("test", tm.table()), WithMaxDepth(5))
	if err := e.Run(); !errors.Is(err, ErrDepthExceeded) {
		t.Fatalf("Run() error = %v, want ErrDepthExceeded", err)
	}

	e = New(doc(inner), WithModule("test", tm.table()), WithMaxDepth(11))
	if err := e.Run(); err != nil {
		t.Errorf("Run() with enough depth failed: %v", err)
	}
}

func TestLongChainDoesNotCountAsDepth(t *testing.T) {
	tm := &testModule{}
	blocks := make([]*ast.Block, 50000)
	for i := range blocks {
		blocks[i] = &ast.Block{Opcode: "test_noop", ID: fmt.Sprint(i)}
	}
	e := New(doc(chain(blocks...)), WithModule("test", tm.table()), WithMaxDepth(1))
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if e.Steps() != len(blocks) {
		t.Errorf("Steps() = %d, want %d", e.Steps(), len(blocks))
	}
}

func TestShowHideCallbacks(t *testing.T) {
	var events []string
	mod := Module{
		"show": func(s *Scope) (Value, error) {
			s.Show("x")
			return Undefined(), nil
		},
		"hide": func(s *Scope) (Value, error) {
			s.Hide("x")
			return Undefined(), nil
		},
	}
	e := New(doc(chain(block("vis_show"), block("vis_hide")), "x"),
		WithModule("vis", mod),
		WithShow(func(s *Scope, name string) { events = append(events, "show "+name) }),
		WithHide(func(s *Scope, name string) { events = append(events, "hide "+name) }),
	)
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(events, []string{"show x", "hide x"}) {
		t.Errorf("events = %v", events)
	}
}

func TestDefaultShowHideDoNotFail(t *testing.T) {
	mod := Module{"show": func(s *Scope) (Value, error) {
		s.Show("x")
		s.Hide("x")
		return Undefined(), nil
	}}
	e := New(doc(block("vis_show"), "x"), WithModule("vis", mod))
	if err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
