package modules

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/chazu/blockrun/engine"
)

// Operator returns arithmetic, comparison, logic and string handlers.
func Operator() engine.Module {
	return engine.Module{
		"add":       arith(func(a, b float64) float64 { return a + b }),
		"subtract":  arith(func(a, b float64) float64 { return a - b }),
		"multiply":  arith(func(a, b float64) float64 { return a * b }),
		"divide":    arith(func(a, b float64) float64 { return a / b }),
		"mod":       arith(floorMod),
		"lt":        compare(func(c int) bool { return c < 0 }),
		"gt":        compare(func(c int) bool { return c > 0 }),
		"equals":    equals,
		"and":       logic(func(a, b bool) bool { return a && b }),
		"or":        logic(func(a, b bool) bool { return a || b }),
		"not":       not,
		"join":      join,
		"letter_of": letterOf,
		"length":    length,
		"contains":  contains,
		"round":     round,
		"mathop":    mathop,
	}
}

// floorMod takes the sign of the divisor.
func floorMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func arith(fn func(a, b float64) float64) engine.Handler {
	return func(s *engine.Scope) (engine.Value, error) {
		a, err := number(s, "NUM1")
		if err != nil {
			return none, err
		}
		b, err := number(s, "NUM2")
		if err != nil {
			return none, err
		}
		return engine.Number(fn(a, b)), nil
	}
}

func operands(s *engine.Scope) (engine.Value, engine.Value, error) {
	a, err := s.ResolveValue("OPERAND1")
	if err != nil {
		return none, none, err
	}
	b, err := s.ResolveValue("OPERAND2")
	if err != nil {
		return none, none, err
	}
	return a, b, nil
}

func compare(pred func(int) bool) engine.Handler {
	return func(s *engine.Scope) (engine.Value, error) {
		a, b, err := operands(s)
		if err != nil {
			return none, err
		}
		return engine.Bool(pred(a.Compare(b))), nil
	}
}

func equals(s *engine.Scope) (engine.Value, error) {
	a, b, err := operands(s)
	if err != nil {
		return none, err
	}
	return engine.Bool(a.Equal(b)), nil
}

// logic evaluates both operands before combining them. A missing operand
// is false.
func logic(fn func(a, b bool) bool) engine.Handler {
	return func(s *engine.Scope) (engine.Value, error) {
		a, err := condition(s, "OPERAND1")
		if err != nil {
			return none, err
		}
		b, err := condition(s, "OPERAND2")
		if err != nil {
			return none, err
		}
		return engine.Bool(fn(a, b)), nil
	}
}

func not(s *engine.Scope) (engine.Value, error) {
	ok, err := condition(s, "OPERAND")
	if err != nil {
		return none, err
	}
	return engine.Bool(!ok), nil
}

func join(s *engine.Scope) (engine.Value, error) {
	a, err := s.ResolveValue("STRING1")
	if err != nil {
		return none, err
	}
	b, err := s.ResolveValue("STRING2")
	if err != nil {
		return none, err
	}
	return engine.String(a.String() + b.String()), nil
}

// letterOf indexes characters from 1. Out of range gives an empty string.
func letterOf(s *engine.Scope) (engine.Value, error) {
	idx, err := integer(s, "LETTER")
	if err != nil {
		return none, err
	}
	str, err := s.ResolveValue("STRING")
	if err != nil {
		return none, err
	}
	runes := []rune(str.String())
	if idx < 1 || idx > len(runes) {
		return engine.String(""), nil
	}
	return engine.String(string(runes[idx-1])), nil
}

func length(s *engine.Scope) (engine.Value, error) {
	str, err := s.ResolveValue("STRING")
	if err != nil {
		return none, err
	}
	return engine.Number(float64(utf8.RuneCountInString(str.String()))), nil
}

func contains(s *engine.Scope) (engine.Value, error) {
	a, err := s.ResolveValue("STRING1")
	if err != nil {
		return none, err
	}
	b, err := s.ResolveValue("STRING2")
	if err != nil {
		return none, err
	}
	return engine.Bool(strings.Contains(strings.ToLower(a.String()), strings.ToLower(b.String()))), nil
}

func round(s *engine.Scope) (engine.Value, error) {
	n, err := number(s, "NUM")
	if err != nil {
		return none, err
	}
	return engine.Number(math.Round(n)), nil
}

var mathops = map[string]func(float64) float64{
	"abs":     math.Abs,
	"floor":   math.Floor,
	"ceiling": math.Ceil,
	"sqrt":    math.Sqrt,
	"sin":     func(d float64) float64 { return math.Sin(d * math.Pi / 180) },
	"cos":     func(d float64) float64 { return math.Cos(d * math.Pi / 180) },
	"tan":     func(d float64) float64 { return math.Tan(d * math.Pi / 180) },
	"asin":    func(x float64) float64 { return math.Asin(x) * 180 / math.Pi },
	"acos":    func(x float64) float64 { return math.Acos(x) * 180 / math.Pi },
	"atan":    func(x float64) float64 { return math.Atan(x) * 180 / math.Pi },
	"ln":      math.Log,
	"log":     math.Log10,
	"e ^":     math.Exp,
	"10 ^":    func(x float64) float64 { return math.Pow(10, x) },
}

// mathop applies the function named by the OPERATOR field. Trigonometry
// works in degrees.
func mathop(s *engine.Scope) (engine.Value, error) {
	op, err := fieldName(s, "OPERATOR")
	if err != nil {
		return none, err
	}
	fn, ok := mathops[strings.ToLower(op)]
	if !ok {
		return none, fmt.Errorf("OPERATOR: unknown function %q", op)
	}
	n, err := number(s, "NUM")
	if err != nil {
		return none, err
	}
	return engine.Number(fn(n)), nil
}
