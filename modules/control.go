package modules

import (
	"math"

	"github.com/chazu/blockrun/engine"
)

// Control returns loop and branch handlers. Conditions are re-evaluated
// through the engine before every iteration.
func Control() engine.Module {
	return engine.Module{
		"repeat":       repeat,
		"repeat_until": repeatUntil,
		"while":        while,
		"forever":      forever,
		"if":           ifThen,
		"if_else":      ifElse,
		"wait_until":   waitUntil,
	}
}

func repeat(s *engine.Scope) (engine.Value, error) {
	n, err := number(s, "TIMES")
	if err != nil {
		return none, err
	}
	times := toInt(math.Round(n))
	for i := 0; i < times; i++ {
		if err := body(s, "SUBSTACK"); err != nil {
			return none, err
		}
	}
	return none, nil
}

func repeatUntil(s *engine.Scope) (engine.Value, error) {
	for {
		done, err := condition(s, "CONDITION")
		if err != nil {
			return none, err
		}
		if done {
			return none, nil
		}
		if err := body(s, "SUBSTACK"); err != nil {
			return none, err
		}
	}
}

func while(s *engine.Scope) (engine.Value, error) {
	for {
		ok, err := condition(s, "CONDITION")
		if err != nil {
			return none, err
		}
		if !ok {
			return none, nil
		}
		if err := body(s, "SUBSTACK"); err != nil {
			return none, err
		}
	}
}

// forever only returns when its body fails.
func forever(s *engine.Scope) (engine.Value, error) {
	for {
		if err := body(s, "SUBSTACK"); err != nil {
			return none, err
		}
	}
}

func ifThen(s *engine.Scope) (engine.Value, error) {
	ok, err := condition(s, "CONDITION")
	if err != nil || !ok {
		return none, err
	}
	return none, body(s, "SUBSTACK")
}

func ifElse(s *engine.Scope) (engine.Value, error) {
	ok, err := condition(s, "CONDITION")
	if err != nil {
		return none, err
	}
	if ok {
		return none, body(s, "SUBSTACK")
	}
	return none, body(s, "SUBSTACK2")
}

func waitUntil(s *engine.Scope) (engine.Value, error) {
	for {
		ok, err := condition(s, "CONDITION")
		if err != nil || ok {
			return none, err
		}
	}
}
