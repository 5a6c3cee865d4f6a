package modules

import "github.com/chazu/blockrun/engine"

// Event returns hat-block handlers. Hats only mark where a script starts,
// so running one does nothing and the chain below it continues.
func Event() engine.Module {
	return engine.Module{
		"whenflagclicked":       hat,
		"whenkeypressed":        hat,
		"whenbroadcastreceived": hat,
	}
}

func hat(*engine.Scope) (engine.Value, error) {
	return none, nil
}
