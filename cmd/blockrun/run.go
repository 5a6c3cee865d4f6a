package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/blockrun/ast"
	"github.com/chazu/blockrun/config"
	"github.com/chazu/blockrun/engine"
	"github.com/chazu/blockrun/modules"
	"github.com/chazu/blockrun/trace"
	"github.com/chazu/blockrun/tree"
)

var log = commonlog.GetLogger("blockrun.cli")

// loadConfig reads blockrun.toml from dir, or searches upward from the
// document's directory when dir is empty. No file means defaults.
func loadConfig(dir, docPath string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	start := "."
	if docPath != "" {
		start = filepath.Dir(docPath)
	}
	cfg, err := config.FindAndLoad(start)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func loadDocument(cfg *config.Config, path string) (*ast.Document, error) {
	root, err := tree.Load(path)
	if err != nil {
		return nil, err
	}
	var opts []ast.ParseOption
	if len(cfg.Engine.EntryTypes) > 0 {
		opts = append(opts, ast.WithEntryTypes(cfg.Engine.EntryTypes...))
	}
	doc, err := ast.Parse(root, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, w := range doc.Warnings {
		log.Warningf("%s: %s", path, w)
	}
	return doc, nil
}

// consoleModule is the host device module: console_log prints MESSAGE.
func consoleModule(w io.Writer) engine.Module {
	return engine.Module{
		"log": func(s *engine.Scope) (engine.Value, error) {
			msg, err := s.ResolveValue("MESSAGE")
			if err != nil {
				return engine.Undefined(), err
			}
			fmt.Fprintln(w, msg)
			return engine.Undefined(), nil
		},
	}
}

func newEngine(cfg *config.Config, doc *ast.Document, w io.Writer, extra ...engine.Option) (*engine.Engine, error) {
	mods, err := modules.Select(cfg.Engine.Modules...)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithModules(mods),
		engine.WithModule("console", consoleModule(w)),
		engine.WithMaxDepth(cfg.Engine.MaxDepth),
		engine.WithShow(func(s *engine.Scope, name string) {
			v, _ := s.Heap().Get(name)
			fmt.Fprintf(w, "[show] %s = %s\n", name, v)
		}),
		engine.WithHide(func(s *engine.Scope, name string) {
			fmt.Fprintf(w, "[hide] %s\n", name)
		}),
	}
	e := engine.New(doc, append(opts, extra...)...)
	if err := checkOpcodes(e); err != nil {
		return nil, err
	}
	return e, nil
}

// checkOpcodes resolves every opcode the document uses so a missing module
// is reported before anything runs.
func checkOpcodes(e *engine.Engine) error {
	var errs []error
	for _, op := range e.Document().Opcodes() {
		if _, err := e.Registry().Resolve(op); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runDocument(cfg *config.Config, path string, w io.Writer) error {
	doc, err := loadDocument(cfg, path)
	if err != nil {
		return err
	}

	var rec *trace.Recorder
	observe := engine.WithStepObserver(func(s *engine.Scope) {
		if rec != nil {
			rec.Observe(s)
		}
	})
	e, err := newEngine(cfg, doc, w, observe)
	if err != nil {
		return err
	}

	if cfg.Trace.Enabled {
		store, err := trace.Open(cfg.TraceDBPath())
		if err != nil {
			return err
		}
		defer store.Close()
		if rec, err = store.BeginRun(path); err != nil {
			return err
		}
	}

	runErr := e.Run()
	if rec != nil {
		if err := rec.Finish(runErr); err != nil {
			log.Warningf("trace incomplete: %s", err)
		}
		fmt.Fprintf(w, "trace: run %s (%d steps)\n", rec.ID(), e.Steps())
	}
	if runErr != nil {
		return runErr
	}

	printHeap(w, e.Heap().Names(), e.Heap().Snapshot())
	return nil
}

func printHeap(w io.Writer, names []string, vars map[string]engine.Value) {
	if names == nil {
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		v := vars[name]
		switch v.Type {
		case engine.TypeUndefined:
			fmt.Fprintf(w, "%s = <unset>\n", name)
		case engine.TypeList:
			fmt.Fprintf(w, "%s = [%s]\n", name, v)
		default:
			fmt.Fprintf(w, "%s = %s\n", name, v)
		}
	}
}

func printYAML(path string, w io.Writer) error {
	root, err := tree.Load(path)
	if err != nil {
		return err
	}
	data, err := tree.MarshalYAML(root)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func printRuns(cfg *config.Config, w io.Writer) error {
	store, err := trace.Open(cfg.TraceDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ok"
		switch {
		case r.Finished.IsZero():
			status = "unfinished"
		case r.Error != "":
			status = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%s  %s  %-24s %4d steps  %s\n",
			r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Document, r.Steps, status)
	}
	return nil
}

func printSteps(cfg *config.Config, runID string, w io.Writer) error {
	store, err := trace.Open(cfg.TraceDBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	steps, err := store.Steps(runID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		indent := strings.Repeat("  ", max(st.Depth-1, 0))
		fmt.Fprintf(w, "%4d %s%s (%s) -> %s\n", st.Seq, indent, st.Opcode, st.BlockID, st.Result)
	}
	if len(steps) > 0 {
		fmt.Fprintln(w, "final heap:")
		printHeap(w, nil, steps[len(steps)-1].Heap)
	}
	return nil
}
