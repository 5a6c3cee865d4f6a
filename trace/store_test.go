package trace

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/blockrun/ast"
	"github.com/chazu/blockrun/engine"
	"github.com/chazu/blockrun/modules"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "trace.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func lit(name, text string) *ast.Value {
	return ast.ShadowValue(name, &ast.Shadow{Type: "text", Field: ast.Field{Name: "TEXT", Value: text}})
}

// counter sets n to 0 then adds 1 twice.
func counter() *ast.Document {
	change := &ast.Block{Opcode: "data_changevariableby", ID: "chg", Members: []ast.Member{
		&ast.Field{Name: "VARIABLE", Value: "n"}, lit("VALUE", "1"),
	}}
	return &ast.Document{
		Variables: []ast.Variable{{Name: "n"}},
		Entry: &ast.Block{Opcode: "data_setvariableto", ID: "set", Members: []ast.Member{
			&ast.Field{Name: "VARIABLE", Value: "n"}, lit("VALUE", "0"),
		}, Next: &ast.Block{Opcode: "control_repeat", ID: "rep", Members: []ast.Member{
			lit("TIMES", "2"), &ast.Statement{Name: "SUBSTACK", Block: change},
		}}},
	}
}

func record(t *testing.T, s *Store, doc *ast.Document) (*Recorder, error) {
	t.Helper()
	rec, err := s.BeginRun("counter.xml")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	e := engine.New(doc,
		engine.WithModules(modules.Standard()),
		engine.WithStepObserver(rec.Observe),
	)
	runErr := e.Run()
	if err := rec.Finish(runErr); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return rec, runErr
}

func TestRecordRun(t *testing.T) {
	s := openStore(t)
	rec, err := record(t, s, counter())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	run, err := s.Run(rec.ID())
	if err != nil {
		t.Fatalf("Run(%s) failed: %v", rec.ID(), err)
	}
	if run.Document != "counter.xml" || run.Steps != 4 || run.Error != "" {
		t.Errorf("run = %+v", run)
	}
	if run.Finished.IsZero() || run.Finished.Before(run.Started) {
		t.Errorf("started %v finished %v", run.Started, run.Finished)
	}

	steps, err := s.Steps(rec.ID())
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	wantIDs := []string{"set", "chg", "chg", "rep"}
	wantN := []string{"0", "1", "2", "2"}
	if len(steps) != len(wantIDs) {
		t.Fatalf("got %d steps, want %d", len(steps), len(wantIDs))
	}
	for i, st := range steps {
		if st.Seq != i+1 || st.BlockID != wantIDs[i] {
			t.Errorf("step %d = %d/%s, want %d/%s", i, st.Seq, st.BlockID, i+1, wantIDs[i])
		}
		if got := st.Heap["n"].String(); got != wantN[i] {
			t.Errorf("step %d: n = %q, want %q", i, got, wantN[i])
		}
	}
	if steps[1].Module != "data" || steps[1].Function != "changevariableby" || steps[1].Depth != 2 {
		t.Errorf("nested step = %+v", steps[1])
	}
	if steps[3].Opcode != "control_repeat" || steps[3].Depth != 1 {
		t.Errorf("outer step = %+v", steps[3])
	}
}

func TestRecordFailedRun(t *testing.T) {
	s := openStore(t)
	doc := counter()
	doc.Entry.Next.Members[0] = lit("TIMES", "many")

	rec, err := record(t, s, doc)
	if err == nil {
		t.Fatal("expected run failure")
	}
	run, err := s.Run(rec.ID())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Steps != 1 || run.Error == "" {
		t.Errorf("run = %+v, want 1 step and an error", run)
	}
}

func TestRunsListing(t *testing.T) {
	s := openStore(t)
	first, _ := record(t, s, counter())
	second, _ := record(t, s, counter())

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	ids := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !ids[first.ID()] || !ids[second.ID()] || first.ID() == second.ID() {
		t.Errorf("runs = %v", runs)
	}
}

func TestUnknownRun(t *testing.T) {
	s := openStore(t)
	if _, err := s.Run("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Run error = %v, want ErrRunNotFound", err)
	}
	if _, err := s.Steps("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Steps error = %v, want ErrRunNotFound", err)
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rec, _ := record(t, s, counter())
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	steps, err := s.Steps(rec.ID())
	if err != nil || len(steps) != 4 {
		t.Errorf("Steps after reopen = %d, %v", len(steps), err)
	}
}
