// Package trace records block runs in a SQLite database.
//
// A Recorder is installed as the engine's step observer. Each completed
// block becomes one row holding its routing, its result and a CBOR
// snapshot of the heap at that moment.
package trace

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/blockrun/engine"
)

// ErrRunNotFound indicates the requested run doesn't exist.
var ErrRunNotFound = errors.New("run not found")

var schema = []string{`CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	document TEXT NOT NULL,
	started  INTEGER NOT NULL,
	finished INTEGER,
	steps    INTEGER NOT NULL DEFAULT 0,
	error    TEXT NOT NULL DEFAULT ''
)`, `CREATE TABLE IF NOT EXISTS steps (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	seq      INTEGER NOT NULL,
	block_id TEXT NOT NULL,
	opcode   TEXT NOT NULL,
	module   TEXT NOT NULL,
	function TEXT NOT NULL,
	depth    INTEGER NOT NULL,
	result   BLOB NOT NULL,
	heap     BLOB NOT NULL,
	PRIMARY KEY (run_id, seq)
)`}

// Store handles SQLite storage for run traces.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	log  commonlog.Logger
}

// Run summarises one recorded run.
type Run struct {
	ID       string
	Document string
	Started  time.Time
	Finished time.Time // zero while the run is open
	Steps    int
	Error    string
}

// Step is one completed block.
type Step struct {
	Seq      int
	BlockID  string
	Opcode   string
	Module   string
	Function string
	Depth    int
	Result   engine.Value
	Heap     map[string]engine.Value
}

// Open opens or creates the trace database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating trace dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return &Store{
		db:   db,
		path: path,
		log:  commonlog.GetLogger("blockrun.trace"),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// BeginRun opens a run record for document and returns the recorder that
// feeds it.
func (s *Store) BeginRun(document string) (*Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	_, err := s.db.Exec(
		"INSERT INTO runs (id, document, started) VALUES (?, ?, ?)",
		id, document, time.Now().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	s.log.Debugf("run %s started for %s", id, document)
	return &Recorder{store: s, id: id}, nil
}

// Run retrieves a run summary.
func (s *Store) Run(id string) (Run, error) {
	row := s.db.QueryRow(
		"SELECT id, document, started, finished, steps, error FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// Runs lists every recorded run, newest first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(
		"SELECT id, document, started, finished, steps, error FROM runs ORDER BY started DESC, id")
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Document, &started, &finished, &r.Steps, &r.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("reading run: %w", err)
	}
	r.Started = time.Unix(0, started)
	if finished.Valid {
		r.Finished = time.Unix(0, finished.Int64)
	}
	return r, nil
}

// Steps returns the steps of a run in execution order.
func (s *Store) Steps(runID string) ([]Step, error) {
	if _, err := s.Run(runID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT seq, block_id, opcode, module, function, depth, result, heap
		FROM steps WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			st           Step
			result, heap []byte
		)
		if err := rows.Scan(&st.Seq, &st.BlockID, &st.Opcode, &st.Module, &st.Function, &st.Depth, &result, &heap); err != nil {
			return nil, fmt.Errorf("reading step: %w", err)
		}
		if st.Result, err = engine.UnmarshalValue(result); err != nil {
			return nil, fmt.Errorf("step %d: %w", st.Seq, err)
		}
		if st.Heap, err = engine.UnmarshalSnapshot(heap); err != nil {
			return nil, fmt.Errorf("step %d: %w", st.Seq, err)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *Store) insertStep(runID string, st Step, result, heap []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, seq, block_id, opcode, module, function, depth, result, heap)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, st.Seq, st.BlockID, st.Opcode, st.Module, st.Function, st.Depth, result, heap,
	)
	if err != nil {
		return fmt.Errorf("saving step: %w", err)
	}
	return nil
}

func (s *Store) finishRun(id string, steps int, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.Exec(
		"UPDATE runs SET finished = ?, steps = ?, error = ? WHERE id = ?",
		time.Now().UnixNano(), steps, msg, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}
