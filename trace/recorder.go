package trace

import (
	"github.com/chazu/blockrun/engine"
)

// Recorder writes the steps of one run. Observe matches the engine's step
// observer signature.
type Recorder struct {
	store *Store
	id    string
	seq   int
	err   error
}

// ID returns the run ID.
func (r *Recorder) ID() string { return r.id }

// Observe records the block s just completed. Storage failures never
// interrupt the run: the first one is kept for Finish and later steps are
// skipped.
func (r *Recorder) Observe(s *engine.Scope) {
	if r.err != nil {
		return
	}
	r.seq++

	b := s.Block()
	st := Step{
		Seq:      r.seq,
		BlockID:  b.ID,
		Opcode:   b.Opcode,
		Module:   s.Module(),
		Function: s.Function(),
		Depth:    s.Depth(),
	}
	result, err := engine.MarshalValue(s.Result())
	if err != nil {
		r.fail(err)
		return
	}
	heap, err := engine.MarshalSnapshot(s.Heap().Snapshot())
	if err != nil {
		r.fail(err)
		return
	}
	if err := r.store.insertStep(r.id, st, result, heap); err != nil {
		r.fail(err)
	}
}

func (r *Recorder) fail(err error) {
	r.err = err
	r.store.log.Warningf("run %s: trace stopped at step %d: %s", r.id, r.seq, err)
}

// Finish closes the run record with the run's outcome. It returns the
// first recording failure, if any.
func (r *Recorder) Finish(runErr error) error {
	steps := r.seq
	if r.err != nil {
		steps--
	}
	if err := r.store.finishRun(r.id, steps, runErr); err != nil {
		return err
	}
	r.store.log.Debugf("run %s finished: %d steps", r.id, steps)
	return r.err
}
