package engine

import "fmt"

// Run holds all state of one run. It is created at start, passed by pointer
// to every step and discarded once the Result is produced.
type Run struct {
	target    string
	claimed   map[string]struct{}
	processed int
	errors    int
	probes    int
	state     State
}

// NewRun creates the state for a run adding items to target.
func NewRun(target string) *Run {
	return &Run{
		target:  target,
		claimed: make(map[string]struct{}),
		state:   SeekingFirst,
	}
}

func (r *Run) Target() string { return r.target }
func (r *Run) State() State   { return r.state }
func (r *Run) Processed() int { return r.processed }
func (r *Run) Errors() int    { return r.errors }
func (r *Run) Probes() int    { return r.probes }
func (r *Run) Claimed() int   { return len(r.claimed) }

// IsClaimed reports whether the identity was already handled in this run.
func (r *Run) IsClaimed(id string) bool {
	_, ok := r.claimed[id]
	return ok
}

// Claim marks id as processed before its interaction completes.
// It returns false if id was already claimed.
func (r *Run) Claim(id string) bool {
	if r.IsClaimed(id) {
		return false
	}
	r.claimed[id] = struct{}{}
	return true
}

// IsFirstClaim reports whether exactly one identity has been claimed.
// Only meaningful while items are claimed strictly one at a time.
func (r *Run) IsFirstClaim() bool {
	return len(r.claimed) == 1
}

func (r *Run) enter(s State) { r.state = s }

func (r *Run) complete() Result {
	r.state = Done
	return Result{Success: true, Processed: r.processed, ErrorCount: r.errors}
}

func (r *Run) abort() Result {
	r.state = Aborted
	return Result{
		Success: false,
		Message: fmt.Sprintf("playlist '%s' not found while processing the first item; run stopped", r.target),
	}
}
