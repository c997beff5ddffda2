package domain

import (
	"fmt"
	"sync"
)

// StatusTally aggregates probe outcomes for the references of one input file.
// Good+Bad always equals Total, and Pending+Errored always equals Bad.
type StatusTally struct {
	mu      sync.Mutex
	good    int
	pending int
	errored int
}

// Add records one probe outcome. Safe for concurrent use.
func (t *StatusTally) Add(outcome ProbeOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch outcome {
	case ProbeComplete:
		t.good++
	case ProbePending:
		t.pending++
	default:
		t.errored++
	}
}

// Snapshot returns the current counts
func (t *StatusTally) Snapshot() TallySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	bad := t.pending + t.errored
	return TallySnapshot{
		Good:    t.good,
		Bad:     bad,
		Total:   t.good + bad,
		Pending: t.pending,
		Errored: t.errored,
	}
}

// TallySnapshot is an immutable copy of a StatusTally
type TallySnapshot struct {
	Good    int
	Bad     int
	Total   int
	Pending int
	Errored int
}

// AnyFailed returns true if any probe was not complete
func (s TallySnapshot) AnyFailed() bool {
	return s.Bad > 0
}

// CompletedLine formats the completed summary line
func (s TallySnapshot) CompletedLine() string {
	return fmt.Sprintf("%d/%d requests completed", s.Good, s.Total)
}

// InProcessLine formats the in-process summary line
func (s TallySnapshot) InProcessLine() string {
	return fmt.Sprintf("%d/%d requests in process", s.Bad, s.Total)
}

// ErroredLine formats the transport error line. Empty if nothing errored.
func (s TallySnapshot) ErroredLine() string {
	if s.Errored == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d probes failed with transport errors (status unknown)", s.Errored, s.Total)
}
