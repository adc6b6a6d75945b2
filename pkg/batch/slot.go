package batch

import (
	"encoding/json"
	"time"
)

// Status is the state of one request slot.
type Status int

const (
	// StatusPending means the request has not succeeded yet.
	StatusPending Status = iota
	// StatusCompleted means a pass produced a payload for the request.
	StatusCompleted
	// StatusUnresolved means the run ended before the request succeeded.
	StatusUnresolved
)

// String returns the status name used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Slot holds the outcome of the request at Index.
type Slot struct {
	Index    int
	Status   Status
	Payload  json.RawMessage
	Attempts int
	LastErr  error
}

// Resolved reports whether the slot holds a payload.
func (s Slot) Resolved() bool {
	return s.Status == StatusCompleted
}

// TerminationReason tells why a run stopped.
type TerminationReason string

const (
	// ReasonSettled means every request completed.
	ReasonSettled TerminationReason = "settled"
	// ReasonBudgetExhausted means requests were still pending after the
	// last allowed pass.
	ReasonBudgetExhausted TerminationReason = "budget_exhausted"
	// ReasonCancelled means the context was cancelled or the run deadline
	// passed.
	ReasonCancelled TerminationReason = "cancelled"
	// ReasonGeneratorFailed means a regeneration call failed or changed the
	// list length.
	ReasonGeneratorFailed TerminationReason = "generator_failed"
)

// Report is the outcome of a run. Results is index-aligned with the first
// generated request list.
type Report struct {
	RunID      string
	Results    []Slot
	Passes     int
	Resolved   int
	Unresolved int
	Reason     TerminationReason
	StartedAt  time.Time
	Duration   time.Duration
}

// Payloads returns the payloads in request order, nil for unresolved slots.
func (r *Report) Payloads() []json.RawMessage {
	out := make([]json.RawMessage, len(r.Results))
	for i, s := range r.Results {
		if s.Status == StatusCompleted {
			out[i] = s.Payload
		}
	}
	return out
}

// state is the slot arena of one run. Only the collecting goroutine mutates
// it.
type state struct {
	slots   []Slot
	pending []int
}

func newState(n int) *state {
	st := &state{
		slots:   make([]Slot, n),
		pending: make([]int, n),
	}
	for i := range st.slots {
		st.slots[i].Index = i
		st.pending[i] = i
	}
	return st
}

// record applies one attempt outcome to its slot.
func (st *state) record(o outcome) {
	s := &st.slots[o.index]
	s.Attempts++
	if o.err != nil {
		s.LastErr = o.err
		return
	}
	s.Status = StatusCompleted
	s.Payload = o.payload
	s.LastErr = nil
}

// partition rebuilds the pending list in index order.
func (st *state) partition() {
	st.pending = st.pending[:0]
	for i := range st.slots {
		if st.slots[i].Status == StatusPending {
			st.pending = append(st.pending, i)
		}
	}
}

// finalize marks what is still pending as unresolved and counts both
// outcomes.
func (st *state) finalize() (resolved, unresolved int) {
	for i := range st.slots {
		if st.slots[i].Status == StatusPending {
			st.slots[i].Status = StatusUnresolved
		}
		if st.slots[i].Status == StatusCompleted {
			resolved++
		} else {
			unresolved++
		}
	}
	st.pending = st.pending[:0]
	return resolved, unresolved
}
