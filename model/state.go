package model

// Phase is the lifecycle position of the search pipeline.
type Phase uint8

const (
	// PhaseIdle means no term has been accepted yet.
	PhaseIdle Phase = iota
	// PhaseFetching means a fetch for the latest accepted term is outstanding.
	PhaseFetching
	// PhaseSucceeded means the latest fetch completed and replaced the results.
	PhaseSucceeded
	// PhaseFailed means the latest fetch failed; results are from an earlier search.
	PhaseFailed
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SearchState is a snapshot of the pipeline's observable state.
type SearchState struct {
	// Term is the latest accepted (trimmed) term.
	Term string
	// Generation is incremented for every accepted term.
	Generation uint64
	Phase      Phase
	Results    []PhotoResult
	// Err holds the failure of the latest fetch when Phase is PhaseFailed.
	Err error
}

// Busy reports whether a fetch for the latest accepted term is in flight.
func (s SearchState) Busy() bool {
	return s.Phase == PhaseFetching
}
