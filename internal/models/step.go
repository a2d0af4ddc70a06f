package models

// Step is one named stage of the provider-agnostic ingestion state machine.
// A source moves through the pipeline steps strictly in order; providers may
// skip steps irrelevant to them but never move backward within one run.
type Step string

const (
	StepQueued   Step = "queued"
	StepFetching Step = "fetching"
	StepParsed   Step = "parsed"
	StepChunked  Step = "chunked"
	StepEmbedded Step = "embedded"
	StepIndexed  Step = "indexed"
	StepLive     Step = "live"
	StepError    Step = "error"
)

// stepOrder is the canonical pipeline position of every non-error step.
var stepOrder = map[Step]int{
	StepQueued:   0,
	StepFetching: 1,
	StepParsed:   2,
	StepChunked:  3,
	StepEmbedded: 4,
	StepIndexed:  5,
	StepLive:     6,
}

// Index returns the step's position in the canonical pipeline order,
// or -1 for unknown steps and StepError.
func (s Step) Index() int {
	if idx, ok := stepOrder[s]; ok {
		return idx
	}
	return -1
}

// Before reports whether s comes strictly before other in pipeline order.
func (s Step) Before(other Step) bool {
	return s.Index() >= 0 && other.Index() >= 0 && s.Index() < other.Index()
}

// IsValid checks if the Step is a known value
func (s Step) IsValid() bool {
	if s == StepError {
		return true
	}
	return s.Index() >= 0
}

// String returns the string representation of the Step
func (s Step) String() string {
	return string(s)
}

// PipelineSteps returns the executable steps in order. StepQueued and
// StepLive are bookkeeping states, not executable work.
func PipelineSteps() []Step {
	return []Step{StepFetching, StepParsed, StepChunked, StepEmbedded, StepIndexed}
}
