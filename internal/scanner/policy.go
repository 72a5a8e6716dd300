package scanner

// FailurePolicy decides what a detector returns when its collaborator
// cannot be reached.
type FailurePolicy int

const (
	// FailOpen treats an unreachable collaborator as "no problem found".
	FailOpen FailurePolicy = iota
	// FailClosed treats an unreachable collaborator as a rejection.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}
