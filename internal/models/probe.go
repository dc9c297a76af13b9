package models

// ProbeState is the memo kept per identity for title probing.
type ProbeState int

const (
	ProbeUntried ProbeState = iota
	ProbeInFlight
	ProbeSucceeded
	// ProbeFailed means a transport error (refused, reset, timeout).
	ProbeFailed
	// ProbeNoTitle means the port answered but had no usable title.
	ProbeNoTitle
)

var probeStateNames = [...]string{"untried", "in-flight", "succeeded", "failed", "no-title"}

func (s ProbeState) String() string {
	if s < 0 || int(s) >= len(probeStateNames) {
		return "unknown"
	}
	return probeStateNames[s]
}

// Terminal reports whether the port must never be probed again.
func (s ProbeState) Terminal() bool {
	return s == ProbeSucceeded || s == ProbeFailed || s == ProbeNoTitle
}

// ProbeOutcome is the result of one title probe.
type ProbeOutcome struct {
	State ProbeState
	Title string
	Err   error
}
