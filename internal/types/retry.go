package types

// RetryState is the per-chain attempt counter carried from a challenge page
// to every resubmission it spawns. It is an immutable value: Next returns a
// new state and never modifies the receiver, so concurrent chains never share
// a counter.
type RetryState struct {
	attempts int
}

// NewRetryState returns a state that has already made n resubmissions.
// Negative values are treated as zero.
func NewRetryState(n int) RetryState {
	if n < 0 {
		n = 0
	}
	return RetryState{attempts: n}
}

// Attempts returns how many resubmissions the chain has made so far.
func (s RetryState) Attempts() int {
	return s.attempts
}

// Next returns the state carried by the next resubmission in the chain.
func (s RetryState) Next() RetryState {
	return RetryState{attempts: s.attempts + 1}
}

// Exhausted reports whether the chain has reached the given attempt bound.
func (s RetryState) Exhausted(max int) bool {
	return s.attempts >= max
}
