package models

import (
	dErrors "limsd/pkg/domain-errors"
)

// SampleStatus is the closed set of sample lifecycle states. Transitions are
// encoded as data below so an illegal move is impossible to express rather
// than merely checked in scattered conditionals.
type SampleStatus string

const (
	SampleRegistered SampleStatus = "REGISTERED"
	SampleReceived   SampleStatus = "RECEIVED"
	SampleInProgress SampleStatus = "IN_PROGRESS"
	SampleCompleted  SampleStatus = "COMPLETED"
	SampleAuthorized SampleStatus = "AUTHORIZED"
	SampleRejected   SampleStatus = "REJECTED"
)

// sampleTransitions is the full transition table. AUTHORIZED and REJECTED
// are terminal. COMPLETED → IN_PROGRESS is the review-rejection rollback.
var sampleTransitions = map[SampleStatus][]SampleStatus{
	SampleRegistered: {SampleReceived, SampleRejected},
	SampleReceived:   {SampleInProgress, SampleCompleted, SampleRejected},
	SampleInProgress: {SampleCompleted},
	SampleCompleted:  {SampleAuthorized, SampleInProgress},
	SampleAuthorized: {},
	SampleRejected:   {},
}

// CanTransitionTo reports whether the move is in the transition table.
func (s SampleStatus) CanTransitionTo(target SampleStatus) bool {
	for _, allowed := range sampleTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist.
func (s SampleStatus) Terminal() bool {
	return len(sampleTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s SampleStatus) Valid() bool {
	_, ok := sampleTransitions[s]
	return ok
}

// TestStatus is the per-test state. A test is either awaiting a result or
// has one; review happens at the sample level.
type TestStatus string

const (
	TestPending   TestStatus = "PENDING"
	TestCompleted TestStatus = "COMPLETED"
)

// TransitionError builds the uniform state-conflict error for a refused
// sample transition.
func TransitionError(from, to SampleStatus) error {
	return dErrors.Newf(dErrors.CodeStateConflict,
		"cannot transition sample from %s to %s", from, to)
}
