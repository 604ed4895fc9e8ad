package models

import (
	"time"

	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
)

// Job groups the samples registered together for one client order.
type Job struct {
	ID        id.JobID
	JobNumber string
	ClientID  id.ClientID
	Priority  Priority
	Notes     string
	CreatedBy id.UserID
	CreatedAt time.Time
}

// Priority orders the lab's worklist.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Condition describes the physical state of a sample at receipt.
type Condition string

const (
	ConditionAcceptable  Condition = "ACCEPTABLE"
	ConditionCompromised Condition = "COMPROMISED"
	ConditionDamaged     Condition = "DAMAGED"
)

// Sample is the aggregate root of the testing workflow. It exclusively owns
// its SampleTests and, through them, their TestResults.
//
// Invariants:
//   - Status moves only along the transition table in status.go
//   - Status == COMPLETED iff every owned test is COMPLETED
//   - Results are frozen once Status == AUTHORIZED
//   - Version increments on every persisted mutation; stores reject writes
//     with a stale version
type Sample struct {
	ID           id.SampleID
	SampleNumber string
	JobID        id.JobID
	ProductID    id.ProductID
	Description  string
	SamplingPoint string
	SampledBy    string
	SampledAt    *time.Time
	Barcode      string

	Status             SampleStatus
	ConditionOnReceipt Condition
	ReceivedAt         *time.Time
	ReceivedBy         id.UserID
	RejectionReason    string
	DueDate            *time.Time

	Tests []*SampleTest

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SampleTest is one analysis requested on a sample.
type SampleTest struct {
	ID           id.SampleTestID
	TestMethodID id.TestMethodID
	// MethodName and MethodCode are denormalized at attach time for event
	// payloads and worklists; limits are always re-read from the catalog.
	MethodName string
	MethodCode string
	SortOrder  int
	Retest     bool
	Status     TestStatus
	Result     *TestResult
}

// TestResult holds the measured or observed value for one test. Exactly one
// of NumericValue/TextValue is populated, consistent with the method's
// result type.
type TestResult struct {
	ID           id.TestResultID
	NumericValue *float64
	TextValue    string
	OutOfRange   bool
	FlagColor    FlagColor
	EnteredBy    id.UserID
	EnteredAt    time.Time
	InstrumentID id.InstrumentID
	ReagentLot   string

	Reviewed      bool
	ReviewedBy    id.UserID
	ReviewedAt    *time.Time
	ReviewComment string
}

// FlagColor is the worklist highlight derived from the out-of-range flag.
type FlagColor string

const (
	FlagGreen FlagColor = "GREEN"
	FlagRed   FlagColor = "RED"
)

// CanReceive checks the receipt guard: only REGISTERED samples can be
// received.
func (s *Sample) CanReceive() error {
	if s.Status != SampleRegistered {
		return dErrors.Newf(dErrors.CodeStateConflict,
			"sample %s is already in status %s", s.SampleNumber, s.Status)
	}
	return nil
}

// ApplyReceipt transitions the sample to RECEIVED, recording condition and
// receipt metadata. Call CanReceive first.
func (s *Sample) ApplyReceipt(condition Condition, by id.UserID, now time.Time) {
	s.Status = SampleReceived
	if condition != "" {
		s.ConditionOnReceipt = condition
	}
	s.ReceivedAt = &now
	s.ReceivedBy = by
	s.UpdatedAt = now
}

// CanReject checks the rejection guard: registration errors and transit
// damage are caught before work starts, so only REGISTERED or RECEIVED
// samples can be rejected.
func (s *Sample) CanReject() error {
	if s.Status != SampleRegistered && s.Status != SampleReceived {
		return dErrors.Newf(dErrors.CodeStateConflict,
			"sample %s in status %s cannot be rejected", s.SampleNumber, s.Status)
	}
	return nil
}

// ApplyRejection moves the sample to its REJECTED terminal.
func (s *Sample) ApplyRejection(reason string, now time.Time) {
	s.Status = SampleRejected
	s.RejectionReason = reason
	s.UpdatedAt = now
}

// PendingTests counts tests still awaiting a result.
func (s *Sample) PendingTests() int {
	n := 0
	for _, t := range s.Tests {
		if t.Status == TestPending {
			n++
		}
	}
	return n
}

// TestByID finds an owned test.
func (s *Sample) TestByID(testID id.SampleTestID) *SampleTest {
	for _, t := range s.Tests {
		if t.ID == testID {
			return t
		}
	}
	return nil
}

// TestByResultID finds the owned test holding the given result.
func (s *Sample) TestByResultID(resultID id.TestResultID) *SampleTest {
	for _, t := range s.Tests {
		if t.Result != nil && t.Result.ID == resultID {
			return t
		}
	}
	return nil
}

// RecomputeStatus derives the aggregate status from the owned tests. It is
// called inside the same store write as the test mutation that triggered
// it, so there is no observable state where all tests are complete but the
// sample is not.
func (s *Sample) RecomputeStatus(now time.Time) {
	switch s.Status {
	case SampleReceived, SampleInProgress, SampleCompleted:
	default:
		return
	}
	if s.PendingTests() == 0 {
		s.Status = SampleCompleted
	} else if s.Status != SampleReceived || s.anyTestCompleted() {
		s.Status = SampleInProgress
	}
	s.UpdatedAt = now
}

func (s *Sample) anyTestCompleted() bool {
	for _, t := range s.Tests {
		if t.Status == TestCompleted {
			return true
		}
	}
	return false
}

// AllResultsAuthorized reports whether every test's result carries an
// authorize review.
func (s *Sample) AllResultsAuthorized() bool {
	for _, t := range s.Tests {
		if t.Result == nil || !t.Result.Reviewed {
			return false
		}
	}
	return true
}

// Clone deep-copies the aggregate so stores can hand out snapshots without
// aliasing their internal state.
func (s *Sample) Clone() *Sample {
	cp := *s
	cp.Tests = make([]*SampleTest, len(s.Tests))
	for i, t := range s.Tests {
		tc := *t
		if t.Result != nil {
			rc := *t.Result
			if t.Result.NumericValue != nil {
				v := *t.Result.NumericValue
				rc.NumericValue = &v
			}
			if t.Result.ReviewedAt != nil {
				at := *t.Result.ReviewedAt
				rc.ReviewedAt = &at
			}
			tc.Result = &rc
		}
		cp.Tests[i] = &tc
	}
	return &cp
}
