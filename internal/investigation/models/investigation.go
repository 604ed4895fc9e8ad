// Package models holds the investigation aggregate and its workflow.
package models

import (
	"time"

	id "limsd/pkg/domain"
)

// Type classifies what kind of quality record the investigation is.
type Type string

const (
	TypeNCR       Type = "NCR"
	TypeCAPA      Type = "CAPA"
	TypeComplaint Type = "COMPLAINT"
	TypeDeviation Type = "DEVIATION"
)

func (t Type) Valid() bool {
	switch t {
	case TypeNCR, TypeCAPA, TypeComplaint, TypeDeviation:
		return true
	}
	return false
}

// Severity grades the finding that opened the investigation.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// Status is the investigation workflow state. The workflow only moves
// forward; a closed investigation is immutable.
type Status string

const (
	StatusOpen             Status = "OPEN"
	StatusInvestigating    Status = "INVESTIGATING"
	StatusCorrectiveAction Status = "CORRECTIVE_ACTION"
	StatusClosed           Status = "CLOSED"
)

var nextStatus = map[Status]Status{
	StatusOpen:             StatusInvestigating,
	StatusInvestigating:    StatusCorrectiveAction,
	StatusCorrectiveAction: StatusClosed,
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusCorrectiveAction, StatusClosed:
		return true
	}
	return false
}

// CanAdvanceTo reports whether target is the immediate next workflow step.
func (s Status) CanAdvanceTo(target Status) bool {
	return nextStatus[s] == target
}

// SourceKind records what triggered the investigation.
type SourceKind string

const (
	SourceManual      SourceKind = "MANUAL"
	SourceOOS         SourceKind = "OOS_RESULT"
	SourceQCViolation SourceKind = "QC_VIOLATION"
)

// Investigation is one nonconformance record. SampleID and ChartID link it
// back to the triggering record when the source was automatic.
type Investigation struct {
	ID       id.InvestigationID
	Number   string
	Type     Type
	Severity Severity
	Status   Status

	Title       string
	Description string
	Source      SourceKind
	SampleID    id.SampleID
	ChartID     id.ChartID

	RootCause        string
	CorrectiveAction string
	PreventiveAction string

	AssignedTo id.UserID
	DueDate    time.Time
	CreatedBy  id.UserID
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedBy   id.UserID
	ClosedAt   *time.Time

	Version int64
}

// Advance moves the investigation to the next workflow step. Closing stamps
// ClosedBy and ClosedAt.
func (inv *Investigation) Advance(target Status, actor id.UserID, now time.Time) {
	inv.Status = target
	inv.UpdatedAt = now
	if target == StatusClosed {
		closed := now
		inv.ClosedBy = actor
		inv.ClosedAt = &closed
	}
}

// Terminal reports whether the record accepts no further changes.
func (inv *Investigation) Terminal() bool {
	return inv.Status == StatusClosed
}
