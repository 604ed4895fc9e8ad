// Package events defines the typed domain events emitted at transaction
// boundaries and the asynchronous dispatcher that fans them out. The core
// treats delivery as best-effort: a slow or failed sink never stalls or
// fails a workflow transition.
package events

import (
	"context"
	"time"

	id "limsd/pkg/domain"
)

// Kind classifies a domain event.
type Kind string

const (
	KindSampleStatusChanged Kind = "SAMPLE_STATUS_CHANGED"
	KindOOSDetected         Kind = "OOS_DETECTED"
	KindQCViolation         Kind = "QC_VIOLATION"
	KindInvestigationOpened Kind = "INVESTIGATION_OPENED"
	KindResultAuthorized    Kind = "RESULT_AUTHORIZED"
	KindSampleReceived      Kind = "SAMPLE_RECEIVED"
)

// Event is emitted from domain logic to capture key transitions. Kept flat
// and transport-agnostic so sinks can fan out without knowing the source
// module.
type Event struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	// ActorID is who performed the triggering operation.
	ActorID id.UserID `json:"actor_id,omitempty"`

	// NotifyUserID is the user a notification sink should address, when the
	// event targets a specific person (e.g. the registering analyst on
	// receipt, the entering analyst on authorization).
	NotifyUserID id.UserID `json:"notify_user_id,omitempty"`

	SampleID        id.SampleID        `json:"sample_id,omitempty"`
	SampleNumber    string             `json:"sample_number,omitempty"`
	SampleStatus    string             `json:"sample_status,omitempty"`
	TestMethodName  string             `json:"test_method_name,omitempty"`
	ChartID         id.ChartID         `json:"chart_id,omitempty"`
	ChartName       string             `json:"chart_name,omitempty"`
	InvestigationID id.InvestigationID `json:"investigation_id,omitempty"`
	NCRNumber       string             `json:"ncr_number,omitempty"`

	// Rule carries the fired control-chart rule label on QC_VIOLATION.
	Rule string `json:"rule,omitempty"`

	// Magnitude quantifies how far out an OOS result was: the distance
	// beyond the nearer limit divided by the tolerance width. Severity
	// policy reads it.
	Magnitude float64 `json:"magnitude,omitempty"`

	Message string `json:"message,omitempty"`
}

// Sink consumes events delivered by the dispatcher. Deliver errors are
// logged and counted, never propagated back to the emitting transaction.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}
