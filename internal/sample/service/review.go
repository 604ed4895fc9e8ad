package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"limsd/internal/events"
	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/requestcontext"
)

// ReviewAction is a reviewer's decision on one result.
type ReviewAction string

const (
	ActionAuthorize ReviewAction = "AUTHORIZE"
	ActionReject    ReviewAction = "REJECT"
)

// Review applies a reviewer's decision to one result of a COMPLETED sample.
//
// AUTHORIZE marks the result reviewed; when the last result of the sample is
// authorized the sample moves to its AUTHORIZED terminal and every result is
// frozen. REJECT rolls the whole sample back to IN_PROGRESS for rework:
// every test reverts to PENDING and is marked a retest, and any review marks
// already collected are cleared.
//
// The reviewer must not be the analyst who entered the result.
func (s *Service) Review(ctx context.Context, resultID id.TestResultID, action ReviewAction, comment string) (*models.Sample, error) {
	ctx, span := s.tracer.Start(ctx, "sample.Review")
	defer span.End()

	if action != ActionAuthorize && action != ActionReject {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown review action %q", action)
	}
	comment = strings.TrimSpace(comment)
	if action == ActionReject && comment == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection comment is required")
	}

	sample, err := s.store.FindByResult(ctx, resultID)
	if err != nil {
		return nil, translate(err, "test result")
	}
	if sample.Status != models.SampleCompleted {
		return nil, dErrors.Newf(dErrors.CodeForbidden,
			"sample %s is in status %s, review requires COMPLETED", sample.SampleNumber, sample.Status)
	}

	test := sample.TestByResultID(resultID)
	if test == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "test result not found")
	}
	result := test.Result
	if result.Reviewed {
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"result for %s on sample %s is already authorized", test.MethodName, sample.SampleNumber)
	}

	actor := requestcontext.Actor(ctx)
	if actor.ID == result.EnteredBy {
		return nil, dErrors.New(dErrors.CodeForbidden,
			"results cannot be reviewed by the analyst who entered them")
	}

	now := requestcontext.Now(ctx)
	switch action {
	case ActionAuthorize:
		result.Reviewed = true
		result.ReviewedBy = actor.ID
		result.ReviewedAt = &now
		result.ReviewComment = comment
		if sample.AllResultsAuthorized() {
			sample.Status = models.SampleAuthorized
			sample.UpdatedAt = now
		}
	case ActionReject:
		s.rollback(sample, now)
		// The rejection comment stays on the rejected result for
		// traceability; re-entry overwrites it.
		result.ReviewComment = comment
	}

	if err := s.update(ctx, sample); err != nil {
		return nil, err
	}
	s.metrics.IncReview(string(action))

	switch {
	case sample.Status == models.SampleAuthorized:
		s.emitter.Emit(ctx, events.Event{
			Kind:         events.KindResultAuthorized,
			OccurredAt:   now,
			ActorID:      actor.ID,
			NotifyUserID: result.EnteredBy,
			SampleID:     sample.ID,
			SampleNumber: sample.SampleNumber,
			SampleStatus: string(sample.Status),
			Message:      fmt.Sprintf("sample %s fully authorized", sample.SampleNumber),
		})
	case action == ActionReject:
		s.emitter.Emit(ctx, events.Event{
			Kind:           events.KindSampleStatusChanged,
			OccurredAt:     now,
			ActorID:        actor.ID,
			NotifyUserID:   result.EnteredBy,
			SampleID:       sample.ID,
			SampleNumber:   sample.SampleNumber,
			SampleStatus:   string(sample.Status),
			TestMethodName: test.MethodName,
			Message: fmt.Sprintf("sample %s returned for retesting: %s",
				sample.SampleNumber, comment),
		})
	}
	s.logger.InfoContext(ctx, "result reviewed",
		"sample_number", sample.SampleNumber,
		"method", test.MethodCode,
		"action", string(action))
	return sample, nil
}

// rollback reverts every test of the sample to PENDING. Result records are
// kept for traceability; the next entry overwrites them in place.
func (s *Service) rollback(sample *models.Sample, now time.Time) {
	for _, t := range sample.Tests {
		t.Status = models.TestPending
		t.Retest = true
		if t.Result != nil {
			t.Result.Reviewed = false
			t.Result.ReviewedBy = id.UserID{}
			t.Result.ReviewedAt = nil
			t.Result.ReviewComment = ""
		}
	}
	sample.Status = models.SampleInProgress
	sample.UpdatedAt = now
}
