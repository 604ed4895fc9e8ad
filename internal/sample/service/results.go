package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"limsd/internal/catalog"
	"limsd/internal/events"
	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/requestcontext"
)

// ResultEntry is the analyst's input for one test. Exactly one of
// NumericValue/TextValue must be set, matching the method's result type.
type ResultEntry struct {
	NumericValue *float64
	TextValue    string
	InstrumentID id.InstrumentID
	ReagentLot   string
}

// PASS_FAIL results take one of these coded values.
const (
	ResultPass = "PASS"
	ResultFail = "FAIL"
)

// EnterResult records a value for one test, flags it against the method's
// limits, marks the test COMPLETED and recomputes the sample status in the
// same store write. Re-entry before review replaces the value; once the
// result is authorized it is frozen.
func (s *Service) EnterResult(ctx context.Context, testID id.SampleTestID, entry ResultEntry) (*models.Sample, error) {
	ctx, span := s.tracer.Start(ctx, "sample.EnterResult")
	defer span.End()

	sample, err := s.store.FindByTest(ctx, testID)
	if err != nil {
		return nil, translate(err, "sample test")
	}
	switch sample.Status {
	case models.SampleReceived, models.SampleInProgress, models.SampleCompleted:
	default:
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"sample %s in status %s does not accept results", sample.SampleNumber, sample.Status)
	}

	test := sample.TestByID(testID)
	if test == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "sample test not found")
	}
	if test.Result != nil && test.Result.Reviewed {
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"result for %s on sample %s is already authorized", test.MethodName, sample.SampleNumber)
	}

	method, err := s.catalog.GetTestMethod(ctx, test.TestMethodID)
	if err != nil {
		return nil, resolveErr(err, "test method")
	}
	value, text, err := validateEntry(method, entry)
	if err != nil {
		return nil, err
	}

	outOfRange := false
	if method.ResultType == catalog.ResultQuantitative {
		outOfRange = isOutOfRange(*value, method.MinLimit, method.MaxLimit)
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	result := test.Result
	if result == nil {
		result = &models.TestResult{ID: id.NewTestResultID()}
		test.Result = result
	}
	result.NumericValue = value
	result.TextValue = text
	result.OutOfRange = outOfRange
	result.FlagColor = models.FlagGreen
	if outOfRange {
		result.FlagColor = models.FlagRed
	}
	result.EnteredBy = actor.ID
	result.EnteredAt = now
	result.InstrumentID = entry.InstrumentID
	result.ReagentLot = entry.ReagentLot

	test.Status = models.TestCompleted
	sample.RecomputeStatus(now)
	if err := s.update(ctx, sample); err != nil {
		return nil, err
	}
	s.metrics.IncResult(outOfRange)

	if outOfRange {
		s.emitter.Emit(ctx, events.Event{
			Kind:           events.KindOOSDetected,
			OccurredAt:     now,
			ActorID:        actor.ID,
			SampleID:       sample.ID,
			SampleNumber:   sample.SampleNumber,
			SampleStatus:   string(sample.Status),
			TestMethodName: method.Name,
			Magnitude:      oosMagnitude(*value, method.MinLimit, method.MaxLimit),
			Message: fmt.Sprintf("out-of-specification result %s for %s on sample %s",
				formatValue(value, text, method.DecimalPlaces), method.Name, sample.SampleNumber),
		})
	}
	if sample.Status == models.SampleCompleted {
		s.emitter.Emit(ctx, events.Event{
			Kind:         events.KindSampleStatusChanged,
			OccurredAt:   now,
			ActorID:      actor.ID,
			SampleID:     sample.ID,
			SampleNumber: sample.SampleNumber,
			SampleStatus: string(sample.Status),
			Message:      fmt.Sprintf("sample %s completed testing, ready for review", sample.SampleNumber),
		})
	}
	s.logger.InfoContext(ctx, "result entered",
		"sample_number", sample.SampleNumber,
		"method", method.Code,
		"out_of_range", outOfRange)
	return sample, nil
}

// validateEntry enforces exactly-one-of and the result-type pairing, and
// rounds quantitative values to the method's precision.
func validateEntry(method *catalog.TestMethod, entry ResultEntry) (*float64, string, error) {
	hasNumeric := entry.NumericValue != nil
	text := strings.TrimSpace(entry.TextValue)
	hasText := text != ""

	if hasNumeric == hasText {
		return nil, "", dErrors.New(dErrors.CodeValidation,
			"exactly one of numeric value or text value must be provided")
	}

	switch method.ResultType {
	case catalog.ResultQuantitative:
		if !hasNumeric {
			return nil, "", dErrors.Newf(dErrors.CodeValidation,
				"method %s requires a numeric value", method.Code)
		}
		v := roundTo(*entry.NumericValue, method.DecimalPlaces)
		return &v, "", nil
	case catalog.ResultText:
		if !hasText {
			return nil, "", dErrors.Newf(dErrors.CodeValidation,
				"method %s requires a text value", method.Code)
		}
		return nil, text, nil
	case catalog.ResultPassFail:
		if !hasText {
			return nil, "", dErrors.Newf(dErrors.CodeValidation,
				"method %s requires a PASS or FAIL value", method.Code)
		}
		coded := strings.ToUpper(text)
		if coded != ResultPass && coded != ResultFail {
			return nil, "", dErrors.Newf(dErrors.CodeValidation,
				"method %s accepts only PASS or FAIL, got %q", method.Code, entry.TextValue)
		}
		return nil, coded, nil
	default:
		return nil, "", dErrors.Newf(dErrors.CodeInternal,
			"method %s has unknown result type %q", method.Code, method.ResultType)
	}
}

// isOutOfRange applies the inclusive-bounds check: values on a limit are in
// range.
func isOutOfRange(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return true
	}
	if max != nil && v > *max {
		return true
	}
	return false
}

// oosMagnitude is the distance beyond the violated limit relative to the
// tolerance width. With a one-sided specification there is no width, so the
// magnitude stays zero and the severity policy treats it as minor.
func oosMagnitude(v float64, min, max *float64) float64 {
	if min == nil || max == nil {
		return 0
	}
	width := *max - *min
	if width <= 0 {
		return 0
	}
	switch {
	case v < *min:
		return (*min - v) / width
	case v > *max:
		return (v - *max) / width
	default:
		return 0
	}
}

func roundTo(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func formatValue(numeric *float64, text string, places int) string {
	if numeric != nil {
		return fmt.Sprintf("%.*f", places, *numeric)
	}
	return text
}
