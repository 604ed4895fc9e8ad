package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"limsd/internal/catalog"
	"limsd/internal/events"
	"limsd/internal/platform/sequence"
	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/sentinel"
	"limsd/pkg/requestcontext"
)

// SampleItem describes one physical sample in a registration request.
type SampleItem struct {
	Description   string
	SamplingPoint string
	SampledBy     string
	SampledAt     *time.Time
}

// RegisterJobInput is the registration request. Every item becomes a sample
// of the same product under one job.
type RegisterJobInput struct {
	ClientID  id.ClientID
	ProductID id.ProductID
	Priority  models.Priority
	Notes     string
	Items     []SampleItem
}

// RegisterJob creates a job and one REGISTERED sample per item, each with a
// PENDING test per mandatory product assignment. Optional assignments are
// not auto-attached.
func (s *Service) RegisterJob(ctx context.Context, in RegisterJobInput) (*models.Job, []*models.Sample, error) {
	ctx, span := s.tracer.Start(ctx, "sample.RegisterJob")
	defer span.End()

	if len(in.Items) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "at least one sample item is required")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	switch in.Priority {
	case models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		return nil, nil, dErrors.Newf(dErrors.CodeValidation, "unknown priority %q", in.Priority)
	}

	if _, err := s.catalog.GetClient(ctx, in.ClientID); err != nil {
		return nil, nil, resolveErr(err, "client")
	}
	if _, err := s.catalog.GetProduct(ctx, in.ProductID); err != nil {
		return nil, nil, resolveErr(err, "product")
	}

	assignments, err := s.catalog.ListProductTests(ctx, in.ProductID)
	if err != nil {
		return nil, nil, translate(err, "product tests")
	}
	var methods []*catalog.TestMethod
	var mandatory []catalog.ProductTest
	for _, pt := range assignments {
		if !pt.Mandatory {
			continue
		}
		method, err := s.catalog.GetTestMethod(ctx, pt.TestMethodID)
		if err != nil {
			return nil, nil, resolveErr(err, "test method")
		}
		mandatory = append(mandatory, pt)
		methods = append(methods, method)
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	seqName := fmt.Sprintf("job:%d", now.Year())
	n, err := s.seq.Next(ctx, seqName)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate job number")
	}
	job := &models.Job{
		ID:        id.NewJobID(),
		JobNumber: sequence.JobNumber(now.Year(), n),
		ClientID:  in.ClientID,
		Priority:  in.Priority,
		Notes:     in.Notes,
		CreatedBy: actor.ID,
		CreatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, nil, translate(err, "job")
	}

	due := dueDate(now, methods)
	samples := make([]*models.Sample, 0, len(in.Items))
	for i, item := range in.Items {
		sample := s.buildSample(job, in.ProductID, item, i+1, mandatory, methods, due, now)
		if err := s.store.CreateSample(ctx, sample); err != nil {
			return nil, nil, translate(err, "sample")
		}
		samples = append(samples, sample)

		s.emitter.Emit(ctx, events.Event{
			Kind:         events.KindSampleStatusChanged,
			OccurredAt:   now,
			ActorID:      actor.ID,
			SampleID:     sample.ID,
			SampleNumber: sample.SampleNumber,
			SampleStatus: string(sample.Status),
			Message:      fmt.Sprintf("sample %s registered under job %s", sample.SampleNumber, job.JobNumber),
		})
	}
	s.metrics.IncRegistered(len(samples))
	s.logger.InfoContext(ctx, "job registered",
		"job_number", job.JobNumber,
		"samples", len(samples),
		"tests_per_sample", len(mandatory))
	return job, samples, nil
}

func (s *Service) buildSample(job *models.Job, productID id.ProductID, item SampleItem, index int,
	mandatory []catalog.ProductTest, methods []*catalog.TestMethod, due *time.Time, now time.Time) *models.Sample {

	sample := &models.Sample{
		ID:                 id.NewSampleID(),
		SampleNumber:       sequence.SampleNumber(job.JobNumber, index),
		JobID:              job.ID,
		ProductID:          productID,
		Description:        item.Description,
		SamplingPoint:      item.SamplingPoint,
		SampledBy:          item.SampledBy,
		SampledAt:          item.SampledAt,
		Status:             models.SampleRegistered,
		ConditionOnReceipt: models.ConditionAcceptable,
		DueDate:            due,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	sample.Barcode = "LIMS-" + sample.SampleNumber
	for i, pt := range mandatory {
		sample.Tests = append(sample.Tests, &models.SampleTest{
			ID:           id.NewSampleTestID(),
			TestMethodID: pt.TestMethodID,
			MethodName:   methods[i].Name,
			MethodCode:   methods[i].Code,
			SortOrder:    pt.SortOrder,
			Status:       models.TestPending,
		})
	}
	return sample
}

// dueDate is registration time plus the slowest attached method's TAT.
func dueDate(from time.Time, methods []*catalog.TestMethod) *time.Time {
	maxTAT := 0
	for _, m := range methods {
		if m.TATHours > maxTAT {
			maxTAT = m.TATHours
		}
	}
	if maxTAT == 0 {
		return nil
	}
	d := from.Add(time.Duration(maxTAT) * time.Hour)
	return &d
}

// ReceiveSample books a sample into the lab. Only REGISTERED samples can be
// received; the due date restarts from the receipt time.
func (s *Service) ReceiveSample(ctx context.Context, sampleID id.SampleID, condition models.Condition) (*models.Sample, error) {
	ctx, span := s.tracer.Start(ctx, "sample.ReceiveSample")
	defer span.End()

	sample, err := s.store.Get(ctx, sampleID)
	if err != nil {
		return nil, translate(err, "sample")
	}
	return s.receive(ctx, sample, condition)
}

// ReceiveByBarcode is the scanner path of ReceiveSample.
func (s *Service) ReceiveByBarcode(ctx context.Context, barcode string, condition models.Condition) (*models.Sample, error) {
	ctx, span := s.tracer.Start(ctx, "sample.ReceiveByBarcode")
	defer span.End()

	if strings.TrimSpace(barcode) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "barcode is required")
	}
	sample, err := s.store.FindByBarcode(ctx, barcode)
	if err != nil {
		return nil, translate(err, "sample")
	}
	return s.receive(ctx, sample, condition)
}

func (s *Service) receive(ctx context.Context, sample *models.Sample, condition models.Condition) (*models.Sample, error) {
	switch condition {
	case "", models.ConditionAcceptable, models.ConditionCompromised, models.ConditionDamaged:
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown condition %q", condition)
	}
	if err := sample.CanReceive(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	sample.ApplyReceipt(condition, actor.ID, now)
	if due := s.recomputeDue(ctx, sample, now); due != nil {
		sample.DueDate = due
	}
	if err := s.update(ctx, sample); err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, sample.JobID)
	var notify id.UserID
	if err == nil {
		notify = job.CreatedBy
	}
	s.emitter.Emit(ctx, events.Event{
		Kind:         events.KindSampleReceived,
		OccurredAt:   now,
		ActorID:      actor.ID,
		NotifyUserID: notify,
		SampleID:     sample.ID,
		SampleNumber: sample.SampleNumber,
		SampleStatus: string(sample.Status),
		Message:      fmt.Sprintf("sample %s received in condition %s", sample.SampleNumber, sample.ConditionOnReceipt),
	})
	s.logger.InfoContext(ctx, "sample received",
		"sample_number", sample.SampleNumber,
		"condition", string(sample.ConditionOnReceipt))
	return sample, nil
}

func (s *Service) recomputeDue(ctx context.Context, sample *models.Sample, from time.Time) *time.Time {
	var methods []*catalog.TestMethod
	for _, t := range sample.Tests {
		method, err := s.catalog.GetTestMethod(ctx, t.TestMethodID)
		if err != nil {
			// Catalog drift is not a reason to fail receipt.
			s.logger.WarnContext(ctx, "test method lookup failed during receipt",
				"method_id", t.TestMethodID.String(), "error", err)
			continue
		}
		methods = append(methods, method)
	}
	return dueDate(from, methods)
}

// RejectSample terminates a sample that cannot be tested. Allowed only
// before any work starts.
func (s *Service) RejectSample(ctx context.Context, sampleID id.SampleID, reason string) (*models.Sample, error) {
	ctx, span := s.tracer.Start(ctx, "sample.RejectSample")
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	sample, err := s.store.Get(ctx, sampleID)
	if err != nil {
		return nil, translate(err, "sample")
	}
	if err := sample.CanReject(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	sample.ApplyRejection(reason, now)
	if err := s.update(ctx, sample); err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.Event{
		Kind:         events.KindSampleStatusChanged,
		OccurredAt:   now,
		ActorID:      actor.ID,
		SampleID:     sample.ID,
		SampleNumber: sample.SampleNumber,
		SampleStatus: string(sample.Status),
		Message:      fmt.Sprintf("sample %s rejected: %s", sample.SampleNumber, reason),
	})
	s.logger.InfoContext(ctx, "sample rejected",
		"sample_number", sample.SampleNumber, "reason", reason)
	return sample, nil
}

// update persists the aggregate, translating a lost version race into a
// concurrency conflict for the caller to retry.
func (s *Service) update(ctx context.Context, sample *models.Sample) error {
	if err := s.store.Update(ctx, sample); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.metrics.IncConflict()
		}
		return translate(err, "sample")
	}
	return nil
}

func resolveErr(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeValidation, "unknown "+what+" reference")
	}
	return translate(err, what)
}
