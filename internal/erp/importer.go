// Package erp imports test orders pushed by the client's ERP system.
//
// ERP orders arrive with names and codes rather than internal ids, and they
// name the exact tests to run instead of relying on the product's mandatory
// assignments. Imported jobs keep the ERP order id in the job number so lab
// staff can trace them back.
package erp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"limsd/internal/catalog"
	"limsd/internal/events"
	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/sentinel"
	"limsd/pkg/requestcontext"
)

// dueOffset is the standard ERP contract turnaround.
const dueOffset = 7 * 24 * time.Hour

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Store is the slice of the sample store the importer writes through.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	CreateSample(ctx context.Context, sample *models.Sample) error
}

// Catalog resolves the ERP's names and codes to master data.
type Catalog interface {
	FindClientByName(ctx context.Context, name string) (*catalog.Client, error)
	FindProductByName(ctx context.Context, name string) (*catalog.Product, error)
	FindTestMethodByCode(ctx context.Context, code string) (*catalog.TestMethod, error)
}

type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, events.Event) {}

type Importer struct {
	store   Store
	catalog Catalog
	emitter Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*Importer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

func WithEmitter(emitter Emitter) Option {
	return func(i *Importer) {
		i.emitter = emitter
	}
}

func New(store Store, cat Catalog, opts ...Option) (*Importer, error) {
	if store == nil {
		return nil, errors.New("sample store is required")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	imp := &Importer{
		store:   store,
		catalog: cat,
		emitter: nopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("limsd/erp"),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp, nil
}

// ImportItem is one physical sample in the order.
type ImportItem struct {
	Description   string
	SamplingPoint string
}

// ImportRequest is the ERP order as pushed over the integration endpoint.
type ImportRequest struct {
	ExternalID      string
	ClientName      string
	ProductName     string
	TestMethodCodes []string
	Priority        models.Priority
	Notes           string
	Items           []ImportItem
}

// ImportJob creates a job and samples from an ERP order. The order's test
// method codes are attached verbatim; the product's own assignments are
// ignored.
func (i *Importer) ImportJob(ctx context.Context, req ImportRequest) (*models.Job, []*models.Sample, error) {
	ctx, span := i.tracer.Start(ctx, "erp.ImportJob")
	defer span.End()

	if !externalIDPattern.MatchString(req.ExternalID) {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "external order id is required")
	}
	if len(req.Items) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "at least one sample item is required")
	}
	if len(req.TestMethodCodes) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "at least one test method code is required")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	switch req.Priority {
	case models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		return nil, nil, dErrors.Newf(dErrors.CodeValidation, "unknown priority %q", req.Priority)
	}

	client, err := i.catalog.FindClientByName(ctx, strings.TrimSpace(req.ClientName))
	if err != nil {
		return nil, nil, resolveErr(err, fmt.Sprintf("client %q", req.ClientName))
	}
	product, err := i.catalog.FindProductByName(ctx, strings.TrimSpace(req.ProductName))
	if err != nil {
		return nil, nil, resolveErr(err, fmt.Sprintf("product %q", req.ProductName))
	}
	methods := make([]*catalog.TestMethod, 0, len(req.TestMethodCodes))
	for _, code := range req.TestMethodCodes {
		method, err := i.catalog.FindTestMethodByCode(ctx, strings.TrimSpace(code))
		if err != nil {
			return nil, nil, resolveErr(err, fmt.Sprintf("test method %q", code))
		}
		methods = append(methods, method)
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	job := &models.Job{
		ID:        id.NewJobID(),
		JobNumber: "ERP-" + req.ExternalID,
		ClientID:  client.ID,
		Priority:  req.Priority,
		Notes:     req.Notes,
		CreatedBy: actor.ID,
		CreatedAt: now,
	}
	if err := i.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			return nil, nil, dErrors.Newf(dErrors.CodeStateConflict,
				"ERP order %s was already imported", req.ExternalID)
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store job")
	}

	due := now.Add(dueOffset)
	samples := make([]*models.Sample, 0, len(req.Items))
	for idx, item := range req.Items {
		sample := buildSample(job, product.ID, item, idx+1, methods, due, now)
		if err := i.store.CreateSample(ctx, sample); err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store sample")
		}
		samples = append(samples, sample)

		i.emitter.Emit(ctx, events.Event{
			Kind:         events.KindSampleStatusChanged,
			OccurredAt:   now,
			ActorID:      actor.ID,
			SampleID:     sample.ID,
			SampleNumber: sample.SampleNumber,
			SampleStatus: string(sample.Status),
			Message:      fmt.Sprintf("sample %s imported from ERP order %s", sample.SampleNumber, req.ExternalID),
		})
	}
	i.logger.InfoContext(ctx, "erp order imported",
		"job_number", job.JobNumber,
		"client", client.Name,
		"samples", len(samples),
		"tests_per_sample", len(methods))
	return job, samples, nil
}

func buildSample(job *models.Job, productID id.ProductID, item ImportItem, index int,
	methods []*catalog.TestMethod, due time.Time, now time.Time) *models.Sample {

	sample := &models.Sample{
		ID:                 id.NewSampleID(),
		SampleNumber:       fmt.Sprintf("%s-%02d", job.JobNumber, index),
		JobID:              job.ID,
		ProductID:          productID,
		Description:        item.Description,
		SamplingPoint:      item.SamplingPoint,
		Status:             models.SampleRegistered,
		ConditionOnReceipt: models.ConditionAcceptable,
		DueDate:            &due,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	sample.Barcode = "LIMS-" + sample.SampleNumber
	for i, method := range methods {
		sample.Tests = append(sample.Tests, &models.SampleTest{
			ID:           id.NewSampleTestID(),
			TestMethodID: method.ID,
			MethodName:   method.Name,
			MethodCode:   method.Code,
			SortOrder:    i + 1,
			Status:       models.TestPending,
		})
	}
	return sample
}

func resolveErr(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeValidation, "unknown "+what)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve "+what)
}
