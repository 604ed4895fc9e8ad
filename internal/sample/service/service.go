// Package service implements the sample workflow: job registration, receipt,
// result entry and the two-person review gate. All status changes run
// through the aggregate's guard methods and are persisted with an optimistic
// version check, so concurrent writers on the same sample serialize cleanly.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Catalog,Emitter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"limsd/internal/catalog"
	"limsd/internal/events"
	"limsd/internal/platform/sequence"
	"limsd/internal/sample/metrics"
	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/sentinel"
)

// Store is the persistence surface the workflow needs. Implementations
// return sentinel errors; the service translates them into domain errors.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID id.JobID) (*models.Job, error)
	CreateSample(ctx context.Context, sample *models.Sample) error
	Get(ctx context.Context, sampleID id.SampleID) (*models.Sample, error)
	FindByBarcode(ctx context.Context, barcode string) (*models.Sample, error)
	FindByTest(ctx context.Context, testID id.SampleTestID) (*models.Sample, error)
	FindByResult(ctx context.Context, resultID id.TestResultID) (*models.Sample, error)
	Update(ctx context.Context, sample *models.Sample) error
	ListByJob(ctx context.Context, jobID id.JobID) ([]*models.Sample, error)
	ListByStatus(ctx context.Context, status models.SampleStatus, limit int) ([]*models.Sample, error)
	CountByStatus(ctx context.Context) (map[models.SampleStatus]int, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*models.Sample, error)
}

// Catalog is the master-data subset the workflow reads. Lookups happen at
// call time; limits are never cached on the sample.
type Catalog interface {
	GetClient(ctx context.Context, clientID id.ClientID) (*catalog.Client, error)
	GetProduct(ctx context.Context, productID id.ProductID) (*catalog.Product, error)
	GetTestMethod(ctx context.Context, methodID id.TestMethodID) (*catalog.TestMethod, error)
	ListProductTests(ctx context.Context, productID id.ProductID) ([]catalog.ProductTest, error)
}

// Emitter accepts domain events at transaction boundaries. Emit must never
// block; the dispatcher satisfies this.
type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, events.Event) {}

type Service struct {
	store   Store
	catalog Catalog
	seq     sequence.Sequence
	emitter Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithEmitter(emitter Emitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, cat Catalog, seq sequence.Sequence, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("sample store is required")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	if seq == nil {
		return nil, errors.New("sequence is required")
	}
	svc := &Service{
		store:   store,
		catalog: cat,
		seq:     seq,
		emitter: nopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("limsd/sample"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetSample returns the aggregate snapshot.
func (s *Service) GetSample(ctx context.Context, sampleID id.SampleID) (*models.Sample, error) {
	sample, err := s.store.Get(ctx, sampleID)
	if err != nil {
		return nil, translate(err, "sample")
	}
	return sample, nil
}

// GetJob returns the job header with its samples.
func (s *Service) GetJob(ctx context.Context, jobID id.JobID) (*models.Job, []*models.Sample, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, translate(err, "job")
	}
	samples, err := s.store.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, translate(err, "job samples")
	}
	return job, samples, nil
}

// ListByStatus returns the worklist for one status.
func (s *Service) ListByStatus(ctx context.Context, status models.SampleStatus, limit int) ([]*models.Sample, error) {
	if !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown sample status %q", status)
	}
	samples, err := s.store.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, translate(err, "samples")
	}
	return samples, nil
}

// Dashboard summarizes the lab's open work.
type Dashboard struct {
	StatusCounts map[models.SampleStatus]int
	Overdue      []*models.Sample
}

func (s *Service) GetDashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, translate(err, "status counts")
	}
	overdue, err := s.store.ListOverdue(ctx, now)
	if err != nil {
		return nil, translate(err, "overdue samples")
	}
	return &Dashboard{StatusCounts: counts, Overdue: overdue}, nil
}

// translate maps store sentinels onto the domain error taxonomy.
func translate(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, what+" was modified concurrently")
	case errors.Is(err, sentinel.ErrDuplicate):
		return dErrors.Wrap(err, dErrors.CodeValidation, what+" already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+what)
	}
}
