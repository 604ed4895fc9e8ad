// Package service implements the statistical process-control engine: chart
// management, ordered point ingestion with Westgard rule evaluation, and
// derived capability statistics.
//
// Submissions to one chart are serialized behind a per-chart mutex because
// measurement order is significant to the rules; different charts proceed
// in parallel.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"limsd/internal/catalog"
	"limsd/internal/events"
	"limsd/internal/qc/metrics"
	"limsd/internal/qc/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/sentinel"
	"limsd/pkg/requestcontext"
)

// establishedPoints is how many measurements a chart needs before rule
// evaluation starts. Below this the running statistics are too unstable to
// z-score against, matching standard control-chart qualification practice.
const establishedPoints = 10

// violationWindow is the trailing stretch that must be clean for a chart to
// count as in control again.
const violationWindow = 10

type Store interface {
	CreateChart(ctx context.Context, chart *models.QcChart) error
	GetChart(ctx context.Context, chartID id.ChartID) (*models.QcChart, error)
	ListCharts(ctx context.Context) ([]*models.QcChart, error)
	SaveObservation(ctx context.Context, chart *models.QcChart, point *models.QcDataPoint) error
	ListRecentPoints(ctx context.Context, chartID id.ChartID, limit int) ([]*models.QcDataPoint, error)
}

type Catalog interface {
	GetTestMethod(ctx context.Context, methodID id.TestMethodID) (*catalog.TestMethod, error)
}

type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, events.Event) {}

type Service struct {
	store   Store
	catalog Catalog
	emitter Emitter
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu    sync.Mutex
	locks map[id.ChartID]*sync.Mutex
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

func New(store Store, cat Catalog, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("qc store is required")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	svc := &Service{
		store:   store,
		catalog: cat,
		emitter: nopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("limsd/qc"),
		locks:   make(map[id.ChartID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// chartLock returns the mutex serializing one chart's submissions.
func (s *Service) chartLock(chartID id.ChartID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[chartID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[chartID] = lock
	}
	return lock
}

// CreateChartInput carries the chart definition. Limits are optional but
// must not be inverted.
type CreateChartInput struct {
	Name         string
	TestMethodID id.TestMethodID
	ChartType    models.ChartType
	TargetValue  *float64
	UCL          *float64
	LCL          *float64
	USL          *float64
	LSL          *float64
}

func (s *Service) CreateChart(ctx context.Context, in CreateChartInput) (*models.QcChart, error) {
	ctx, span := s.tracer.Start(ctx, "qc.CreateChart")
	defer span.End()

	if strings.TrimSpace(in.Name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "chart name is required")
	}
	if !in.ChartType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown chart type %q", in.ChartType)
	}
	if _, err := s.catalog.GetTestMethod(ctx, in.TestMethodID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "unknown test method reference")
		}
		return nil, translate(err, "test method")
	}

	now := requestcontext.Now(ctx)
	chart := &models.QcChart{
		ID:           id.NewChartID(),
		Name:         in.Name,
		TestMethodID: in.TestMethodID,
		ChartType:    in.ChartType,
		TargetValue:  in.TargetValue,
		UCL:          in.UCL,
		LCL:          in.LCL,
		USL:          in.USL,
		LSL:          in.LSL,
		InControl:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := chart.ValidateLimits(); err != nil {
		return nil, err
	}
	if err := s.store.CreateChart(ctx, chart); err != nil {
		return nil, translate(err, "qc chart")
	}
	s.logger.InfoContext(ctx, "qc chart created",
		"chart", chart.Name, "type", string(chart.ChartType))
	return chart, nil
}

func (s *Service) GetChart(ctx context.Context, chartID id.ChartID) (*models.QcChart, error) {
	chart, err := s.store.GetChart(ctx, chartID)
	if err != nil {
		return nil, translate(err, "qc chart")
	}
	return chart, nil
}

func (s *Service) ListCharts(ctx context.Context) ([]*models.QcChart, error) {
	charts, err := s.store.ListCharts(ctx)
	if err != nil {
		return nil, translate(err, "qc charts")
	}
	return charts, nil
}

func (s *Service) ListRecentPoints(ctx context.Context, chartID id.ChartID, limit int) ([]*models.QcDataPoint, error) {
	if _, err := s.store.GetChart(ctx, chartID); err != nil {
		return nil, translate(err, "qc chart")
	}
	points, err := s.store.ListRecentPoints(ctx, chartID, limit)
	if err != nil {
		return nil, translate(err, "qc points")
	}
	return points, nil
}

// AddPointInput is one measurement submission.
type AddPointInput struct {
	MeasuredValue float64
	LotID         string
	Notes         string
}

// AddDataPoint appends a measurement to the chart's series, updates the
// running statistics and evaluates the Westgard rules.
//
// Rules are z-scored against the chart's statistics as established before
// this point: the new measurement must not dilute the baseline it is being
// judged against.
func (s *Service) AddDataPoint(ctx context.Context, chartID id.ChartID, in AddPointInput) (*models.QcChart, *models.QcDataPoint, error) {
	ctx, span := s.tracer.Start(ctx, "qc.AddDataPoint")
	defer span.End()

	lock := s.chartLock(chartID)
	lock.Lock()
	defer lock.Unlock()

	chart, err := s.store.GetChart(ctx, chartID)
	if err != nil {
		return nil, nil, translate(err, "qc chart")
	}

	recent, err := s.store.ListRecentPoints(ctx, chartID, violationWindow-1)
	if err != nil {
		return nil, nil, translate(err, "qc points")
	}

	priorCount := chart.Count
	priorMean := chart.Mean
	priorSD := chart.StdDev()

	window := make([]float64, 0, len(recent)+1)
	window = append(window, in.MeasuredValue)
	for _, p := range recent {
		window = append(window, p.MeasuredValue)
	}

	var rule models.Rule
	fired := false
	if priorCount >= establishedPoints {
		rule, fired = models.EvaluateWestgard(window, priorMean, priorSD)
	}

	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	chart.Observe(in.MeasuredValue)
	chart.UpdatedAt = now
	if fired {
		chart.ViolationCount++
	}
	chart.InControl = !fired && cleanWindow(recent)

	point := &models.QcDataPoint{
		ID:            id.NewDataPointID(),
		ChartID:       chartID,
		Seq:           chart.Count,
		MeasuredValue: in.MeasuredValue,
		LotID:         in.LotID,
		Notes:         in.Notes,
		Violation:     fired,
		ViolationRule: rule,
		RecordedBy:    actor.ID,
		RecordedAt:    now,
	}
	if err := s.store.SaveObservation(ctx, chart, point); err != nil {
		return nil, nil, translate(err, "qc chart")
	}
	s.metrics.IncPoint()

	if fired {
		s.metrics.IncViolation(string(rule))
		s.emitter.Emit(ctx, events.Event{
			Kind:       events.KindQCViolation,
			OccurredAt: now,
			ActorID:    actor.ID,
			ChartID:    chartID,
			ChartName:  chart.Name,
			Rule:       string(rule),
			Message: fmt.Sprintf("control rule %s fired on chart %s at value %v",
				rule, chart.Name, in.MeasuredValue),
		})
		s.logger.WarnContext(ctx, "qc violation",
			"chart", chart.Name, "rule", string(rule), "value", in.MeasuredValue)
	}
	return chart, point, nil
}

// cleanWindow reports whether none of the prior trailing points carries an
// unresolved violation.
func cleanWindow(recent []*models.QcDataPoint) bool {
	for _, p := range recent {
		if p.Violation {
			return false
		}
	}
	return true
}

// ChartStats is the derived snapshot returned by GetChartStats.
type ChartStats struct {
	Mean           float64
	StdDev         float64
	Cpk            *float64
	ViolationCount int64
	InControl      bool
	TotalPoints    int64
}

func (s *Service) GetChartStats(ctx context.Context, chartID id.ChartID) (*ChartStats, error) {
	chart, err := s.store.GetChart(ctx, chartID)
	if err != nil {
		return nil, translate(err, "qc chart")
	}
	return &ChartStats{
		Mean:           chart.Mean,
		StdDev:         chart.StdDev(),
		Cpk:            chart.Cpk(),
		ViolationCount: chart.ViolationCount,
		InControl:      chart.InControl,
		TotalPoints:    chart.Count,
	}, nil
}

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
