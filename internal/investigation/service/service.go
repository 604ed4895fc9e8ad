// Package service owns the investigation workflow: opening nonconformance
// records, advancing them through the forward-only workflow, and opening
// them automatically from quality events.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"limsd/internal/events"
	"limsd/internal/investigation/metrics"
	"limsd/internal/investigation/models"
	"limsd/internal/platform/config"
	"limsd/internal/platform/sequence"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/sentinel"
	"limsd/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, inv *models.Investigation) error
	Get(ctx context.Context, invID id.InvestigationID) (*models.Investigation, error)
	Update(ctx context.Context, inv *models.Investigation) error
	List(ctx context.Context, status models.Status, limit int) ([]*models.Investigation, error)
	CountOpen(ctx context.Context) (int64, error)
}

type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, events.Event) {}

type Service struct {
	store   Store
	seq     sequence.Sequence
	policy  config.InvestigationPolicy
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

func New(store Store, seq sequence.Sequence, policy config.InvestigationPolicy, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("investigation store is required")
	}
	if seq == nil {
		return nil, errors.New("sequence is required")
	}
	svc := &Service{
		store:   store,
		seq:     seq,
		policy:  policy,
		emitter: nopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("limsd/investigation"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// OpenInput is a manually raised investigation.
type OpenInput struct {
	Type        models.Type
	Severity    models.Severity
	Title       string
	Description string
	SampleID    id.SampleID
	ChartID     id.ChartID
	AssignedTo  id.UserID
}

func (s *Service) Open(ctx context.Context, in OpenInput) (*models.Investigation, error) {
	ctx, span := s.tracer.Start(ctx, "investigation.Open")
	defer span.End()

	if !in.Type.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown investigation type %q", in.Type)
	}
	if !in.Severity.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", in.Severity)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	actor := requestcontext.Actor(ctx)
	return s.open(ctx, &models.Investigation{
		Type:        in.Type,
		Severity:    in.Severity,
		Title:       in.Title,
		Description: in.Description,
		Source:      models.SourceManual,
		SampleID:    in.SampleID,
		ChartID:     in.ChartID,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   actor.ID,
	})
}

// open assigns the NCR number and persists. The caller fills everything but
// ID, Number, Status and timestamps.
func (s *Service) open(ctx context.Context, inv *models.Investigation) (*models.Investigation, error) {
	now := requestcontext.Now(ctx)
	n, err := s.seq.Next(ctx, fmt.Sprintf("ncr:%d", now.Year()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate NCR number")
	}
	inv.ID = id.NewInvestigationID()
	inv.Number = sequence.NCRNumber(now.Year(), n)
	inv.Status = models.StatusOpen
	inv.DueDate = now.AddDate(0, 0, s.policy.DueDays)
	inv.CreatedAt = now
	inv.UpdatedAt = now

	if err := s.store.Create(ctx, inv); err != nil {
		return nil, translate(err, "investigation")
	}
	s.metrics.IncOpened(string(inv.Source), string(inv.Severity))
	s.emitter.Emit(ctx, events.Event{
		Kind:            events.KindInvestigationOpened,
		OccurredAt:      now,
		ActorID:         inv.CreatedBy,
		NotifyUserID:    inv.AssignedTo,
		SampleID:        inv.SampleID,
		ChartID:         inv.ChartID,
		InvestigationID: inv.ID,
		NCRNumber:       inv.Number,
		Message:         fmt.Sprintf("%s %s opened: %s", inv.Severity, inv.Type, inv.Title),
	})
	s.logger.InfoContext(ctx, "investigation opened",
		"number", inv.Number, "type", string(inv.Type),
		"severity", string(inv.Severity), "source", string(inv.Source))
	return inv, nil
}

func (s *Service) Get(ctx context.Context, invID id.InvestigationID) (*models.Investigation, error) {
	inv, err := s.store.Get(ctx, invID)
	if err != nil {
		return nil, translate(err, "investigation")
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, status models.Status, limit int) ([]*models.Investigation, error) {
	if status != "" && !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", status)
	}
	out, err := s.store.List(ctx, status, limit)
	if err != nil {
		return nil, translate(err, "investigations")
	}
	return out, nil
}

// UpdateInput amends the working fields of an open investigation.
type UpdateInput struct {
	Description      *string
	RootCause        *string
	CorrectiveAction *string
	PreventiveAction *string
	AssignedTo       *id.UserID
}

func (s *Service) Update(ctx context.Context, invID id.InvestigationID, in UpdateInput) (*models.Investigation, error) {
	ctx, span := s.tracer.Start(ctx, "investigation.Update")
	defer span.End()

	inv, err := s.store.Get(ctx, invID)
	if err != nil {
		return nil, translate(err, "investigation")
	}
	if inv.Terminal() {
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"investigation %s is closed", inv.Number)
	}
	if in.Description != nil {
		inv.Description = *in.Description
	}
	if in.RootCause != nil {
		inv.RootCause = *in.RootCause
	}
	if in.CorrectiveAction != nil {
		inv.CorrectiveAction = *in.CorrectiveAction
	}
	if in.PreventiveAction != nil {
		inv.PreventiveAction = *in.PreventiveAction
	}
	if in.AssignedTo != nil {
		inv.AssignedTo = *in.AssignedTo
	}
	inv.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, inv); err != nil {
		return nil, translate(err, "investigation")
	}
	return inv, nil
}

// Advance moves the investigation one workflow step forward. Closing
// requires a documented root cause and corrective action.
func (s *Service) Advance(ctx context.Context, invID id.InvestigationID, target models.Status) (*models.Investigation, error) {
	ctx, span := s.tracer.Start(ctx, "investigation.Advance")
	defer span.End()

	if !target.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", target)
	}
	inv, err := s.store.Get(ctx, invID)
	if err != nil {
		return nil, translate(err, "investigation")
	}
	if !inv.Status.CanAdvanceTo(target) {
		return nil, dErrors.Newf(dErrors.CodeStateConflict,
			"investigation %s cannot move from %s to %s", inv.Number, inv.Status, target)
	}
	if target == models.StatusClosed {
		if strings.TrimSpace(inv.RootCause) == "" || strings.TrimSpace(inv.CorrectiveAction) == "" {
			return nil, dErrors.New(dErrors.CodeValidation,
				"closing requires a root cause and a corrective action")
		}
	}
	actor := requestcontext.Actor(ctx)
	inv.Advance(target, actor.ID, requestcontext.Now(ctx))
	if err := s.store.Update(ctx, inv); err != nil {
		return nil, translate(err, "investigation")
	}
	if target == models.StatusClosed {
		s.metrics.IncClosed()
	}
	s.logger.InfoContext(ctx, "investigation advanced",
		"number", inv.Number, "status", string(inv.Status))
	return inv, nil
}

// Name implements events.Sink.
func (s *Service) Name() string { return "investigations" }

// Deliver implements events.Sink: quality events that cross the policy
// thresholds open investigations automatically.
func (s *Service) Deliver(ctx context.Context, event events.Event) error {
	switch event.Kind {
	case events.KindOOSDetected:
		return s.openFromOOS(ctx, event)
	case events.KindQCViolation:
		return s.openFromQCViolation(ctx, event)
	default:
		return nil
	}
}

func (s *Service) openFromOOS(ctx context.Context, event events.Event) error {
	severity := models.SeverityMinor
	if event.Magnitude > s.policy.OOSMajorFactor {
		severity = models.SeverityMajor
	}
	ctx = requestcontext.WithTime(ctx, eventTime(event))
	_, err := s.open(ctx, &models.Investigation{
		Type:     models.TypeNCR,
		Severity: severity,
		Title: fmt.Sprintf("Out-of-specification result on sample %s (%s)",
			event.SampleNumber, event.TestMethodName),
		Description: event.Message,
		Source:      models.SourceOOS,
		SampleID:    event.SampleID,
		CreatedBy:   event.ActorID,
	})
	return err
}

func (s *Service) openFromQCViolation(ctx context.Context, event events.Event) error {
	severity := models.SeverityMinor
	if slices.Contains(s.policy.MajorRules, event.Rule) {
		severity = models.SeverityMajor
	}
	ctx = requestcontext.WithTime(ctx, eventTime(event))
	_, err := s.open(ctx, &models.Investigation{
		Type:     models.TypeNCR,
		Severity: severity,
		Title: fmt.Sprintf("Control rule %s violated on chart %s",
			event.Rule, event.ChartName),
		Description: event.Message,
		Source:      models.SourceQCViolation,
		ChartID:     event.ChartID,
		CreatedBy:   event.ActorID,
	})
	return err
}

// eventTime anchors automatic investigations to the event, not delivery.
func eventTime(event events.Event) time.Time {
	if event.OccurredAt.IsZero() {
		return time.Now()
	}
	return event.OccurredAt
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
