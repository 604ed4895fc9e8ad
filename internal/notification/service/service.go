// Package service maintains the per-user notification inbox. It consumes
// domain events addressed to a user and serves the inbox back over the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"limsd/internal/events"
	"limsd/internal/notification/models"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/sentinel"
	"limsd/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	Get(ctx context.Context, notifID id.NotificationID) (*models.Notification, error)
	Save(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID id.UserID, unreadOnly bool, limit int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID id.UserID) (int64, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("notification store is required")
	}
	svc := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Name implements events.Sink.
func (s *Service) Name() string { return "notifications" }

// Deliver implements events.Sink: events addressed to a user land in that
// user's inbox, everything else passes through.
func (s *Service) Deliver(ctx context.Context, event events.Event) error {
	if event.NotifyUserID.IsNil() {
		return nil
	}
	n := &models.Notification{
		ID:              id.NewNotificationID(),
		UserID:          event.NotifyUserID,
		Kind:            string(event.Kind),
		Title:           titleFor(event),
		Message:         event.Message,
		SampleID:        event.SampleID,
		InvestigationID: event.InvestigationID,
		CreatedAt:       event.OccurredAt,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

func titleFor(event events.Event) string {
	switch event.Kind {
	case events.KindSampleReceived:
		return fmt.Sprintf("Sample %s received", event.SampleNumber)
	case events.KindResultAuthorized:
		return fmt.Sprintf("Result on sample %s authorized", event.SampleNumber)
	case events.KindInvestigationOpened:
		return fmt.Sprintf("Investigation %s assigned to you", event.NCRNumber)
	case events.KindSampleStatusChanged:
		return fmt.Sprintf("Sample %s is now %s", event.SampleNumber, event.SampleStatus)
	default:
		label := strings.ReplaceAll(strings.ToLower(string(event.Kind)), "_", " ")
		return strings.ToUpper(label[:1]) + label[1:]
	}
}

// List returns the calling user's inbox, newest first.
func (s *Service) List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error) {
	actor := requestcontext.Actor(ctx)
	if actor.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no authenticated user")
	}
	out, err := s.store.ListByUser(ctx, actor.ID, unreadOnly, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list notifications")
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	actor := requestcontext.Actor(ctx)
	if actor.ID.IsNil() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "no authenticated user")
	}
	n, err := s.store.UnreadCount(ctx, actor.ID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count notifications")
	}
	return n, nil
}

// MarkRead marks one of the caller's own notifications as read.
func (s *Service) MarkRead(ctx context.Context, notifID id.NotificationID) (*models.Notification, error) {
	actor := requestcontext.Actor(ctx)
	n, err := s.store.Get(ctx, notifID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "notification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load notification")
	}
	if n.UserID != actor.ID {
		return nil, dErrors.New(dErrors.CodeForbidden, "notification belongs to another user")
	}
	n.MarkRead(requestcontext.Now(ctx))
	if err := s.store.Save(ctx, n); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update notification")
	}
	return n, nil
}
