// Package handler exposes the per-user notification inbox over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"limsd/internal/notification/models"
	"limsd/internal/platform/middleware"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/httputil"
)

type Service interface {
	List(ctx context.Context, unreadOnly bool, limit int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context) (int64, error)
	MarkRead(ctx context.Context, notifID id.NotificationID) (*models.Notification, error)
}

type Handler struct {
	svc       Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{svc: svc, logger: logger, validator: validator}
}

// Register mounts the inbox routes. Each user only ever sees their own
// inbox, so no role checks beyond authentication.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Get("/notifications", h.handleList)
		r.Get("/notifications/unread-count", h.handleUnreadCount)
		r.Post("/notifications/{notifID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = n
	}
	out, err := h.svc.List(r.Context(), unreadOnly, limit)
	if err != nil {
		h.writeServiceError(w, r, "list notifications", err)
		return
	}
	resp := make([]notificationResponse, 0, len(out))
	for _, n := range out {
		resp = append(resp, toResponse(n))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.UnreadCount(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "unread count", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, unreadCountResponse{Unread: n})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	notifID, err := id.ParseNotificationID(chi.URLParam(r, "notifID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid notification id"))
		return
	}
	n, err := h.svc.MarkRead(r.Context(), notifID)
	if err != nil {
		h.writeServiceError(w, r, "mark notification read", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(n))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), op+" failed",
			"request_id", middleware.GetRequestID(r),
			"error", err.Error())
	}
	httputil.WriteError(w, err)
}

type notificationResponse struct {
	ID              string     `json:"id"`
	Kind            string     `json:"kind"`
	Title           string     `json:"title"`
	Message         string     `json:"message,omitempty"`
	SampleID        string     `json:"sample_id,omitempty"`
	InvestigationID string     `json:"investigation_id,omitempty"`
	Read            bool       `json:"read"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type unreadCountResponse struct {
	Unread int64 `json:"unread"`
}

func toResponse(n *models.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID.String(),
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if !n.SampleID.IsNil() {
		resp.SampleID = n.SampleID.String()
	}
	if !n.InvestigationID.IsNil() {
		resp.InvestigationID = n.InvestigationID.String()
	}
	return resp
}
