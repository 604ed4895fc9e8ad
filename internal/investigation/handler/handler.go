// Package handler exposes the investigation workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"limsd/internal/investigation/models"
	"limsd/internal/investigation/service"
	"limsd/internal/platform/middleware"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/httputil"
	"limsd/pkg/requestcontext"
)

// Service is the workflow surface the handler calls.
type Service interface {
	Open(ctx context.Context, in service.OpenInput) (*models.Investigation, error)
	Get(ctx context.Context, invID id.InvestigationID) (*models.Investigation, error)
	List(ctx context.Context, status models.Status, limit int) ([]*models.Investigation, error)
	Update(ctx context.Context, invID id.InvestigationID, in service.UpdateInput) (*models.Investigation, error)
	Advance(ctx context.Context, invID id.InvestigationID, target models.Status) (*models.Investigation, error)
}

type Handler struct {
	svc       Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{svc: svc, logger: logger, validator: validator}
}

// Register mounts the investigation routes. Reading is open to any
// authenticated user; the workflow itself belongs to investigators.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Get("/investigations", h.handleList)
		r.Get("/investigations/{invID}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(requestcontext.RoleInvestigator, requestcontext.RoleAdmin))
			r.Post("/investigations", h.handleOpen)
			r.Patch("/investigations/{invID}", h.handleUpdate)
			r.Post("/investigations/{invID}/advance", h.handleAdvance)
		})
	})
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inv, err := h.svc.Open(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "open investigation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(inv))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	invID, err := id.ParseInvestigationID(chi.URLParam(r, "invID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid investigation id"))
		return
	}
	inv, err := h.svc.Get(r.Context(), invID)
	if err != nil {
		h.writeServiceError(w, r, "get investigation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	status := models.Status(r.URL.Query().Get("status"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = n
	}
	out, err := h.svc.List(r.Context(), status, limit)
	if err != nil {
		h.writeServiceError(w, r, "list investigations", err)
		return
	}
	resp := make([]investigationResponse, 0, len(out))
	for _, inv := range out {
		resp = append(resp, toResponse(inv))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	invID, err := id.ParseInvestigationID(chi.URLParam(r, "invID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid investigation id"))
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inv, err := h.svc.Update(r.Context(), invID, in)
	if err != nil {
		h.writeServiceError(w, r, "update investigation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	invID, err := id.ParseInvestigationID(chi.URLParam(r, "invID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid investigation id"))
		return
	}
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	inv, err := h.svc.Advance(r.Context(), invID, models.Status(req.Status))
	if err != nil {
		h.writeServiceError(w, r, "advance investigation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(inv))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), op+" failed",
			"request_id", middleware.GetRequestID(r),
			"error", err.Error())
	}
	httputil.WriteError(w, err)
}
