// Package handler exposes the control-chart engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"limsd/internal/platform/middleware"
	"limsd/internal/qc/models"
	"limsd/internal/qc/service"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/httputil"
	"limsd/pkg/requestcontext"
)

// defaultPointLimit bounds the points listing when the caller does not ask
// for a specific window.
const defaultPointLimit = 50

// Service is the chart surface the handler calls.
type Service interface {
	CreateChart(ctx context.Context, in service.CreateChartInput) (*models.QcChart, error)
	GetChart(ctx context.Context, chartID id.ChartID) (*models.QcChart, error)
	ListCharts(ctx context.Context) ([]*models.QcChart, error)
	AddDataPoint(ctx context.Context, chartID id.ChartID, in service.AddPointInput) (*models.QcChart, *models.QcDataPoint, error)
	ListRecentPoints(ctx context.Context, chartID id.ChartID, limit int) ([]*models.QcDataPoint, error)
	GetChartStats(ctx context.Context, chartID id.ChartID) (*service.ChartStats, error)
}

type Handler struct {
	svc       Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{svc: svc, logger: logger, validator: validator}
}

// Register mounts the chart routes. Reading is open to any authenticated
// user; chart creation and point submission belong to analysts.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Get("/qc/charts", h.handleListCharts)
		r.Get("/qc/charts/{chartID}", h.handleGetChart)
		r.Get("/qc/charts/{chartID}/points", h.handleListPoints)
		r.Get("/qc/charts/{chartID}/stats", h.handleStats)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(requestcontext.RoleAnalyst, requestcontext.RoleAdmin))
			r.Post("/qc/charts", h.handleCreateChart)
			r.Post("/qc/charts/{chartID}/points", h.handleAddPoint)
		})
	})
}

func (h *Handler) handleCreateChart(w http.ResponseWriter, r *http.Request) {
	var req createChartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	chart, err := h.svc.CreateChart(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "create chart", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toChartResponse(chart))
}

func (h *Handler) handleListCharts(w http.ResponseWriter, r *http.Request) {
	charts, err := h.svc.ListCharts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "list charts", err)
		return
	}
	out := make([]chartResponse, 0, len(charts))
	for _, c := range charts {
		out = append(out, toChartResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetChart(w http.ResponseWriter, r *http.Request) {
	chartID, err := id.ParseChartID(chi.URLParam(r, "chartID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid chart id"))
		return
	}
	chart, err := h.svc.GetChart(r.Context(), chartID)
	if err != nil {
		h.writeServiceError(w, r, "get chart", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toChartResponse(chart))
}

func (h *Handler) handleAddPoint(w http.ResponseWriter, r *http.Request) {
	chartID, err := id.ParseChartID(chi.URLParam(r, "chartID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid chart id"))
		return
	}
	var req addPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.MeasuredValue == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "measured_value is required"))
		return
	}
	chart, point, err := h.svc.AddDataPoint(r.Context(), chartID, service.AddPointInput{
		MeasuredValue: *req.MeasuredValue,
		LotID:         req.LotID,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, "add data point", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, addPointResponse{
		Chart: toChartResponse(chart),
		Point: toPointResponse(point),
	})
}

func (h *Handler) handleListPoints(w http.ResponseWriter, r *http.Request) {
	chartID, err := id.ParseChartID(chi.URLParam(r, "chartID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid chart id"))
		return
	}
	limit := defaultPointLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = n
	}
	points, err := h.svc.ListRecentPoints(r.Context(), chartID, limit)
	if err != nil {
		h.writeServiceError(w, r, "list points", err)
		return
	}
	out := make([]pointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, toPointResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	chartID, err := id.ParseChartID(chi.URLParam(r, "chartID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid chart id"))
		return
	}
	stats, err := h.svc.GetChartStats(r.Context(), chartID)
	if err != nil {
		h.writeServiceError(w, r, "chart stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatsResponse(stats))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), op+" failed",
			"request_id", middleware.GetRequestID(r),
			"error", err.Error())
	}
	httputil.WriteError(w, err)
}
