// Package handler exposes the sample workflow over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"limsd/internal/platform/middleware"
	"limsd/internal/sample/models"
	"limsd/internal/sample/service"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/httputil"
	"limsd/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/sample-mocks.go -package=mocks Service

// Service is the workflow surface the handler calls.
type Service interface {
	RegisterJob(ctx context.Context, in service.RegisterJobInput) (*models.Job, []*models.Sample, error)
	GetJob(ctx context.Context, jobID id.JobID) (*models.Job, []*models.Sample, error)
	GetSample(ctx context.Context, sampleID id.SampleID) (*models.Sample, error)
	ListByStatus(ctx context.Context, status models.SampleStatus, limit int) ([]*models.Sample, error)
	GetDashboard(ctx context.Context, now time.Time) (*service.Dashboard, error)
	ReceiveSample(ctx context.Context, sampleID id.SampleID, condition models.Condition) (*models.Sample, error)
	ReceiveByBarcode(ctx context.Context, barcode string, condition models.Condition) (*models.Sample, error)
	RejectSample(ctx context.Context, sampleID id.SampleID, reason string) (*models.Sample, error)
	EnterResult(ctx context.Context, testID id.SampleTestID, entry service.ResultEntry) (*models.Sample, error)
	Review(ctx context.Context, resultID id.TestResultID, action service.ReviewAction, comment string) (*models.Sample, error)
}

type Handler struct {
	svc       Service
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(svc Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{svc: svc, logger: logger, validator: validator}
}

// Register mounts the workflow routes. Every route requires an
// authenticated actor; mutating routes additionally require the role that
// owns the step.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Get("/jobs/{jobID}", h.handleGetJob)
		r.Get("/samples/{sampleID}", h.handleGetSample)
		r.Get("/samples", h.handleListSamples)
		r.Get("/dashboard", h.handleDashboard)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(requestcontext.RoleAnalyst, requestcontext.RoleSampler))
			r.Post("/jobs", h.handleRegisterJob)
			r.Post("/samples/{sampleID}/receive", h.handleReceive)
			r.Post("/samples/receive", h.handleReceiveByBarcode)
			r.Post("/samples/{sampleID}/reject", h.handleReject)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(requestcontext.RoleAnalyst))
			r.Post("/sample-tests/{testID}/result", h.handleEnterResult)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(requestcontext.RoleReviewer))
			r.Post("/results/{resultID}/review", h.handleReview)
		})
	})
}

func (h *Handler) handleRegisterJob(w http.ResponseWriter, r *http.Request) {
	var req registerJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	job, samples, err := h.svc.RegisterJob(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, "register job", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toJobResponse(job, samples))
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid job id"))
		return
	}
	job, samples, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeServiceError(w, r, "get job", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toJobResponse(job, samples))
}

func (h *Handler) handleGetSample(w http.ResponseWriter, r *http.Request) {
	sampleID, err := id.ParseSampleID(chi.URLParam(r, "sampleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid sample id"))
		return
	}
	sample, err := h.svc.GetSample(r.Context(), sampleID)
	if err != nil {
		h.writeServiceError(w, r, "get sample", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSampleResponse(sample))
}

func (h *Handler) handleListSamples(w http.ResponseWriter, r *http.Request) {
	status := models.SampleStatus(r.URL.Query().Get("status"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		limit = n
	}
	samples, err := h.svc.ListByStatus(r.Context(), status, limit)
	if err != nil {
		h.writeServiceError(w, r, "list samples", err)
		return
	}
	out := make([]sampleResponse, 0, len(samples))
	for _, s := range samples {
		out = append(out, toSampleResponse(s))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.svc.GetDashboard(r.Context(), time.Now())
	if err != nil {
		h.writeServiceError(w, r, "dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDashboardResponse(dash))
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	sampleID, err := id.ParseSampleID(chi.URLParam(r, "sampleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid sample id"))
		return
	}
	var req receiveRequest
	if err := decodeOptional(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	sample, err := h.svc.ReceiveSample(r.Context(), sampleID, models.Condition(req.Condition))
	if err != nil {
		h.writeServiceError(w, r, "receive sample", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSampleResponse(sample))
}

func (h *Handler) handleReceiveByBarcode(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sample, err := h.svc.ReceiveByBarcode(r.Context(), req.Barcode, models.Condition(req.Condition))
	if err != nil {
		h.writeServiceError(w, r, "receive sample by barcode", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSampleResponse(sample))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	sampleID, err := id.ParseSampleID(chi.URLParam(r, "sampleID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid sample id"))
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sample, err := h.svc.RejectSample(r.Context(), sampleID, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "reject sample", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSampleResponse(sample))
}

func (h *Handler) handleEnterResult(w http.ResponseWriter, r *http.Request) {
	testID, err := id.ParseSampleTestID(chi.URLParam(r, "testID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid sample test id"))
		return
	}
	var req enterResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sample, err := h.svc.EnterResult(r.Context(), testID, entry)
	if err != nil {
		h.writeServiceError(w, r, "enter result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSampleResponse(sample))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	resultID, err := id.ParseTestResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sample, err := h.svc.Review(r.Context(), resultID, service.ReviewAction(req.Action), req.Comment)
	if err != nil {
		h.writeServiceError(w, r, "review result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSampleResponse(sample))
}

// decodeOptional tolerates an empty body; the request struct keeps its zero
// values.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), op+" failed",
			"request_id", middleware.GetRequestID(r),
			"error", err.Error())
	}
	httputil.WriteError(w, err)
}
