package erp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"limsd/internal/platform/middleware"
	"limsd/internal/sample/models"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/platform/httputil"
	"limsd/pkg/requestcontext"
)

// Handler exposes the ERP push endpoint. Only admin credentials (the
// integration's service account) may import.
type Handler struct {
	imp       *Importer
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func NewHandler(imp *Importer, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{imp: imp, logger: logger, validator: validator}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Use(middleware.RequireRole(requestcontext.RoleAdmin))
		r.Post("/erp/import", h.handleImport)
	})
}

type importRequest struct {
	ExternalID      string       `json:"external_id"`
	ClientName      string       `json:"client_name"`
	ProductName     string       `json:"product_name"`
	TestMethodCodes []string     `json:"test_method_codes"`
	Priority        string       `json:"priority,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	Items           []importItem `json:"items"`
}

type importItem struct {
	Description   string `json:"description,omitempty"`
	SamplingPoint string `json:"sampling_point,omitempty"`
}

type importResponse struct {
	JobID     string           `json:"job_id"`
	JobNumber string           `json:"job_number"`
	Samples   []importedSample `json:"samples"`
}

type importedSample struct {
	ID           string     `json:"id"`
	SampleNumber string     `json:"sample_number"`
	Barcode      string     `json:"barcode"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	items := make([]ImportItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ImportItem{Description: item.Description, SamplingPoint: item.SamplingPoint})
	}
	job, samples, err := h.imp.ImportJob(r.Context(), ImportRequest{
		ExternalID:      req.ExternalID,
		ClientName:      req.ClientName,
		ProductName:     req.ProductName,
		TestMethodCodes: req.TestMethodCodes,
		Priority:        models.Priority(req.Priority),
		Notes:           req.Notes,
		Items:           items,
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(r.Context(), "erp import failed",
				"request_id", middleware.GetRequestID(r),
				"error", err.Error())
		}
		httputil.WriteError(w, err)
		return
	}
	resp := importResponse{JobID: job.ID.String(), JobNumber: job.JobNumber}
	for _, s := range samples {
		resp.Samples = append(resp.Samples, importedSample{
			ID:           s.ID.String(),
			SampleNumber: s.SampleNumber,
			Barcode:      s.Barcode,
			DueDate:      s.DueDate,
		})
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}
