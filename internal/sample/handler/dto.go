package handler

import (
	"time"

	"limsd/internal/sample/models"
	"limsd/internal/sample/service"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
)

type registerJobRequest struct {
	ClientID  string            `json:"client_id"`
	ProductID string            `json:"product_id"`
	Priority  string            `json:"priority,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Items     []sampleItemInput `json:"items"`
}

type sampleItemInput struct {
	Description   string     `json:"description,omitempty"`
	SamplingPoint string     `json:"sampling_point,omitempty"`
	SampledBy     string     `json:"sampled_by,omitempty"`
	SampledAt     *time.Time `json:"sampled_at,omitempty"`
}

func (req registerJobRequest) toInput() (service.RegisterJobInput, error) {
	clientID, err := id.ParseClientID(req.ClientID)
	if err != nil {
		return service.RegisterJobInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid client id")
	}
	productID, err := id.ParseProductID(req.ProductID)
	if err != nil {
		return service.RegisterJobInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid product id")
	}
	in := service.RegisterJobInput{
		ClientID:  clientID,
		ProductID: productID,
		Priority:  models.Priority(req.Priority),
		Notes:     req.Notes,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, service.SampleItem{
			Description:   item.Description,
			SamplingPoint: item.SamplingPoint,
			SampledBy:     item.SampledBy,
			SampledAt:     item.SampledAt,
		})
	}
	return in, nil
}

type receiveRequest struct {
	Barcode   string `json:"barcode,omitempty"`
	Condition string `json:"condition,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type enterResultRequest struct {
	NumericValue *float64 `json:"numeric_value,omitempty"`
	TextValue    string   `json:"text_value,omitempty"`
	InstrumentID string   `json:"instrument_id,omitempty"`
	ReagentLot   string   `json:"reagent_lot,omitempty"`
}

func (req enterResultRequest) toEntry() (service.ResultEntry, error) {
	entry := service.ResultEntry{
		NumericValue: req.NumericValue,
		TextValue:    req.TextValue,
		ReagentLot:   req.ReagentLot,
	}
	if req.InstrumentID != "" {
		instrumentID, err := id.ParseInstrumentID(req.InstrumentID)
		if err != nil {
			return service.ResultEntry{}, dErrors.New(dErrors.CodeBadRequest, "invalid instrument id")
		}
		entry.InstrumentID = instrumentID
	}
	return entry, nil
}

type reviewRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment,omitempty"`
}

type jobResponse struct {
	ID        string           `json:"id"`
	JobNumber string           `json:"job_number"`
	ClientID  string           `json:"client_id"`
	Priority  string           `json:"priority"`
	Notes     string           `json:"notes,omitempty"`
	CreatedBy string           `json:"created_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Samples   []sampleResponse `json:"samples"`
}

type sampleResponse struct {
	ID                 string         `json:"id"`
	SampleNumber       string         `json:"sample_number"`
	JobID              string         `json:"job_id"`
	ProductID          string         `json:"product_id"`
	Description        string         `json:"description,omitempty"`
	SamplingPoint      string         `json:"sampling_point,omitempty"`
	Barcode            string         `json:"barcode,omitempty"`
	Status             string         `json:"status"`
	ConditionOnReceipt string         `json:"condition_on_receipt,omitempty"`
	ReceivedAt         *time.Time     `json:"received_at,omitempty"`
	RejectionReason    string         `json:"rejection_reason,omitempty"`
	DueDate            *time.Time     `json:"due_date,omitempty"`
	Version            int64          `json:"version"`
	Tests              []testResponse `json:"tests"`
}

type testResponse struct {
	ID         string          `json:"id"`
	MethodName string          `json:"method_name"`
	MethodCode string          `json:"method_code"`
	SortOrder  int             `json:"sort_order"`
	Retest     bool            `json:"retest,omitempty"`
	Status     string          `json:"status"`
	Result     *resultResponse `json:"result,omitempty"`
}

type resultResponse struct {
	ID            string     `json:"id"`
	NumericValue  *float64   `json:"numeric_value,omitempty"`
	TextValue     string     `json:"text_value,omitempty"`
	OutOfRange    bool       `json:"out_of_range"`
	FlagColor     string     `json:"flag_color"`
	EnteredBy     string     `json:"entered_by"`
	EnteredAt     time.Time  `json:"entered_at"`
	ReagentLot    string     `json:"reagent_lot,omitempty"`
	Reviewed      bool       `json:"reviewed"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ReviewComment string     `json:"review_comment,omitempty"`
}

type dashboardResponse struct {
	StatusCounts map[string]int   `json:"status_counts"`
	Overdue      []sampleResponse `json:"overdue"`
}

func toJobResponse(job *models.Job, samples []*models.Sample) jobResponse {
	resp := jobResponse{
		ID:        job.ID.String(),
		JobNumber: job.JobNumber,
		ClientID:  job.ClientID.String(),
		Priority:  string(job.Priority),
		Notes:     job.Notes,
		CreatedAt: job.CreatedAt,
		Samples:   make([]sampleResponse, 0, len(samples)),
	}
	if !job.CreatedBy.IsNil() {
		resp.CreatedBy = job.CreatedBy.String()
	}
	for _, s := range samples {
		resp.Samples = append(resp.Samples, toSampleResponse(s))
	}
	return resp
}

func toSampleResponse(s *models.Sample) sampleResponse {
	resp := sampleResponse{
		ID:                 s.ID.String(),
		SampleNumber:       s.SampleNumber,
		JobID:              s.JobID.String(),
		ProductID:          s.ProductID.String(),
		Description:        s.Description,
		SamplingPoint:      s.SamplingPoint,
		Barcode:            s.Barcode,
		Status:             string(s.Status),
		ConditionOnReceipt: string(s.ConditionOnReceipt),
		ReceivedAt:         s.ReceivedAt,
		RejectionReason:    s.RejectionReason,
		DueDate:            s.DueDate,
		Version:            s.Version,
		Tests:              make([]testResponse, 0, len(s.Tests)),
	}
	for _, st := range s.Tests {
		resp.Tests = append(resp.Tests, toTestResponse(st))
	}
	return resp
}

func toTestResponse(st *models.SampleTest) testResponse {
	resp := testResponse{
		ID:         st.ID.String(),
		MethodName: st.MethodName,
		MethodCode: st.MethodCode,
		SortOrder:  st.SortOrder,
		Retest:     st.Retest,
		Status:     string(st.Status),
	}
	if r := st.Result; r != nil {
		result := &resultResponse{
			ID:            r.ID.String(),
			NumericValue:  r.NumericValue,
			TextValue:     r.TextValue,
			OutOfRange:    r.OutOfRange,
			FlagColor:     string(r.FlagColor),
			EnteredBy:     r.EnteredBy.String(),
			EnteredAt:     r.EnteredAt,
			ReagentLot:    r.ReagentLot,
			Reviewed:      r.Reviewed,
			ReviewedAt:    r.ReviewedAt,
			ReviewComment: r.ReviewComment,
		}
		if !r.ReviewedBy.IsNil() {
			result.ReviewedBy = r.ReviewedBy.String()
		}
		resp.Result = result
	}
	return resp
}

func toDashboardResponse(d *service.Dashboard) dashboardResponse {
	resp := dashboardResponse{
		StatusCounts: make(map[string]int, len(d.StatusCounts)),
		Overdue:      make([]sampleResponse, 0, len(d.Overdue)),
	}
	for status, n := range d.StatusCounts {
		resp.StatusCounts[string(status)] = n
	}
	for _, s := range d.Overdue {
		resp.Overdue = append(resp.Overdue, toSampleResponse(s))
	}
	return resp
}
