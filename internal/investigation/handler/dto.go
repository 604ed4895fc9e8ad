package handler

import (
	"time"

	"limsd/internal/investigation/models"
	"limsd/internal/investigation/service"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
)

type openRequest struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SampleID    string `json:"sample_id,omitempty"`
	ChartID     string `json:"chart_id,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

func (r openRequest) toInput() (service.OpenInput, error) {
	in := service.OpenInput{
		Type:        models.Type(r.Type),
		Severity:    models.Severity(r.Severity),
		Title:       r.Title,
		Description: r.Description,
	}
	var err error
	if r.SampleID != "" {
		if in.SampleID, err = id.ParseSampleID(r.SampleID); err != nil {
			return service.OpenInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid sample id")
		}
	}
	if r.ChartID != "" {
		if in.ChartID, err = id.ParseChartID(r.ChartID); err != nil {
			return service.OpenInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid chart id")
		}
	}
	if r.AssignedTo != "" {
		if in.AssignedTo, err = id.ParseUserID(r.AssignedTo); err != nil {
			return service.OpenInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
		}
	}
	return in, nil
}

type updateRequest struct {
	Description      *string `json:"description,omitempty"`
	RootCause        *string `json:"root_cause,omitempty"`
	CorrectiveAction *string `json:"corrective_action,omitempty"`
	PreventiveAction *string `json:"preventive_action,omitempty"`
	AssignedTo       *string `json:"assigned_to,omitempty"`
}

func (r updateRequest) toInput() (service.UpdateInput, error) {
	in := service.UpdateInput{
		Description:      r.Description,
		RootCause:        r.RootCause,
		CorrectiveAction: r.CorrectiveAction,
		PreventiveAction: r.PreventiveAction,
	}
	if r.AssignedTo != nil {
		userID, err := id.ParseUserID(*r.AssignedTo)
		if err != nil {
			return service.UpdateInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid user id")
		}
		in.AssignedTo = &userID
	}
	return in, nil
}

type advanceRequest struct {
	Status string `json:"status"`
}

type investigationResponse struct {
	ID               string     `json:"id"`
	Number           string     `json:"number"`
	Type             string     `json:"type"`
	Severity         string     `json:"severity"`
	Status           string     `json:"status"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Source           string     `json:"source"`
	SampleID         string     `json:"sample_id,omitempty"`
	ChartID          string     `json:"chart_id,omitempty"`
	RootCause        string     `json:"root_cause,omitempty"`
	CorrectiveAction string     `json:"corrective_action,omitempty"`
	PreventiveAction string     `json:"preventive_action,omitempty"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	DueDate          time.Time  `json:"due_date"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ClosedBy         string     `json:"closed_by,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

func toResponse(inv *models.Investigation) investigationResponse {
	resp := investigationResponse{
		ID:               inv.ID.String(),
		Number:           inv.Number,
		Type:             string(inv.Type),
		Severity:         string(inv.Severity),
		Status:           string(inv.Status),
		Title:            inv.Title,
		Description:      inv.Description,
		Source:           string(inv.Source),
		RootCause:        inv.RootCause,
		CorrectiveAction: inv.CorrectiveAction,
		PreventiveAction: inv.PreventiveAction,
		DueDate:          inv.DueDate,
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
		ClosedAt:         inv.ClosedAt,
	}
	if !inv.SampleID.IsNil() {
		resp.SampleID = inv.SampleID.String()
	}
	if !inv.ChartID.IsNil() {
		resp.ChartID = inv.ChartID.String()
	}
	if !inv.AssignedTo.IsNil() {
		resp.AssignedTo = inv.AssignedTo.String()
	}
	if !inv.ClosedBy.IsNil() {
		resp.ClosedBy = inv.ClosedBy.String()
	}
	return resp
}
