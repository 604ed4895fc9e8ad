package handler

import (
	"time"

	"limsd/internal/qc/models"
	"limsd/internal/qc/service"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
)

type createChartRequest struct {
	Name         string   `json:"name"`
	TestMethodID string   `json:"test_method_id"`
	ChartType    string   `json:"chart_type"`
	TargetValue  *float64 `json:"target_value,omitempty"`
	UCL          *float64 `json:"ucl,omitempty"`
	LCL          *float64 `json:"lcl,omitempty"`
	USL          *float64 `json:"usl,omitempty"`
	LSL          *float64 `json:"lsl,omitempty"`
}

func (r createChartRequest) toInput() (service.CreateChartInput, error) {
	methodID, err := id.ParseTestMethodID(r.TestMethodID)
	if err != nil {
		return service.CreateChartInput{}, dErrors.New(dErrors.CodeBadRequest, "invalid test method id")
	}
	return service.CreateChartInput{
		Name:         r.Name,
		TestMethodID: methodID,
		ChartType:    models.ChartType(r.ChartType),
		TargetValue:  r.TargetValue,
		UCL:          r.UCL,
		LCL:          r.LCL,
		USL:          r.USL,
		LSL:          r.LSL,
	}, nil
}

type addPointRequest struct {
	MeasuredValue *float64 `json:"measured_value"`
	LotID         string   `json:"lot_id,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type chartResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TestMethodID   string    `json:"test_method_id"`
	ChartType      string    `json:"chart_type"`
	TargetValue    *float64  `json:"target_value,omitempty"`
	UCL            *float64  `json:"ucl,omitempty"`
	LCL            *float64  `json:"lcl,omitempty"`
	USL            *float64  `json:"usl,omitempty"`
	LSL            *float64  `json:"lsl,omitempty"`
	PointCount     int64     `json:"point_count"`
	InControl      bool      `json:"in_control"`
	ViolationCount int64     `json:"violation_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toChartResponse(c *models.QcChart) chartResponse {
	return chartResponse{
		ID:             c.ID.String(),
		Name:           c.Name,
		TestMethodID:   c.TestMethodID.String(),
		ChartType:      string(c.ChartType),
		TargetValue:    c.TargetValue,
		UCL:            c.UCL,
		LCL:            c.LCL,
		USL:            c.USL,
		LSL:            c.LSL,
		PointCount:     c.Count,
		InControl:      c.InControl,
		ViolationCount: c.ViolationCount,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

type pointResponse struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	MeasuredValue float64   `json:"measured_value"`
	LotID         string    `json:"lot_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Violation     bool      `json:"violation"`
	ViolationRule string    `json:"violation_rule,omitempty"`
	RecordedBy    string    `json:"recorded_by,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

func toPointResponse(p *models.QcDataPoint) pointResponse {
	resp := pointResponse{
		ID:            p.ID.String(),
		Seq:           p.Seq,
		MeasuredValue: p.MeasuredValue,
		LotID:         p.LotID,
		Notes:         p.Notes,
		Violation:     p.Violation,
		ViolationRule: string(p.ViolationRule),
		RecordedAt:    p.RecordedAt,
	}
	if !p.RecordedBy.IsNil() {
		resp.RecordedBy = p.RecordedBy.String()
	}
	return resp
}

type addPointResponse struct {
	Chart chartResponse `json:"chart"`
	Point pointResponse `json:"point"`
}

type statsResponse struct {
	Mean           float64  `json:"mean"`
	StdDev         float64  `json:"std_dev"`
	Cpk            *float64 `json:"cpk,omitempty"`
	ViolationCount int64    `json:"violation_count"`
	InControl      bool     `json:"in_control"`
	TotalPoints    int64    `json:"total_points"`
}

func toStatsResponse(s *service.ChartStats) statsResponse {
	return statsResponse{
		Mean:           s.Mean,
		StdDev:         s.StdDev,
		Cpk:            s.Cpk,
		ViolationCount: s.ViolationCount,
		InControl:      s.InControl,
		TotalPoints:    s.TotalPoints,
	}
}
