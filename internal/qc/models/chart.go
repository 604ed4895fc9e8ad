// Package models holds the control-chart aggregate and the Westgard rule
// evaluation.
package models

import (
	"math"
	"time"

	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
)

// ChartType classifies the control chart.
type ChartType string

const (
	ChartXBarR      ChartType = "XBAR_R"
	ChartXBarS      ChartType = "XBAR_S"
	ChartIndividual ChartType = "INDIVIDUAL"
	ChartCUSUM      ChartType = "CUSUM"
)

func (t ChartType) Valid() bool {
	switch t {
	case ChartXBarR, ChartXBarS, ChartIndividual, ChartCUSUM:
		return true
	}
	return false
}

// QcChart is one control chart with its running statistics. The series
// itself lives in QcDataPoint rows; the chart carries the Welford state
// (count, mean, M2) so statistics update in O(1) per measurement without
// rescanning the series.
type QcChart struct {
	ID           id.ChartID
	Name         string
	TestMethodID id.TestMethodID
	ChartType    ChartType

	// Control limits (chart behavior) and specification limits (Cpk).
	TargetValue *float64
	UCL         *float64
	LCL         *float64
	USL         *float64
	LSL         *float64

	Count int64
	Mean  float64
	M2    float64

	InControl      bool
	ViolationCount int64

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateLimits rejects inverted limit pairs at creation time, so the
// per-point computations never see malformed limits.
func (c *QcChart) ValidateLimits() error {
	if c.LSL != nil && c.USL != nil && *c.LSL > *c.USL {
		return dErrors.Newf(dErrors.CodeValidation,
			"lower specification limit %v exceeds upper %v", *c.LSL, *c.USL)
	}
	if c.LCL != nil && c.UCL != nil && *c.LCL > *c.UCL {
		return dErrors.Newf(dErrors.CodeValidation,
			"lower control limit %v exceeds upper %v", *c.LCL, *c.UCL)
	}
	return nil
}

// Observe folds a new measurement into the running statistics (Welford's
// online update).
func (c *QcChart) Observe(value float64) {
	c.Count++
	delta := value - c.Mean
	c.Mean += delta / float64(c.Count)
	c.M2 += delta * (value - c.Mean)
}

// StdDev is the sample standard deviation of the observed series. Zero
// until two points exist.
func (c *QcChart) StdDev() float64 {
	if c.Count < 2 {
		return 0
	}
	return math.Sqrt(c.M2 / float64(c.Count-1))
}

// Cpk is the process capability index, defined only when both
// specification limits are set and the process shows spread.
func (c *QcChart) Cpk() *float64 {
	if c.USL == nil || c.LSL == nil {
		return nil
	}
	sd := c.StdDev()
	if sd == 0 {
		return nil
	}
	cpk := math.Min(*c.USL-c.Mean, c.Mean-*c.LSL) / (3 * sd)
	return &cpk
}

// QcDataPoint is one measurement on a chart. Points are append-only and
// keep their submission order.
type QcDataPoint struct {
	ID            id.DataPointID
	ChartID       id.ChartID
	Seq           int64
	MeasuredValue float64
	LotID         string
	Notes         string

	Violation     bool
	ViolationRule Rule

	RecordedBy id.UserID
	RecordedAt time.Time
}
