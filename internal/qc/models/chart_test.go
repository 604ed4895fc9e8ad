package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "limsd/pkg/domain-errors"
)

func lim(v float64) *float64 { return &v }

func TestValidateLimits(t *testing.T) {
	chart := &QcChart{LSL: lim(10), USL: lim(5)}
	err := chart.ValidateLimits()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	chart = &QcChart{LCL: lim(8), UCL: lim(2)}
	err = chart.ValidateLimits()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	chart = &QcChart{LSL: lim(1), USL: lim(9), LCL: lim(2), UCL: lim(8)}
	assert.NoError(t, chart.ValidateLimits())

	chart = &QcChart{USL: lim(9)}
	assert.NoError(t, chart.ValidateLimits(), "one-sided limits are fine")
}

// The Welford state must agree with the naive two-pass computation.
func TestObserveMatchesNaiveStats(t *testing.T) {
	values := []float64{4.1, 3.9, 4.0, 4.3, 3.8, 4.2, 4.05, 3.95, 4.15, 3.85}

	chart := &QcChart{}
	for _, v := range values {
		chart.Observe(v)
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(sq / float64(len(values)-1))

	assert.Equal(t, int64(len(values)), chart.Count)
	assert.InDelta(t, mean, chart.Mean, 1e-12)
	assert.InDelta(t, sd, chart.StdDev(), 1e-12)
}

func TestStdDevDegenerate(t *testing.T) {
	chart := &QcChart{}
	assert.Zero(t, chart.StdDev())
	chart.Observe(5)
	assert.Zero(t, chart.StdDev(), "one point has no spread")
}

func TestCpk(t *testing.T) {
	chart := &QcChart{USL: lim(10), LSL: lim(2)}
	for _, v := range []float64{5.8, 6.2, 6.0, 5.9, 6.1} {
		chart.Observe(v)
	}

	cpk := chart.Cpk()
	require.NotNil(t, cpk)
	// Mean 6, sd of the series; the nearer limit is USL at distance 4.
	want := math.Min(10-chart.Mean, chart.Mean-2) / (3 * chart.StdDev())
	assert.InDelta(t, want, *cpk, 1e-12)

	oneSided := &QcChart{USL: lim(10)}
	oneSided.Observe(5)
	oneSided.Observe(6)
	assert.Nil(t, oneSided.Cpk(), "Cpk needs both specification limits")

	flat := &QcChart{USL: lim(10), LSL: lim(2)}
	flat.Observe(6)
	flat.Observe(6)
	assert.Nil(t, flat.Cpk(), "Cpk undefined for a zero-spread series")
}
