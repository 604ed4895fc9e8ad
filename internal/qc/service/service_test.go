package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limsd/internal/catalog"
	"limsd/internal/events"
	"limsd/internal/qc/models"
	"limsd/internal/qc/store"
	id "limsd/pkg/domain"
	dErrors "limsd/pkg/domain-errors"
	"limsd/pkg/requestcontext"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) byKind(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc     *Service
	emitter *recordingEmitter
	method  *catalog.TestMethod
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := catalog.NewMemoryStore()
	method := &catalog.TestMethod{
		ID:         id.NewTestMethodID(),
		Code:       "PH-25",
		Name:       "pH at 25C",
		ResultType: catalog.ResultQuantitative,
		Unit:       "pH",
	}
	cat.PutTestMethod(method)

	emitter := &recordingEmitter{}
	svc, err := New(store.NewMemoryStore(), cat, WithEmitter(emitter))
	require.NoError(t, err)
	return &fixture{svc: svc, emitter: emitter, method: method}
}

func (f *fixture) ctx() context.Context {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.ActorInfo{
		ID:   id.NewUserID(),
		Role: requestcontext.RoleAnalyst,
	})
	return requestcontext.WithTime(ctx, fixedNow)
}

func (f *fixture) chart(t *testing.T, opts ...func(*CreateChartInput)) *models.QcChart {
	t.Helper()
	in := CreateChartInput{
		Name:         "pH control",
		TestMethodID: f.method.ID,
		ChartType:    models.ChartIndividual,
	}
	for _, opt := range opts {
		opt(&in)
	}
	chart, err := f.svc.CreateChart(f.ctx(), in)
	require.NoError(t, err)
	return chart
}

// add submits one point and fails the test on error.
func (f *fixture) add(t *testing.T, chartID id.ChartID, value float64) *models.QcDataPoint {
	t.Helper()
	_, point, err := f.svc.AddDataPoint(f.ctx(), chartID, AddPointInput{MeasuredValue: value, LotID: "LOT-1"})
	require.NoError(t, err)
	return point
}

// seedBaseline establishes a stable series alternating one sample standard
// deviation around the target, so the running mean settles at the center.
func (f *fixture) seedBaseline(t *testing.T, chartID id.ChartID, center, spread float64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		v := center + spread
		if i%2 == 1 {
			v = center - spread
		}
		f.add(t, chartID, v)
	}
}

func lim(v float64) *float64 { return &v }

func TestCreateChartValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("blank name", func(t *testing.T) {
		_, err := f.svc.CreateChart(f.ctx(), CreateChartInput{
			Name: "  ", TestMethodID: f.method.ID, ChartType: models.ChartIndividual,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown chart type", func(t *testing.T) {
		_, err := f.svc.CreateChart(f.ctx(), CreateChartInput{
			Name: "c", TestMethodID: f.method.ID, ChartType: "PARETO",
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown test method", func(t *testing.T) {
		_, err := f.svc.CreateChart(f.ctx(), CreateChartInput{
			Name: "c", TestMethodID: id.NewTestMethodID(), ChartType: models.ChartIndividual,
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("inverted specification limits rejected at creation", func(t *testing.T) {
		_, err := f.svc.CreateChart(f.ctx(), CreateChartInput{
			Name: "c", TestMethodID: f.method.ID, ChartType: models.ChartIndividual,
			LSL: lim(9), USL: lim(2),
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("one sided limit accepted", func(t *testing.T) {
		chart := f.chart(t, func(in *CreateChartInput) {
			in.Name = "one-sided"
			in.USL = lim(9)
		})
		assert.True(t, chart.InControl)
		assert.Nil(t, chart.LSL)
	})
}

func TestChartLimitsSurviveIngestion(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t, func(in *CreateChartInput) {
		in.TargetValue = lim(7)
		in.UCL = lim(7.6)
		in.LCL = lim(6.4)
		in.USL = lim(8)
		in.LSL = lim(6)
	})

	f.seedBaseline(t, chart.ID, 7, 0.2, 40)

	got, err := f.svc.GetChart(f.ctx(), chart.ID)
	require.NoError(t, err)
	assert.Equal(t, 7.0, *got.TargetValue)
	assert.Equal(t, 7.6, *got.UCL)
	assert.Equal(t, 6.4, *got.LCL)
	assert.Equal(t, 8.0, *got.USL)
	assert.Equal(t, 6.0, *got.LSL)
	assert.EqualValues(t, 40, got.Count)
}

func TestStatsMatchSeries(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)

	values := []float64{7.1, 6.9, 7.0, 7.2, 6.8, 7.05, 6.95}
	for _, v := range values {
		f.add(t, chart.ID, v)
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)
	assert.InDelta(t, mean, stats.Mean, 1e-12)
	assert.InDelta(t, ss/float64(len(values)-1), stats.StdDev*stats.StdDev, 1e-12)
	assert.EqualValues(t, len(values), stats.TotalPoints)
	assert.True(t, stats.InControl)
	assert.Zero(t, stats.ViolationCount)
}

func TestNoRulesBeforeChartEstablished(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)

	// Nine points establish nothing; even a wild value passes silently.
	f.seedBaseline(t, chart.ID, 7, 0.1, 9)
	point := f.add(t, chart.ID, 42)
	assert.False(t, point.Violation)
	assert.Empty(t, f.emitter.byKind(events.KindQCViolation))
}

func TestRule13sFires(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)
	f.seedBaseline(t, chart.ID, 7, 0.1, 100)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)

	point := f.add(t, chart.ID, stats.Mean+3.5*stats.StdDev)
	assert.True(t, point.Violation)
	assert.Equal(t, models.Rule13s, point.ViolationRule)

	got, err := f.svc.GetChart(f.ctx(), chart.ID)
	require.NoError(t, err)
	assert.False(t, got.InControl)
	assert.EqualValues(t, 1, got.ViolationCount)

	fired := f.emitter.byKind(events.KindQCViolation)
	require.Len(t, fired, 1)
	assert.Equal(t, chart.ID, fired[0].ChartID)
	assert.Equal(t, string(models.Rule13s), fired[0].Rule)
}

func TestJustUnderThreeSigmaDoesNotFire(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)
	f.seedBaseline(t, chart.ID, 7, 0.1, 100)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)

	point := f.add(t, chart.ID, stats.Mean+2.99*stats.StdDev)
	assert.False(t, point.Violation)
}

func TestRule22sFiresOnSecondPoint(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)
	f.seedBaseline(t, chart.ID, 7, 0.1, 100)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)

	first := f.add(t, chart.ID, stats.Mean+2.5*stats.StdDev)
	assert.False(t, first.Violation, "single 2.5 sigma point is a warning, not a violation")

	second := f.add(t, chart.ID, stats.Mean+2.5*stats.StdDev)
	assert.True(t, second.Violation)
	assert.Equal(t, models.Rule22s, second.ViolationRule)
}

func TestRuleR4sFires(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)
	f.seedBaseline(t, chart.ID, 7, 0.1, 100)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)

	f.add(t, chart.ID, stats.Mean+2.4*stats.StdDev)
	point := f.add(t, chart.ID, stats.Mean-2.4*stats.StdDev)
	assert.True(t, point.Violation)
	assert.Equal(t, models.RuleR4s, point.ViolationRule)
}

func TestRule10xFiresOnTenthConsecutive(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)
	f.seedBaseline(t, chart.ID, 7, 0.1, 100)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)

	// Nine points barely above the established mean never fire.
	for i := 0; i < 9; i++ {
		point := f.add(t, chart.ID, stats.Mean+0.3*stats.StdDev)
		assert.False(t, point.Violation, "point %d", i+1)
	}
	tenth := f.add(t, chart.ID, stats.Mean+0.3*stats.StdDev)
	assert.True(t, tenth.Violation)
	assert.Equal(t, models.Rule10x, tenth.ViolationRule)
}

func TestInControlRecoversAfterCleanWindow(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)
	f.seedBaseline(t, chart.ID, 7, 0.1, 100)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)

	f.add(t, chart.ID, stats.Mean+3.5*stats.StdDev)

	// The violation stays in the trailing window until ten clean points
	// have passed it out.
	for i := 0; i < 9; i++ {
		v := stats.Mean + 0.5*stats.StdDev
		if i%2 == 1 {
			v = stats.Mean - 0.5*stats.StdDev
		}
		f.add(t, chart.ID, v)
		got, err := f.svc.GetChart(f.ctx(), chart.ID)
		require.NoError(t, err)
		assert.False(t, got.InControl, "violation still inside trailing window after %d clean points", i+1)
	}
	f.add(t, chart.ID, stats.Mean-0.5*stats.StdDev)
	got, err := f.svc.GetChart(f.ctx(), chart.ID)
	require.NoError(t, err)
	assert.True(t, got.InControl)
	assert.EqualValues(t, 1, got.ViolationCount)
}

func TestCpkReflectsSpecificationLimits(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t, func(in *CreateChartInput) {
		in.USL = lim(7.9)
		in.LSL = lim(6.1)
	})
	f.seedBaseline(t, chart.ID, 7, 0.1, 60)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)
	require.NotNil(t, stats.Cpk)
	want := math.Min(7.9-stats.Mean, stats.Mean-6.1) / (3 * stats.StdDev)
	assert.InDelta(t, want, *stats.Cpk, 1e-9)
}

func TestCpkNilWithoutBothLimits(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t, func(in *CreateChartInput) { in.USL = lim(7.9) })
	f.seedBaseline(t, chart.ID, 7, 0.1, 20)

	stats, err := f.svc.GetChartStats(f.ctx(), chart.ID)
	require.NoError(t, err)
	assert.Nil(t, stats.Cpk)
}

func TestPointsKeepSubmissionOrder(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)

	for i := 0; i < 5; i++ {
		f.add(t, chart.ID, 7+float64(i)*0.01)
	}

	points, err := f.svc.ListRecentPoints(f.ctx(), chart.ID, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.EqualValues(t, 5, points[0].Seq)
	assert.EqualValues(t, 4, points[1].Seq)
	assert.EqualValues(t, 3, points[2].Seq)
	assert.InDelta(t, 7.04, points[0].MeasuredValue, 1e-12)
}

func TestIndependentChartsDoNotInterfere(t *testing.T) {
	f := newFixture(t)
	a := f.chart(t, func(in *CreateChartInput) { in.Name = "chart A" })
	b := f.chart(t, func(in *CreateChartInput) { in.Name = "chart B" })

	f.seedBaseline(t, a.ID, 7, 0.1, 100)
	f.seedBaseline(t, b.ID, 50, 2, 100)

	statsA, err := f.svc.GetChartStats(f.ctx(), a.ID)
	require.NoError(t, err)
	f.add(t, a.ID, statsA.Mean+4*statsA.StdDev)

	gotA, err := f.svc.GetChart(f.ctx(), a.ID)
	require.NoError(t, err)
	gotB, err := f.svc.GetChart(f.ctx(), b.ID)
	require.NoError(t, err)
	assert.False(t, gotA.InControl)
	assert.True(t, gotB.InControl)
	assert.Zero(t, gotB.ViolationCount)
}

func TestConcurrentSubmissionsAllLand(t *testing.T) {
	f := newFixture(t)
	chart := f.chart(t)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.svc.AddDataPoint(f.ctx(), chart.ID, AddPointInput{MeasuredValue: 7})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "submission %d", i)
	}
	got, err := f.svc.GetChart(f.ctx(), chart.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, got.Count)

	points, err := f.svc.ListRecentPoints(f.ctx(), chart.ID, n)
	require.NoError(t, err)
	require.Len(t, points, n)
	seen := make(map[int64]bool, n)
	for _, p := range points {
		assert.False(t, seen[p.Seq], "duplicate sequence %d", p.Seq)
		seen[p.Seq] = true
	}
}

func TestAddDataPointUnknownChart(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.AddDataPoint(f.ctx(), id.NewChartID(), AddPointInput{MeasuredValue: 7})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
