package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limsd/internal/events"
	"limsd/internal/investigation/models"
	"limsd/internal/investigation/store"
	"limsd/internal/platform/config"
	"limsd/internal/platform/sequence"
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

func (r *recordingEmitter) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event{}, r.events...)
}

type fixture struct {
	svc     *Service
	emitter *recordingEmitter
	actor   requestcontext.ActorInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emitter := &recordingEmitter{}
	policy := config.InvestigationPolicy{
		OOSMajorFactor: 2.0,
		MajorRules:     []string{"1_3s", "R_4s"},
		DueDays:        14,
	}
	svc, err := New(store.NewMemoryStore(), sequence.NewMemory(), policy, WithEmitter(emitter))
	require.NoError(t, err)
	return &fixture{
		svc:     svc,
		emitter: emitter,
		actor:   requestcontext.ActorInfo{ID: id.NewUserID(), Role: requestcontext.RoleInvestigator},
	}
}

func (f *fixture) ctx() context.Context {
	ctx := requestcontext.WithActor(context.Background(), f.actor)
	return requestcontext.WithTime(ctx, fixedNow)
}

func (f *fixture) openOne(t *testing.T) *models.Investigation {
	t.Helper()
	inv, err := f.svc.Open(f.ctx(), OpenInput{
		Type:     models.TypeNCR,
		Severity: models.SeverityMinor,
		Title:    "Contaminated reagent lot",
	})
	require.NoError(t, err)
	return inv
}

func TestOpenAssignsNumberAndDueDate(t *testing.T) {
	f := newFixture(t)

	first := f.openOne(t)
	assert.Equal(t, "NCR-2026-0001", first.Number)
	assert.Equal(t, models.StatusOpen, first.Status)
	assert.Equal(t, fixedNow.AddDate(0, 0, 14), first.DueDate)
	assert.Equal(t, f.actor.ID, first.CreatedBy)
	assert.Equal(t, models.SourceManual, first.Source)

	second := f.openOne(t)
	assert.Equal(t, "NCR-2026-0002", second.Number)

	fired := f.emitter.all()
	require.Len(t, fired, 2)
	assert.Equal(t, events.KindInvestigationOpened, fired[0].Kind)
	assert.Equal(t, first.Number, fired[0].NCRNumber)
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		in   OpenInput
	}{
		{"unknown type", OpenInput{Type: "TICKET", Severity: models.SeverityMinor, Title: "x"}},
		{"unknown severity", OpenInput{Type: models.TypeNCR, Severity: "BLOCKER", Title: "x"}},
		{"blank title", OpenInput{Type: models.TypeNCR, Severity: models.SeverityMinor, Title: "  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Open(f.ctx(), tc.in)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestOpenAcceptsCriticalSeverity(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Open(f.ctx(), OpenInput{
		Type:     models.TypeNCR,
		Severity: models.SeverityCritical,
		Title:    "Product recall candidate",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, inv.Severity)
}

func TestWorkflowAdvancesForwardOnly(t *testing.T) {
	f := newFixture(t)
	inv := f.openOne(t)

	_, err := f.svc.Advance(f.ctx(), inv.ID, models.StatusClosed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict), "cannot skip to closed")

	inv2, err := f.svc.Advance(f.ctx(), inv.ID, models.StatusInvestigating)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInvestigating, inv2.Status)

	_, err = f.svc.Advance(f.ctx(), inv.ID, models.StatusOpen)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict), "no moving backwards")
}

func TestCloseRequiresRootCauseAndAction(t *testing.T) {
	f := newFixture(t)
	inv := f.openOne(t)

	_, err := f.svc.Advance(f.ctx(), inv.ID, models.StatusInvestigating)
	require.NoError(t, err)
	_, err = f.svc.Advance(f.ctx(), inv.ID, models.StatusCorrectiveAction)
	require.NoError(t, err)

	_, err = f.svc.Advance(f.ctx(), inv.ID, models.StatusClosed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "undocumented close rejected")

	rootCause := "supplier changed solvent grade"
	action := "quarantine lot, switch supplier"
	_, err = f.svc.Update(f.ctx(), inv.ID, UpdateInput{RootCause: &rootCause, CorrectiveAction: &action})
	require.NoError(t, err)

	closed, err := f.svc.Advance(f.ctx(), inv.ID, models.StatusClosed)
	require.NoError(t, err)
	assert.True(t, closed.Terminal())
	assert.Equal(t, f.actor.ID, closed.ClosedBy)
	require.NotNil(t, closed.ClosedAt)

	_, err = f.svc.Update(f.ctx(), inv.ID, UpdateInput{RootCause: &rootCause})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStateConflict), "closed records are immutable")
}

func TestDeliverOOSSeverityPolicy(t *testing.T) {
	f := newFixture(t)
	analyst := id.NewUserID()
	sampleID := id.NewSampleID()

	oos := func(magnitude float64) events.Event {
		return events.Event{
			Kind:           events.KindOOSDetected,
			OccurredAt:     fixedNow,
			ActorID:        analyst,
			SampleID:       sampleID,
			SampleNumber:   "J-2026-0001-01",
			TestMethodName: "pH at 25C",
			Magnitude:      magnitude,
			Message:        "measured 9.4, specification 3.5-4.5",
		}
	}

	require.NoError(t, f.svc.Deliver(f.ctx(), oos(0.4)))
	require.NoError(t, f.svc.Deliver(f.ctx(), oos(2.5)))

	open, err := f.svc.List(f.ctx(), "", 0)
	require.NoError(t, err)
	require.Len(t, open, 2)

	bySeverity := map[models.Severity]*models.Investigation{}
	for _, inv := range open {
		bySeverity[inv.Severity] = inv
	}
	minor := bySeverity[models.SeverityMinor]
	require.NotNil(t, minor)
	assert.Equal(t, models.SourceOOS, minor.Source)
	assert.Equal(t, models.TypeNCR, minor.Type)
	assert.Equal(t, sampleID, minor.SampleID)
	assert.Equal(t, analyst, minor.CreatedBy)
	assert.Contains(t, minor.Title, "J-2026-0001-01")

	major := bySeverity[models.SeverityMajor]
	require.NotNil(t, major)
	assert.Equal(t, fixedNow.AddDate(0, 0, 14), major.DueDate)
}

func TestDeliverQCViolationSeverityPolicy(t *testing.T) {
	f := newFixture(t)
	chartID := id.NewChartID()

	violation := func(rule string) events.Event {
		return events.Event{
			Kind:       events.KindQCViolation,
			OccurredAt: fixedNow,
			ChartID:    chartID,
			ChartName:  "pH control",
			Rule:       rule,
		}
	}

	require.NoError(t, f.svc.Deliver(f.ctx(), violation("1_3s")))
	require.NoError(t, f.svc.Deliver(f.ctx(), violation("10x")))

	open, err := f.svc.List(f.ctx(), models.StatusOpen, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, inv := range open {
		assert.Equal(t, models.TypeNCR, inv.Type)
		assert.Equal(t, models.SourceQCViolation, inv.Source)
		assert.Equal(t, chartID, inv.ChartID)
		switch {
		case inv.Severity == models.SeverityMajor:
			assert.Contains(t, inv.Title, "1_3s")
		default:
			assert.Equal(t, models.SeverityMinor, inv.Severity)
			assert.Contains(t, inv.Title, "10x")
		}
	}
}

func TestDeliverIgnoresUnrelatedEvents(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.Deliver(f.ctx(), events.Event{Kind: events.KindSampleReceived}))

	n, err := f.svc.store.CountOpen(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	a := f.openOne(t)
	f.openOne(t)

	_, err := f.svc.Advance(f.ctx(), a.ID, models.StatusInvestigating)
	require.NoError(t, err)

	open, err := f.svc.List(f.ctx(), models.StatusOpen, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	_, err = f.svc.List(f.ctx(), "PARKED", 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestGetUnknownInvestigation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(f.ctx(), id.NewInvestigationID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
