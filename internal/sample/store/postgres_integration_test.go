//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
	"limsd/pkg/testutil/containers"
)

func seedJob(t *testing.T, pg *containers.PostgresContainer, store *PostgresStore) *models.Job {
	t.Helper()
	ctx := context.Background()

	clientID := id.NewClientID()
	_, err := pg.DB.ExecContext(ctx,
		`INSERT INTO clients (id, name) VALUES ($1, $2)`, clientID.String(), "Acme Beverages")
	require.NoError(t, err)

	job := &models.Job{
		ID:        id.NewJobID(),
		JobNumber: "J-2026-0001",
		ClientID:  clientID,
		Priority:  models.PriorityNormal,
		CreatedBy: id.NewUserID(),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.CreateJob(ctx, job))
	return job
}

func seedSample(t *testing.T, store *PostgresStore, job *models.Job) *models.Sample {
	t.Helper()
	sample := &models.Sample{
		ID:                 id.NewSampleID(),
		SampleNumber:       job.JobNumber + "-01",
		JobID:              job.ID,
		ProductID:          id.NewProductID(),
		Description:        "bottle",
		Barcode:            "LIMS-" + job.JobNumber + "-01",
		Status:             models.SampleRegistered,
		ConditionOnReceipt: models.ConditionAcceptable,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.CreatedAt,
		Tests: []*models.SampleTest{{
			ID:           id.NewSampleTestID(),
			TestMethodID: id.NewTestMethodID(),
			MethodName:   "pH at 25C",
			MethodCode:   "PH-25",
			SortOrder:    1,
			Status:       models.TestPending,
		}},
	}
	require.NoError(t, store.CreateSample(context.Background(), sample))
	return sample
}

func TestPostgresSampleRoundTrip(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()

	job := seedJob(t, pg, store)
	sample := seedSample(t, store, job)

	got, err := store.Get(ctx, sample.ID)
	require.NoError(t, err)
	assert.Equal(t, sample.SampleNumber, got.SampleNumber)
	assert.Equal(t, models.SampleRegistered, got.Status)
	require.Len(t, got.Tests, 1)
	assert.Equal(t, "PH-25", got.Tests[0].MethodCode)
	assert.EqualValues(t, 1, got.Version)

	byBarcode, err := store.FindByBarcode(ctx, sample.Barcode)
	require.NoError(t, err)
	assert.Equal(t, sample.ID, byBarcode.ID)

	owner, err := store.FindByTest(ctx, sample.Tests[0].ID)
	require.NoError(t, err)
	assert.Equal(t, sample.ID, owner.ID)

	_, err = store.Get(ctx, id.NewSampleID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresSampleVersionConflict(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()

	job := seedJob(t, pg, store)
	sample := seedSample(t, store, job)

	first, err := store.Get(ctx, sample.ID)
	require.NoError(t, err)
	second, err := store.Get(ctx, sample.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	first.Status = models.SampleReceived
	first.ReceivedAt = &now
	first.UpdatedAt = now
	require.NoError(t, store.Update(ctx, first))
	assert.EqualValues(t, 2, first.Version)

	second.Status = models.SampleRejected
	second.UpdatedAt = now
	assert.ErrorIs(t, store.Update(ctx, second), sentinel.ErrConflict)

	got, err := store.Get(ctx, sample.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SampleReceived, got.Status, "losing write must not land")
}

func TestPostgresResultPersistence(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()

	job := seedJob(t, pg, store)
	sample := seedSample(t, store, job)

	got, err := store.Get(ctx, sample.ID)
	require.NoError(t, err)

	value := 4.2
	now := time.Now().UTC().Truncate(time.Millisecond)
	got.Tests[0].Status = models.TestCompleted
	got.Tests[0].Result = &models.TestResult{
		ID:           id.NewTestResultID(),
		NumericValue: &value,
		FlagColor:    models.FlagGreen,
		EnteredBy:    id.NewUserID(),
		EnteredAt:    now,
		ReagentLot:   "LOT-7",
	}
	require.NoError(t, store.Update(ctx, got))

	reloaded, err := store.Get(ctx, sample.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.Tests[0].Result)
	assert.Equal(t, models.TestCompleted, reloaded.Tests[0].Status)
	require.NotNil(t, reloaded.Tests[0].Result.NumericValue)
	assert.Equal(t, 4.2, *reloaded.Tests[0].Result.NumericValue)
	assert.Equal(t, "LOT-7", reloaded.Tests[0].Result.ReagentLot)

	owner, err := store.FindByResult(ctx, reloaded.Tests[0].Result.ID)
	require.NoError(t, err)
	assert.Equal(t, sample.ID, owner.ID)
}

func TestPostgresDuplicateJobNumber(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgres(pg.DB)
	ctx := context.Background()

	job := seedJob(t, pg, store)
	dup := &models.Job{
		ID:        id.NewJobID(),
		JobNumber: job.JobNumber,
		ClientID:  job.ClientID,
		Priority:  models.PriorityNormal,
		CreatedBy: id.NewUserID(),
		CreatedAt: time.Now().UTC(),
	}
	assert.ErrorIs(t, store.CreateJob(ctx, dup), sentinel.ErrDuplicate)
}
