package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"limsd/internal/sample/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// PostgresStore persists the sample aggregate across the jobs, samples,
// sample_tests and test_results tables. It is pure I/O; guards and status
// derivation live in the models and the service.
//
// Concurrency control is optimistic: every Update runs against
// `WHERE version = $n` and reports sentinel.ErrConflict when no row matched.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_number, client_id, priority, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID.String(), job.JobNumber, job.ClientID.String(), string(job.Priority),
		job.Notes, job.CreatedBy.String(), job.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID id.JobID) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_number, client_id, priority, notes, created_by, created_at
		FROM jobs WHERE id = $1
	`, jobID.String())

	var job models.Job
	var jid, clientID, createdBy string
	err := row.Scan(&jid, &job.JobNumber, &clientID, &job.Priority, &job.Notes, &createdBy, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.ID, err = id.ParseJobID(jid); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.ClientID, err = id.ParseClientID(clientID); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.CreatedBy, err = id.ParseUserID(createdBy); err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

func (s *PostgresStore) CreateSample(ctx context.Context, sample *models.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create sample: %w", err)
	}
	defer tx.Rollback()

	sample.Version = 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO samples (id, sample_number, job_id, product_id, description,
			sampling_point, sampled_by, sampled_at, barcode, status,
			condition_on_receipt, received_at, received_by, rejection_reason,
			due_date, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, sample.ID.String(), sample.SampleNumber, sample.JobID.String(), sample.ProductID.String(),
		sample.Description, sample.SamplingPoint, sample.SampledBy, sample.SampledAt,
		sample.Barcode, string(sample.Status), string(sample.ConditionOnReceipt),
		sample.ReceivedAt, nullableID(sample.ReceivedBy.IsNil(), sample.ReceivedBy.String()),
		sample.RejectionReason, sample.DueDate, sample.Version, sample.CreatedAt, sample.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	for _, test := range sample.Tests {
		if err := upsertTest(ctx, tx, sample.ID, test); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create sample: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sampleID id.SampleID) (*models.Sample, error) {
	row := s.db.QueryRowContext(ctx, sampleSelect+` WHERE id = $1`, sampleID.String())
	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sample: %w", err)
	}
	if err := s.loadTests(ctx, sample); err != nil {
		return nil, err
	}
	return sample, nil
}

func (s *PostgresStore) FindByBarcode(ctx context.Context, barcode string) (*models.Sample, error) {
	row := s.db.QueryRowContext(ctx, sampleSelect+` WHERE barcode = $1`, barcode)
	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find sample by barcode: %w", err)
	}
	if err := s.loadTests(ctx, sample); err != nil {
		return nil, err
	}
	return sample, nil
}

func (s *PostgresStore) FindByTest(ctx context.Context, testID id.SampleTestID) (*models.Sample, error) {
	return s.findOwner(ctx, `SELECT sample_id FROM sample_tests WHERE id = $1`, testID.String())
}

func (s *PostgresStore) FindByResult(ctx context.Context, resultID id.TestResultID) (*models.Sample, error) {
	return s.findOwner(ctx, `
		SELECT t.sample_id FROM test_results r
		JOIN sample_tests t ON t.id = r.sample_test_id
		WHERE r.id = $1`, resultID.String())
}

func (s *PostgresStore) findOwner(ctx context.Context, query, arg string) (*models.Sample, error) {
	var sid string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&sid)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find owning sample: %w", err)
	}
	sampleID, err := id.ParseSampleID(sid)
	if err != nil {
		return nil, fmt.Errorf("find owning sample: %w", err)
	}
	return s.Get(ctx, sampleID)
}

func (s *PostgresStore) Update(ctx context.Context, sample *models.Sample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update sample: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE samples SET
			status = $3, condition_on_receipt = $4, received_at = $5,
			received_by = $6, rejection_reason = $7, due_date = $8,
			updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $2
	`, sample.ID.String(), sample.Version, string(sample.Status),
		string(sample.ConditionOnReceipt), sample.ReceivedAt,
		nullableID(sample.ReceivedBy.IsNil(), sample.ReceivedBy.String()),
		sample.RejectionReason, sample.DueDate, sample.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update sample: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sample: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}

	for _, test := range sample.Tests {
		if err := upsertTest(ctx, tx, sample.ID, test); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update sample: %w", err)
	}
	sample.Version++
	return nil
}

func (s *PostgresStore) ListByJob(ctx context.Context, jobID id.JobID) ([]*models.Sample, error) {
	return s.list(ctx, sampleSelect+` WHERE job_id = $1 ORDER BY sample_number`, jobID.String())
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.SampleStatus, limit int) ([]*models.Sample, error) {
	if limit <= 0 {
		return s.list(ctx, sampleSelect+` WHERE status = $1 ORDER BY created_at`, string(status))
	}
	return s.list(ctx, sampleSelect+` WHERE status = $1 ORDER BY created_at LIMIT $2`, string(status), limit)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.SampleStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM samples GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count samples by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SampleStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count samples by status: %w", err)
		}
		counts[models.SampleStatus(status)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time) ([]*models.Sample, error) {
	return s.list(ctx, sampleSelect+`
		WHERE due_date < $1 AND status NOT IN ('AUTHORIZED', 'REJECTED')
		ORDER BY due_date`, now)
}

const sampleSelect = `
	SELECT id, sample_number, job_id, product_id, description,
		sampling_point, sampled_by, sampled_at, barcode, status,
		condition_on_receipt, received_at, received_by, rejection_reason,
		due_date, version, created_at, updated_at
	FROM samples`

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Sample, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []*models.Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("list samples: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	for _, sample := range out {
		if err := s.loadTests(ctx, sample); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (*models.Sample, error) {
	var sample models.Sample
	var sid, jobID, productID, status, condition string
	var receivedBy sql.NullString
	err := row.Scan(&sid, &sample.SampleNumber, &jobID, &productID, &sample.Description,
		&sample.SamplingPoint, &sample.SampledBy, &sample.SampledAt, &sample.Barcode,
		&status, &condition, &sample.ReceivedAt, &receivedBy, &sample.RejectionReason,
		&sample.DueDate, &sample.Version, &sample.CreatedAt, &sample.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sample.Status = models.SampleStatus(status)
	sample.ConditionOnReceipt = models.Condition(condition)
	if sample.ID, err = id.ParseSampleID(sid); err != nil {
		return nil, err
	}
	if sample.JobID, err = id.ParseJobID(jobID); err != nil {
		return nil, err
	}
	if sample.ProductID, err = id.ParseProductID(productID); err != nil {
		return nil, err
	}
	if receivedBy.Valid {
		if sample.ReceivedBy, err = id.ParseUserID(receivedBy.String); err != nil {
			return nil, err
		}
	}
	return &sample, nil
}

func (s *PostgresStore) loadTests(ctx context.Context, sample *models.Sample) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.test_method_id, t.method_name, t.method_code, t.sort_order,
			t.retest, t.status,
			r.id, r.numeric_value, r.text_value, r.out_of_range, r.flag_color,
			r.entered_by, r.entered_at, r.instrument_id, r.reagent_lot,
			r.reviewed, r.reviewed_by, r.reviewed_at, r.review_comment
		FROM sample_tests t
		LEFT JOIN test_results r ON r.sample_test_id = t.id
		WHERE t.sample_id = $1
		ORDER BY t.sort_order
	`, sample.ID.String())
	if err != nil {
		return fmt.Errorf("load sample tests: %w", err)
	}
	defer rows.Close()

	sample.Tests = nil
	for rows.Next() {
		test, err := scanTest(rows)
		if err != nil {
			return fmt.Errorf("load sample tests: %w", err)
		}
		sample.Tests = append(sample.Tests, test)
	}
	return rows.Err()
}

func scanTest(row rowScanner) (*models.SampleTest, error) {
	var test models.SampleTest
	var tid, methodID, status string
	var resultID, textValue, flagColor, enteredBy, instrumentID, reagentLot, reviewedBy, reviewComment sql.NullString
	var numericValue sql.NullFloat64
	var outOfRange, reviewed sql.NullBool
	var enteredAt, reviewedAt sql.NullTime

	err := row.Scan(&tid, &methodID, &test.MethodName, &test.MethodCode, &test.SortOrder,
		&test.Retest, &status,
		&resultID, &numericValue, &textValue, &outOfRange, &flagColor,
		&enteredBy, &enteredAt, &instrumentID, &reagentLot,
		&reviewed, &reviewedBy, &reviewedAt, &reviewComment)
	if err != nil {
		return nil, err
	}
	test.Status = models.TestStatus(status)
	if test.ID, err = id.ParseSampleTestID(tid); err != nil {
		return nil, err
	}
	if test.TestMethodID, err = id.ParseTestMethodID(methodID); err != nil {
		return nil, err
	}
	if !resultID.Valid {
		return &test, nil
	}

	result := &models.TestResult{
		TextValue:     textValue.String,
		OutOfRange:    outOfRange.Bool,
		FlagColor:     models.FlagColor(flagColor.String),
		EnteredAt:     enteredAt.Time,
		ReagentLot:    reagentLot.String,
		Reviewed:      reviewed.Bool,
		ReviewComment: reviewComment.String,
	}
	if result.ID, err = id.ParseTestResultID(resultID.String); err != nil {
		return nil, err
	}
	if numericValue.Valid {
		v := numericValue.Float64
		result.NumericValue = &v
	}
	if enteredBy.Valid {
		if result.EnteredBy, err = id.ParseUserID(enteredBy.String); err != nil {
			return nil, err
		}
	}
	if instrumentID.Valid && instrumentID.String != "" {
		if result.InstrumentID, err = id.ParseInstrumentID(instrumentID.String); err != nil {
			return nil, err
		}
	}
	if reviewedBy.Valid && reviewedBy.String != "" {
		if result.ReviewedBy, err = id.ParseUserID(reviewedBy.String); err != nil {
			return nil, err
		}
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		result.ReviewedAt = &at
	}
	test.Result = result
	return &test, nil
}

func upsertTest(ctx context.Context, tx *sql.Tx, sampleID id.SampleID, test *models.SampleTest) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sample_tests (id, sample_id, test_method_id, method_name, method_code, sort_order, retest, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			retest = EXCLUDED.retest,
			status = EXCLUDED.status
	`, test.ID.String(), sampleID.String(), test.TestMethodID.String(),
		test.MethodName, test.MethodCode, test.SortOrder, test.Retest, string(test.Status))
	if err != nil {
		return fmt.Errorf("upsert sample test: %w", err)
	}
	if test.Result == nil {
		return nil
	}

	r := test.Result
	_, err = tx.ExecContext(ctx, `
		INSERT INTO test_results (id, sample_test_id, numeric_value, text_value,
			out_of_range, flag_color, entered_by, entered_at, instrument_id,
			reagent_lot, reviewed, reviewed_by, reviewed_at, review_comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			numeric_value = EXCLUDED.numeric_value,
			text_value = EXCLUDED.text_value,
			out_of_range = EXCLUDED.out_of_range,
			flag_color = EXCLUDED.flag_color,
			entered_by = EXCLUDED.entered_by,
			entered_at = EXCLUDED.entered_at,
			instrument_id = EXCLUDED.instrument_id,
			reagent_lot = EXCLUDED.reagent_lot,
			reviewed = EXCLUDED.reviewed,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at,
			review_comment = EXCLUDED.review_comment
	`, r.ID.String(), test.ID.String(), r.NumericValue, r.TextValue,
		r.OutOfRange, string(r.FlagColor), r.EnteredBy.String(), r.EnteredAt,
		nullableID(r.InstrumentID.IsNil(), r.InstrumentID.String()),
		r.ReagentLot, r.Reviewed, nullableID(r.ReviewedBy.IsNil(), r.ReviewedBy.String()),
		r.ReviewedAt, r.ReviewComment)
	if err != nil {
		return fmt.Errorf("upsert test result: %w", err)
	}
	return nil
}

func nullableID(isNil bool, s string) any {
	if isNil {
		return nil
	}
	return s
}
