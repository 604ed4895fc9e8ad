package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"limsd/internal/qc/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// OpenPostgres opens the QC database through the pgx stdlib driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open qc database: %w", err)
	}
	return db, nil
}

// PostgresStore persists charts and their point series. Statistics are
// stored with the chart so reads never scan the series.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateChart(ctx context.Context, chart *models.QcChart) error {
	chart.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qc_charts (id, name, test_method_id, chart_type,
			target_value, ucl, lcl, usl, lsl,
			point_count, mean, m2, in_control, violation_count,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, chart.ID.String(), chart.Name, chart.TestMethodID.String(), string(chart.ChartType),
		chart.TargetValue, chart.UCL, chart.LCL, chart.USL, chart.LSL,
		chart.Count, chart.Mean, chart.M2, chart.InControl, chart.ViolationCount,
		chart.Version, chart.CreatedAt, chart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert qc chart: %w", err)
	}
	return nil
}

const chartSelect = `
	SELECT id, name, test_method_id, chart_type,
		target_value, ucl, lcl, usl, lsl,
		point_count, mean, m2, in_control, violation_count,
		version, created_at, updated_at
	FROM qc_charts`

func (s *PostgresStore) GetChart(ctx context.Context, chartID id.ChartID) (*models.QcChart, error) {
	chart, err := scanChart(s.db.QueryRowContext(ctx, chartSelect+` WHERE id = $1`, chartID.String()))
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get qc chart: %w", err)
	}
	return chart, nil
}

func (s *PostgresStore) ListCharts(ctx context.Context) ([]*models.QcChart, error) {
	rows, err := s.db.QueryContext(ctx, chartSelect+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list qc charts: %w", err)
	}
	defer rows.Close()

	var out []*models.QcChart
	for rows.Next() {
		chart, err := scanChart(rows)
		if err != nil {
			return nil, fmt.Errorf("list qc charts: %w", err)
		}
		out = append(out, chart)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveObservation(ctx context.Context, chart *models.QcChart, point *models.QcDataPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin qc observation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE qc_charts SET
			point_count = $3, mean = $4, m2 = $5,
			in_control = $6, violation_count = $7,
			updated_at = $8, version = version + 1
		WHERE id = $1 AND version = $2
	`, chart.ID.String(), chart.Version,
		chart.Count, chart.Mean, chart.M2,
		chart.InControl, chart.ViolationCount, chart.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update qc chart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update qc chart: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qc_data_points (id, chart_id, seq, measured_value, lot_id, notes,
			violation, violation_rule, recorded_by, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, point.ID.String(), point.ChartID.String(), point.Seq, point.MeasuredValue,
		point.LotID, point.Notes, point.Violation, string(point.ViolationRule),
		point.RecordedBy.String(), point.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert qc data point: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit qc observation: %w", err)
	}
	chart.Version++
	return nil
}

func (s *PostgresStore) ListRecentPoints(ctx context.Context, chartID id.ChartID, limit int) ([]*models.QcDataPoint, error) {
	query := `
		SELECT id, chart_id, seq, measured_value, lot_id, notes,
			violation, violation_rule, recorded_by, recorded_at
		FROM qc_data_points
		WHERE chart_id = $1
		ORDER BY seq DESC`
	args := []any{chartID.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list qc points: %w", err)
	}
	defer rows.Close()

	var out []*models.QcDataPoint
	for rows.Next() {
		var p models.QcDataPoint
		var pid, cid, rule, recordedBy string
		err := rows.Scan(&pid, &cid, &p.Seq, &p.MeasuredValue, &p.LotID, &p.Notes,
			&p.Violation, &rule, &recordedBy, &p.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("list qc points: %w", err)
		}
		p.ViolationRule = models.Rule(rule)
		if p.ID, err = id.ParseDataPointID(pid); err != nil {
			return nil, fmt.Errorf("list qc points: %w", err)
		}
		if p.ChartID, err = id.ParseChartID(cid); err != nil {
			return nil, fmt.Errorf("list qc points: %w", err)
		}
		if p.RecordedBy, err = id.ParseUserID(recordedBy); err != nil {
			return nil, fmt.Errorf("list qc points: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChart(row rowScanner) (*models.QcChart, error) {
	var chart models.QcChart
	var cid, methodID, chartType string
	err := row.Scan(&cid, &chart.Name, &methodID, &chartType,
		&chart.TargetValue, &chart.UCL, &chart.LCL, &chart.USL, &chart.LSL,
		&chart.Count, &chart.Mean, &chart.M2, &chart.InControl, &chart.ViolationCount,
		&chart.Version, &chart.CreatedAt, &chart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	chart.ChartType = models.ChartType(chartType)
	if chart.ID, err = id.ParseChartID(cid); err != nil {
		return nil, err
	}
	if chart.TestMethodID, err = id.ParseTestMethodID(methodID); err != nil {
		return nil, err
	}
	return &chart, nil
}
