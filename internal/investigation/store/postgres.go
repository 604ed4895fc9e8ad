package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"limsd/internal/investigation/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// PostgresStore persists investigations in the investigations table. Updates
// use optimistic versioning like the other aggregate stores.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const investigationSelect = `
	SELECT id, number, type, severity, status, title, description, source,
	       sample_id, chart_id, root_cause, corrective_action, preventive_action,
	       assigned_to, due_date, created_by, created_at, updated_at,
	       closed_by, closed_at, version
	FROM investigations`

func (s *PostgresStore) Create(ctx context.Context, inv *models.Investigation) error {
	inv.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO investigations (
			id, number, type, severity, status, title, description, source,
			sample_id, chart_id, root_cause, corrective_action, preventive_action,
			assigned_to, due_date, created_by, created_at, updated_at,
			closed_by, closed_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		inv.ID.String(), inv.Number, string(inv.Type), string(inv.Severity), string(inv.Status),
		inv.Title, inv.Description, string(inv.Source),
		nullableID(inv.SampleID.IsNil(), inv.SampleID.String()),
		nullableID(inv.ChartID.IsNil(), inv.ChartID.String()),
		inv.RootCause, inv.CorrectiveAction, inv.PreventiveAction,
		nullableID(inv.AssignedTo.IsNil(), inv.AssignedTo.String()),
		inv.DueDate, inv.CreatedBy.String(), inv.CreatedAt, inv.UpdatedAt,
		nullableID(inv.ClosedBy.IsNil(), inv.ClosedBy.String()), inv.ClosedAt, inv.Version,
	)
	if err != nil {
		return fmt.Errorf("insert investigation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, invID id.InvestigationID) (*models.Investigation, error) {
	row := s.db.QueryRowContext(ctx, investigationSelect+` WHERE id = $1`, invID.String())
	inv, err := scanInvestigation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get investigation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) Update(ctx context.Context, inv *models.Investigation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE investigations SET
			severity = $3, status = $4, title = $5, description = $6,
			root_cause = $7, corrective_action = $8, preventive_action = $9,
			assigned_to = $10, due_date = $11, updated_at = $12,
			closed_by = $13, closed_at = $14,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		inv.ID.String(), inv.Version,
		string(inv.Severity), string(inv.Status), inv.Title, inv.Description,
		inv.RootCause, inv.CorrectiveAction, inv.PreventiveAction,
		nullableID(inv.AssignedTo.IsNil(), inv.AssignedTo.String()),
		inv.DueDate, inv.UpdatedAt,
		nullableID(inv.ClosedBy.IsNil(), inv.ClosedBy.String()), inv.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update investigation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update investigation: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	inv.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context, status models.Status, limit int) ([]*models.Investigation, error) {
	query := investigationSelect
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, number DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list investigations: %w", err)
	}
	defer rows.Close()

	var out []*models.Investigation
	for rows.Next() {
		inv, err := scanInvestigation(rows)
		if err != nil {
			return nil, fmt.Errorf("list investigations: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM investigations WHERE status <> $1`,
		string(models.StatusClosed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open investigations: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvestigation(row rowScanner) (*models.Investigation, error) {
	var (
		inv                                     models.Investigation
		invID, createdBy                        string
		invType, severity, status               string
		source                                  string
		sampleID, chartID, assignedTo, closedBy sql.NullString
		closedAt                                sql.NullTime
	)
	err := row.Scan(&invID, &inv.Number, &invType, &severity, &status,
		&inv.Title, &inv.Description, &source,
		&sampleID, &chartID, &inv.RootCause, &inv.CorrectiveAction, &inv.PreventiveAction,
		&assignedTo, &inv.DueDate, &createdBy, &inv.CreatedAt, &inv.UpdatedAt,
		&closedBy, &closedAt, &inv.Version)
	if err != nil {
		return nil, err
	}
	if inv.ID, err = id.ParseInvestigationID(invID); err != nil {
		return nil, err
	}
	if inv.CreatedBy, err = id.ParseUserID(createdBy); err != nil {
		return nil, err
	}
	inv.Type = models.Type(invType)
	inv.Severity = models.Severity(severity)
	inv.Status = models.Status(status)
	inv.Source = models.SourceKind(source)
	if sampleID.Valid {
		if inv.SampleID, err = id.ParseSampleID(sampleID.String); err != nil {
			return nil, err
		}
	}
	if chartID.Valid {
		if inv.ChartID, err = id.ParseChartID(chartID.String); err != nil {
			return nil, err
		}
	}
	if assignedTo.Valid {
		if inv.AssignedTo, err = id.ParseUserID(assignedTo.String); err != nil {
			return nil, err
		}
	}
	if closedBy.Valid {
		if inv.ClosedBy, err = id.ParseUserID(closedBy.String); err != nil {
			return nil, err
		}
	}
	if closedAt.Valid {
		t := closedAt.Time
		inv.ClosedAt = &t
	}
	return &inv, nil
}

func nullableID(isNil bool, s string) any {
	if isNil {
		return nil
	}
	return s
}
