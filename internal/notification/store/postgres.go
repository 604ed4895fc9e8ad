package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"limsd/internal/notification/models"
	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const notificationSelect = `
	SELECT id, user_id, kind, title, message, sample_id, investigation_id,
	       read, read_at, created_at
	FROM notifications`

func (s *PostgresStore) Create(ctx context.Context, n *models.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, kind, title, message, sample_id, investigation_id,
			read, read_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID.String(), n.UserID.String(), n.Kind, n.Title, n.Message,
		nullableID(n.SampleID.IsNil(), n.SampleID.String()),
		nullableID(n.InvestigationID.IsNil(), n.InvestigationID.String()),
		n.Read, n.ReadAt, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, notifID id.NotificationID) (*models.Notification, error) {
	row := s.db.QueryRowContext(ctx, notificationSelect+` WHERE id = $1`, notifID.String())
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Save(ctx context.Context, n *models.Notification) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = $2, read_at = $3 WHERE id = $1`,
		n.ID.String(), n.Read, n.ReadAt)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := notificationSelect + ` WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UnreadCount(ctx context.Context, userID id.UserID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`,
		userID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n                  models.Notification
		notifID, userID    string
		sampleID, investID sql.NullString
		readAt             sql.NullTime
	)
	err := row.Scan(&notifID, &userID, &n.Kind, &n.Title, &n.Message,
		&sampleID, &investID, &n.Read, &readAt, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if n.ID, err = id.ParseNotificationID(notifID); err != nil {
		return nil, err
	}
	if n.UserID, err = id.ParseUserID(userID); err != nil {
		return nil, err
	}
	if sampleID.Valid {
		if n.SampleID, err = id.ParseSampleID(sampleID.String); err != nil {
			return nil, err
		}
	}
	if investID.Valid {
		if n.InvestigationID, err = id.ParseInvestigationID(investID.String); err != nil {
			return nil, err
		}
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}

func nullableID(isNil bool, s string) any {
	if isNil {
		return nil
	}
	return s
}
