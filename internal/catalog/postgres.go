package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "limsd/pkg/domain"
	"limsd/pkg/platform/sentinel"
)

// PostgresStore reads master data maintained by the CRUD surfaces outside
// this service. Pure I/O; no domain logic.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID id.ClientID) (*Client, error) {
	query := `
		SELECT id, name, code, contact_person, email, is_active
		FROM clients
		WHERE id = $1
	`
	return scanClient(s.db.QueryRowContext(ctx, query, uuid.UUID(clientID)))
}

func (s *PostgresStore) FindClientByName(ctx context.Context, name string) (*Client, error) {
	query := `
		SELECT id, name, code, contact_person, email, is_active
		FROM clients
		WHERE lower(name) = lower($1)
	`
	return scanClient(s.db.QueryRowContext(ctx, query, name))
}

func scanClient(row *sql.Row) (*Client, error) {
	var c Client
	var cid uuid.UUID
	err := row.Scan(&cid, &c.Name, &c.Code, &c.ContactPerson, &c.Email, &c.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan client: %w", err)
	}
	c.ID = id.ClientID(cid)
	return &c, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID id.ProductID) (*Product, error) {
	query := `
		SELECT id, name, code, category, is_active
		FROM products
		WHERE id = $1
	`
	return scanProduct(s.db.QueryRowContext(ctx, query, uuid.UUID(productID)))
}

func (s *PostgresStore) FindProductByName(ctx context.Context, name string) (*Product, error) {
	query := `
		SELECT id, name, code, category, is_active
		FROM products
		WHERE lower(name) = lower($1)
	`
	return scanProduct(s.db.QueryRowContext(ctx, query, name))
}

func scanProduct(row *sql.Row) (*Product, error) {
	var p Product
	var pid uuid.UUID
	err := row.Scan(&pid, &p.Name, &p.Code, &p.Category, &p.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	p.ID = id.ProductID(pid)
	return &p, nil
}

func (s *PostgresStore) GetTestMethod(ctx context.Context, methodID id.TestMethodID) (*TestMethod, error) {
	query := testMethodSelect + ` WHERE id = $1`
	return scanTestMethod(s.db.QueryRowContext(ctx, query, uuid.UUID(methodID)))
}

func (s *PostgresStore) FindTestMethodByCode(ctx context.Context, code string) (*TestMethod, error) {
	query := testMethodSelect + ` WHERE lower(code) = lower($1)`
	return scanTestMethod(s.db.QueryRowContext(ctx, query, code))
}

const testMethodSelect = `
	SELECT id, name, code, standard_ref, result_type, unit, decimal_places,
	       min_limit, max_limit, tat_hours, is_active
	FROM test_methods
`

func scanTestMethod(row *sql.Row) (*TestMethod, error) {
	var m TestMethod
	var mid uuid.UUID
	var minLimit, maxLimit sql.NullFloat64
	err := row.Scan(&mid, &m.Name, &m.Code, &m.StandardRef, &m.ResultType,
		&m.Unit, &m.DecimalPlaces, &minLimit, &maxLimit, &m.TATHours, &m.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan test method: %w", err)
	}
	m.ID = id.TestMethodID(mid)
	if minLimit.Valid {
		m.MinLimit = &minLimit.Float64
	}
	if maxLimit.Valid {
		m.MaxLimit = &maxLimit.Float64
	}
	return &m, nil
}

func (s *PostgresStore) ListProductTests(ctx context.Context, productID id.ProductID) ([]ProductTest, error) {
	query := `
		SELECT product_id, test_method_id, is_mandatory, sort_order
		FROM product_tests
		WHERE product_id = $1
		ORDER BY sort_order ASC, test_method_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(productID))
	if err != nil {
		return nil, fmt.Errorf("list product tests: %w", err)
	}
	defer rows.Close()

	var out []ProductTest
	for rows.Next() {
		var pt ProductTest
		var pid, mid uuid.UUID
		if err := rows.Scan(&pid, &mid, &pt.Mandatory, &pt.SortOrder); err != nil {
			return nil, fmt.Errorf("scan product test: %w", err)
		}
		pt.ProductID = id.ProductID(pid)
		pt.TestMethodID = id.TestMethodID(mid)
		out = append(out, pt)
	}
	return out, rows.Err()
}
