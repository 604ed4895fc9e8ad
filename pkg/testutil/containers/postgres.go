//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers Postgres instance with the
// application schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts a Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("limsd"),
		tcpostgres.WithUsername("limsd"),
		tcpostgres.WithPassword("limsd"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	pc := &PostgresContainer{Container: container, DSN: dsn, DB: db}
	t.Cleanup(func() {
		_ = pc.DB.Close()
		_ = pc.Container.Terminate(context.Background())
	})
	return pc
}

// Truncate clears the given tables between tests.
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	contact_person TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS products (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS test_methods (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	code TEXT NOT NULL,
	standard_ref TEXT NOT NULL DEFAULT '',
	result_type TEXT NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	decimal_places INTEGER NOT NULL DEFAULT 0,
	min_limit DOUBLE PRECISION,
	max_limit DOUBLE PRECISION,
	tat_hours INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS product_tests (
	product_id UUID NOT NULL REFERENCES products(id),
	test_method_id UUID NOT NULL REFERENCES test_methods(id),
	is_mandatory BOOLEAN NOT NULL DEFAULT FALSE,
	sort_order INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (product_id, test_method_id)
);

CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	job_number TEXT NOT NULL UNIQUE,
	client_id UUID NOT NULL,
	priority TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS samples (
	id UUID PRIMARY KEY,
	sample_number TEXT NOT NULL UNIQUE,
	job_id UUID NOT NULL REFERENCES jobs(id),
	product_id UUID NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sampling_point TEXT NOT NULL DEFAULT '',
	sampled_by TEXT NOT NULL DEFAULT '',
	sampled_at TIMESTAMPTZ,
	barcode TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	condition_on_receipt TEXT NOT NULL,
	received_at TIMESTAMPTZ,
	received_by UUID,
	rejection_reason TEXT NOT NULL DEFAULT '',
	due_date TIMESTAMPTZ,
	version BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sample_tests (
	id UUID PRIMARY KEY,
	sample_id UUID NOT NULL REFERENCES samples(id),
	test_method_id UUID NOT NULL,
	method_name TEXT NOT NULL DEFAULT '',
	method_code TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	retest BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS test_results (
	id UUID PRIMARY KEY,
	sample_test_id UUID NOT NULL REFERENCES sample_tests(id),
	numeric_value DOUBLE PRECISION,
	text_value TEXT NOT NULL DEFAULT '',
	out_of_range BOOLEAN NOT NULL DEFAULT FALSE,
	flag_color TEXT NOT NULL DEFAULT '',
	entered_by UUID NOT NULL,
	entered_at TIMESTAMPTZ NOT NULL,
	instrument_id UUID,
	reagent_lot TEXT NOT NULL DEFAULT '',
	reviewed BOOLEAN NOT NULL DEFAULT FALSE,
	reviewed_by UUID,
	reviewed_at TIMESTAMPTZ,
	review_comment TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS qc_charts (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	test_method_id UUID NOT NULL,
	chart_type TEXT NOT NULL,
	target_value DOUBLE PRECISION,
	ucl DOUBLE PRECISION,
	lcl DOUBLE PRECISION,
	usl DOUBLE PRECISION,
	lsl DOUBLE PRECISION,
	point_count BIGINT NOT NULL DEFAULT 0,
	mean DOUBLE PRECISION NOT NULL DEFAULT 0,
	m2 DOUBLE PRECISION NOT NULL DEFAULT 0,
	in_control BOOLEAN NOT NULL DEFAULT TRUE,
	violation_count BIGINT NOT NULL DEFAULT 0,
	version BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS qc_data_points (
	id UUID PRIMARY KEY,
	chart_id UUID NOT NULL REFERENCES qc_charts(id),
	seq BIGINT NOT NULL,
	measured_value DOUBLE PRECISION NOT NULL,
	lot_id TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	violation BOOLEAN NOT NULL DEFAULT FALSE,
	violation_rule TEXT NOT NULL DEFAULT '',
	recorded_by UUID NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	UNIQUE (chart_id, seq)
);

CREATE TABLE IF NOT EXISTS investigations (
	id UUID PRIMARY KEY,
	number TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	status TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	sample_id UUID,
	chart_id UUID,
	root_cause TEXT NOT NULL DEFAULT '',
	corrective_action TEXT NOT NULL DEFAULT '',
	preventive_action TEXT NOT NULL DEFAULT '',
	assigned_to UUID,
	due_date TIMESTAMPTZ NOT NULL,
	created_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	closed_by UUID,
	closed_at TIMESTAMPTZ,
	version BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	sample_id UUID,
	investigation_id UUID,
	read BOOLEAN NOT NULL DEFAULT FALSE,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_status ON samples(status);
CREATE INDEX IF NOT EXISTS idx_samples_job ON samples(job_id);
CREATE INDEX IF NOT EXISTS idx_qc_points_chart ON qc_data_points(chart_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read);
`
