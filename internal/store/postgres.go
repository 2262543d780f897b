package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Skufu/RenalRisk/internal/assessment"
)

// dbtx is the subset of *pgxpool.Pool the store uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	predictor TEXT NOT NULL,
	stage TEXT NOT NULL,
	risk_score DOUBLE PRECISION NOT NULL,
	risk_category TEXT NOT NULL,
	srirc_score INTEGER,
	srirc_tier TEXT,
	payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments (created_at DESC);
`

type PostgresStore struct {
	db    dbtx
	close func()
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

// NewPostgresStore wraps an open pool and creates the table if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create assessments table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, report *assessment.Report) error {
	payload, err := encodeReport(report)
	if err != nil {
		return err
	}
	srircScore, srircTier := srircColumns(report)

	_, err = s.db.Exec(ctx, `
		INSERT INTO assessments (
			id, created_at, predictor, stage, risk_score, risk_category,
			srirc_score, srirc_tier, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.ID,
		report.CreatedAt,
		report.Predictor,
		report.Stage,
		report.RiskScore,
		string(report.RiskCategory),
		srircScore,
		srircTier,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*assessment.Report, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, "SELECT payload FROM assessments WHERE id = $1", id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query assessment: %w", err)
	}
	return decodeReport(payload)
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*assessment.Report, error) {
	rows, err := s.db.Query(ctx,
		"SELECT payload FROM assessments ORDER BY created_at DESC LIMIT $1", clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	reports := []*assessment.Report{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
