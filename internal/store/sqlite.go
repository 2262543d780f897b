package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Skufu/RenalRisk/internal/assessment"
)

// SQLiteStore is the single-node audit store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath, creating the file and schema when missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		predictor TEXT NOT NULL,
		stage TEXT NOT NULL,
		risk_score REAL NOT NULL,
		risk_category TEXT NOT NULL,
		srirc_score INTEGER,
		srirc_tier TEXT,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);
	CREATE INDEX IF NOT EXISTS idx_assessments_stage ON assessments(stage);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, report *assessment.Report) error {
	payload, err := encodeReport(report)
	if err != nil {
		return err
	}
	srircScore, srircTier := srircColumns(report)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (
			id, created_at, predictor, stage, risk_score, risk_category,
			srirc_score, srirc_tier, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID.String(),
		report.CreatedAt.UnixNano(),
		report.Predictor,
		report.Stage,
		report.RiskScore,
		string(report.RiskCategory),
		srircScore,
		srircTier,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*assessment.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM assessments WHERE id = ?", id.String(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assessment: %w", err)
	}
	return decodeReport([]byte(payload))
}

// List returns the most recent assessments first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*assessment.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM assessments ORDER BY created_at DESC LIMIT ?", clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	reports := []*assessment.Report{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		report, err := decodeReport([]byte(payload))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
