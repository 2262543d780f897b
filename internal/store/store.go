// Package store keeps an audit trail of completed assessments.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Skufu/RenalRisk/internal/assessment"
)

var ErrNotFound = errors.New("assessment not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// Store persists assessment reports.
type Store interface {
	Save(ctx context.Context, report *assessment.Report) error
	Get(ctx context.Context, id uuid.UUID) (*assessment.Report, error)
	List(ctx context.Context, limit int) ([]*assessment.Report, error)
	Ping(ctx context.Context) error
	Close() error
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func encodeReport(report *assessment.Report) ([]byte, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode assessment: %w", err)
	}
	return payload, nil
}

func decodeReport(payload []byte) (*assessment.Report, error) {
	var report assessment.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	return &report, nil
}

func srircColumns(report *assessment.Report) (score *int, tier *string) {
	if report.SRIRC == nil {
		return nil, nil
	}
	level := string(report.SRIRC.Tier.Level)
	return &report.SRIRC.Score, &level
}
