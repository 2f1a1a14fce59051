package repository

import (
	"context"
	"fmt"
	"time"

	"ledger-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// MetricsRepository stores sampled system gauges.
type MetricsRepository interface {
	Record(ctx context.Context, name string, value decimal.Decimal) error
	ListRecent(ctx context.Context, limit int) ([]*domain.SystemMetric, error)
}

type metricsRepo struct {
	db *pgxpool.Pool
}

// NewMetricsRepo creates a postgres-backed metrics repository.
func NewMetricsRepo(db *pgxpool.Pool) MetricsRepository {
	return &metricsRepo{db: db}
}

func (r *metricsRepo) Record(ctx context.Context, name string, value decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO system_metrics (metric_name, metric_value, recorded_at)
		VALUES ($1, $2, $3)
	`, name, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record metric %s: %w", name, err)
	}
	return nil
}

func (r *metricsRepo) ListRecent(ctx context.Context, limit int) ([]*domain.SystemMetric, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, metric_name, metric_value, recorded_at
		FROM system_metrics
		ORDER BY recorded_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*domain.SystemMetric
	for rows.Next() {
		var m domain.SystemMetric
		if err := rows.Scan(&m.ID, &m.MetricName, &m.Value, &m.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}
