package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveMetric upserts one counter snapshot.
func (s *Store) SaveMetric(ctx context.Context, name string, value float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metrics (metric_name, metric_value) VALUES (?, ?);`,
		name, value)
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// GetMetric returns a persisted counter value, defaulting to 0 when the
// metric has never been saved.
func (s *Store) GetMetric(ctx context.Context, name string) (float64, error) {
	var value float64
	err := s.db.QueryRowContext(ctx,
		`SELECT metric_value FROM metrics WHERE metric_name = ?;`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get metric %s: %w", name, err)
	}
	return value, nil
}
