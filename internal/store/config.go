package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"price-sentinel/internal/monitor"
)

// LoadConfig returns the persisted monitor configuration, or (nil, nil) when
// none has been saved yet.
func (s *Store) LoadConfig(ctx context.Context) (*monitor.Config, error) {
	var (
		symbolsJSON    string
		threshold      string
		cooldownMs     int64
		pollIntervalMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT symbols, threshold, cooldown_ms, poll_interval_ms FROM monitor_config WHERE id = 1;`,
	).Scan(&symbolsJSON, &threshold, &cooldownMs, &pollIntervalMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var symbols []string
	if err := json.Unmarshal([]byte(symbolsJSON), &symbols); err != nil {
		return nil, fmt.Errorf("failed to decode symbol list: %w", err)
	}
	th, err := decimal.NewFromString(threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to decode threshold %q: %w", threshold, err)
	}

	return &monitor.Config{
		Symbols:      symbols,
		Threshold:    th,
		Cooldown:     time.Duration(cooldownMs) * time.Millisecond,
		PollInterval: time.Duration(pollIntervalMs) * time.Millisecond,
	}, nil
}

// SaveConfig upserts the single configuration row.
func (s *Store) SaveConfig(ctx context.Context, cfg monitor.Config) error {
	symbols, err := json.Marshal(cfg.Symbols)
	if err != nil {
		return fmt.Errorf("failed to encode symbol list: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO monitor_config (id, symbols, threshold, cooldown_ms, poll_interval_ms, updated_at)
		 VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP);`,
		string(symbols), cfg.Threshold.String(), cfg.Cooldown.Milliseconds(), cfg.PollInterval.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
