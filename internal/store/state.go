package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"price-sentinel/internal/monitor"
)

// LoadStates returns every persisted per-symbol record.
func (s *Store) LoadStates(ctx context.Context) ([]monitor.SymbolState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, last_price, last_alert_price, last_alert_at_ms FROM alert_state;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert states: %w", err)
	}
	defer rows.Close()

	var states []monitor.SymbolState
	for rows.Next() {
		var (
			st         monitor.SymbolState
			lastPrice  string
			alertPrice string
			alertAtMs  int64
		)
		if err := rows.Scan(&st.Symbol, &lastPrice, &alertPrice, &alertAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if st.LastPrice, err = decimal.NewFromString(lastPrice); err != nil {
			return nil, fmt.Errorf("failed to decode last price for %s: %w", st.Symbol, err)
		}
		if st.LastAlertPrice, err = decimal.NewFromString(alertPrice); err != nil {
			return nil, fmt.Errorf("failed to decode alert price for %s: %w", st.Symbol, err)
		}
		if alertAtMs > 0 {
			st.LastAlertAt = time.UnixMilli(alertAtMs).UTC()
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return states, nil
}

// SaveState upserts one per-symbol record.
func (s *Store) SaveState(ctx context.Context, st monitor.SymbolState) error {
	var alertAtMs int64
	if !st.LastAlertAt.IsZero() {
		alertAtMs = st.LastAlertAt.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alert_state (symbol, last_price, last_alert_price, last_alert_at_ms)
		 VALUES (?, ?, ?, ?);`,
		st.Symbol, st.LastPrice.String(), st.LastAlertPrice.String(), alertAtMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert state for %s: %w", st.Symbol, err)
	}
	return nil
}
