package store

import (
	"context"
	"fmt"
)

// Channel is a notification target owned by an agent. Rows are normally
// provisioned by the hosting platform; the HTTP surface can add and remove
// them for operations work.
type Channel struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	CreatedAt string `json:"created_at"`
}

// AddChannel registers a notification channel for an agent. Re-registering
// an existing channel id is not an error.
func (s *Store) AddChannel(ctx context.Context, id, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO channels (id, agent_id) VALUES (?, ?);`, id, agentID)
	if err != nil {
		return fmt.Errorf("failed to add channel %s: %w", id, err)
	}
	return nil
}

// ListChannels returns the channels owned by agentID, oldest first.
func (s *Store) ListChannels(ctx context.Context, agentID string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, created_at FROM channels WHERE agent_id = ? ORDER BY created_at, id;`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := rows.Scan(&ch.ID, &ch.AgentID, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return channels, nil
}

// RemoveChannel deletes a channel registration.
func (s *Store) RemoveChannel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to remove channel %s: %w", id, err)
	}
	return nil
}
