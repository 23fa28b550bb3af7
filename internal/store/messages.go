package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertMessage writes one dispatched notification row and returns its
// generated id. Messages are read back by the hosting platform, not by the
// daemon itself.
func (s *Store) InsertMessage(ctx context.Context, channelID, body, source, kind string) (string, error) {
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, body, source, kind) VALUES (?, ?, ?, ?, ?);`,
		id, channelID, body, source, kind)
	if err != nil {
		return "", fmt.Errorf("failed to insert message for channel %s: %w", channelID, err)
	}
	return id, nil
}
