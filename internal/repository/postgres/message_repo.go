package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drawdash/api/internal/model"
)

// MessageRepo persists chat messages.
type MessageRepo struct {
	db *sql.DB
}

// NewMessageRepo creates a MessageRepo.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Save inserts a chat message and returns it with ID and timestamp set.
func (r *MessageRepo) Save(ctx context.Context, m *model.Message) (*model.Message, error) {
	var saved model.Message
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (room_id, sender_id, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, room_id, sender_id, content, created_at`,
		m.RoomID, m.SenderID, m.Content,
	).Scan(&saved.ID, &saved.RoomID, &saved.SenderID, &saved.Content, &saved.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return &saved, nil
}

// ListRecent returns the newest messages for a room, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, content, created_at
		 FROM (SELECT id, room_id, sender_id, content, created_at
		       FROM messages WHERE room_id = $1
		       ORDER BY created_at DESC LIMIT $2) recent
		 ORDER BY created_at ASC`,
		roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
