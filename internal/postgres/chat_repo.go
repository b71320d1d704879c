package postgres

import (
	"context"

	"ride-hail/internal/apperr"
	"ride-hail/internal/domain/chat"
	"ride-hail/internal/ports"
)

// ChatRepo persists per-trip chat messages (§3 ChatMessage, §4.6).
type ChatRepo struct{}

// NewChatRepo constructs a new ChatRepo.
func NewChatRepo() ports.ChatRepository {
	return &ChatRepo{}
}

func (r *ChatRepo) Insert(ctx context.Context, m *chat.Message) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages (trip_id, from_user_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, m.TripID, m.FromUserID, m.Text).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return apperr.Internal("insert chat message", err)
	}
	return nil
}

func (r *ChatRepo) ListByTrip(ctx context.Context, tripID string) ([]*chat.Message, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT id, trip_id, from_user_id, text, read_at, created_at
		FROM chat_messages
		WHERE trip_id = $1
		ORDER BY created_at ASC
	`, tripID)
	if err != nil {
		return nil, apperr.Internal("list chat messages", err)
	}
	defer rows.Close()

	var out []*chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.TripID, &m.FromUserID, &m.Text, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, apperr.Internal("scan chat message", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("iterate chat messages", err)
	}
	return out, nil
}

func (r *ChatRepo) MarkReadForRecipient(ctx context.Context, tripID, recipientID string) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE chat_messages
		SET read_at = now()
		WHERE trip_id = $1 AND from_user_id != $2 AND read_at IS NULL
	`, tripID, recipientID)
	if err != nil {
		return 0, apperr.Internal("mark chat messages read", err)
	}
	return int(tag.RowsAffected()), nil
}
