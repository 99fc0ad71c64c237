package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Chat message methods
func (s *SQLiteStore) CreateChatMessage(ctx context.Context, msg *ChatMessage) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.Timestamp = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_messages (id, user_id, bot_id, message, is_user, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		msg.ID, msg.UserID, msg.BotID, msg.Message, msg.IsUser, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to execute chat message insert: %w", err)
	}
	return nil
}

// ListChatMessages returns the conversation between userID and botID in
// chronological order. Insertion order breaks timestamp ties.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, userID, botID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, bot_id, message, is_user, timestamp
        FROM chat_messages
        WHERE user_id = ? AND bot_id = ?
        ORDER BY timestamp ASC, seq ASC`, userID, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	messages := []ChatMessage{}
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.BotID, &msg.Message, &msg.IsUser, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) DeleteChatMessages(ctx context.Context, userID, botID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE user_id = ? AND bot_id = ?", userID, botID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat messages: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
