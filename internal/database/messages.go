package database

import (
	"context"
	"fmt"
)

func (q *queries) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	err := q.db.QueryRowContext(ctx,
		"WITH m AS (INSERT INTO messages (room_id, user_id, content, created_at) VALUES ($1, $2, $3, $4) "+
			"RETURNING id, room_id, user_id, content, created_at) "+
			"SELECT m.id, m.room_id, m.user_id, COALESCE(u.nickname, ''), m.content, m.created_at "+
			"FROM m LEFT JOIN profiles u ON u.id = m.user_id",
		msg.RoomId,
		msg.UserId,
		msg.Content,
		msg.CreatedAt,
	).Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Nickname,
		&msg.Content,
		&msg.CreatedAt,
	)
	return msg, err
}

// GetMessages returns up to limit messages older than before, newest first.
// A before of zero starts from the latest message.
func (q *queries) GetMessages(ctx context.Context, roomId int64, before int64, limit int) ([]Message, error) {
	query := "SELECT m.id, m.room_id, m.user_id, COALESCE(u.nickname, ''), m.content, m.created_at " +
		"FROM messages m LEFT JOIN profiles u ON u.id = m.user_id " +
		"WHERE m.room_id = $1 "
	args := []any{roomId}
	if before > 0 {
		query += "AND m.id < $2 ORDER BY m.id DESC LIMIT $3"
		args = append(args, before, limit)
	} else {
		query += "ORDER BY m.id DESC LIMIT $2"
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.RoomId,
			&m.UserId,
			&m.Nickname,
			&m.Content,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
