package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const participantSelect = "SELECT p.room_id, p.user_id, u.nickname, u.profile_img, u.like_temp, p.attended, p.joined_at " +
	"FROM participants p JOIN profiles u ON u.id = p.user_id "

func scanParticipant(row rowScanner) (Participant, error) {
	var p Participant
	err := row.Scan(
		&p.RoomId,
		&p.UserId,
		&p.Nickname,
		&p.ProfileImg,
		&p.LikeTemp,
		&p.Attended,
		&p.JoinedAt,
	)
	return p, err
}

func (q *queries) CreateParticipant(ctx context.Context, roomId int64, userId string, joinedAt time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO participants (room_id, user_id, joined_at) VALUES ($1, $2, $3)",
		roomId, userId, joinedAt,
	)
	return err
}

func (q *queries) DeleteParticipant(ctx context.Context, roomId int64, userId string) error {
	return q.execOne(ctx,
		"DELETE FROM participants WHERE room_id = $1 AND user_id = $2",
		roomId, userId,
	)
}

// DeleteParticipants removes every member of the room and returns who was removed.
func (q *queries) DeleteParticipants(ctx context.Context, roomId int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		"DELETE FROM participants WHERE room_id = $1 RETURNING user_id",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("delete participants: %w", err)
	}
	return scanIds(rows)
}

func (q *queries) GetParticipant(ctx context.Context, roomId int64, userId string) (Participant, error) {
	row := q.db.QueryRowContext(ctx,
		participantSelect+"WHERE p.room_id = $1 AND p.user_id = $2",
		roomId, userId,
	)
	return scanParticipant(row)
}

func (q *queries) ListParticipants(ctx context.Context, roomId int64) ([]Participant, error) {
	rows, err := q.db.QueryContext(ctx,
		participantSelect+"WHERE p.room_id = $1 ORDER BY p.joined_at ASC",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (q *queries) CountParticipants(ctx context.Context, roomId int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM participants WHERE room_id = $1",
		roomId,
	).Scan(&n)
	return n, err
}

// MarkAttended sets attended = true for the given users that are members of
// the room and returns the ids that were updated.
func (q *queries) MarkAttended(ctx context.Context, roomId int64, userIds []string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		"UPDATE participants SET attended = TRUE "+
			"WHERE room_id = $1 AND user_id = ANY($2::uuid[]) RETURNING user_id",
		roomId, pq.Array(userIds),
	)
	if err != nil {
		return nil, fmt.Errorf("mark attended: %w", err)
	}
	return scanIds(rows)
}

// MarkAbsentExcept sets attended = false for every member not in attendedIds.
func (q *queries) MarkAbsentExcept(ctx context.Context, roomId int64, attendedIds []string) ([]string, error) {
	if attendedIds == nil {
		attendedIds = []string{}
	}
	rows, err := q.db.QueryContext(ctx,
		"UPDATE participants SET attended = FALSE "+
			"WHERE room_id = $1 AND NOT (user_id = ANY($2::uuid[])) RETURNING user_id",
		roomId, pq.Array(attendedIds),
	)
	if err != nil {
		return nil, fmt.Errorf("mark absent: %w", err)
	}
	return scanIds(rows)
}

func (q *queries) CountUnmarkedParticipants(ctx context.Context, roomId int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM participants WHERE room_id = $1 AND attended IS NULL",
		roomId,
	).Scan(&n)
	return n, err
}

func (q *queries) IsBlacklisted(ctx context.Context, roomId int64, userId string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx,
		"SELECT 1 FROM blacklist WHERE room_id = $1 AND user_id = $2",
		roomId, userId,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (q *queries) CreateBlacklistEntry(ctx context.Context, roomId int64, userId, kickedBy string, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO blacklist (room_id, user_id, kicked_by, created_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (room_id, user_id) DO NOTHING",
		roomId, userId, kickedBy, now,
	)
	return err
}

func scanIds(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
