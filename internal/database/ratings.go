package database

import (
	"context"
	"database/sql"
	"errors"
)

func (q *queries) RatingExists(ctx context.Context, roomId int64, raterId, rateeId string) (bool, error) {
	var one int
	err := q.db.QueryRowContext(ctx,
		"SELECT 1 FROM ratings WHERE room_id = $1 AND rater_id = $2 AND ratee_id = $3",
		roomId, raterId, rateeId,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateRating inserts the rating, reporting false when the same rater already
// rated the same ratee in this room.
func (q *queries) CreateRating(ctx context.Context, params CreateRatingParams) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO ratings (room_id, rater_id, ratee_id, kind, created_at) VALUES ($1, $2, $3, $4, $5) "+
			"ON CONFLICT (room_id, rater_id, ratee_id) DO NOTHING",
		params.RoomId,
		params.RaterId,
		params.RateeId,
		params.Kind,
		params.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
