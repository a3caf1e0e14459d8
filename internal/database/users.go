package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

const userColumns = "id, social_id, user_name, nickname, bio, location, profile_img, role, " +
	"like_temp, join_state, deleted, created_at, updated_at, changed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.SocialId,
		&u.Name,
		&u.Nickname,
		&u.Bio,
		&u.Location,
		&u.ProfileImg,
		&u.Role,
		&u.LikeTemp,
		&u.JoinState,
		&u.Deleted,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.ChangedAt,
	)
	return u, err
}

func (q *queries) GetUserById(ctx context.Context, userId string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM profiles "+
			"WHERE id = $1 AND deleted = FALSE LIMIT 1",
		userId,
	)
	return scanUser(row)
}

func (q *queries) GetUserBySocialId(ctx context.Context, socialId string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM profiles "+
			"WHERE social_id = $1 AND deleted = FALSE LIMIT 1",
		socialId,
	)
	return scanUser(row)
}

func (q *queries) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"INSERT INTO profiles (id, social_id, user_name, nickname, profile_img, role, like_temp, created_at, updated_at, changed_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8) RETURNING "+userColumns,
		params.Id,
		params.SocialId,
		params.Name,
		params.Nickname,
		params.ProfileImg,
		params.Role,
		params.LikeTemp,
		params.CreatedAt,
	)
	return scanUser(row)
}

func (q *queries) LockUser(ctx context.Context, userId string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM profiles "+
			"WHERE id = $1 AND deleted = FALSE FOR UPDATE",
		userId,
	)
	return scanUser(row)
}

func (q *queries) UpdateNickname(ctx context.Context, userId, nickname string, now time.Time) (User, error) {
	row := q.db.QueryRowContext(ctx,
		"UPDATE profiles SET nickname = $2, changed_at = $3, updated_at = $3 "+
			"WHERE id = $1 AND deleted = FALSE RETURNING "+userColumns,
		userId,
		nickname,
		now,
	)
	return scanUser(row)
}

func (q *queries) UpdateBio(ctx context.Context, userId, bio string, now time.Time) error {
	return q.execOne(ctx,
		"UPDATE profiles SET bio = $2, updated_at = $3 WHERE id = $1 AND deleted = FALSE",
		userId, bio, now,
	)
}

func (q *queries) UpdateLocation(ctx context.Context, userId, location string, now time.Time) error {
	return q.execOne(ctx,
		"UPDATE profiles SET location = $2, updated_at = $3 WHERE id = $1 AND deleted = FALSE",
		userId, location, now,
	)
}

func (q *queries) SoftDeleteUser(ctx context.Context, userId string, now time.Time) error {
	return q.execOne(ctx,
		"UPDATE profiles SET deleted = TRUE, updated_at = $2 WHERE id = $1 AND deleted = FALSE",
		userId, now,
	)
}

func (q *queries) IncrementJoinState(ctx context.Context, userId string) error {
	return q.execOne(ctx,
		"UPDATE profiles SET join_state = join_state + 1 WHERE id = $1",
		userId,
	)
}

func (q *queries) DecrementJoinState(ctx context.Context, userIds []string) error {
	if len(userIds) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx,
		"UPDATE profiles SET join_state = GREATEST(join_state - 1, 0) WHERE id = ANY($1::uuid[])",
		pq.Array(userIds),
	)
	return err
}

// ApplyLikeTemp adds delta to the user's temperature in a single statement,
// clamping to [0, 100] and rounding to one decimal place.
func (q *queries) ApplyLikeTemp(ctx context.Context, userId string, delta float64) (float64, error) {
	var likeTemp float64
	err := q.db.QueryRowContext(ctx,
		"UPDATE profiles SET like_temp = LEAST(100, GREATEST(0, ROUND(like_temp + $2::numeric, 1))) "+
			"WHERE id = $1 RETURNING like_temp",
		userId,
		delta,
	).Scan(&likeTemp)
	return likeTemp, err
}

// execOne runs a statement that must touch exactly one row, returning
// sql.ErrNoRows otherwise.
func (q *queries) execOne(ctx context.Context, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
