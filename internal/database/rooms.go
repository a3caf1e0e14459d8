package database

import (
	"context"
	"fmt"
	"time"
)

const roomColumns = "r.id, r.external_id, r.host_id, r.title, r.description, r.thumbnail, r.max_participants, " +
	"r.scheduled_at, r.ended_at, r.attendance_checked_at, r.finalized, r.deleted, r.created_at, r.updated_at"

// roomSummary adds the host nickname and the live participant count.
const roomSummary = "SELECT " + roomColumns + ", " +
	"COALESCE(h.nickname, ''), " +
	"(SELECT COUNT(*) FROM participants p WHERE p.room_id = r.id) " +
	"FROM rooms r LEFT JOIN profiles h ON h.id = r.host_id "

func scanRoom(row rowScanner, extra ...any) (Room, error) {
	var r Room
	dest := []any{
		&r.Id,
		&r.ExternalId,
		&r.HostId,
		&r.Title,
		&r.Description,
		&r.Thumbnail,
		&r.MaxParticipants,
		&r.ScheduledAt,
		&r.EndedAt,
		&r.AttendanceCheckedAt,
		&r.Finalized,
		&r.Deleted,
		&r.CreatedAt,
		&r.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return r, err
}

func scanRoomSummary(row rowScanner) (Room, error) {
	var (
		hostNickname string
		count        int
	)
	r, err := scanRoom(row, &hostNickname, &count)
	r.HostNickname = hostNickname
	r.ParticipantCount = count
	return r, err
}

func (q *queries) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx,
		"INSERT INTO rooms AS r (external_id, host_id, title, description, thumbnail, max_participants, "+
			"scheduled_at, ended_at, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING "+roomColumns,
		params.ExternalId,
		params.HostId,
		params.Title,
		params.Description,
		params.Thumbnail,
		params.MaxParticipants,
		params.ScheduledAt,
		params.EndedAt,
		params.CreatedAt,
	)
	return scanRoom(row)
}

// GetRoomByExternalId returns the room whether or not it has been deleted.
func (q *queries) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	row := q.db.QueryRowContext(ctx,
		roomSummary+"WHERE r.external_id = $1 LIMIT 1",
		externalId,
	)
	return scanRoomSummary(row)
}

// LockRoomByExternalId takes a row lock on the room for the rest of the
// transaction. Every operation that changes membership locks the room first.
func (q *queries) LockRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms r WHERE r.external_id = $1 FOR UPDATE",
		externalId,
	)
	return scanRoom(row)
}

func (q *queries) LockLiveRoomByHost(ctx context.Context, hostId string) (Room, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms r "+
			"WHERE r.host_id = $1 AND r.deleted = FALSE AND r.finalized = FALSE LIMIT 1 FOR UPDATE",
		hostId,
	)
	return scanRoom(row)
}

func (q *queries) UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error) {
	row := q.db.QueryRowContext(ctx,
		"UPDATE rooms AS r SET title = $2, description = $3, thumbnail = $4, max_participants = $5, updated_at = $6 "+
			"WHERE r.id = $1 AND r.deleted = FALSE RETURNING "+roomColumns,
		params.RoomId,
		params.Title,
		params.Description,
		params.Thumbnail,
		params.MaxParticipants,
		params.UpdatedAt,
	)
	return scanRoom(row)
}

func (q *queries) DeactivateRoom(ctx context.Context, roomId int64, now time.Time) error {
	return q.execOne(ctx,
		"UPDATE rooms SET deleted = TRUE, finalized = TRUE, updated_at = $2 WHERE id = $1 AND deleted = FALSE",
		roomId, now,
	)
}

func (q *queries) EndRoom(ctx context.Context, roomId int64, endedAt time.Time) error {
	return q.execOne(ctx,
		"UPDATE rooms SET ended_at = $2, updated_at = $2 WHERE id = $1 AND deleted = FALSE",
		roomId, endedAt,
	)
}

func (q *queries) FinalizeRoom(ctx context.Context, roomId int64, now time.Time) error {
	return q.execOne(ctx,
		"UPDATE rooms SET finalized = TRUE, updated_at = $2 WHERE id = $1",
		roomId, now,
	)
}

func (q *queries) SetAttendanceChecked(ctx context.Context, roomId int64, checkedAt time.Time) error {
	return q.execOne(ctx,
		"UPDATE rooms SET attendance_checked_at = $2, updated_at = $2 "+
			"WHERE id = $1 AND attendance_checked_at IS NULL",
		roomId, checkedAt,
	)
}

func (q *queries) ListRooms(ctx context.Context, params ListRoomsParams) ([]Room, error) {
	var (
		query string
		args  []any
	)

	if params.SortScheduled {
		query = roomSummary + "WHERE r.deleted = FALSE AND r.scheduled_at > $1 "
		args = append(args, params.Now)
		if params.Cursor != nil {
			query += "AND (r.scheduled_at, r.id) > ($2, $3) "
			args = append(args, *params.Cursor, params.CursorId)
		}
		query += "ORDER BY r.scheduled_at ASC, r.id ASC "
	} else {
		query = roomSummary + "WHERE r.deleted = FALSE "
		if params.Cursor != nil {
			query += "AND (r.created_at, r.id) < ($1, $2) "
			args = append(args, *params.Cursor, params.CursorId)
		}
		query += "ORDER BY r.created_at DESC, r.id DESC "
	}
	query += fmt.Sprintf("LIMIT $%d", len(args)+1)
	args = append(args, params.Limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoomSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// ListActiveRoomsForUser returns the live rooms the user currently belongs to.
func (q *queries) ListActiveRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	rows, err := q.db.QueryContext(ctx,
		roomSummary+"JOIN participants me ON me.room_id = r.id "+
			"WHERE me.user_id = $1 AND r.deleted = FALSE AND r.finalized = FALSE "+
			"ORDER BY r.scheduled_at ASC",
		userId,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms for user: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		room, err := scanRoomSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}
