package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id         string
	SocialId   string
	Name       string
	Nickname   string
	Bio        string
	Location   string
	ProfileImg string
	Role       string
	LikeTemp   float64
	JoinState  int
	Deleted    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ChangedAt  time.Time
}

type Room struct {
	Id                  int64
	ExternalId          string
	HostId              string
	HostNickname        string
	Title               string
	Description         string
	Thumbnail           string
	MaxParticipants     int
	ParticipantCount    int
	ScheduledAt         time.Time
	EndedAt             time.Time
	AttendanceCheckedAt sql.NullTime
	Finalized           bool
	Deleted             bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Participant struct {
	RoomId     int64
	UserId     string
	Nickname   string
	ProfileImg string
	LikeTemp   float64
	Attended   sql.NullBool
	JoinedAt   time.Time
}

type Message struct {
	Id        int64
	RoomId    int64
	UserId    string
	Nickname  string
	Content   string
	CreatedAt time.Time
}

type CreateUserParams struct {
	Id         string
	SocialId   string
	Name       string
	Nickname   string
	ProfileImg string
	LikeTemp   float64
	Role       string
	CreatedAt  time.Time
}

type CreateRoomParams struct {
	ExternalId      string
	HostId          string
	Title           string
	Description     string
	Thumbnail       string
	MaxParticipants int
	ScheduledAt     time.Time
	EndedAt         time.Time
	CreatedAt       time.Time
}

type UpdateRoomParams struct {
	RoomId          int64
	Title           string
	Description     string
	Thumbnail       string
	MaxParticipants int
	UpdatedAt       time.Time
}

type ListRoomsParams struct {
	// SortScheduled orders by scheduled_at ascending and hides past meetups,
	// otherwise rooms are ordered by created_at descending.
	SortScheduled bool
	// Cursor and CursorId are the sort value and id of the last row of the
	// previous page. Rows sharing the sort value are ordered by id.
	Cursor        *time.Time
	CursorId      int64
	Now           time.Time
	Limit         int
}

type CreateRatingParams struct {
	RoomId    int64
	RaterId   string
	RateeId   string
	Kind      string
	CreatedAt time.Time
}
