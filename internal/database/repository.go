package database

import (
	"context"
	"time"
)

// Queries is the set of single statements the service layer composes. Every
// method runs either directly on the pool or inside a transaction handed out by
// MeetupRepository.WithTx.
type Queries interface {
	GetUserById(ctx context.Context, userId string) (User, error)
	GetUserBySocialId(ctx context.Context, socialId string) (User, error)
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	LockUser(ctx context.Context, userId string) (User, error)
	UpdateNickname(ctx context.Context, userId, nickname string, now time.Time) (User, error)
	UpdateBio(ctx context.Context, userId, bio string, now time.Time) error
	UpdateLocation(ctx context.Context, userId, location string, now time.Time) error
	SoftDeleteUser(ctx context.Context, userId string, now time.Time) error
	IncrementJoinState(ctx context.Context, userId string) error
	DecrementJoinState(ctx context.Context, userIds []string) error
	ApplyLikeTemp(ctx context.Context, userId string, delta float64) (float64, error)

	CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error)
	GetRoomByExternalId(ctx context.Context, externalId string) (Room, error)
	LockRoomByExternalId(ctx context.Context, externalId string) (Room, error)
	LockLiveRoomByHost(ctx context.Context, hostId string) (Room, error)
	UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error)
	DeactivateRoom(ctx context.Context, roomId int64, now time.Time) error
	EndRoom(ctx context.Context, roomId int64, endedAt time.Time) error
	FinalizeRoom(ctx context.Context, roomId int64, now time.Time) error
	SetAttendanceChecked(ctx context.Context, roomId int64, checkedAt time.Time) error
	ListRooms(ctx context.Context, params ListRoomsParams) ([]Room, error)
	ListActiveRoomsForUser(ctx context.Context, userId string) ([]Room, error)

	CreateParticipant(ctx context.Context, roomId int64, userId string, joinedAt time.Time) error
	DeleteParticipant(ctx context.Context, roomId int64, userId string) error
	DeleteParticipants(ctx context.Context, roomId int64) ([]string, error)
	GetParticipant(ctx context.Context, roomId int64, userId string) (Participant, error)
	ListParticipants(ctx context.Context, roomId int64) ([]Participant, error)
	CountParticipants(ctx context.Context, roomId int64) (int, error)
	MarkAttended(ctx context.Context, roomId int64, userIds []string) ([]string, error)
	MarkAbsentExcept(ctx context.Context, roomId int64, attendedIds []string) ([]string, error)
	CountUnmarkedParticipants(ctx context.Context, roomId int64) (int, error)

	IsBlacklisted(ctx context.Context, roomId int64, userId string) (bool, error)
	CreateBlacklistEntry(ctx context.Context, roomId int64, userId, kickedBy string, now time.Time) error

	RatingExists(ctx context.Context, roomId int64, raterId, rateeId string) (bool, error)
	CreateRating(ctx context.Context, params CreateRatingParams) (bool, error)

	CreateMessage(ctx context.Context, msg Message) (Message, error)
	GetMessages(ctx context.Context, roomId int64, before int64, limit int) ([]Message, error)
}

type MeetupRepository interface {
	Queries
	Ping(ctx context.Context) error
	// WithTx runs fn inside a single transaction. The transaction is committed
	// when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
