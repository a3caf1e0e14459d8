package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockMeetupRepository records calls without the context argument. WithTx runs
// the callback against the mock itself.
type MockMeetupRepository struct {
	mock.Mock
}

func (m *MockMeetupRepository) GetUserById(ctx context.Context, userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMeetupRepository) GetUserBySocialId(ctx context.Context, socialId string) (User, error) {
	args := m.Called(socialId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMeetupRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMeetupRepository) LockUser(ctx context.Context, userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMeetupRepository) UpdateNickname(ctx context.Context, userId, nickname string, now time.Time) (User, error) {
	args := m.Called(userId, nickname, now)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMeetupRepository) UpdateBio(ctx context.Context, userId, bio string, now time.Time) error {
	args := m.Called(userId, bio, now)
	return args.Error(0)
}
func (m *MockMeetupRepository) UpdateLocation(ctx context.Context, userId, location string, now time.Time) error {
	args := m.Called(userId, location, now)
	return args.Error(0)
}
func (m *MockMeetupRepository) SoftDeleteUser(ctx context.Context, userId string, now time.Time) error {
	args := m.Called(userId, now)
	return args.Error(0)
}
func (m *MockMeetupRepository) IncrementJoinState(ctx context.Context, userId string) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockMeetupRepository) DecrementJoinState(ctx context.Context, userIds []string) error {
	args := m.Called(userIds)
	return args.Error(0)
}
func (m *MockMeetupRepository) ApplyLikeTemp(ctx context.Context, userId string, delta float64) (float64, error) {
	args := m.Called(userId, delta)
	return args.Get(0).(float64), args.Error(1)
}
func (m *MockMeetupRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockMeetupRepository) GetRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockMeetupRepository) LockRoomByExternalId(ctx context.Context, externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockMeetupRepository) LockLiveRoomByHost(ctx context.Context, hostId string) (Room, error) {
	args := m.Called(hostId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockMeetupRepository) UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockMeetupRepository) DeactivateRoom(ctx context.Context, roomId int64, now time.Time) error {
	args := m.Called(roomId, now)
	return args.Error(0)
}
func (m *MockMeetupRepository) EndRoom(ctx context.Context, roomId int64, endedAt time.Time) error {
	args := m.Called(roomId, endedAt)
	return args.Error(0)
}
func (m *MockMeetupRepository) FinalizeRoom(ctx context.Context, roomId int64, now time.Time) error {
	args := m.Called(roomId, now)
	return args.Error(0)
}
func (m *MockMeetupRepository) SetAttendanceChecked(ctx context.Context, roomId int64, checkedAt time.Time) error {
	args := m.Called(roomId, checkedAt)
	return args.Error(0)
}
func (m *MockMeetupRepository) ListRooms(ctx context.Context, params ListRoomsParams) ([]Room, error) {
	args := m.Called(params)
	v, _ := args.Get(0).([]Room)
	return v, args.Error(1)
}
func (m *MockMeetupRepository) ListActiveRoomsForUser(ctx context.Context, userId string) ([]Room, error) {
	args := m.Called(userId)
	v, _ := args.Get(0).([]Room)
	return v, args.Error(1)
}
func (m *MockMeetupRepository) CreateParticipant(ctx context.Context, roomId int64, userId string, joinedAt time.Time) error {
	args := m.Called(roomId, userId, joinedAt)
	return args.Error(0)
}
func (m *MockMeetupRepository) DeleteParticipant(ctx context.Context, roomId int64, userId string) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockMeetupRepository) DeleteParticipants(ctx context.Context, roomId int64) ([]string, error) {
	args := m.Called(roomId)
	v, _ := args.Get(0).([]string)
	return v, args.Error(1)
}
func (m *MockMeetupRepository) GetParticipant(ctx context.Context, roomId int64, userId string) (Participant, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockMeetupRepository) ListParticipants(ctx context.Context, roomId int64) ([]Participant, error) {
	args := m.Called(roomId)
	v, _ := args.Get(0).([]Participant)
	return v, args.Error(1)
}
func (m *MockMeetupRepository) CountParticipants(ctx context.Context, roomId int64) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockMeetupRepository) MarkAttended(ctx context.Context, roomId int64, userIds []string) ([]string, error) {
	args := m.Called(roomId, userIds)
	v, _ := args.Get(0).([]string)
	return v, args.Error(1)
}
func (m *MockMeetupRepository) MarkAbsentExcept(ctx context.Context, roomId int64, attendedIds []string) ([]string, error) {
	args := m.Called(roomId, attendedIds)
	v, _ := args.Get(0).([]string)
	return v, args.Error(1)
}
func (m *MockMeetupRepository) CountUnmarkedParticipants(ctx context.Context, roomId int64) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockMeetupRepository) IsBlacklisted(ctx context.Context, roomId int64, userId string) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockMeetupRepository) CreateBlacklistEntry(ctx context.Context, roomId int64, userId, kickedBy string, now time.Time) error {
	args := m.Called(roomId, userId, kickedBy, now)
	return args.Error(0)
}
func (m *MockMeetupRepository) RatingExists(ctx context.Context, roomId int64, raterId, rateeId string) (bool, error) {
	args := m.Called(roomId, raterId, rateeId)
	return args.Bool(0), args.Error(1)
}
func (m *MockMeetupRepository) CreateRating(ctx context.Context, params CreateRatingParams) (bool, error) {
	args := m.Called(params)
	return args.Bool(0), args.Error(1)
}
func (m *MockMeetupRepository) CreateMessage(ctx context.Context, msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockMeetupRepository) GetMessages(ctx context.Context, roomId int64, before int64, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	v, _ := args.Get(0).([]Message)
	return v, args.Error(1)
}

func (m *MockMeetupRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockMeetupRepository) WithTx(ctx context.Context, fn func(q Queries) error) error {
	return fn(m)
}

func (m *MockMeetupRepository) Close() error {
	return nil
}
