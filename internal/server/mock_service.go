package server

import (
	"context"

	"github.com/npezzotti/go-meetup/internal/types"
	"github.com/stretchr/testify/mock"
)

// MockChatService records calls without the context argument.
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) IsParticipant(ctx context.Context, roomId, userId string) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatService) RoomEnded(ctx context.Context, roomId string) (bool, error) {
	args := m.Called(roomId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatService) SendMessage(ctx context.Context, roomId, userId, content string) (types.Message, error) {
	args := m.Called(roomId, userId, content)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockChatService) ListMessages(ctx context.Context, roomId, userId string, cursor int64, limit int) (types.MessagePage, error) {
	args := m.Called(roomId, userId, cursor, limit)
	return args.Get(0).(types.MessagePage), args.Error(1)
}
