package meetup

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

const (
	defaultMessageLimit = 30
	maxMessageLimit     = 100
	maxMessageLength    = 1000
)

// SendMessage stores a chat message from a participant of a room that has not
// ended yet.
func (s *Service) SendMessage(ctx context.Context, roomId, userId, content string) (types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Message{}, validationError("message cannot be empty")
	}
	if len([]rune(content)) > maxMessageLength {
		return types.Message{}, validationError("message must be at most %d characters", maxMessageLength)
	}

	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Message{}, err
	}
	if _, err := s.participant(ctx, s.repo, room, userId); err != nil {
		return types.Message{}, err
	}

	now := s.now()
	if !now.Before(room.EndedAt) {
		return types.Message{}, ErrRoomEnded
	}

	msg, err := s.repo.CreateMessage(ctx, database.Message{
		RoomId:    room.Id,
		UserId:    userId,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	return toMessage(msg, roomId), nil
}

// ListMessages returns the page of messages older than cursor, oldest first.
// A zero cursor starts from the latest message.
func (s *Service) ListMessages(ctx context.Context, roomId, userId string, cursor int64, limit int) (types.MessagePage, error) {
	if cursor < 0 {
		return types.MessagePage{}, validationError("invalid cursor")
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	if _, err := s.CheckAndAutoEnd(ctx, roomId); err != nil {
		return types.MessagePage{}, err
	}

	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.MessagePage{}, err
	}
	if _, err := s.participant(ctx, s.repo, room, userId); err != nil {
		return types.MessagePage{}, err
	}

	msgs, err := s.repo.GetMessages(ctx, room.Id, cursor, limit+1)
	if err != nil {
		return types.MessagePage{}, fmt.Errorf("get messages: %w", err)
	}

	page := types.MessagePage{}
	if len(msgs) > limit {
		page.HasMore = true
		msgs = msgs[:limit]
		page.NextCursor = msgs[len(msgs)-1].Id
	}

	slices.Reverse(msgs)
	page.Messages = make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		page.Messages = append(page.Messages, toMessage(m, roomId))
	}

	return page, nil
}

func toMessage(m database.Message, roomId string) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    roomId,
		UserId:    m.UserId,
		Nickname:  m.Nickname,
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}
