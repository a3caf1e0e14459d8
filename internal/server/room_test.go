package server

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/stats"
	"github.com/npezzotti/go-meetup/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRoom returns a room that is not running, so handlers can be called
// directly.
func newTestRoom(t *testing.T, svc *MockChatService, su *stats.MockStatsUpdater) *Room {
	t.Helper()
	cs := newTestChatServer(t, svc, su)
	r := newRoom(cs, "room1")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()
	t.Cleanup(func() { r.killTimer.Stop() })
	return r
}

func drain(c *Client) {
	for len(c.send) > 0 {
		<-c.send
	}
}

func Test_addClient_removeClient(t *testing.T) {
	r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
	c := newTestClient(t, "u1", "jane")

	r.addClient(c)
	assert.Contains(t, r.clients, c)
	assert.Contains(t, r.userMap, "u1")
	_, ok := c.getRoom("room1")
	assert.True(t, ok, "expected client to track the room")

	assert.True(t, r.removeClient(c))
	assert.NotContains(t, r.clients, c)
	assert.NotContains(t, r.userMap, "u1")
	_, ok = c.getRoom("room1")
	assert.False(t, ok)
	assert.True(t, r.killTimer.Stop(), "expected kill timer to start once the room is empty")

	assert.False(t, r.removeClient(c), "expected removing twice to report false")
}

func Test_handleRoomTimeout(t *testing.T) {
	t.Run("successfully unloads room", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})

		r.handleRoomTimeout()
		select {
		case req := <-r.cs.unloadRoomChan:
			assert.Equal(t, "room1", req.roomId)
			assert.False(t, req.deleted)
		default:
			t.Error("handleRoomTimeout did not send unload request")
		}
	})

	t.Run("unload channel is full", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		r.cs.unloadRoomChan = make(chan unloadRoomRequest, 1)
		r.cs.unloadRoomChan <- unloadRoomRequest{roomId: "another-room"}

		r.handleRoomTimeout()
		assert.True(t, r.killTimer.Stop(), "expected kill timer to be restarted after failed unload request")
	})
}

func Test_handleRoomExit(t *testing.T) {
	tcases := []struct {
		name    string
		deleted bool
	}{
		{name: "unloaded", deleted: false},
		{name: "deleted", deleted: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
			c := newTestClient(t, "u1", "jane")
			r.addClient(c)

			done := make(chan string, 1)
			r.handleRoomExit(exitReq{deleted: tc.deleted, done: done})

			assert.Equal(t, "room1", <-done)
			assert.Empty(t, r.clients)
			_, ok := c.getRoom("room1")
			assert.False(t, ok, "expected room to be removed from client")

			if tc.deleted {
				msg := nextMessage(t, c)
				require.NotNil(t, msg.Notification.RoomDeleted)
				assert.Equal(t, "room1", msg.Notification.RoomDeleted.RoomId)
			} else {
				assert.Len(t, c.send, 0)
			}
		})
	}
}

func Test_handleJoin(t *testing.T) {
	t.Run("participant joins", func(t *testing.T) {
		svc := &MockChatService{}
		defer svc.AssertExpectations(t)
		svc.On("IsParticipant", "room1", "u2").Return(true, nil).Once()
		svc.On("RoomEnded", "room1").Return(true, nil).Once()

		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.NumJoins).Return().Once()

		r := newTestRoom(t, svc, su)
		present := newTestClient(t, "u1", "jane")
		r.addClient(present)
		c := newTestClient(t, "u2", "bob")

		r.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 3}, Join: &Join{RoomId: "room1"}, client: c})

		resp := nextMessage(t, c)
		assert.Equal(t, 3, resp.Id)
		assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)
		result, ok := resp.Response.Data.(JoinResult)
		require.True(t, ok)
		assert.True(t, result.Ended)
		assert.Equal(t, []OnlineUser{{UserId: "u1", Nickname: "jane"}, {UserId: "u2", Nickname: "bob"}}, result.Online)

		ended, ok := c.session.Get(endedKey("room1"))
		assert.True(t, ok)
		assert.Equal(t, true, ended)

		userList := nextMessage(t, c)
		require.NotNil(t, userList.Notification.UserList)
		assert.Equal(t, 2, userList.Notification.UserList.Count)

		presence := nextMessage(t, present)
		require.NotNil(t, presence.Notification.Presence)
		assert.True(t, presence.Notification.Presence.Present)
		assert.Equal(t, "u2", presence.Notification.Presence.UserId)
		require.NotNil(t, nextMessage(t, present).Notification.UserList)
	})

	t.Run("second session skips presence", func(t *testing.T) {
		svc := &MockChatService{}
		svc.On("IsParticipant", "room1", "u1").Return(true, nil).Once()
		svc.On("RoomEnded", "room1").Return(false, nil).Once()
		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.NumJoins).Return().Once()

		r := newTestRoom(t, svc, su)
		first := newTestClient(t, "u1", "jane")
		r.addClient(first)
		second := newTestClient(t, "u1", "jane")

		r.handleJoin(&ClientMessage{Join: &Join{RoomId: "room1"}, client: second})

		msg := nextMessage(t, first)
		require.NotNil(t, msg.Notification.UserList, "expected only the user list")
		assert.Equal(t, 1, msg.Notification.UserList.Count)
		assert.Len(t, first.send, 0)
	})

	tcases := []struct {
		name   string
		ok     bool
		err    error
		status int
		code   string
	}{
		{name: "not a participant", ok: false, status: http.StatusForbidden, code: "NOT_PARTICIPANT"},
		{name: "room deleted", err: meetup.ErrRoomNotFound, status: http.StatusNotFound, code: "ROOM_NOT_FOUND"},
		{name: "database error", err: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockChatService{}
			defer svc.AssertExpectations(t)
			svc.On("IsParticipant", "room1", "u1").Return(tc.ok, tc.err).Once()

			r := newTestRoom(t, svc, &stats.MockStatsUpdater{})
			c := newTestClient(t, "u1", "jane")
			r.handleJoin(&ClientMessage{BaseMessage: BaseMessage{Id: 5}, Join: &Join{RoomId: "room1"}, client: c})

			msg := nextMessage(t, c)
			assert.Equal(t, tc.status, msg.Response.ResponseCode)
			assert.Equal(t, tc.code, msg.Response.Code)
			assert.Empty(t, r.clients)
			assert.True(t, r.killTimer.Stop(), "expected kill timer to restart for an empty room")
		})
	}
}

func Test_handleLeave(t *testing.T) {
	t.Run("client leaves", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		c1 := newTestClient(t, "u1", "jane")
		c2 := newTestClient(t, "u2", "bob")
		r.addClient(c1)
		r.addClient(c2)

		r.handleLeave(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, Leave: &Leave{RoomId: "room1"}, client: c2})

		resp := nextMessage(t, c2)
		assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)
		assert.Len(t, c2.send, 0, "expected no notifications after leaving")

		presence := nextMessage(t, c1)
		require.NotNil(t, presence.Notification.Presence)
		assert.False(t, presence.Notification.Presence.Present)
		assert.Equal(t, "u2", presence.Notification.Presence.UserId)
		userList := nextMessage(t, c1)
		assert.Equal(t, 1, userList.Notification.UserList.Count)
	})

	t.Run("disconnect is silent for the leaver", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		c := newTestClient(t, "u1", "jane")
		r.addClient(c)

		r.handleLeave(&ClientMessage{Leave: &Leave{RoomId: "room1"}, client: c, disconnect: true})
		assert.Len(t, c.send, 0)
		assert.Empty(t, r.clients)
	})

	t.Run("not in room", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		c := newTestClient(t, "u1", "jane")

		r.handleLeave(&ClientMessage{Leave: &Leave{RoomId: "room1"}, client: c})
		assert.Equal(t, http.StatusNotFound, nextMessage(t, c).Response.ResponseCode)
	})
}

func Test_handlePublish(t *testing.T) {
	stored := types.Message{Id: 11, RoomId: "room1", UserId: "u1", Nickname: "jane", Content: "hello", Timestamp: Now()}

	t.Run("stores and broadcasts", func(t *testing.T) {
		svc := &MockChatService{}
		defer svc.AssertExpectations(t)
		svc.On("RoomEnded", "room1").Return(false, nil).Once()
		svc.On("SendMessage", "room1", "u1", " hello ").Return(stored, nil).Once()
		su := &stats.MockStatsUpdater{}
		defer su.AssertExpectations(t)
		su.On("Incr", stats.NumMessages).Return().Once()

		r := newTestRoom(t, svc, su)
		sender := newTestClient(t, "u1", "jane")
		other := newTestClient(t, "u2", "bob")
		r.addClient(sender)
		r.addClient(other)

		r.handlePublish(&ClientMessage{BaseMessage: BaseMessage{Id: 8}, Publish: &Publish{RoomId: "room1", Content: " hello "}, client: sender})

		ack := nextMessage(t, sender)
		assert.Equal(t, 8, ack.Id)
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode)
		echoed := nextMessage(t, sender)
		require.NotNil(t, echoed.Message)
		assert.Equal(t, int64(11), echoed.Message.Id)

		got := nextMessage(t, other)
		require.NotNil(t, got.Message)
		assert.Equal(t, "hello", got.Message.Content)
		assert.Equal(t, "jane", got.Message.Nickname)
	})

	t.Run("cached ended flag rejects without storing", func(t *testing.T) {
		svc := &MockChatService{}
		defer svc.AssertExpectations(t)

		r := newTestRoom(t, svc, &stats.MockStatsUpdater{})
		c := newTestClient(t, "u1", "jane")
		r.addClient(c)
		c.session.Set(endedKey("room1"), true, endedFlagTTL)

		r.handlePublish(&ClientMessage{BaseMessage: BaseMessage{Id: 9}, Publish: &Publish{RoomId: "room1", Content: "late"}, client: c})

		msg := nextMessage(t, c)
		assert.Equal(t, http.StatusConflict, msg.Response.ResponseCode)
		assert.Equal(t, "ROOM_ENDED", msg.Response.Code)
		svc.AssertNotCalled(t, "SendMessage", "room1", "u1", "late")
	})

	t.Run("write path reports ended", func(t *testing.T) {
		svc := &MockChatService{}
		svc.On("RoomEnded", "room1").Return(false, nil).Once()
		svc.On("SendMessage", "room1", "u1", "hi").Return(types.Message{}, meetup.ErrRoomEnded).Once()

		r := newTestRoom(t, svc, &stats.MockStatsUpdater{})
		c := newTestClient(t, "u1", "jane")
		r.addClient(c)

		r.handlePublish(&ClientMessage{Publish: &Publish{RoomId: "room1", Content: "hi"}, client: c})

		assert.Equal(t, http.StatusConflict, nextMessage(t, c).Response.ResponseCode)
		ended, ok := c.session.Get(endedKey("room1"))
		assert.True(t, ok)
		assert.Equal(t, true, ended, "expected the flag to be cached after the rejection")
	})

	t.Run("validation error", func(t *testing.T) {
		svc := &MockChatService{}
		svc.On("RoomEnded", "room1").Return(false, nil).Once()
		svc.On("SendMessage", "room1", "u1", "").Return(types.Message{}, meetup.ErrValidation.WithMessage("content is required")).Once()

		r := newTestRoom(t, svc, &stats.MockStatsUpdater{})
		c := newTestClient(t, "u1", "jane")
		r.addClient(c)

		r.handlePublish(&ClientMessage{Publish: &Publish{RoomId: "room1"}, client: c})

		msg := nextMessage(t, c)
		assert.Equal(t, http.StatusBadRequest, msg.Response.ResponseCode)
		assert.Equal(t, "content is required", msg.Response.Error)
	})
}

func Test_handleSync(t *testing.T) {
	page := types.MessagePage{
		Messages:   []types.Message{{Id: 4, Content: "a"}, {Id: 5, Content: "b"}},
		HasMore:    true,
		NextCursor: 4,
	}

	svc := &MockChatService{}
	defer svc.AssertExpectations(t)
	svc.On("ListMessages", "room1", "u1", int64(10), 2).Return(page, nil).Once()
	svc.On("ListMessages", "room1", "u1", int64(-1), 0).Return(types.MessagePage{}, meetup.ErrValidation).Once()

	r := newTestRoom(t, svc, &stats.MockStatsUpdater{})
	c := newTestClient(t, "u1", "jane")

	r.handleSync(&ClientMessage{BaseMessage: BaseMessage{Id: 1}, Sync: &Sync{RoomId: "room1", Cursor: 10, Limit: 2}, client: c})
	msg := nextMessage(t, c)
	assert.Equal(t, http.StatusOK, msg.Response.ResponseCode)
	assert.Equal(t, page, msg.Response.Data)

	r.handleSync(&ClientMessage{BaseMessage: BaseMessage{Id: 2}, Sync: &Sync{RoomId: "room1", Cursor: -1}, client: c})
	assert.Equal(t, http.StatusBadRequest, nextMessage(t, c).Response.ResponseCode)
}

func Test_handleTyping(t *testing.T) {
	r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
	typist := newTestClient(t, "u1", "jane")
	other := newTestClient(t, "u2", "bob")
	r.addClient(typist)
	r.addClient(other)

	r.handleTyping(&ClientMessage{Typing: &Typing{RoomId: "room1", Typing: true}, client: typist})

	assert.Len(t, typist.send, 0, "expected typist not to hear themselves")
	msg := nextMessage(t, other)
	require.NotNil(t, msg.Notification.Typing)
	assert.Equal(t, TypingNotice{RoomId: "room1", UserId: "u1", Nickname: "jane", Typing: true}, *msg.Notification.Typing)
}

func Test_handleEvent(t *testing.T) {
	t.Run("room ended", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		c1 := newTestClient(t, "u1", "jane")
		c2 := newTestClient(t, "u2", "bob")
		r.addClient(c1)
		r.addClient(c2)
		c2.session.Set(endedKey("room1"), false, endedFlagTTL)

		r.handleEvent(meetup.Event{Kind: meetup.EventRoomEnded, RoomId: "room1"})

		for _, c := range []*Client{c1, c2} {
			ended, ok := c.session.Get(endedKey("room1"))
			assert.True(t, ok)
			assert.Equal(t, true, ended, "expected ended flag to be overwritten for %s", c.user.Id)
			msg := nextMessage(t, c)
			require.NotNil(t, msg.Notification.RoomEnded)
		}
	})

	t.Run("kicked", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		host := newTestClient(t, "host", "jane")
		target := newTestClient(t, "u2", "bob")
		targetTab := newTestClient(t, "u2", "bob")
		r.addClient(host)
		r.addClient(target)
		r.addClient(targetTab)

		r.handleEvent(meetup.Event{Kind: meetup.EventKicked, RoomId: "room1", UserId: "u2"})

		for _, c := range []*Client{target, targetTab} {
			msg := nextMessage(t, c)
			require.NotNil(t, msg.Notification.Kicked)
			assert.Equal(t, "u2", msg.Notification.Kicked.UserId)
			assert.Len(t, c.send, 0)
			_, ok := c.getRoom("room1")
			assert.False(t, ok)
		}

		presence := nextMessage(t, host)
		require.NotNil(t, presence.Notification.Presence)
		assert.False(t, presence.Notification.Presence.Present)
		userList := nextMessage(t, host)
		assert.Equal(t, []OnlineUser{{UserId: "host", Nickname: "jane"}}, userList.Notification.UserList.Users)
	})

	t.Run("kicked user not connected", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		host := newTestClient(t, "host", "jane")
		r.addClient(host)

		r.handleEvent(meetup.Event{Kind: meetup.EventKicked, RoomId: "room1", UserId: "u2"})
		assert.Len(t, host.send, 0)
	})

	t.Run("left", func(t *testing.T) {
		r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
		host := newTestClient(t, "host", "jane")
		leaver := newTestClient(t, "u2", "bob")
		leaverTab := newTestClient(t, "u2", "bob")
		r.addClient(host)
		r.addClient(leaver)
		r.addClient(leaverTab)

		r.handleEvent(meetup.Event{Kind: meetup.EventLeft, RoomId: "room1", UserId: "u2"})

		presence := nextMessage(t, host)
		require.NotNil(t, presence.Notification.Presence)
		assert.False(t, presence.Notification.Presence.Present)
		assert.Equal(t, "u2", presence.Notification.Presence.UserId)
		userList := nextMessage(t, host)
		assert.Equal(t, []OnlineUser{{UserId: "host", Nickname: "jane"}}, userList.Notification.UserList.Users)

		r.broadcastMessage(types.Message{Id: 4, RoomId: "room1", Content: "after leave"})
		msg := nextMessage(t, host)
		require.NotNil(t, msg.Message)

		for _, c := range []*Client{leaver, leaverTab} {
			assert.Len(t, c.send, 0, "expected no traffic for a user who left")
			_, ok := c.getRoom("room1")
			assert.False(t, ok)
		}
		assert.Equal(t, 1, r.numClients())
	})
}

func Test_broadcastMessage(t *testing.T) {
	r := newTestRoom(t, &MockChatService{}, &stats.MockStatsUpdater{})
	c := newTestClient(t, "u1", "jane")
	r.addClient(c)

	r.broadcastMessage(types.Message{Id: 3, RoomId: "room1", Content: "via http"})

	msg := nextMessage(t, c)
	require.NotNil(t, msg.Message)
	assert.Equal(t, "via http", msg.Message.Content)
	assert.False(t, msg.Timestamp.IsZero())
	drain(c)
}
