package server

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/stats"
	"github.com/npezzotti/go-meetup/internal/types"
	"github.com/rs/zerolog"
)

const (
	idleRoomTimeout = time.Second * 5
	// endedFlagTTL bounds how long a connection trusts its cached ended flag.
	endedFlagTTL   = 10 * time.Second
	serviceTimeout = 5 * time.Second
)

type exitReq struct {
	deleted bool
	done    chan string
}

type Room struct {
	externalId    string
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	eventChan     chan meetup.Event
	clients       map[*Client]struct{}
	userMap       map[string]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           zerolog.Logger
	// killTimer unloads the room once it has been empty for idleRoomTimeout
	killTimer *time.Timer
	exit      chan exitReq
}

func newRoom(cs *ChatServer, roomId string) *Room {
	return &Room{
		externalId:    roomId,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		eventChan:     make(chan meetup.Event, 16),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[string]map[*Client]struct{}),
		log:           cs.log.With().Str("room_id", roomId).Logger(),
		exit:          make(chan exitReq),
	}
}

func (r *Room) start() {
	r.log.Debug().Msg("starting room")
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Publish != nil:
				r.handlePublish(msg)
			case msg.Sync != nil:
				r.handleSync(msg)
			case msg.Typing != nil:
				r.handleTyping(msg)
			}
		case ev := <-r.eventChan:
			r.handleEvent(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func serviceContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), serviceTimeout)
}

func (r *Room) handleRoomTimeout() {
	r.log.Debug().Msg("room timed out")
	select {
	case r.cs.unloadRoomChan <- unloadRoomRequest{roomId: r.externalId}:
	default:
		// hub is busy, try again later
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Debug().Bool("deleted", e.deleted).Msg("room is exiting")
	if e.deleted {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				RoomDeleted: &RoomDeleted{RoomId: r.externalId},
			},
		})
	}

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clients = make(map[*Client]struct{})
	r.userMap = make(map[string]map[*Client]struct{})
	r.clientLock.Unlock()

	if e.done != nil {
		e.done <- r.externalId
	}
}

func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	ctx, cancel := serviceContext()
	defer cancel()

	ok, err := r.cs.svc.IsParticipant(ctx, r.externalId, c.user.Id)
	if err == nil && !ok {
		err = meetup.ErrNotParticipant
	}
	if err != nil {
		// reset timer since client join failed
		if r.numClients() == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		r.log.Debug().Err(err).Str("user_id", c.user.Id).Msg("join rejected")
		c.queueMessage(ErrFromService(join.Id, err))
		return
	}

	ended, err := r.cs.svc.RoomEnded(ctx, r.externalId)
	if err != nil {
		r.log.Warn().Err(err).Msg("RoomEnded")
	} else {
		c.session.Set(endedKey(r.externalId), ended, endedFlagTTL)
	}

	r.clientLock.RLock()
	firstSession := r.userMap[c.user.Id] == nil
	r.clientLock.RUnlock()

	r.addClient(c)
	r.cs.stats.Incr(stats.NumJoins)

	c.queueMessage(NoErrOK(join.Id, JoinResult{
		RoomId: r.externalId,
		Ended:  ended,
		Online: r.onlineUsers(),
	}))

	if firstSession {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present: true,
					RoomId:  r.externalId,
					UserId:  c.user.Id,
				},
			},
			SkipClient: c,
		})
	}
	r.broadcastUserList()
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	client := leaveMsg.client
	if !r.removeClient(client) {
		if !leaveMsg.disconnect {
			client.queueMessage(ErrRoomNotFound(leaveMsg.Id))
		}
		return
	}

	if !leaveMsg.disconnect {
		client.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	r.userLeft(client.user.Id)
}

// userLeft announces a user going offline once their last session is gone.
func (r *Room) userLeft(userId string) {
	r.clientLock.RLock()
	online := r.userMap[userId] != nil
	r.clientLock.RUnlock()

	if !online {
		r.broadcast(&ServerMessage{
			Notification: &Notification{
				Presence: &Presence{
					Present: false,
					RoomId:  r.externalId,
					UserId:  userId,
				},
			},
		})
	}
	r.broadcastUserList()
}

// isEnded reports the cached ended flag for c, refreshing it from the
// service once it expires.
func (r *Room) isEnded(ctx context.Context, c *Client) bool {
	key := endedKey(r.externalId)
	if v, ok := c.session.Get(key); ok {
		if ended, ok := v.(bool); ok {
			return ended
		}
	}

	ended, err := r.cs.svc.RoomEnded(ctx, r.externalId)
	if err != nil {
		// the write path checks again
		r.log.Warn().Err(err).Msg("RoomEnded")
		return false
	}
	c.session.Set(key, ended, endedFlagTTL)
	return ended
}

func (r *Room) handlePublish(msg *ClientMessage) {
	c := msg.client
	ctx, cancel := serviceContext()
	defer cancel()

	if r.isEnded(ctx, c) {
		c.queueMessage(ErrFromService(msg.Id, meetup.ErrRoomEnded))
		return
	}

	m, err := r.cs.svc.SendMessage(ctx, r.externalId, c.user.Id, msg.Publish.Content)
	if err != nil {
		if errors.Is(err, meetup.ErrRoomEnded) {
			c.session.Set(endedKey(r.externalId), true, endedFlagTTL)
		}
		r.log.Debug().Err(err).Str("user_id", c.user.Id).Msg("SendMessage")
		c.queueMessage(ErrFromService(msg.Id, err))
		return
	}

	r.cs.stats.Incr(stats.NumMessages)
	c.queueMessage(NoErrAccepted(msg.Id))
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id},
		Message:     &m,
	})
}

func (r *Room) handleSync(msg *ClientMessage) {
	ctx, cancel := serviceContext()
	defer cancel()

	page, err := r.cs.svc.ListMessages(ctx, r.externalId, msg.client.user.Id, msg.Sync.Cursor, msg.Sync.Limit)
	if err != nil {
		r.log.Debug().Err(err).Msg("ListMessages")
		msg.client.queueMessage(ErrFromService(msg.Id, err))
		return
	}

	msg.client.queueMessage(NoErrOK(msg.Id, page))
}

func (r *Room) handleTyping(msg *ClientMessage) {
	r.broadcast(&ServerMessage{
		Notification: &Notification{
			Typing: &TypingNotice{
				RoomId:   r.externalId,
				UserId:   msg.client.user.Id,
				Nickname: msg.client.user.Nickname,
				Typing:   msg.Typing.Typing,
			},
		},
		SkipClient: msg.client,
	})
}

func (r *Room) handleEvent(ev meetup.Event) {
	switch ev.Kind {
	case meetup.EventRoomEnded:
		r.clientLock.RLock()
		for c := range r.clients {
			c.session.Set(endedKey(r.externalId), true, endedFlagTTL)
		}
		r.clientLock.RUnlock()

		r.broadcast(&ServerMessage{
			Notification: &Notification{
				RoomEnded: &RoomEnded{RoomId: r.externalId},
			},
		})
	case meetup.EventKicked:
		kicked := &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Notification: &Notification{
				Kicked: &Kicked{RoomId: r.externalId, UserId: ev.UserId},
			},
		}
		for _, c := range r.userClients(ev.UserId) {
			c.queueMessage(kicked)
		}
		if r.removeAllClientsForUser(ev.UserId) {
			r.userLeft(ev.UserId)
		}
	case meetup.EventLeft:
		// the membership is gone, so every socket of the user stops listening
		if r.removeAllClientsForUser(ev.UserId) {
			r.userLeft(ev.UserId)
		}
	}
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

// removeClient reports whether c was in the room.
func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Debug().Msg("no clients left, starting kill timer")
		r.killTimer.Reset(idleRoomTimeout)
	}
	return true
}

// removeAllClientsForUser reports whether the user had any session in the room.
func (r *Room) removeAllClientsForUser(userId string) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	userClients, ok := r.userMap[userId]
	if !ok {
		return false
	}
	for client := range userClients {
		delete(r.clients, client)
		client.delRoom(r.externalId)
	}
	delete(r.userMap, userId)

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
	return true
}

func (r *Room) userClients(userId string) []*Client {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	clients := make([]*Client, 0, len(r.userMap[userId]))
	for c := range r.userMap[userId] {
		clients = append(clients, c)
	}
	return clients
}

func (r *Room) numClients() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()
	return len(r.clients)
}

// onlineUsers lists users with at least one open session, ordered by id.
func (r *Room) onlineUsers() []OnlineUser {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	users := make([]OnlineUser, 0, len(r.userMap))
	for id, clients := range r.userMap {
		u := OnlineUser{UserId: id}
		for c := range clients {
			u.Nickname = c.user.Nickname
			break
		}
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b OnlineUser) int {
		return strings.Compare(a.UserId, b.UserId)
	})
	return users
}

func (r *Room) broadcastUserList() {
	users := r.onlineUsers()
	r.broadcast(&ServerMessage{
		Notification: &Notification{
			UserList: &UserList{
				RoomId: r.externalId,
				Count:  len(users),
				Users:  users,
			},
		},
	})
}

// broadcastMessage fans out a message that was stored outside this room's
// websocket connections.
func (r *Room) broadcastMessage(m types.Message) {
	r.broadcast(&ServerMessage{Message: &m})
}

func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}
