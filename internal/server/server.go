package server

import (
	"context"
	"errors"
	"sync"

	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/stats"
	"github.com/npezzotti/go-meetup/internal/types"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// ChatService is the part of the meetup service the hub relies on.
type ChatService interface {
	IsParticipant(ctx context.Context, roomId, userId string) (bool, error)
	RoomEnded(ctx context.Context, roomId string) (bool, error)
	SendMessage(ctx context.Context, roomId, userId, content string) (types.Message, error)
	ListMessages(ctx context.Context, roomId, userId string, cursor int64, limit int) (types.MessagePage, error)
}

type unloadRoomRequest struct {
	roomId  string
	deleted bool
}

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log            zerolog.Logger
	svc            ChatService
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	userMap        map[string]map[*Client]struct{}
	clientsLock    sync.RWMutex
	roomsMap       sync.Map
	numRooms       int
	numRoomsLock   sync.Mutex
	joinChan       chan *ClientMessage
	unloadRoomChan chan unloadRoomRequest
	eventChan      chan meetup.Event
	stop           chan stopReq
}

func NewChatServer(logger zerolog.Logger, svc ChatService, su stats.StatsProvider) (*ChatServer, error) {
	if svc == nil {
		return nil, errors.New("chat service is required")
	}

	for _, m := range stats.Metrics {
		su.RegisterMetric(m)
	}

	return &ChatServer{
		log:            logger,
		svc:            svc,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[string]map[*Client]struct{}),
		joinChan:       make(chan *ClientMessage, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		eventChan:      make(chan meetup.Event, 256),
		stop:           make(chan stopReq),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRoom(joinMsg)
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req.roomId, req.deleted)
		case ev := <-cs.eventChan:
			cs.handleEvent(ev)
		case req := <-cs.stop:
			cs.log.Info().Msg("shutting down rooms")
			cs.unloadAllRooms()

			cs.clientsLock.RLock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.RUnlock()

			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) handleJoinRoom(msg *ClientMessage) {
	roomId := msg.Join.RoomId
	if r, ok := cs.getRoom(roomId); ok {
		select {
		case r.joinChan <- msg:
		default:
			cs.log.Warn().Str("room_id", roomId).Msg("join channel full")
			msg.client.queueMessage(ErrServiceUnavailable(msg.Id))
		}
		return
	}

	r := newRoom(cs, roomId)
	cs.addRoom(roomId, r)
	r.joinChan <- msg
	go r.start()
}

// Notify delivers a committed room change to the hub. It never blocks the
// caller.
func (cs *ChatServer) Notify(ev meetup.Event) {
	select {
	case cs.eventChan <- ev:
	default:
		cs.log.Warn().Str("room_id", ev.RoomId).Str("kind", string(ev.Kind)).Msg("event channel full, dropping event")
	}
}

func (cs *ChatServer) handleEvent(ev meetup.Event) {
	r, ok := cs.getRoom(ev.RoomId)
	if !ok {
		return
	}

	if ev.Kind == meetup.EventRoomDeleted {
		cs.unloadRoom(ev.RoomId, true)
		return
	}

	select {
	case r.eventChan <- ev:
	default:
		cs.log.Warn().Str("room_id", ev.RoomId).Msg("room event channel full")
	}
}

// Publish fans out a message that was stored through the HTTP API to the
// room's connected clients.
func (cs *ChatServer) Publish(m types.Message) {
	if r, ok := cs.getRoom(m.RoomId); ok {
		r.broadcastMessage(m)
	}
	cs.stats.Incr(stats.NumMessages)
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}
	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) DeRegisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}
	cs.stats.Decr(stats.NumActiveClients)
}

func (cs *ChatServer) addRoom(id string, r *Room) {
	cs.roomsMap.Store(id, r)

	cs.numRoomsLock.Lock()
	cs.numRooms++
	cs.numRoomsLock.Unlock()
	cs.stats.Incr(stats.NumActiveRooms)
}

func (cs *ChatServer) removeRoom(id string) (*Room, bool) {
	v, ok := cs.roomsMap.LoadAndDelete(id)
	if !ok {
		return nil, false
	}

	cs.numRoomsLock.Lock()
	cs.numRooms--
	cs.numRoomsLock.Unlock()
	cs.stats.Decr(stats.NumActiveRooms)
	return v.(*Room), true
}

func (cs *ChatServer) getRoom(id string) (*Room, bool) {
	v, ok := cs.roomsMap.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Room), true
}

// UnloadRoom asks the hub to stop a loaded room. Connected clients are told
// when deleted is set.
func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string, deleted bool) error {
	if roomId == "" {
		return errors.New("roomId cannot be empty")
	}

	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId, deleted: deleted}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) unloadRoom(roomId string, deleted bool) {
	r, ok := cs.removeRoom(roomId)
	if !ok {
		return
	}

	done := make(chan string, 1)
	r.exit <- exitReq{deleted: deleted, done: done}
	<-done
	cs.log.Debug().Str("room_id", roomId).Msg("room unloaded")
}

func (cs *ChatServer) unloadAllRooms() {
	var ids []string
	cs.roomsMap.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})

	var wg conc.WaitGroup
	for _, id := range ids {
		wg.Go(func() { cs.unloadRoom(id, false) })
	}
	wg.Wait()
}

// Shutdown unloads every room and disconnects all clients.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info().Msg("received shutdown signal")
	done := make(chan struct{})

	select {
	case cs.stop <- stopReq{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
