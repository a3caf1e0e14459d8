package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Join    *Join    `json:"join,omitempty"`
	Leave   *Leave   `json:"leave,omitempty"`
	Publish *Publish `json:"publish,omitempty"`
	Sync    *Sync    `json:"sync,omitempty"`
	Typing  *Typing  `json:"typing,omitempty"`
	UserId  string   `json:"-"`
	client  *Client  `json:"-"`
	// disconnect marks leave messages generated when the connection closes.
	disconnect bool
}

// GetUserId returns the id of the user that sent the message.
func (cm *ClientMessage) GetUserId() string {
	if cm.UserId != "" {
		return cm.UserId
	}
	if cm.client != nil {
		return cm.client.user.Id
	}
	return ""
}

// RoomId returns the room the command is addressed to.
func (cm *ClientMessage) RoomId() string {
	switch {
	case cm.Join != nil:
		return cm.Join.RoomId
	case cm.Leave != nil:
		return cm.Leave.RoomId
	case cm.Publish != nil:
		return cm.Publish.RoomId
	case cm.Sync != nil:
		return cm.Sync.RoomId
	case cm.Typing != nil:
		return cm.Typing.RoomId
	}
	return ""
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Publish struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

// Sync requests a page of history older than Cursor.
type Sync struct {
	RoomId string `json:"room_id"`
	Cursor int64  `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type Typing struct {
	RoomId string `json:"room_id"`
	Typing bool   `json:"typing"`
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	UserId       string         `json:"-"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence    *Presence     `json:"presence,omitempty"`
	UserList    *UserList     `json:"user_list,omitempty"`
	Typing      *TypingNotice `json:"typing,omitempty"`
	RoomEnded   *RoomEnded    `json:"room_ended,omitempty"`
	RoomDeleted *RoomDeleted  `json:"room_deleted,omitempty"`
	Kicked      *Kicked       `json:"kicked,omitempty"`
}

type Presence struct {
	Present bool   `json:"present"`
	UserId  string `json:"user_id"`
	RoomId  string `json:"room_id"`
}

type OnlineUser struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
}

type UserList struct {
	RoomId string       `json:"room_id"`
	Count  int          `json:"count"`
	Users  []OnlineUser `json:"users"`
}

type TypingNotice struct {
	RoomId   string `json:"room_id"`
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Typing   bool   `json:"typing"`
}

type RoomEnded struct {
	RoomId string `json:"room_id"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

type Kicked struct {
	RoomId string `json:"room_id"`
	UserId string `json:"user_id"`
}

// JoinResult is the data returned to a client that joined a room.
type JoinResult struct {
	RoomId string       `json:"room_id"`
	Ended  bool         `json:"ended"`
	Online []OnlineUser `json:"online"`
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func errResponse(id, status int, code, message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: status,
			Code:         code,
			Error:        message,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return errResponse(id, http.StatusNotFound, meetup.ErrRoomNotFound.Code, "room not found")
}

func ErrInternalError(id int) *ServerMessage {
	return errResponse(id, http.StatusInternalServerError, "", "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errResponse(id, http.StatusServiceUnavailable, "", "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	return errResponse(id, http.StatusBadRequest, meetup.ErrValidation.Code, "invalid message format")
}

// ErrFromService reports a failed service call to the sender with the same
// status and code the HTTP API uses.
func ErrFromService(id int, err error) *ServerMessage {
	var e *meetup.Error
	if !errors.As(err, &e) {
		return ErrInternalError(id)
	}
	return errResponse(id, meetup.HTTPStatus(err), e.Code, e.Message)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
