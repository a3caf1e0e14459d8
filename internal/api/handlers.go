package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/server"
	"github.com/npezzotti/go-meetup/internal/types"
)

const maxBodyBytes = 1 << 20

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type ChangeNicknameRequest struct {
	Nickname string `json:"nickname"`
}

type UpdateBioRequest struct {
	Bio string `json:"bio"`
}

type UpdateLocationRequest struct {
	Location string `json:"location"`
}

type CreateRoomRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Thumbnail       string    `json:"thumbnail"`
	MaxParticipants int       `json:"max_participants"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

type UpdateRoomRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Thumbnail       *string `json:"thumbnail"`
	MaxParticipants *int    `json:"max_participants"`
}

type KickRequest struct {
	UserId string `json:"user_id"`
}

type AttendanceRequest struct {
	UserIds []string `json:"user_ids"`
}

type RateRequest struct {
	UserId string `json:"user_id"`
	Kind   string `json:"kind"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type EndRoomResponse struct {
	EndedAt time.Time `json:"ended_at"`
}

func (s *MeetupApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

// writeError reports a service error. Only unexpected failures are logged.
func (s *MeetupApp) writeError(w http.ResponseWriter, err error) {
	errResp := NewServiceError(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

// decodeJson reads the request body into v and answers 400 when it cannot.
func (s *MeetupApp) decodeJson(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return false
	}
	return true
}

func (s *MeetupApp) requireUserId(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
	return userId, ok
}

func (s *MeetupApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *MeetupApp) getProfile(w http.ResponseWriter, r *http.Request) {
	s.session(w, r)
}

func (s *MeetupApp) changeNickname(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req ChangeNicknameRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	user, err := s.svc.ChangeNickname(r.Context(), userId, req.Nickname)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func (s *MeetupApp) updateBio(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req UpdateBioRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if err := s.svc.UpdateBio(r.Context(), userId, req.Bio); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) updateLocation(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if err := s.svc.UpdateLocation(r.Context(), userId, req.Location); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeleteAccount(r.Context(), userId); err != nil {
		s.writeError(w, err)
		return
	}

	http.SetCookie(w, createJwtCookie("", 0))
	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) listMyRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	rooms, err := s.svc.ListMyRooms(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *MeetupApp) listEmblems(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, meetup.Emblems())
}

func (s *MeetupApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	room, err := s.svc.CreateRoom(r.Context(), userId, meetup.CreateRoomParams{
		Title:           req.Title,
		Description:     req.Description,
		Thumbnail:       req.Thumbnail,
		MaxParticipants: req.MaxParticipants,
		ScheduledAt:     req.ScheduledAt,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *MeetupApp) listRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := meetup.ListRoomsQuery{
		Sort:   q.Get("sort"),
		Cursor: q.Get("cursor"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		query.Limit = limit
	}

	list, err := s.svc.ListRooms(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, list)
}

func (s *MeetupApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.svc.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *MeetupApp) updateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req UpdateRoomRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	room, err := s.svc.UpdateRoom(r.Context(), r.PathValue("id"), userId, meetup.UpdateRoomParams{
		Title:           req.Title,
		Description:     req.Description,
		Thumbnail:       req.Thumbnail,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, room)
}

func (s *MeetupApp) deactivateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	if err := s.svc.DeactivateRoom(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) endRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	endedAt, err := s.svc.EndRoomEarly(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, EndRoomResponse{EndedAt: endedAt})
}

func (s *MeetupApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	if err := s.svc.JoinRoom(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	if err := s.svc.LeaveRoom(r.Context(), r.PathValue("id"), userId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) kickParticipant(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req KickRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	if err := s.svc.KickParticipant(r.Context(), r.PathValue("id"), req.UserId, userId); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MeetupApp) listParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.svc.ListParticipants(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, participants)
}

func (s *MeetupApp) myParticipation(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	p, err := s.svc.MyParticipation(r.Context(), r.PathValue("id"), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, p)
}

func (s *MeetupApp) markAttendance(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req AttendanceRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	res, err := s.svc.MarkAttendance(r.Context(), r.PathValue("id"), userId, req.UserIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *MeetupApp) autoAttendance(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req AttendanceRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	res, err := s.svc.AutoAttendance(r.Context(), r.PathValue("id"), userId, req.UserIds)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, res)
}

func (s *MeetupApp) rate(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req RateRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	res, err := s.svc.Rate(r.Context(), meetup.RateParams{
		RoomId:  r.PathValue("id"),
		RaterId: userId,
		RateeId: req.UserId,
		Kind:    req.Kind,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, res)
}

func (s *MeetupApp) listMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var (
		cursor int64
		limit  int
		err    error
	)

	q := r.URL.Query()
	if cursorStr := q.Get("cursor"); cursorStr != "" {
		cursor, err = strconv.ParseInt(cursorStr, 10, 64)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	page, err := s.svc.ListMessages(r.Context(), r.PathValue("id"), userId, cursor, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, page)
}

func (s *MeetupApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !s.decodeJson(w, r, &req) {
		return
	}

	msg, err := s.svc.SendMessage(r.Context(), r.PathValue("id"), userId, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.cs != nil {
		s.cs.Publish(msg)
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *MeetupApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := s.requireUserId(w, r)
	if !ok {
		return
	}

	user, err := s.svc.GetProfile(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(user, conn, s.cs, s.log)
	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
