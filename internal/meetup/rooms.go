package meetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

const (
	// HardCeiling caps every room regardless of its own max_participants.
	HardCeiling     = 4
	MinParticipants = 2
	// MaxActiveMemberships is how many live rooms a user may host or join at once.
	MaxActiveMemberships = 2

	SortLatest    = "latest"
	SortScheduled = "scheduled"

	defaultRoomListLimit = 10
	maxRoomListLimit     = 50
	maxTitleLength       = 100
)

type RoomStatus string

const (
	StatusScheduled      RoomStatus = "scheduled"
	StatusActive         RoomStatus = "active"
	StatusEndedForRating RoomStatus = "ended"
	StatusDeactivated    RoomStatus = "deactivated"
)

// StatusAt derives the room status at the given instant.
func StatusAt(r database.Room, now time.Time) RoomStatus {
	switch {
	case r.Deleted:
		return StatusDeactivated
	case !now.Before(r.EndedAt):
		return StatusEndedForRating
	case now.Before(r.ScheduledAt):
		return StatusScheduled
	default:
		return StatusActive
	}
}

// Capacity is the effective participant limit of a room.
func Capacity(r database.Room) int {
	return min(HardCeiling, r.MaxParticipants)
}

// EndOfDay returns 23:59:00 of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 0, 0, loc)
}

type CreateRoomParams struct {
	Title           string
	Description     string
	Thumbnail       string
	MaxParticipants int
	ScheduledAt     time.Time
}

// UpdateRoomParams holds the fields to change. Nil fields are left as they are.
type UpdateRoomParams struct {
	Title           *string
	Description     *string
	Thumbnail       *string
	MaxParticipants *int
}

type ListRoomsQuery struct {
	Sort   string
	Cursor string
	Limit  int
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validationError("title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", validationError("title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

func validateMaxParticipants(n int) error {
	if n < MinParticipants || n > HardCeiling {
		return validationError("max_participants must be between %d and %d", MinParticipants, HardCeiling)
	}
	return nil
}

// CreateRoom creates a meetup hosted by hostId and makes the host its first
// participant.
func (s *Service) CreateRoom(ctx context.Context, hostId string, p CreateRoomParams) (types.Room, error) {
	title, err := validateTitle(p.Title)
	if err != nil {
		return types.Room{}, err
	}
	if err := validateMaxParticipants(p.MaxParticipants); err != nil {
		return types.Room{}, err
	}
	if p.ScheduledAt.IsZero() {
		return types.Room{}, validationError("scheduled_at is required")
	}

	externalId, err := s.newRoomId()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	var (
		room database.Room
		host database.User
		now  = s.now()
	)
	create := func() error {
		return s.repo.WithTx(ctx, func(q database.Queries) error {
			live, err := q.LockLiveRoomByHost(ctx, hostId)
			switch {
			case err == nil:
				if now.Before(live.EndedAt) {
					return ErrAlreadyHosting
				}
				// the previous room is past its cutoff but nobody has finalized it yet
				if err := s.finalizeLocked(ctx, q, live, now); err != nil {
					return err
				}
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("lock hosted room: %w", err)
			}

			host, err = q.LockUser(ctx, hostId)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrUserNotFound
				}
				return fmt.Errorf("lock host: %w", err)
			}
			if host.JoinState >= MaxActiveMemberships {
				return ErrCapacity
			}

			room, err = q.CreateRoom(ctx, database.CreateRoomParams{
				ExternalId:      externalId,
				HostId:          hostId,
				Title:           title,
				Description:     strings.TrimSpace(p.Description),
				Thumbnail:       p.Thumbnail,
				MaxParticipants: p.MaxParticipants,
				ScheduledAt:     p.ScheduledAt,
				EndedAt:         EndOfDay(p.ScheduledAt, s.loc),
				CreatedAt:       now,
			})
			if err != nil {
				if database.IsUniqueViolation(err) {
					return ErrAlreadyHosting
				}
				return fmt.Errorf("create room: %w", err)
			}

			if err := q.CreateParticipant(ctx, room.Id, hostId, now); err != nil {
				return fmt.Errorf("add host: %w", err)
			}
			if err := q.IncrementJoinState(ctx, hostId); err != nil {
				return fmt.Errorf("increment join state: %w", err)
			}
			return nil
		})
	}

	err = create()
	if errors.Is(err, ErrCapacity) && s.releaseStaleMemberships(ctx, hostId) {
		err = create()
	}
	if err != nil {
		return types.Room{}, err
	}

	if err := s.scheduler.ScheduleFinalize(ctx, room.ExternalId, room.EndedAt); err != nil {
		s.log.Warn().Err(err).Str("room_id", room.ExternalId).Msg("failed to schedule room finalization")
	}

	s.log.Info().Str("room_id", room.ExternalId).Str("host_id", hostId).Msg("created room")

	room.HostNickname = host.Nickname
	room.ParticipantCount = 1
	out := s.toRoom(room, now)
	out.Participants = []types.Participant{{
		UserId:     host.Id,
		Nickname:   host.Nickname,
		ProfileImg: host.ProfileImg,
		IsHost:     true,
		JoinedAt:   now,
		Reputation: host.LikeTemp,
		Emblem:     TierFor(host.LikeTemp),
	}}
	return out, nil
}

// UpdateRoom changes the room's details. Only the host may do so.
func (s *Service) UpdateRoom(ctx context.Context, roomId, requesterId string, p UpdateRoomParams) (types.Room, error) {
	var updated database.Room
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := lockRoom(ctx, q, roomId)
		if err != nil {
			return err
		}
		if room.HostId != requesterId {
			return ErrNotHost
		}

		params := database.UpdateRoomParams{
			RoomId:          room.Id,
			Title:           room.Title,
			Description:     room.Description,
			Thumbnail:       room.Thumbnail,
			MaxParticipants: room.MaxParticipants,
			UpdatedAt:       s.now(),
		}
		if p.Title != nil {
			if params.Title, err = validateTitle(*p.Title); err != nil {
				return err
			}
		}
		if p.Description != nil {
			params.Description = strings.TrimSpace(*p.Description)
		}
		if p.Thumbnail != nil {
			params.Thumbnail = *p.Thumbnail
		}
		if p.MaxParticipants != nil {
			if err := validateMaxParticipants(*p.MaxParticipants); err != nil {
				return err
			}
			count, err := q.CountParticipants(ctx, room.Id)
			if err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if *p.MaxParticipants < count {
				return validationError("max_participants cannot be lower than the current %d participants", count)
			}
			params.MaxParticipants = *p.MaxParticipants
		}

		updated, err = q.UpdateRoom(ctx, params)
		if err != nil {
			return fmt.Errorf("update room: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Room{}, err
	}

	return s.GetRoom(ctx, updated.ExternalId)
}

// DeactivateRoom deletes the room and removes all of its participants.
func (s *Service) DeactivateRoom(ctx context.Context, roomId, requesterId string) error {
	_, err := s.Terminate(ctx, roomId, requesterId, StatusDeactivated)
	return err
}

func (s *Service) ListRooms(ctx context.Context, query ListRoomsQuery) (types.RoomList, error) {
	params := database.ListRoomsParams{
		Now:   s.now(),
		Limit: query.Limit,
	}

	switch query.Sort {
	case "", SortLatest:
	case SortScheduled:
		params.SortScheduled = true
	default:
		return types.RoomList{}, validationError("sort must be %q or %q", SortLatest, SortScheduled)
	}

	if params.Limit <= 0 {
		params.Limit = defaultRoomListLimit
	}
	if params.Limit > maxRoomListLimit {
		params.Limit = maxRoomListLimit
	}
	limit := params.Limit
	params.Limit++

	if query.Cursor != "" {
		cursor, cursorId, err := parseRoomCursor(query.Cursor)
		if err != nil {
			return types.RoomList{}, validationError("invalid cursor")
		}
		if cursorId == 0 && params.SortScheduled {
			// a bare timestamp skips every room scheduled at that instant
			cursorId = math.MaxInt64
		}
		params.Cursor = &cursor
		params.CursorId = cursorId
	}

	rooms, err := s.repo.ListRooms(ctx, params)
	if err != nil {
		return types.RoomList{}, fmt.Errorf("list rooms: %w", err)
	}

	list := types.RoomList{Rooms: make([]types.Room, 0, min(len(rooms), limit))}
	if len(rooms) > limit {
		list.HasNext = true
		rooms = rooms[:limit]
		last := rooms[len(rooms)-1]
		if params.SortScheduled {
			list.NextCursor = roomCursor(last.ScheduledAt, last.Id)
		} else {
			list.NextCursor = roomCursor(last.CreatedAt, last.Id)
		}
	}
	for _, r := range rooms {
		list.Rooms = append(list.Rooms, s.toRoom(r, params.Now))
	}

	return list, nil
}

// roomCursor encodes the sort value and id of the last room on a page.
func roomCursor(t time.Time, id int64) string {
	return t.UTC().Format(time.RFC3339Nano) + "_" + strconv.FormatInt(id, 10)
}

// parseRoomCursor accepts "<RFC3339 time>_<id>" or a bare timestamp, which
// yields a zero id.
func parseRoomCursor(s string) (time.Time, int64, error) {
	ts, idStr, hasId := strings.Cut(s, "_")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, 0, err
	}
	if !hasId {
		return t, 0, nil
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return time.Time{}, 0, errors.New("invalid cursor id")
	}
	return t, id, nil
}

// GetRoom returns the room with its participants. A room past its cutoff is
// finalized on the way.
func (s *Service) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}

	now := s.now()
	if !room.Finalized && !now.Before(room.EndedAt) {
		if _, err := s.CheckAndAutoEnd(ctx, roomId); err != nil {
			return types.Room{}, err
		}
	}

	participants, err := s.repo.ListParticipants(ctx, room.Id)
	if err != nil {
		return types.Room{}, fmt.Errorf("list participants: %w", err)
	}

	out := s.toRoom(room, now)
	out.ParticipantCount = len(participants)
	out.Participants = make([]types.Participant, 0, len(participants))
	for _, p := range participants {
		out.Participants = append(out.Participants, toParticipant(p, room.HostId))
	}
	return out, nil
}

// getRoom loads a room that has not been deactivated.
func (s *Service) getRoom(ctx context.Context, roomId string) (database.Room, error) {
	room, err := s.repo.GetRoomByExternalId(ctx, roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, ErrRoomNotFound
		}
		return database.Room{}, fmt.Errorf("get room: %w", err)
	}
	if room.Deleted {
		return database.Room{}, ErrRoomNotFound
	}
	return room, nil
}

// lockRoom locks a room that has not been deactivated for the rest of the
// transaction.
func lockRoom(ctx context.Context, q database.Queries, roomId string) (database.Room, error) {
	room, err := q.LockRoomByExternalId(ctx, roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, ErrRoomNotFound
		}
		return database.Room{}, fmt.Errorf("lock room: %w", err)
	}
	if room.Deleted {
		return database.Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (s *Service) toRoom(r database.Room, now time.Time) types.Room {
	out := types.Room{
		Id:               r.ExternalId,
		Title:            r.Title,
		Description:      r.Description,
		Thumbnail:        RenderThumbnail(r.Thumbnail, s.assetBaseURL),
		HostId:           r.HostId,
		HostNickname:     r.HostNickname,
		MaxParticipants:  r.MaxParticipants,
		ParticipantCount: r.ParticipantCount,
		Status:           string(StatusAt(r, now)),
		ScheduledAt:      r.ScheduledAt,
		EndedAt:          r.EndedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.AttendanceCheckedAt.Valid {
		t := r.AttendanceCheckedAt.Time
		out.AttendanceCheckedAt = &t
	}
	return out
}

func toParticipant(p database.Participant, hostId string) types.Participant {
	out := types.Participant{
		UserId:     p.UserId,
		Nickname:   p.Nickname,
		ProfileImg: p.ProfileImg,
		IsHost:     p.UserId == hostId,
		JoinedAt:   p.JoinedAt,
		Reputation: p.LikeTemp,
		Emblem:     TierFor(p.LikeTemp),
	}
	if p.Attended.Valid {
		attended := p.Attended.Bool
		out.Attended = &attended
	}
	return out
}
