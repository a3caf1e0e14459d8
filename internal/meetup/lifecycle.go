package meetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-meetup/internal/cache"
	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

const roomEndedTTL = 30 * time.Second

func roomEndedKey(roomId string) string {
	return "meetup:room:" + roomId + ":ended"
}

// Terminate moves a room to target, which must be StatusDeactivated or
// StatusEndedForRating. Deactivation deletes the room and removes every
// participant. Ending keeps the participants so they can rate each other but
// releases their memberships. Only the host may terminate a room.
func (s *Service) Terminate(ctx context.Context, roomId, requesterId string, target RoomStatus) (time.Time, error) {
	if target != StatusDeactivated && target != StatusEndedForRating {
		return time.Time{}, validationError("cannot terminate a room to %q", target)
	}

	now := s.now()
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := lockRoom(ctx, q, roomId)
		if err != nil {
			return err
		}
		if room.HostId != requesterId {
			return ErrNotHost
		}

		switch target {
		case StatusDeactivated:
			removed, err := q.DeleteParticipants(ctx, room.Id)
			if err != nil {
				return fmt.Errorf("delete participants: %w", err)
			}
			if !room.Finalized {
				if err := q.DecrementJoinState(ctx, removed); err != nil {
					return fmt.Errorf("decrement join state: %w", err)
				}
			}
			if err := q.DeactivateRoom(ctx, room.Id, now); err != nil {
				return fmt.Errorf("deactivate room: %w", err)
			}
		case StatusEndedForRating:
			if !now.Before(room.EndedAt) {
				return ErrRoomEnded
			}
			if err := q.EndRoom(ctx, room.Id, now); err != nil {
				return fmt.Errorf("end room: %w", err)
			}
			room.EndedAt = now
			if err := s.finalizeLocked(ctx, q, room, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	s.invalidateRoomEnded(ctx, roomId)

	ev := Event{Kind: EventRoomEnded, RoomId: roomId}
	if target == StatusDeactivated {
		ev.Kind = EventRoomDeleted
	}
	s.notifier.Notify(ev)
	s.log.Info().Str("room_id", roomId).Str("status", string(target)).Msg("terminated room")

	return now, nil
}

// EndRoomEarly ends the meetup now instead of at its daily cutoff.
func (s *Service) EndRoomEarly(ctx context.Context, roomId, requesterId string) (time.Time, error) {
	return s.Terminate(ctx, roomId, requesterId, StatusEndedForRating)
}

// CheckAndAutoEnd finalizes a room whose cutoff has passed, releasing every
// participant's membership exactly once. It reports whether the room has ended.
func (s *Service) CheckAndAutoEnd(ctx context.Context, roomId string) (bool, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return false, err
	}

	now := s.now()
	if now.Before(room.EndedAt) {
		return false, nil
	}
	if room.Finalized {
		return true, nil
	}

	var finalized bool
	err = s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := lockRoom(ctx, q, roomId)
		if err != nil {
			return err
		}
		if room.Finalized || now.Before(room.EndedAt) {
			return nil
		}
		finalized = true
		return s.finalizeLocked(ctx, q, room, now)
	})
	if err != nil {
		return false, err
	}

	if finalized {
		s.invalidateRoomEnded(ctx, roomId)
		s.notifier.Notify(Event{Kind: EventRoomEnded, RoomId: roomId})
		s.log.Info().Str("room_id", roomId).Msg("room reached its cutoff")
	}
	return true, nil
}

// finalizeLocked releases the memberships of a room that has ended. The room
// must already be locked by q.
func (s *Service) finalizeLocked(ctx context.Context, q database.Queries, room database.Room, now time.Time) error {
	if room.Finalized {
		return nil
	}

	participants, err := q.ListParticipants(ctx, room.Id)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserId)
	}

	if err := q.DecrementJoinState(ctx, ids); err != nil {
		return fmt.Errorf("decrement join state: %w", err)
	}
	if err := q.FinalizeRoom(ctx, room.Id, now); err != nil {
		return fmt.Errorf("finalize room: %w", err)
	}
	return nil
}

// RoomEnded reports whether chat in the room is closed. Answers are cached
// briefly and never past the moment the room would end.
func (s *Service) RoomEnded(ctx context.Context, roomId string) (bool, error) {
	key := roomEndedKey(roomId)

	v, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		return v == "1", nil
	case !errors.Is(err, cache.ErrMiss):
		s.log.Warn().Err(err).Str("room_id", roomId).Msg("room cache read failed")
	}

	room, err := s.repo.GetRoomByExternalId(ctx, roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrRoomNotFound
		}
		return false, fmt.Errorf("get room: %w", err)
	}

	now := s.now()
	ended := room.Deleted || !now.Before(room.EndedAt)
	ttl := roomEndedTTL
	value := "1"
	if !ended {
		value = "0"
		ttl = min(ttl, room.EndedAt.Sub(now))
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomId).Msg("room cache write failed")
	}

	return ended, nil
}

func (s *Service) invalidateRoomEnded(ctx context.Context, roomId string) {
	if _, err := s.cache.Del(ctx, roomEndedKey(roomId)); err != nil {
		s.log.Warn().Err(err).Str("room_id", roomId).Msg("room cache invalidation failed")
	}
}

// attendanceRoom locks the room and checks the preconditions shared by both
// ways of taking attendance.
func (s *Service) attendanceRoom(ctx context.Context, q database.Queries, roomId, requesterId string, now time.Time) (database.Room, error) {
	room, err := lockRoom(ctx, q, roomId)
	if err != nil {
		return database.Room{}, err
	}
	if room.HostId != requesterId {
		return database.Room{}, ErrNotHost
	}
	if !now.Before(room.ScheduledAt) {
		return database.Room{}, ErrTooLate
	}
	if room.AttendanceCheckedAt.Valid {
		return database.Room{}, ErrAlreadyChecked
	}
	return room, nil
}

// MarkAttendance marks the given users as attending. Every participant must
// end up marked, otherwise nothing is saved.
func (s *Service) MarkAttendance(ctx context.Context, roomId, hostId string, userIds []string) (types.AttendanceResult, error) {
	now := s.now()
	var result types.AttendanceResult

	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := s.attendanceRoom(ctx, q, roomId, hostId, now)
		if err != nil {
			return err
		}

		updated, err := q.MarkAttended(ctx, room.Id, dedupe(userIds))
		if err != nil {
			return fmt.Errorf("mark attended: %w", err)
		}

		unmarked, err := q.CountUnmarkedParticipants(ctx, room.Id)
		if err != nil {
			return fmt.Errorf("count unmarked: %w", err)
		}
		if unmarked > 0 {
			return ErrIncompleteRollCall.WithMessage("%d participants are still unmarked", unmarked)
		}

		if err := q.SetAttendanceChecked(ctx, room.Id, now); err != nil {
			return fmt.Errorf("set attendance checked: %w", err)
		}

		result = types.AttendanceResult{
			Updated:     len(updated),
			UpdatedTrue: len(updated),
			CheckedAt:   now,
		}
		return nil
	})
	if err != nil {
		return types.AttendanceResult{}, err
	}

	return result, nil
}

// AutoAttendance marks the given users as attending and everyone else as
// absent. Each absentee is rated cold once per attendee.
func (s *Service) AutoAttendance(ctx context.Context, roomId, requesterId string, attendedIds []string) (types.AttendanceResult, error) {
	now := s.now()
	var result types.AttendanceResult

	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := s.attendanceRoom(ctx, q, roomId, requesterId, now)
		if err != nil {
			return err
		}

		participants, err := q.ListParticipants(ctx, room.Id)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		members := make(map[string]bool, len(participants))
		for _, p := range participants {
			members[p.UserId] = true
		}
		present := make([]string, 0, len(attendedIds))
		for _, id := range dedupe(attendedIds) {
			if members[id] {
				present = append(present, id)
			}
		}

		marked, err := q.MarkAttended(ctx, room.Id, present)
		if err != nil {
			return fmt.Errorf("mark attended: %w", err)
		}
		absent, err := q.MarkAbsentExcept(ctx, room.Id, present)
		if err != nil {
			return fmt.Errorf("mark absent: %w", err)
		}

		colds := 0
		for _, absentee := range absent {
			for range marked {
				if _, err := applyReputation(ctx, q, absentee, Cold); err != nil {
					return err
				}
				colds++
			}
		}

		if err := q.SetAttendanceChecked(ctx, room.Id, now); err != nil {
			return fmt.Errorf("set attendance checked: %w", err)
		}

		result = types.AttendanceResult{
			Updated:      len(marked) + len(absent),
			UpdatedTrue:  len(marked),
			UpdatedFalse: len(absent),
			AutoColds:    colds,
			CheckedAt:    now,
		}
		return nil
	})
	if err != nil {
		return types.AttendanceResult{}, err
	}

	s.log.Info().
		Str("room_id", roomId).
		Int("present", result.UpdatedTrue).
		Int("absent", result.UpdatedFalse).
		Int("auto_colds", result.AutoColds).
		Msg("automatic attendance")

	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
