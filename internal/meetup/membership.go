package meetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

// JoinRoom adds userId to the room. The room row is locked before anything is
// counted so concurrent joins cannot overbook it. A user at the membership
// limit first has their rooms past the cutoff finalized, so a finalize task
// that never ran does not keep them locked out.
func (s *Service) JoinRoom(ctx context.Context, roomId, userId string) error {
	err := s.joinRoom(ctx, roomId, userId)
	if errors.Is(err, ErrCapacity) && s.releaseStaleMemberships(ctx, userId) {
		err = s.joinRoom(ctx, roomId, userId)
	}
	if err != nil {
		return err
	}

	s.log.Debug().Str("room_id", roomId).Str("user_id", userId).Msg("joined room")
	return nil
}

func (s *Service) joinRoom(ctx context.Context, roomId, userId string) error {
	return s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := lockRoom(ctx, q, roomId)
		if err != nil {
			return err
		}

		now := s.now()
		if room.Finalized || !now.Before(room.EndedAt) {
			return ErrRoomEnded
		}

		blacklisted, err := q.IsBlacklisted(ctx, room.Id, userId)
		if err != nil {
			return fmt.Errorf("check blacklist: %w", err)
		}
		if blacklisted {
			return ErrBlacklisted
		}

		user, err := q.LockUser(ctx, userId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}
		if user.JoinState >= MaxActiveMemberships {
			return ErrCapacity
		}

		_, err = q.GetParticipant(ctx, room.Id, userId)
		if err == nil {
			return ErrAlreadyJoined
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get participant: %w", err)
		}

		count, err := q.CountParticipants(ctx, room.Id)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		if count >= Capacity(room) {
			return ErrRoomFull
		}

		if err := q.CreateParticipant(ctx, room.Id, userId, now); err != nil {
			return fmt.Errorf("create participant: %w", err)
		}
		if err := q.IncrementJoinState(ctx, userId); err != nil {
			return fmt.Errorf("increment join state: %w", err)
		}
		return nil
	})
}

// releaseStaleMemberships finalizes rooms of userId that are past their cutoff
// but still count toward join_state because no finalize task has run for them.
// It reports whether any membership was released.
func (s *Service) releaseStaleMemberships(ctx context.Context, userId string) bool {
	rooms, err := s.repo.ListActiveRoomsForUser(ctx, userId)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userId).Msg("failed to list memberships")
		return false
	}

	now := s.now()
	var released bool
	for _, room := range rooms {
		if now.Before(room.EndedAt) {
			continue
		}
		isEnded, err := s.CheckAndAutoEnd(ctx, room.ExternalId)
		if err != nil {
			s.log.Warn().Err(err).Str("room_id", room.ExternalId).Msg("failed to finalize stale room")
			continue
		}
		released = released || isEnded
	}
	return released
}

// LeaveRoom removes userId from the room. The host may only leave once the
// room has reached its cutoff.
func (s *Service) LeaveRoom(ctx context.Context, roomId, userId string) error {
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := lockRoom(ctx, q, roomId)
		if err != nil {
			return err
		}

		if room.HostId == userId && s.now().Before(room.EndedAt) {
			return ErrHostCannotLeave
		}

		if err := q.DeleteParticipant(ctx, room.Id, userId); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotParticipant
			}
			return fmt.Errorf("delete participant: %w", err)
		}

		if !room.Finalized {
			if err := q.DecrementJoinState(ctx, []string{userId}); err != nil {
				return fmt.Errorf("decrement join state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.Notify(Event{Kind: EventLeft, RoomId: roomId, UserId: userId})
	s.log.Debug().Str("room_id", roomId).Str("user_id", userId).Msg("left room")
	return nil
}

// KickParticipant removes targetId from the room and bans them from it for good.
func (s *Service) KickParticipant(ctx context.Context, roomId, targetId, requesterId string) error {
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		room, err := lockRoom(ctx, q, roomId)
		if err != nil {
			return err
		}
		if room.HostId != requesterId {
			return ErrNotHost
		}
		if targetId == requesterId {
			return validationError("host cannot kick themselves")
		}

		if err := q.DeleteParticipant(ctx, room.Id, targetId); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotParticipant
			}
			return fmt.Errorf("delete participant: %w", err)
		}

		if err := q.CreateBlacklistEntry(ctx, room.Id, targetId, requesterId, s.now()); err != nil {
			return fmt.Errorf("blacklist: %w", err)
		}

		if !room.Finalized {
			if err := q.DecrementJoinState(ctx, []string{targetId}); err != nil {
				return fmt.Errorf("decrement join state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("room_id", roomId).Str("user_id", targetId).Msg("kicked participant")
	s.notifier.Notify(Event{Kind: EventKicked, RoomId: roomId, UserId: targetId})
	return nil
}

func (s *Service) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return nil, err
	}

	participants, err := s.repo.ListParticipants(ctx, room.Id)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	out := make([]types.Participant, 0, len(participants))
	for _, p := range participants {
		out = append(out, toParticipant(p, room.HostId))
	}
	return out, nil
}

// MyParticipation returns userId's membership in the room.
func (s *Service) MyParticipation(ctx context.Context, roomId, userId string) (types.Participant, error) {
	room, err := s.getRoom(ctx, roomId)
	if err != nil {
		return types.Participant{}, err
	}

	p, err := s.participant(ctx, s.repo, room, userId)
	if err != nil {
		return types.Participant{}, err
	}
	return toParticipant(p, room.HostId), nil
}

// IsParticipant reports whether userId currently belongs to the room.
func (s *Service) IsParticipant(ctx context.Context, roomId, userId string) (bool, error) {
	_, err := s.MyParticipation(ctx, roomId, userId)
	if errors.Is(err, ErrNotParticipant) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) participant(ctx context.Context, q database.Queries, room database.Room, userId string) (database.Participant, error) {
	p, err := q.GetParticipant(ctx, room.Id, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Participant{}, ErrNotParticipant
		}
		return database.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}
