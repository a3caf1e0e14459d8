package meetup

import (
	"context"
	"fmt"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

type RateParams struct {
	RoomId  string
	RaterId string
	RateeId string
	Kind    string
}

// Rate records a warm or cold rating from one attendee to another. A rater
// may rate each attendee of a room once, after attendance has been checked and
// before the room ends.
func (s *Service) Rate(ctx context.Context, p RateParams) (types.RatingResult, error) {
	kind, err := ParseRatingKind(p.Kind)
	if err != nil {
		return types.RatingResult{}, err
	}
	if p.RaterId == p.RateeId {
		return types.RatingResult{}, ErrSelfRating
	}

	room, err := s.getRoom(ctx, p.RoomId)
	if err != nil {
		return types.RatingResult{}, err
	}

	exists, err := s.repo.RatingExists(ctx, room.Id, p.RaterId, p.RateeId)
	if err != nil {
		return types.RatingResult{}, fmt.Errorf("check rating: %w", err)
	}
	if exists {
		return types.RatingResult{}, ErrDuplicateRating
	}

	if !room.AttendanceCheckedAt.Valid {
		return types.RatingResult{}, ErrAttendanceNotChecked
	}

	now := s.now()
	if now.After(room.EndedAt) {
		return types.RatingResult{}, ErrRoomEnded
	}

	if !s.attended(ctx, room, p.RateeId) {
		return types.RatingResult{}, ErrTargetNotAttended
	}
	if !s.attended(ctx, room, p.RaterId) {
		return types.RatingResult{}, ErrRaterNotAttended
	}

	var score float64
	err = s.repo.WithTx(ctx, func(q database.Queries) error {
		created, err := q.CreateRating(ctx, database.CreateRatingParams{
			RoomId:    room.Id,
			RaterId:   p.RaterId,
			RateeId:   p.RateeId,
			Kind:      string(kind),
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create rating: %w", err)
		}
		if !created {
			return ErrDuplicateRating
		}

		score, err = applyReputation(ctx, q, p.RateeId, kind)
		return err
	})
	if err != nil {
		return types.RatingResult{}, err
	}

	s.log.Debug().Str("room_id", p.RoomId).Str("ratee_id", p.RateeId).Str("kind", string(kind)).Float64("like_temp", score).Msg("rated participant")

	return types.RatingResult{
		UserId:     p.RateeId,
		Kind:       string(kind),
		Reputation: score,
		Emblem:     TierFor(score),
	}, nil
}

// attended reports whether userId was marked present in the room. Lookup
// failures count as not attended.
func (s *Service) attended(ctx context.Context, room database.Room, userId string) bool {
	p, err := s.participant(ctx, s.repo, room, userId)
	if err != nil {
		return false
	}
	return p.Attended.Valid && p.Attended.Bool
}
