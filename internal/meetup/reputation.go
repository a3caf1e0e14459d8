package meetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

type RatingKind string

const (
	Warm RatingKind = "warm"
	Cold RatingKind = "cold"
)

const (
	DefaultLikeTemp = 36.5
	MinLikeTemp     = 0.0
	MaxLikeTemp     = 100.0

	warmDelta = 0.3
	coldDelta = -0.3
)

func ParseRatingKind(s string) (RatingKind, error) {
	switch k := RatingKind(s); k {
	case Warm, Cold:
		return k, nil
	default:
		return "", validationError("rating must be %q or %q", Warm, Cold)
	}
}

func (k RatingKind) Delta() float64 {
	if k == Warm {
		return warmDelta
	}
	return coldDelta
}

var emblems = []types.Emblem{
	{
		Id:          "661db6cb-1279-4745-af55-8d23ce24cb02",
		Name:        "No-show Master",
		Description: "Keeps skipping meetups.",
		MinScore:    0,
		MaxScore:    20,
	},
	{
		Id:          "873a8d57-9d44-4410-b85b-bb7adfbdf0bb",
		Name:        "Chilly Person",
		Description: "Shows up, but keeps their distance.",
		MinScore:    20,
		MaxScore:    40,
	},
	{
		Id:          "60b1f695-5426-40b3-870c-3be037ccebe7",
		Name:        "Ordinary Friend",
		Description: "A dependable everyday companion.",
		MinScore:    40,
		MaxScore:    60,
	},
	{
		Id:          "80ea607c-943e-4824-8718-e86eee3bc540",
		Name:        "Warm Colleague",
		Description: "People enjoy meeting them.",
		MinScore:    60,
		MaxScore:    80,
	},
	{
		Id:          "172c54f1-4807-4c1a-a1a2-ea36046d45fc",
		Name:        "Blazing Insider",
		Description: "Everyone wants them at the table.",
		MinScore:    80,
		MaxScore:    100,
	},
}

// Emblems returns the emblem tiers from coldest to warmest.
func Emblems() []types.Emblem {
	out := make([]types.Emblem, len(emblems))
	copy(out, emblems)
	return out
}

// TierFor maps a score to its emblem. Each band is closed at its upper bound,
// so 20.0 is tier 1 and 20.1 is tier 2. Scores outside [0, 100] have no emblem.
func TierFor(score float64) *types.Emblem {
	if score < MinLikeTemp || score > MaxLikeTemp {
		return nil
	}
	for i := range emblems {
		if score <= emblems[i].MaxScore {
			e := emblems[i]
			return &e
		}
	}
	return nil
}

// ApplyReputation adjusts a user's temperature by the delta for kind and
// returns the new value.
func (s *Service) ApplyReputation(ctx context.Context, userId string, kind RatingKind) (float64, error) {
	return applyReputation(ctx, s.repo, userId, kind)
}

func applyReputation(ctx context.Context, q database.Queries, userId string, kind RatingKind) (float64, error) {
	score, err := q.ApplyLikeTemp(ctx, userId, kind.Delta())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("apply %s to %s: %w", kind, userId, err)
	}
	return score, nil
}
