package meetup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/types"
)

const (
	defaultRole         = "user"
	nicknameChangeEvery = 30 * 24 * time.Hour
	maxNicknameLength   = 20
)

// userNamespace seeds the deterministic user ids derived from social ids.
var userNamespace = uuid.MustParse("0b6f5f3c-5a0e-4d8e-9a57-6f1f9d3c2e11")

// ExternalProfile is what a social login provider tells us about a user.
type ExternalProfile struct {
	Provider   string
	Id         string
	Name       string
	Nickname   string
	ProfileImg string
}

func (p ExternalProfile) SocialId() string {
	return p.Provider + ":" + p.Id
}

// UserIdFor returns the internal id for a social id. The same social id always
// maps to the same user id.
func UserIdFor(socialId string) string {
	return uuid.NewSHA1(userNamespace, []byte(socialId)).String()
}

// Resolve looks up the live profile linked to socialId.
func (s *Service) Resolve(ctx context.Context, socialId string) (types.User, error) {
	u, err := s.repo.GetUserBySocialId(ctx, socialId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("get user by social id: %w", err)
	}
	return toUser(u), nil
}

// Provision creates the profile for a first-time social login.
func (s *Service) Provision(ctx context.Context, p ExternalProfile) (types.User, error) {
	if p.Provider == "" || p.Id == "" {
		return types.User{}, validationError("external profile is missing an id")
	}

	socialId := p.SocialId()
	nickname := strings.TrimSpace(p.Nickname)
	if nickname == "" {
		nickname = strings.TrimSpace(p.Name)
	}
	if nickname == "" {
		nickname = "user-" + p.Id
	}

	u, err := s.repo.CreateUser(ctx, database.CreateUserParams{
		Id:         UserIdFor(socialId),
		SocialId:   socialId,
		Name:       p.Name,
		Nickname:   nickname,
		ProfileImg: p.ProfileImg,
		LikeTemp:   DefaultLikeTemp,
		Role:       defaultRole,
		CreatedAt:  s.now(),
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return types.User{}, ErrIdentityConflict
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", u.Id).Str("provider", p.Provider).Msg("provisioned user")
	return toUser(u), nil
}

// Login resolves the profile for p, provisioning it on first login. A
// concurrent provision of the same identity is resolved by looking it up again.
func (s *Service) Login(ctx context.Context, p ExternalProfile) (types.User, error) {
	u, err := s.Resolve(ctx, p.SocialId())
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return types.User{}, err
	}

	u, err = s.Provision(ctx, p)
	if errors.Is(err, ErrIdentityConflict) {
		return s.Resolve(ctx, p.SocialId())
	}
	return u, err
}

func (s *Service) GetProfile(ctx context.Context, userId string) (types.User, error) {
	u, err := s.repo.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}
	return toUser(u), nil
}

// ChangeNickname renames the user. The first change after signup is always
// allowed, later ones once every 30 days.
func (s *Service) ChangeNickname(ctx context.Context, userId, nickname string) (types.User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return types.User{}, validationError("nickname is required")
	}
	if len([]rune(nickname)) > maxNicknameLength {
		return types.User{}, validationError("nickname must be at most %d characters", maxNicknameLength)
	}

	var updated database.User
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		u, err := q.LockUser(ctx, userId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}

		now := s.now()
		if wait := nicknameWait(u, now); wait > 0 {
			days := int(math.Ceil(wait.Hours() / 24))
			return ErrNicknameRateLimited.WithMessage("nickname can be changed again in %d days", days)
		}

		updated, err = q.UpdateNickname(ctx, userId, nickname, now)
		if err != nil {
			return fmt.Errorf("update nickname: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.User{}, err
	}

	return toUser(updated), nil
}

// nicknameWait is how long the user must wait before the next change.
func nicknameWait(u database.User, now time.Time) time.Duration {
	if u.ChangedAt.Equal(u.CreatedAt) {
		return 0
	}
	return u.ChangedAt.Add(nicknameChangeEvery).Sub(now)
}

func (s *Service) UpdateBio(ctx context.Context, userId, bio string) error {
	bio = strings.TrimSpace(bio)
	if bio == "" {
		return validationError("bio is required")
	}
	if err := s.repo.UpdateBio(ctx, userId, bio, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update bio: %w", err)
	}
	return nil
}

func (s *Service) UpdateLocation(ctx context.Context, userId, location string) error {
	if err := s.repo.UpdateLocation(ctx, userId, strings.TrimSpace(location), s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// DeleteAccount soft deletes the profile. Ratings and messages are kept.
func (s *Service) DeleteAccount(ctx context.Context, userId string) error {
	if err := s.repo.SoftDeleteUser(ctx, userId, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info().Str("user_id", userId).Msg("deleted account")
	return nil
}

// ListMyRooms returns the live meetups the user hosts or has joined.
func (s *Service) ListMyRooms(ctx context.Context, userId string) ([]types.Room, error) {
	rooms, err := s.repo.ListActiveRoomsForUser(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms for user: %w", err)
	}

	now := s.now()
	out := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, s.toRoom(r, now))
	}
	return out, nil
}

func toUser(u database.User) types.User {
	return types.User{
		Id:         u.Id,
		Nickname:   u.Nickname,
		ProfileImg: u.ProfileImg,
		Bio:        u.Bio,
		Location:   u.Location,
		Reputation: u.LikeTemp,
		Emblem:     TierFor(u.LikeTemp),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
		ChangedAt:  u.ChangedAt,
	}
}
