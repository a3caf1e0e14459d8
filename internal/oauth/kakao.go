package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/npezzotti/go-meetup/internal/config"
	"github.com/npezzotti/go-meetup/internal/meetup"
	"golang.org/x/oauth2"
)

const ProviderKakao = "kakao"

var ErrMissingCode = errors.New("authorization code is required")

// Provider is a social login provider using the authorization code flow.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (meetup.ExternalProfile, error)
}

// NewState returns a random value for the state parameter.
func NewState() string {
	return uuid.NewString()
}

type Kakao struct {
	cfg        *oauth2.Config
	profileURL string
}

var _ Provider = (*Kakao)(nil)

func NewKakao(c config.OAuthConfig) (*Kakao, error) {
	if c.ClientID == "" {
		return nil, errors.New("kakao client id cannot be empty")
	}
	if c.RedirectURL == "" {
		return nil, errors.New("kakao redirect url cannot be empty")
	}

	return &Kakao{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.AuthURL,
				TokenURL:  c.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		profileURL: c.ProfileURL,
	}, nil
}

func (k *Kakao) Name() string {
	return ProviderKakao
}

func (k *Kakao) AuthCodeURL(state string) string {
	return k.cfg.AuthCodeURL(state)
}

type kakaoUser struct {
	Id           int64 `json:"id"`
	KakaoAccount struct {
		Profile struct {
			Nickname        string `json:"nickname"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

// Exchange trades an authorization code for a token and fetches the user's
// Kakao profile with it.
func (k *Kakao) Exchange(ctx context.Context, code string) (meetup.ExternalProfile, error) {
	if code == "" {
		return meetup.ExternalProfile{}, ErrMissingCode
	}

	tok, err := k.cfg.Exchange(ctx, code)
	if err != nil {
		return meetup.ExternalProfile{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.profileURL, nil)
	if err != nil {
		return meetup.ExternalProfile{}, err
	}
	resp, err := k.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return meetup.ExternalProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return meetup.ExternalProfile{}, fmt.Errorf("fetch profile: status %d: %s", resp.StatusCode, body)
	}

	var u kakaoUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return meetup.ExternalProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	if u.Id == 0 {
		return meetup.ExternalProfile{}, errors.New("profile response is missing an id")
	}

	return meetup.ExternalProfile{
		Provider:   ProviderKakao,
		Id:         strconv.FormatInt(u.Id, 10),
		Name:       u.KakaoAccount.Profile.Nickname,
		Nickname:   u.KakaoAccount.Profile.Nickname,
		ProfileImg: u.KakaoAccount.Profile.ProfileImageURL,
	}, nil
}
