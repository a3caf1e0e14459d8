package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-meetup/internal/oauth"
)

const (
	tokenCookieKey = "token"
	stateCookieKey = "oauth_state"
	stateCookieTTL = 10 * time.Minute

	defaultJwtExpiration = 7 * 24 * time.Hour

	userIdClaim = "user-id"
	expClaim    = "exp"
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (string, bool) {
	userId, ok := ctx.Value(userIdKey).(string)
	return userId, ok && userId != ""
}

func (s *MeetupApp) createJwtForSession(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *MeetupApp) extractUserIdFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", errors.New("invalid user id claim")
	}

	return userId, nil
}

// tokenFromRequest looks for the session token in the cookie, a bearer
// Authorization header and finally the token query parameter used by
// websocket clients that cannot set headers.
func tokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(tokenCookieKey); err == nil && c.Value != "" {
		return c.Value, true
	}

	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") && token != "" {
			return token, true
		}
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}

	return "", false
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if exp <= 0 {
		// instruct browser to delete the cookie
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.Expires = time.Now().Add(exp)
	}
	return c
}

func createStateCookie(state string, exp time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     stateCookieKey,
		Value:    state,
		Path:     "/api/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if exp <= 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(exp.Seconds())
	}
	return c
}

func (s *MeetupApp) kakaoLogin(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	state := oauth.NewState()
	http.SetCookie(w, createStateCookie(state, stateCookieTTL))
	http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
}

func (s *MeetupApp) kakaoCallback(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		s.log.Info().Str("error", providerErr).Msg("social login declined")
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	stateCookie, err := r.Cookie(stateCookieKey)
	if err != nil || stateCookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(q.Get("state"))) != 1 {
		errResp := NewBadRequestError()
		errResp.Message = "invalid oauth state"
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	http.SetCookie(w, createStateCookie("", 0))

	profile, err := s.provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, oauth.ErrMissingCode) {
			errResp = NewBadRequestError()
		} else {
			s.log.Error().Err(err).Str("provider", s.provider.Name()).Msg("oauth exchange failed")
			errResp = NewBadGatewayError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.svc.Login(r.Context(), profile)
	if err != nil {
		s.writeError(w, err)
		return
	}

	token, err := s.createJwtForSession(user.Id, s.jwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	http.SetCookie(w, createJwtCookie(token, s.jwtExpiration))

	if s.frontendURL != "" {
		http.Redirect(w, r, s.frontendURL, http.StatusFound)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{User: user, Token: token})
}

func (s *MeetupApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.svc.GetProfile(r.Context(), userId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func (s *MeetupApp) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, createJwtCookie("", 0))
	w.WriteHeader(http.StatusNoContent)
}
