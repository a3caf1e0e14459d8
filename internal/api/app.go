package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-meetup/internal/config"
	"github.com/npezzotti/go-meetup/internal/meetup"
	"github.com/npezzotti/go-meetup/internal/oauth"
	"github.com/npezzotti/go-meetup/internal/server"
	"github.com/rs/zerolog"
)

type MeetupApp struct {
	log            zerolog.Logger
	svc            *meetup.Service
	cs             *server.ChatServer
	provider       oauth.Provider
	mux            *http.Server
	signingKey     []byte
	jwtExpiration  time.Duration
	allowedOrigins []string
	frontendURL    string
}

// NewMeetupApp registers the HTTP routes on mux. provider may be nil when
// social login is not configured.
func NewMeetupApp(mux *http.ServeMux, logger zerolog.Logger, cs *server.ChatServer, svc *meetup.Service, provider oauth.Provider, cfg *config.Config) *MeetupApp {
	s := &MeetupApp{
		log:            logger.With().Str("component", "api").Logger(),
		svc:            svc,
		cs:             cs,
		provider:       provider,
		signingKey:     cfg.SigningKey,
		jwtExpiration:  cfg.JwtExpiration,
		allowedOrigins: cfg.AllowedOrigins,
		frontendURL:    cfg.FrontendURL,
	}
	if s.jwtExpiration <= 0 {
		s.jwtExpiration = defaultJwtExpiration
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.HandleFunc("GET /api/auth/kakao/login", s.kakaoLogin)
	mux.HandleFunc("GET /api/auth/kakao/callback", s.kakaoCallback)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("POST /api/auth/logout", s.authMiddleware(s.logout))

	mux.Handle("GET /api/users/me", s.authMiddleware(s.getProfile))
	mux.Handle("DELETE /api/users/me", s.authMiddleware(s.deleteAccount))
	mux.Handle("PUT /api/users/me/nickname", s.authMiddleware(s.changeNickname))
	mux.Handle("PUT /api/users/me/bio", s.authMiddleware(s.updateBio))
	mux.Handle("PUT /api/users/me/location", s.authMiddleware(s.updateLocation))
	mux.Handle("GET /api/users/me/rooms", s.authMiddleware(s.listMyRooms))
	mux.HandleFunc("GET /api/emblems", s.listEmblems)

	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.Handle("PATCH /api/rooms/{id}", s.authMiddleware(s.updateRoom))
	mux.Handle("POST /api/rooms/{id}/deactivate", s.authMiddleware(s.deactivateRoom))
	mux.Handle("POST /api/rooms/{id}/end", s.authMiddleware(s.endRoom))
	mux.Handle("POST /api/rooms/{id}/join", s.authMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/{id}/leave", s.authMiddleware(s.leaveRoom))
	mux.Handle("POST /api/rooms/{id}/kick", s.authMiddleware(s.kickParticipant))
	mux.Handle("GET /api/rooms/{id}/participants", s.authMiddleware(s.listParticipants))
	mux.Handle("GET /api/rooms/{id}/participants/me", s.authMiddleware(s.myParticipation))
	mux.Handle("PUT /api/rooms/{id}/attendance", s.authMiddleware(s.markAttendance))
	mux.Handle("POST /api/rooms/{id}/attendance/auto", s.authMiddleware(s.autoAttendance))
	mux.Handle("POST /api/rooms/{id}/ratings", s.authMiddleware(s.rate))
	mux.Handle("GET /api/rooms/{id}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/rooms/{id}/messages", s.authMiddleware(s.sendMessage))

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.accessLog(s.errorHandler(h))

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *MeetupApp) Start() error {
	s.log.Info().Str("addr", s.mux.Addr).Msg("starting server")
	return s.mux.ListenAndServe()
}

func (s *MeetupApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
