package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestMeetupApp_Routes(t *testing.T) {
	mockRepo := &database.MockMeetupRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("Ping").Return(nil).Once()

	app := newTestApp(t, mockRepo, nil)

	token, err := app.createJwtForSession("user-1", defaultJwtExpiration)
	assert.NoError(t, err)

	tcases := []struct {
		name         string
		method       string
		target       string
		authed       bool
		expectedCode int
	}{
		{name: "health check", method: http.MethodGet, target: "/healthz", expectedCode: http.StatusOK},
		{name: "emblems are public", method: http.MethodGet, target: "/api/emblems", expectedCode: http.StatusOK},
		{name: "login without provider", method: http.MethodGet, target: "/api/auth/kakao/login", expectedCode: http.StatusNotFound},
		{name: "profile requires auth", method: http.MethodGet, target: "/api/users/me", expectedCode: http.StatusUnauthorized},
		{name: "rooms require auth", method: http.MethodGet, target: "/api/rooms", expectedCode: http.StatusUnauthorized},
		{name: "join requires auth", method: http.MethodPost, target: "/api/rooms/r1/join", expectedCode: http.StatusUnauthorized},
		{name: "websocket requires auth", method: http.MethodGet, target: "/ws", expectedCode: http.StatusUnauthorized},
		{name: "logout", method: http.MethodPost, target: "/api/auth/logout", authed: true, expectedCode: http.StatusNoContent},
		{name: "wrong method", method: http.MethodDelete, target: "/api/emblems", expectedCode: http.StatusMethodNotAllowed},
		{name: "unknown route", method: http.MethodGet, target: "/api/nope", expectedCode: http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.authed {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			app.mux.Handler.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func TestMeetupApp_CORS(t *testing.T) {
	app := newTestApp(t, &database.MockMeetupRepository{}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	app.mux.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
