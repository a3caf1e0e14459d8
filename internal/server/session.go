package server

import (
	"sync"
	"time"
)

// Session holds ephemeral values attached to one connection. Values set with
// a ttl disappear once it elapses.
type Session struct {
	mu     sync.Mutex
	values map[string]sessionValue
	now    func() time.Time
}

type sessionValue struct {
	value   any
	expires time.Time
}

func NewSession() *Session {
	return &Session{
		values: make(map[string]sessionValue),
		now:    time.Now,
	}
}

// Set stores value under key. A ttl of zero keeps it for the life of the
// connection.
func (s *Session) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := sessionValue{value: value}
	if ttl > 0 {
		v.expires = s.now().Add(ttl)
	}
	s.values[key] = v
}

func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	if !v.expires.IsZero() && !s.now().Before(v.expires) {
		delete(s.values, key)
		return nil, false
	}
	return v.value, true
}

func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func endedKey(roomId string) string {
	return "ended:" + roomId
}
