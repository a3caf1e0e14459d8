package meetup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/go-meetup/internal/cache"
	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/npezzotti/go-meetup/internal/testutil"
)

var testNow = time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type recordingScheduler struct {
	roomId string
	at     time.Time
	err    error
}

func (s *recordingScheduler) ScheduleFinalize(_ context.Context, roomId string, at time.Time) error {
	s.roomId = roomId
	s.at = at
	return s.err
}

// memoryCache is a map backed cache that ignores expiry.
type memoryCache struct {
	cache.Nop
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.values[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.values[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) (int64, error) {
	var n int64
	for _, k := range keys {
		if _, ok := c.values[k]; ok {
			delete(c.values, k)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *database.MockMeetupRepository, *recordingNotifier) {
	t.Helper()

	repo := &database.MockMeetupRepository{}
	repo.Test(t)
	t.Cleanup(func() { repo.AssertExpectations(t) })

	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithRoomIdGenerator(func() (string, error) { return "room1", nil }),
	}, opts...)

	svc := NewService(repo, testutil.TestLogger(t), opts...)
	n := &recordingNotifier{}
	svc.SetNotifier(n)

	return svc, repo, n
}

// testRoom is a live room hosted by "host" that starts in two hours.
func testRoom(mods ...func(r *database.Room)) database.Room {
	r := database.Room{
		Id:              1,
		ExternalId:      "room1",
		HostId:          "host",
		HostNickname:    "hosty",
		Title:           "coffee",
		MaxParticipants: 4,
		ScheduledAt:     testNow.Add(2 * time.Hour),
		EndedAt:         testNow.Add(10 * time.Hour),
		CreatedAt:       testNow.Add(-time.Hour),
		UpdatedAt:       testNow.Add(-time.Hour),
	}
	for _, mod := range mods {
		mod(&r)
	}
	return r
}

func ended(r *database.Room) {
	r.ScheduledAt = testNow.Add(-5 * time.Hour)
	r.EndedAt = testNow.Add(-time.Minute)
}

func testUser(id string, joinState int) database.User {
	return database.User{
		Id:        id,
		SocialId:  "kakao:" + id,
		Nickname:  id + "-nick",
		LikeTemp:  DefaultLikeTemp,
		JoinState: joinState,
		CreatedAt: testNow.Add(-48 * time.Hour),
		UpdatedAt: testNow.Add(-48 * time.Hour),
		ChangedAt: testNow.Add(-48 * time.Hour),
	}
}

func uniqueViolation() error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
}
