package meetup

import (
	"context"
	"time"

	"github.com/npezzotti/go-meetup/internal/cache"
	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

type EventKind string

const (
	EventRoomEnded   EventKind = "room_ended"
	EventRoomDeleted EventKind = "room_deleted"
	EventKicked      EventKind = "kicked"
	EventLeft        EventKind = "left"
)

// Event is a room state change that connected clients need to hear about.
type Event struct {
	Kind   EventKind
	RoomId string
	UserId string
}

// Notifier receives room events after the change has been committed.
type Notifier interface {
	Notify(ev Event)
}

// Scheduler arranges for CheckAndAutoEnd to run for a room at a given time.
type Scheduler interface {
	ScheduleFinalize(ctx context.Context, roomId string, at time.Time) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

type nopScheduler struct{}

func (nopScheduler) ScheduleFinalize(context.Context, string, time.Time) error { return nil }

type Service struct {
	log          zerolog.Logger
	repo         database.MeetupRepository
	cache        cache.Cache
	scheduler    Scheduler
	notifier     Notifier
	loc          *time.Location
	assetBaseURL string
	now          func() time.Time
	newRoomId    func() (string, error)
}

type Option func(*Service)

func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithScheduler(sch Scheduler) Option {
	return func(s *Service) { s.scheduler = sch }
}

// WithLocation sets the time zone used to derive a room's daily cutoff.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithAssetBaseURL(u string) Option {
	return func(s *Service) { s.assetBaseURL = u }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRoomIdGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newRoomId = gen }
}

func NewService(repo database.MeetupRepository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		log:       logger.With().Str("component", "meetup").Logger(),
		repo:      repo,
		cache:     cache.Nop{},
		scheduler: nopScheduler{},
		notifier:  nopNotifier{},
		loc:       time.UTC,
		now:       Now,
		newRoomId: shortid.Generate,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetNotifier registers the receiver of room events. It must be called before
// the service starts handling requests.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Now returns the current UTC time rounded to milliseconds.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
