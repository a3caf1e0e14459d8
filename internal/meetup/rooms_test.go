package meetup

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/npezzotti/go-meetup/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndOfDay(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	tcases := []struct {
		name      string
		scheduled time.Time
		expected  time.Time
	}{
		{
			name:      "same local day",
			scheduled: time.Date(2025, 7, 10, 0, 0, 0, 0, seoul),
			expected:  time.Date(2025, 7, 10, 23, 59, 0, 0, seoul),
		},
		{
			name:      "utc instant on the next local day",
			scheduled: time.Date(2025, 7, 10, 20, 0, 0, 0, time.UTC),
			expected:  time.Date(2025, 7, 11, 23, 59, 0, 0, seoul),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got := EndOfDay(tc.scheduled, seoul)
			assert.True(t, tc.expected.Equal(got), "expected %v, got %v", tc.expected, got)
		})
	}
}

func TestStatusAt(t *testing.T) {
	tcases := []struct {
		name     string
		room     database.Room
		expected RoomStatus
	}{
		{name: "before start", room: testRoom(), expected: StatusScheduled},
		{name: "in progress", room: testRoom(func(r *database.Room) { r.ScheduledAt = testNow.Add(-time.Hour) }), expected: StatusActive},
		{name: "at cutoff", room: testRoom(func(r *database.Room) { r.EndedAt = testNow }), expected: StatusEndedForRating},
		{name: "deleted", room: testRoom(ended, func(r *database.Room) { r.Deleted = true }), expected: StatusDeactivated},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, StatusAt(tc.room, testNow))
		})
	}
}

func TestCapacity(t *testing.T) {
	assert.Equal(t, 2, Capacity(testRoom(func(r *database.Room) { r.MaxParticipants = 2 })))
	assert.Equal(t, 4, Capacity(testRoom(func(r *database.Room) { r.MaxParticipants = 4 })))
	assert.Equal(t, HardCeiling, Capacity(testRoom(func(r *database.Room) { r.MaxParticipants = 9 })), "expected the hard ceiling to win")
}

func TestCreateRoom(t *testing.T) {
	scheduled := time.Date(2025, 7, 10, 19, 0, 0, 0, time.UTC)
	params := CreateRoomParams{
		Title:           "  board games ",
		Description:     "bring snacks",
		MaxParticipants: 3,
		ScheduledAt:     scheduled,
	}
	dbParams := database.CreateRoomParams{
		ExternalId:      "room1",
		HostId:          "host",
		Title:           "board games",
		Description:     "bring snacks",
		MaxParticipants: 3,
		ScheduledAt:     scheduled,
		EndedAt:         EndOfDay(scheduled, time.UTC),
		CreatedAt:       testNow,
	}
	created := database.Room{
		Id:              7,
		ExternalId:      "room1",
		HostId:          "host",
		Title:           "board games",
		Description:     "bring snacks",
		MaxParticipants: 3,
		ScheduledAt:     scheduled,
		EndedAt:         dbParams.EndedAt,
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}

	t.Run("creates room and adds host", func(t *testing.T) {
		sch := &recordingScheduler{}
		svc, repo, _ := newTestService(t, WithScheduler(sch))

		repo.On("LockLiveRoomByHost", "host").Return(database.Room{}, sql.ErrNoRows).Once()
		repo.On("LockUser", "host").Return(testUser("host", 1), nil).Once()
		repo.On("CreateRoom", dbParams).Return(created, nil).Once()
		repo.On("CreateParticipant", int64(7), "host", testNow).Return(nil).Once()
		repo.On("IncrementJoinState", "host").Return(nil).Once()

		room, err := svc.CreateRoom(context.Background(), "host", params)
		require.NoError(t, err)

		assert.Equal(t, "room1", room.Id)
		assert.Equal(t, "host-nick", room.HostNickname)
		assert.Equal(t, 1, room.ParticipantCount)
		assert.Equal(t, string(StatusScheduled), room.Status)
		require.Len(t, room.Participants, 1)
		assert.True(t, room.Participants[0].IsHost)
		assert.Nil(t, room.Participants[0].Attended, "expected host attendance to be unset")

		assert.Equal(t, "room1", sch.roomId, "expected finalization to be scheduled")
		assert.True(t, sch.at.Equal(dbParams.EndedAt), "expected finalization at the cutoff")
	})

	t.Run("scheduler failure does not fail the request", func(t *testing.T) {
		svc, repo, _ := newTestService(t, WithScheduler(&recordingScheduler{err: errors.New("redis down")}))

		repo.On("LockLiveRoomByHost", "host").Return(database.Room{}, sql.ErrNoRows).Once()
		repo.On("LockUser", "host").Return(testUser("host", 0), nil).Once()
		repo.On("CreateRoom", dbParams).Return(created, nil).Once()
		repo.On("CreateParticipant", int64(7), "host", testNow).Return(nil).Once()
		repo.On("IncrementJoinState", "host").Return(nil).Once()

		_, err := svc.CreateRoom(context.Background(), "host", params)
		assert.NoError(t, err)
	})

	t.Run("already hosting a live room", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("LockLiveRoomByHost", "host").Return(testRoom(), nil).Once()

		_, err := svc.CreateRoom(context.Background(), "host", params)
		assert.ErrorIs(t, err, ErrAlreadyHosting)
	})

	t.Run("hosted room past its cutoff is finalized first", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		old := testRoom(ended, func(r *database.Room) { r.Id = 3 })

		repo.On("LockLiveRoomByHost", "host").Return(old, nil).Once()
		repo.On("ListParticipants", int64(3)).Return([]database.Participant{{RoomId: 3, UserId: "host"}, {RoomId: 3, UserId: "u2"}}, nil).Once()
		repo.On("DecrementJoinState", []string{"host", "u2"}).Return(nil).Once()
		repo.On("FinalizeRoom", int64(3), testNow).Return(nil).Once()
		repo.On("LockUser", "host").Return(testUser("host", 0), nil).Once()
		repo.On("CreateRoom", dbParams).Return(created, nil).Once()
		repo.On("CreateParticipant", int64(7), "host", testNow).Return(nil).Once()
		repo.On("IncrementJoinState", "host").Return(nil).Once()

		_, err := svc.CreateRoom(context.Background(), "host", params)
		assert.NoError(t, err)
	})

	t.Run("host already in two meetups", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("LockLiveRoomByHost", "host").Return(database.Room{}, sql.ErrNoRows).Once()
		repo.On("LockUser", "host").Return(testUser("host", 2), nil).Once()
		repo.On("ListActiveRoomsForUser", "host").Return([]database.Room{
			testRoom(func(r *database.Room) { r.Id, r.ExternalId, r.HostId = 2, "room2", "u2" }),
			testRoom(func(r *database.Room) { r.Id, r.ExternalId, r.HostId = 3, "room3", "u3" }),
		}, nil).Once()

		_, err := svc.CreateRoom(context.Background(), "host", params)
		assert.ErrorIs(t, err, ErrCapacity)
	})

	t.Run("joined room past its cutoff is released before the limit applies", func(t *testing.T) {
		svc, repo, n := newTestService(t)
		stale := testRoom(ended, func(r *database.Room) { r.Id, r.ExternalId, r.HostId = 2, "room2", "u2" })

		repo.On("LockLiveRoomByHost", "host").Return(database.Room{}, sql.ErrNoRows).Once()
		repo.On("LockUser", "host").Return(testUser("host", 2), nil).Once()

		repo.On("ListActiveRoomsForUser", "host").Return([]database.Room{stale}, nil).Once()
		repo.On("GetRoomByExternalId", "room2").Return(stale, nil).Once()
		repo.On("LockRoomByExternalId", "room2").Return(stale, nil).Once()
		repo.On("ListParticipants", int64(2)).Return([]database.Participant{{UserId: "u2"}, {UserId: "host"}}, nil).Once()
		repo.On("DecrementJoinState", []string{"u2", "host"}).Return(nil).Once()
		repo.On("FinalizeRoom", int64(2), testNow).Return(nil).Once()

		repo.On("LockLiveRoomByHost", "host").Return(database.Room{}, sql.ErrNoRows).Once()
		repo.On("LockUser", "host").Return(testUser("host", 1), nil).Once()
		repo.On("CreateRoom", dbParams).Return(created, nil).Once()
		repo.On("CreateParticipant", int64(7), "host", testNow).Return(nil).Once()
		repo.On("IncrementJoinState", "host").Return(nil).Once()

		_, err := svc.CreateRoom(context.Background(), "host", params)
		require.NoError(t, err)
		assert.Equal(t, []Event{{Kind: EventRoomEnded, RoomId: "room2"}}, n.events)
	})

	t.Run("concurrent create hits unique index", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("LockLiveRoomByHost", "host").Return(database.Room{}, sql.ErrNoRows).Once()
		repo.On("LockUser", "host").Return(testUser("host", 0), nil).Once()
		repo.On("CreateRoom", dbParams).Return(database.Room{}, uniqueViolation()).Once()

		_, err := svc.CreateRoom(context.Background(), "host", params)
		assert.ErrorIs(t, err, ErrAlreadyHosting)
	})

	validation := []struct {
		name   string
		params CreateRoomParams
	}{
		{name: "missing title", params: CreateRoomParams{Title: " ", MaxParticipants: 2, ScheduledAt: scheduled}},
		{name: "too few participants", params: CreateRoomParams{Title: "a", MaxParticipants: 1, ScheduledAt: scheduled}},
		{name: "too many participants", params: CreateRoomParams{Title: "a", MaxParticipants: 5, ScheduledAt: scheduled}},
		{name: "missing schedule", params: CreateRoomParams{Title: "a", MaxParticipants: 2}},
	}
	for _, tc := range validation {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			_, err := svc.CreateRoom(context.Background(), "host", tc.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestUpdateRoom(t *testing.T) {
	title := "tea instead"
	two := 2

	t.Run("host updates fields", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		room := testRoom()
		updated := testRoom(func(r *database.Room) {
			r.Title = title
			r.MaxParticipants = 2
		})

		repo.On("LockRoomByExternalId", "room1").Return(room, nil).Once()
		repo.On("CountParticipants", int64(1)).Return(2, nil).Once()
		repo.On("UpdateRoom", database.UpdateRoomParams{
			RoomId:          1,
			Title:           title,
			Description:     room.Description,
			Thumbnail:       room.Thumbnail,
			MaxParticipants: 2,
			UpdatedAt:       testNow,
		}).Return(updated, nil).Once()
		repo.On("GetRoomByExternalId", "room1").Return(updated, nil).Once()
		repo.On("ListParticipants", int64(1)).Return([]database.Participant{{UserId: "host"}, {UserId: "u2"}}, nil).Once()

		got, err := svc.UpdateRoom(context.Background(), "room1", "host", UpdateRoomParams{Title: &title, MaxParticipants: &two})
		require.NoError(t, err)
		assert.Equal(t, title, got.Title)
		assert.Equal(t, 2, got.ParticipantCount)
	})

	t.Run("not the host", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("LockRoomByExternalId", "room1").Return(testRoom(), nil).Once()

		_, err := svc.UpdateRoom(context.Background(), "room1", "u2", UpdateRoomParams{Title: &title})
		assert.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("deleted room", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("LockRoomByExternalId", "room1").Return(testRoom(func(r *database.Room) { r.Deleted = true }), nil).Once()

		_, err := svc.UpdateRoom(context.Background(), "room1", "host", UpdateRoomParams{Title: &title})
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("capacity below current participants", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("LockRoomByExternalId", "room1").Return(testRoom(), nil).Once()
		repo.On("CountParticipants", int64(1)).Return(3, nil).Once()

		_, err := svc.UpdateRoom(context.Background(), "room1", "host", UpdateRoomParams{MaxParticipants: &two})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestListRooms(t *testing.T) {
	rooms := func(n int) []database.Room {
		out := make([]database.Room, n)
		for i := range out {
			out[i] = testRoom(func(r *database.Room) {
				r.Id = int64(i + 1)
				r.CreatedAt = testNow.Add(-time.Duration(i) * time.Minute)
				r.ScheduledAt = testNow.Add(time.Duration(i+1) * time.Hour)
			})
		}
		return out
	}

	t.Run("latest with more pages", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("ListRooms", database.ListRoomsParams{Now: testNow, Limit: 3}).Return(rooms(3), nil).Once()

		list, err := svc.ListRooms(context.Background(), ListRoomsQuery{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, list.Rooms, 2)
		assert.True(t, list.HasNext)
		assert.Equal(t, testNow.Add(-time.Minute).Format(time.RFC3339Nano)+"_2", list.NextCursor)
	})

	t.Run("next page continues after the cursor room", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		cursor := testNow.Add(-time.Minute)
		repo.On("ListRooms", database.ListRoomsParams{Cursor: &cursor, CursorId: 2, Now: testNow, Limit: 3}).Return(rooms(1), nil).Once()

		list, err := svc.ListRooms(context.Background(), ListRoomsQuery{Limit: 2, Cursor: cursor.Format(time.RFC3339Nano) + "_2"})
		require.NoError(t, err)
		assert.Len(t, list.Rooms, 1)
		assert.False(t, list.HasNext)
	})

	t.Run("rooms sharing a timestamp keep their ids in the cursor", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		tied := rooms(3)
		for i := range tied {
			tied[i].CreatedAt = testNow
		}
		repo.On("ListRooms", database.ListRoomsParams{Now: testNow, Limit: 3}).Return(tied, nil).Once()

		list, err := svc.ListRooms(context.Background(), ListRoomsQuery{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, testNow.Format(time.RFC3339Nano)+"_2", list.NextCursor)
	})

	t.Run("scheduled with bare timestamp cursor on last page", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		cursor := testNow.Add(time.Hour)
		repo.On("ListRooms", database.ListRoomsParams{SortScheduled: true, Cursor: &cursor, CursorId: math.MaxInt64, Now: testNow, Limit: 11}).Return(rooms(1), nil).Once()

		list, err := svc.ListRooms(context.Background(), ListRoomsQuery{Sort: SortScheduled, Cursor: cursor.Format(time.RFC3339Nano)})
		require.NoError(t, err)
		assert.Len(t, list.Rooms, 1)
		assert.False(t, list.HasNext)
		assert.Empty(t, list.NextCursor)
	})

	t.Run("limit is capped", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("ListRooms", database.ListRoomsParams{Now: testNow, Limit: maxRoomListLimit + 1}).Return([]database.Room(nil), nil).Once()

		list, err := svc.ListRooms(context.Background(), ListRoomsQuery{Limit: 1000})
		require.NoError(t, err)
		assert.NotNil(t, list.Rooms, "expected an empty list rather than null")
	})

	t.Run("bad sort", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.ListRooms(context.Background(), ListRoomsQuery{Sort: "popular"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("bad cursor", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		for _, cursor := range []string{"yesterday", testNow.Format(time.RFC3339Nano) + "_x", testNow.Format(time.RFC3339Nano) + "_-1"} {
			_, err := svc.ListRooms(context.Background(), ListRoomsQuery{Cursor: cursor})
			assert.ErrorIs(t, err, ErrValidation, "cursor %q", cursor)
		}
	})
}

func TestGetRoom(t *testing.T) {
	t.Run("live room with participants", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		yes := sql.NullBool{Bool: true, Valid: true}

		repo.On("GetRoomByExternalId", "room1").Return(testRoom(), nil).Once()
		repo.On("ListParticipants", int64(1)).Return([]database.Participant{
			{UserId: "host", LikeTemp: 50},
			{UserId: "u2", LikeTemp: 10, Attended: yes},
		}, nil).Once()

		room, err := svc.GetRoom(context.Background(), "room1")
		require.NoError(t, err)
		require.Len(t, room.Participants, 2)
		assert.True(t, room.Participants[0].IsHost)
		assert.False(t, room.Participants[1].IsHost)
		require.NotNil(t, room.Participants[1].Attended)
		assert.True(t, *room.Participants[1].Attended)
		assert.Equal(t, Emblems()[0].Id, room.Participants[1].Emblem.Id)
	})

	t.Run("room past cutoff is finalized", func(t *testing.T) {
		svc, repo, n := newTestService(t)
		room := testRoom(ended)

		repo.On("GetRoomByExternalId", "room1").Return(room, nil).Twice()
		repo.On("LockRoomByExternalId", "room1").Return(room, nil).Once()
		repo.On("ListParticipants", int64(1)).Return([]database.Participant{{UserId: "host"}}, nil).Twice()
		repo.On("DecrementJoinState", []string{"host"}).Return(nil).Once()
		repo.On("FinalizeRoom", int64(1), testNow).Return(nil).Once()

		got, err := svc.GetRoom(context.Background(), "room1")
		require.NoError(t, err)
		assert.Equal(t, string(StatusEndedForRating), got.Status)
		assert.Equal(t, []Event{{Kind: EventRoomEnded, RoomId: "room1"}}, n.events)
	})

	t.Run("missing room", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("GetRoomByExternalId", "nope").Return(database.Room{}, sql.ErrNoRows).Once()

		_, err := svc.GetRoom(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("storage failure is not a business error", func(t *testing.T) {
		svc, repo, _ := newTestService(t)
		repo.On("GetRoomByExternalId", "room1").Return(database.Room{}, errors.New("connection reset")).Once()

		_, err := svc.GetRoom(context.Background(), "room1")
		require.Error(t, err)
		var merr *Error
		assert.False(t, errors.As(err, &merr), "expected an infrastructure error")
	})
}

func TestListMyRooms(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.On("ListActiveRoomsForUser", "u1").Return([]database.Room{testRoom()}, nil).Once()

	rooms, err := svc.ListMyRooms(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "room1", rooms[0].Id)
}
