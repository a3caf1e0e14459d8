package types

import (
	"time"
)

type Emblem struct {
	Id          string  `json:"emblem_id"`
	Name        string  `json:"emblem_name"`
	Description string  `json:"emblem_description"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
}

type User struct {
	Id         string    `json:"id"`
	Nickname   string    `json:"nickname"`
	ProfileImg string    `json:"profile_img,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	Location   string    `json:"location,omitempty"`
	Reputation float64   `json:"like_temp"`
	Emblem     *Emblem   `json:"emblem"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
	ChangedAt  time.Time `json:"nickname_changed_at,omitempty"`
}

type Participant struct {
	UserId     string    `json:"user_id"`
	Nickname   string    `json:"nickname"`
	ProfileImg string    `json:"profile_img,omitempty"`
	IsHost     bool      `json:"is_host"`
	Attended   *bool     `json:"attended"`
	JoinedAt   time.Time `json:"joined_at"`
	Reputation float64   `json:"like_temp"`
	Emblem     *Emblem   `json:"emblem,omitempty"`
}

type Room struct {
	Id                  string        `json:"id"`
	Title               string        `json:"title"`
	Description         string        `json:"description"`
	Thumbnail           string        `json:"thumbnail,omitempty"`
	HostId              string        `json:"host_id"`
	HostNickname        string        `json:"host_nickname,omitempty"`
	MaxParticipants     int           `json:"max_participants"`
	ParticipantCount    int           `json:"participant_count"`
	Status              string        `json:"status"`
	ScheduledAt         time.Time     `json:"scheduled_at"`
	EndedAt             time.Time     `json:"ended_at"`
	AttendanceCheckedAt *time.Time    `json:"attendance_checked_at"`
	Participants        []Participant `json:"participants,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

type RoomList struct {
	Rooms      []Room `json:"rooms"`
	HasNext    bool   `json:"has_next"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type Message struct {
	Id        int64     `json:"id"`
	RoomId    string    `json:"room_id"`
	UserId    string    `json:"user_id"`
	Nickname  string    `json:"nickname,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"has_more"`
	NextCursor int64     `json:"next_cursor,omitempty"`
}

type AttendanceResult struct {
	Updated      int       `json:"updated"`
	UpdatedTrue  int       `json:"updated_true"`
	UpdatedFalse int       `json:"updated_false"`
	AutoColds    int       `json:"auto_colds"`
	CheckedAt    time.Time `json:"attendance_checked_at"`
}

type RatingResult struct {
	UserId     string  `json:"user_id"`
	Kind       string  `json:"kind"`
	Reputation float64 `json:"like_temp"`
	Emblem     *Emblem `json:"emblem"`
}
