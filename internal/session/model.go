package session

import (
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is a shared playback room. Media state itself lives on the
// peers; the backend tracks identity, membership, and the controller
// seat for the room.
type Session struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"created_by"`
	Status       Status    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func (s *Session) RedisKey() string {
	return "session:" + s.ID
}

func MembersRedisKey(id string) string {
	return "session:" + id + ":members"
}
