// Package session identifies voice interactions and tracks their activity.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session identifies one voice interaction. It is immutable once created.
type Session struct {
	ID        string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns a session with a fresh random identifier.
func New() Session {
	return Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}
