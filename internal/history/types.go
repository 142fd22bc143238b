// Package history keeps a best-effort log of voice interactions.
package history

import (
	"context"
	"time"
)

// PassageRef is the part of a retrieved passage worth keeping with a record.
type PassageRef struct {
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}

// Record is one finished interaction. Transcription is stored redacted.
type Record struct {
	ID            string       `json:"id"`
	SessionID     string       `json:"session_id"`
	Outcome       string       `json:"outcome"`
	Transcription string       `json:"transcription,omitempty"`
	Answer        string       `json:"answer,omitempty"`
	Passages      []PassageRef `json:"passages,omitempty"`
	Error         string       `json:"error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Store persists interaction records.
type Store interface {
	Save(ctx context.Context, record Record) error
	// Recent returns up to limit records for a session in chronological order.
	Recent(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Close() error
}
