package stores

import (
	"context"
	"time"
)

// Direction tells whether an entry went to the server or came back from it.
type Direction string

const (
	DirectionCommand  Direction = "command"
	DirectionCallback Direction = "callback"
)

// Session is one recorded worker lifetime.
type Session struct {
	ID        string     `json:"id"`
	WorkerID  string     `json:"worker_id"`
	Device    string     `json:"device"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Metadata  string     `json:"metadata"` // JSON blob
}

// Entry is one journaled command or callback.
type Entry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Seq        int64     `json:"seq"`
	Direction  Direction `json:"direction"`
	Type       string    `json:"type"`
	RequestID  uint64    `json:"request_id"`
	Handle     uint64    `json:"handle"`
	DataSize   int       `json:"data_size"`
	Payload    string    `json:"payload"` // JSON, without bulk data
	RecordedAt time.Time `json:"recorded_at"`
}

// EntryFilter narrows ListEntries. Nil fields match everything.
type EntryFilter struct {
	Direction *Direction
	Type      *string
	RequestID *uint64
}

// SessionSummary counts the entries of a session.
type SessionSummary struct {
	Session   *Session `json:"session"`
	Commands  int      `json:"commands"`
	Callbacks int      `json:"callbacks"`
	Errors    int      `json:"errors"`
}

// Store defines the journal persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	EndSession(ctx context.Context, id string, endedAt time.Time) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)
	SummarizeSession(ctx context.Context, id string) (*SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
	PruneSessions(ctx context.Context, before time.Time) (int64, error)

	// Entry operations
	AppendEntries(ctx context.Context, entries []*Entry) error
	ListEntries(ctx context.Context, sessionID string, filter EntryFilter, limit, offset int) ([]*Entry, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
