package session

import (
	"context"
	"errors"
	"strings"
)

// Common errors for storage operations.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStorageClosed is returned when operating on a closed storage backend.
	ErrStorageClosed = errors.New("storage backend is closed")
	// ErrInvalidSessionID is returned for ids that cannot be used as storage keys.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// StatsBackend persists per-session stats logs.
// Implementations must be safe for concurrent use.
type StatsBackend interface {
	// Append adds one call to the end of a session's log.
	Append(ctx context.Context, sessionID string, stats CallStats) error

	// Load returns a session's log in append order. Unknown sessions
	// yield an empty log, not an error.
	Load(ctx context.Context, sessionID string) ([]CallStats, error)

	// Replace swaps a session's whole log.
	Replace(ctx context.Context, sessionID string, calls []CallStats) error

	// Delete removes a session's log. Deleting an unknown session is a no-op.
	Delete(ctx context.Context, sessionID string) error

	// Sessions lists the ids that have a stored log.
	Sessions(ctx context.Context) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}

// validateSessionID rejects ids that are empty or could escape a key namespace.
func validateSessionID(id string) error {
	if id == "" {
		return ErrInvalidSessionID
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidSessionID
	}
	return nil
}
