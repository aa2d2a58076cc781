package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscription routes one location's notifications to one chat.
type Subscription struct {
	LocationID string
	ChatID     int64
	ThreadID   int
	CreatedAt  time.Time
}

// LocationState is the last availability observed for a location.
type LocationState struct {
	LocationID string
	Available  bool
	At         time.Time
}
