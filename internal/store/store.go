// Package store persists Switchboard state in the record store: credential
// blobs, session statuses, and the append-only message log.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a GORM connection with Switchboard's persistence operations.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}
