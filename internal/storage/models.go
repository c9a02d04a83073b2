package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one uploaded document owned by a single user. Rows are
// immutable after ingestion; only explicit deletion removes them.
type Document struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Name       string    `json:"name"`
	FilePath   string    `json:"-"`
	UploadedAt time.Time `json:"uploadedAt"`
}
