package core

import (
	"github.com/google/uuid"
)

// NewJobID returns an opaque job identifier.
func NewJobID() string {
	return uuid.New().String()
}

// ShortID returns the first 8 characters of id for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
