package sync

import (
	"strings"

	"github.com/google/uuid"
)

// tempPrefix is reserved for locally-generated optimistic ids. Server ids
// are UUIDs and can never collide with it.
const tempPrefix = "optimistic-"

// NewTempID generates a temporary id for an optimistic record.
func NewTempID() string {
	return tempPrefix + uuid.New().String()
}

// IsTempID reports whether id belongs to the temporary id space.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}
