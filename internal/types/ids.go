package types

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionID represents a UUIDv7 submission identifier.
// String alias enables type safety while maintaining JSON string serialization.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type SubmissionID string

// NewSubmissionID generates a UUIDv7 submission identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewSubmissionID() SubmissionID {
	return SubmissionID(uuid.Must(uuid.NewV7()).String())
}

// ParseSubmissionID validates and converts a string to SubmissionID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the audit log.
func ParseSubmissionID(s string) (SubmissionID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return SubmissionID(s), nil
}

// SubmissionIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Enables time-based audit queries without a database lookup.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func SubmissionIDTime(id SubmissionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
