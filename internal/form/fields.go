// Package form implements the contact form field store and validation.
package form

import (
	"fmt"
	"sync"

	"github.com/solatis/stagedoor/internal/types"
)

// FieldStore holds the current values of the named form fields. The
// presentation layer mutates it on every keystroke; the submission controller
// reads a snapshot at submit time and clears it after an optimistic accept.
//
// Guarded by a mutex so the controller's background work never races a UI
// update, even though the intended execution model is a single event loop.
type FieldStore struct {
	mu     sync.Mutex
	values types.FormValues
}

// NewFieldStore creates an empty field store.
func NewFieldStore() *FieldStore {
	return &FieldStore{}
}

// Set updates a single field by its canonical name.
// Returns ErrUnknownField for names outside the form schema.
func (s *FieldStore) Set(field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case types.FieldFullName:
		s.values.FullName = value
	case types.FieldEmail:
		s.values.Email = value
	case types.FieldWebsite:
		s.values.Website = value
	case types.FieldIdeas:
		s.values.Ideas = value
	case types.FieldHeardFrom:
		s.values.HeardFrom = value
	default:
		return fmt.Errorf("%w: %q", types.ErrUnknownField, field)
	}
	return nil
}

// Get returns the current value of a field, or empty string for unknown names.
func (s *FieldStore) Get(field string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case types.FieldFullName:
		return s.values.FullName
	case types.FieldEmail:
		return s.values.Email
	case types.FieldWebsite:
		return s.values.Website
	case types.FieldIdeas:
		return s.values.Ideas
	case types.FieldHeardFrom:
		return s.values.HeardFrom
	}
	return ""
}

// Snapshot returns a copy of the current values.
func (s *FieldStore) Snapshot() types.FormValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

// Replace overwrites all values at once. Used by front ends that bind the
// whole form in one event rather than per-keystroke.
func (s *FieldStore) Replace(v types.FormValues) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = v
}

// Clear resets every field to empty.
func (s *FieldStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = types.FormValues{}
}
