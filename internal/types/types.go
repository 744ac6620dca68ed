// Package types provides domain models shared across stagedoor components.
//
// Zero-dependency design: types.go and errors.go use only the standard library so
// the submission core can be embedded in any front end without pulling transport
// or storage dependencies. ID utilities in ids.go import uuid but are isolated
// for selective inclusion.
package types

import (
	"strings"
	"time"
)

// Canonical field names of the contact form.
// Wire aliases (name, message, howDidYouHear) are handled at the transport edge;
// everything inside the core speaks these names.
const (
	FieldFullName  = "fullName"
	FieldEmail     = "email"
	FieldWebsite   = "website"
	FieldIdeas     = "ideas"
	FieldHeardFrom = "heardFrom"
)

// FormValues holds the current values of the contact form's named fields.
// Absent optional fields are empty strings, never missing keys, so downstream
// formatting never branches on presence.
type FormValues struct {
	FullName  string
	Email     string
	Website   string
	Ideas     string
	HeardFrom string
}

// IsZero reports whether every field is empty.
func (v FormValues) IsZero() bool {
	return v == FormValues{}
}

// Trimmed returns a copy with leading/trailing whitespace removed from every
// field. Validation and delivery operate on trimmed values; the field store
// keeps raw keystrokes untouched.
func (v FormValues) Trimmed() FormValues {
	return FormValues{
		FullName:  strings.TrimSpace(v.FullName),
		Email:     strings.TrimSpace(v.Email),
		Website:   strings.TrimSpace(v.Website),
		Ideas:     strings.TrimSpace(v.Ideas),
		HeardFrom: strings.TrimSpace(v.HeardFrom),
	}
}

// OutcomeKind enumerates the terminal results of one submission attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means the submission was accepted. Under the optimistic
	// acknowledgment policy this is reported before delivery is confirmed.
	OutcomeSuccess OutcomeKind = iota + 1

	// OutcomeValidationFailed means required fields are missing or malformed.
	// Field values are left untouched so the visitor can correct them in place.
	OutcomeValidationFailed

	// OutcomeRateLimited means the submission volume bound for this session
	// was reached; retry after the window elapses.
	OutcomeRateLimited

	// OutcomeDeliveryError means delivery to the relay endpoint failed. Only
	// reported to the caller under the confirmed acknowledgment policy.
	OutcomeDeliveryError
)

// String returns the outcome kind name for logs and audit rows.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeDeliveryError:
		return "delivery_error"
	default:
		return "unknown"
	}
}

// SubmissionOutcome is the single value the presentation layer consumes per
// submission attempt. It owns no reference back into the controller.
type SubmissionOutcome struct {
	Kind         OutcomeKind
	SubmissionID SubmissionID

	// MissingFields is set when Kind is OutcomeValidationFailed; it names the
	// required fields to highlight.
	MissingFields []string

	// RetryAfter is set when Kind is OutcomeRateLimited; it is the time until
	// the current window elapses.
	RetryAfter time.Duration

	// Reason is set when Kind is OutcomeDeliveryError.
	Reason string
}

// DeliveryRequest is an immutable snapshot of form values plus routing
// metadata, taken before the field store is cleared. Owned exclusively by the
// delivery path for the duration of one send attempt; never mutated after
// creation.
type DeliveryRequest struct {
	ID       SubmissionID
	Values   FormValues
	Receiver string
	Subject  string
}

// DeliveryReceipt is the confirmation returned by the relay endpoint.
type DeliveryReceipt struct {
	// MessageID identifies the delivered message when the endpoint reports one.
	MessageID string

	// Status is the HTTP status of the accepting response.
	Status int
}
