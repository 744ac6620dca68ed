package types

import "errors"

// Sentinel errors for stagedoor operations.
var (
	// ErrUnknownField indicates a field name outside the contact form schema.
	ErrUnknownField = errors.New("unknown form field")

	// ErrSubmissionInFlight indicates a submit trigger arrived while a
	// previous attempt was still being processed; the trigger is ignored.
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrMissingCredentials indicates incomplete SMTP credentials in the
	// environment. Fatal to the relay request, surfaced as HTTP 500.
	ErrMissingCredentials = errors.New("missing SMTP credentials")

	// ErrSMTPAuthFailed indicates both SMTP configurations (primary and
	// fallback) were rejected by the mail server.
	ErrSMTPAuthFailed = errors.New("SMTP authentication failed")
)
