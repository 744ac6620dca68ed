package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/stagedoor/internal/ratelimit"
	"github.com/solatis/stagedoor/internal/types"
)

// Timestamps are stored as RFC3339 strings in both drivers so the stores stay
// driver-agnostic; UUIDv7 submission IDs carry the same instant redundantly.

// SubmissionStore records submission outcomes for operator visibility.
// Implements submit.Recorder.
type SubmissionStore struct {
	q *Queries
}

// NewSubmissionStore creates a store over loaded queries.
func NewSubmissionStore(q *Queries) *SubmissionStore {
	return &SubmissionStore{q: q}
}

// SubmissionRow is one audit log entry.
type SubmissionRow struct {
	SubmissionID   string         `db:"submission_id"`
	FullName       string         `db:"full_name"`
	Email          string         `db:"email"`
	Website        string         `db:"website"`
	Ideas          string         `db:"ideas"`
	HeardFrom      string         `db:"heard_from"`
	AcceptedAt     string         `db:"accepted_at"`
	DeliveryStatus string         `db:"delivery_status"`
	DeliveryDetail string         `db:"delivery_detail"`
	DeliveredAt    sql.NullString `db:"delivered_at"`
}

// RecordAccepted inserts the accepted submission with a pending delivery
// status.
func (s *SubmissionStore) RecordAccepted(ctx context.Context, req types.DeliveryRequest) error {
	acceptedAt := types.SubmissionIDTime(req.ID).UTC().Format(time.RFC3339)
	_, err := s.q.Exec(ctx, "insert-submission",
		string(req.ID),
		req.Values.FullName,
		req.Values.Email,
		req.Values.Website,
		req.Values.Ideas,
		req.Values.HeardFrom,
		acceptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission %s: %w", req.ID, err)
	}
	return nil
}

// RecordDelivery updates the delivery resolution of a previously accepted
// submission. Status is "sent" or "failed"; detail carries the message ID or
// the failure reason.
func (s *SubmissionStore) RecordDelivery(ctx context.Context, id types.SubmissionID, status, detail string) error {
	deliveredAt := time.Now().UTC().Format(time.RFC3339)
	_, err := s.q.Exec(ctx, "update-submission-delivery", status, detail, deliveredAt, string(id))
	if err != nil {
		return fmt.Errorf("failed to update submission %s: %w", id, err)
	}
	return nil
}

// GetSubmission fetches one audit entry by ID.
func (s *SubmissionStore) GetSubmission(ctx context.Context, id types.SubmissionID) (*SubmissionRow, error) {
	var row SubmissionRow
	if err := s.q.Get(ctx, "get-submission", &row, string(id)); err != nil {
		return nil, fmt.Errorf("failed to get submission %s: %w", id, err)
	}
	return &row, nil
}

// FailedSubmission is one row of the failed-delivery report.
type FailedSubmission struct {
	SubmissionID   string `db:"submission_id"`
	FullName       string `db:"full_name"`
	Email          string `db:"email"`
	AcceptedAt     string `db:"accepted_at"`
	DeliveryDetail string `db:"delivery_detail"`
}

// ListFailed returns submissions whose delivery failed, newest first. The
// optimistic acknowledgment policy makes this report the only place those
// failures are visible besides logs.
func (s *SubmissionStore) ListFailed(ctx context.Context) ([]FailedSubmission, error) {
	var rows []FailedSubmission
	if err := s.q.Select(ctx, "list-failed-submissions", &rows); err != nil {
		return nil, fmt.Errorf("failed to list failed submissions: %w", err)
	}
	return rows, nil
}

// RateLimitStore keeps per-client rate windows in the database, shared across
// relay instances. Implements ratelimit.Store.
type RateLimitStore struct {
	q *Queries
}

// NewRateLimitStore creates a store over loaded queries.
func NewRateLimitStore(q *Queries) *RateLimitStore {
	return &RateLimitStore{q: q}
}

// Acquire applies the rolling-window rule against the stored state and writes
// back the result.
//
// Read and write are not wrapped in a transaction: concurrent acquisitions for
// the same key may undercount by one, which is acceptable for abuse bounding
// and keeps the store portable across both drivers.
func (r *RateLimitStore) Acquire(ctx context.Context, key string, now time.Time, limits ratelimit.Limits) (bool, ratelimit.State, error) {
	var row struct {
		Count       int    `db:"submission_count"`
		WindowStart string `db:"window_start"`
	}

	var state ratelimit.State
	err := r.q.Get(ctx, "get-rate-window", &row, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first acquisition for this key
	case err != nil:
		return false, state, fmt.Errorf("failed to read rate window for %s: %w", key, err)
	default:
		start, parseErr := time.Parse(time.RFC3339, row.WindowStart)
		if parseErr != nil {
			return false, state, fmt.Errorf("corrupt window_start for %s: %w", key, parseErr)
		}
		state = ratelimit.State{Count: row.Count, WindowStart: start}
	}

	allowed, next := ratelimit.TryAcquire(state, now, limits)

	_, err = r.q.Exec(ctx, "upsert-rate-window",
		key, next.Count, next.WindowStart.UTC().Format(time.RFC3339))
	if err != nil {
		return false, state, fmt.Errorf("failed to write rate window for %s: %w", key, err)
	}

	return allowed, next, nil
}
