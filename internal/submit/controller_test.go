package submit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solatis/stagedoor/internal/form"
	"github.com/solatis/stagedoor/internal/ratelimit"
	"github.com/solatis/stagedoor/internal/types"
)

// fakeSender records delivery attempts and optionally blocks until released.
type fakeSender struct {
	mu       sync.Mutex
	requests []types.DeliveryRequest
	block    chan struct{} // nil means respond immediately
	err      error
	receipt  types.DeliveryReceipt
}

func (f *fakeSender) Send(ctx context.Context, req types.DeliveryRequest) (types.DeliveryReceipt, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	return f.receipt, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type outcomeSink struct {
	mu       sync.Mutex
	outcomes []types.SubmissionOutcome
}

func (s *outcomeSink) collect(o types.SubmissionOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *outcomeSink) last(t *testing.T) types.SubmissionOutcome {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		t.Fatal("no outcome reported")
	}
	return s.outcomes[len(s.outcomes)-1]
}

func fillValid(t *testing.T, fields *form.FieldStore) {
	t.Helper()
	fields.Replace(types.FormValues{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
	})
}

func newTestController(t *testing.T, cfg Config, sender Sender, sink *outcomeSink, opts ...Option) (*Controller, *form.FieldStore) {
	t.Helper()
	fields := form.NewFieldStore()
	c, err := NewController(cfg, fields, ratelimit.NewMemoryStore(), sender, sink.collect, opts...)
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	return c, fields
}

// Scenario A: valid submission under a fresh window reports Success, clears
// the form, and issues exactly one delivery attempt, with the acknowledgment
// happening before that attempt resolves.
func TestSubmit_OptimisticSuccess(t *testing.T) {
	sender := &fakeSender{
		block:   make(chan struct{}),
		receipt: types.DeliveryReceipt{MessageID: "m-1", Status: 200},
	}
	sink := &outcomeSink{}
	c, fields := newTestController(t, Config{Receiver: "inbox@example.com"}, sender, sink)
	fillValid(t, fields)

	if !c.Submit(context.Background()) {
		t.Fatal("Submit() = false, want true")
	}

	// Outcome arrives while the sender is still blocked: optimistic.
	got := sink.last(t)
	if got.Kind != types.OutcomeSuccess {
		t.Fatalf("Kind = %v, want Success", got.Kind)
	}
	if got.SubmissionID == "" {
		t.Error("SubmissionID empty")
	}
	if !fields.Snapshot().IsZero() {
		t.Error("form not cleared on optimistic accept")
	}

	close(sender.block)
	c.Wait()

	if n := sender.count(); n != 1 {
		t.Errorf("delivery attempts = %d, want 1", n)
	}
	req := sender.requests[0]
	if req.Values.FullName != "Jane Doe" {
		t.Errorf("delivery used post-clear values: %+v", req.Values)
	}
	if req.Subject != "New Contact: Jane Doe" {
		t.Errorf("Subject = %q", req.Subject)
	}
}

// Scenario B: a missing required field reports ValidationFailed, leaves the
// form untouched, and issues zero delivery attempts.
func TestSubmit_ValidationFailed(t *testing.T) {
	sender := &fakeSender{}
	sink := &outcomeSink{}
	c, fields := newTestController(t, Config{}, sender, sink)
	fields.Replace(types.FormValues{FullName: "", Email: "jane@example.com"})

	if !c.Submit(context.Background()) {
		t.Fatal("Submit() = false, want true")
	}

	got := sink.last(t)
	if got.Kind != types.OutcomeValidationFailed {
		t.Fatalf("Kind = %v, want ValidationFailed", got.Kind)
	}
	if len(got.MissingFields) != 1 || got.MissingFields[0] != types.FieldFullName {
		t.Errorf("MissingFields = %v, want [fullName]", got.MissingFields)
	}
	if fields.Snapshot().Email != "jane@example.com" {
		t.Error("form mutated on validation failure")
	}
	if sender.count() != 0 {
		t.Errorf("delivery attempts = %d, want 0", sender.count())
	}
}

// Scenario C: the (limit+1)th valid submission within one window reports
// RateLimited with zero delivery attempts.
func TestSubmit_RateLimited(t *testing.T) {
	sender := &fakeSender{}
	sink := &outcomeSink{}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{Limits: ratelimit.Limits{Max: 200, Window: 24 * time.Hour}}
	c, fields := newTestController(t, cfg, sender, sink, WithClock(func() time.Time { return now }))
	fillValid(t, fields)

	for i := 0; i < 200; i++ {
		fillValid(t, fields) // optimistic accept clears the form each time
		if !c.Submit(context.Background()) {
			t.Fatalf("submission %d ignored", i+1)
		}
		if got := sink.last(t); got.Kind != types.OutcomeSuccess {
			t.Fatalf("submission %d: Kind = %v, want Success", i+1, got.Kind)
		}
	}
	c.Wait()

	fillValid(t, fields)
	c.Submit(context.Background())
	got := sink.last(t)
	if got.Kind != types.OutcomeRateLimited {
		t.Fatalf("Kind = %v, want RateLimited", got.Kind)
	}
	if got.RetryAfter != 24*time.Hour {
		t.Errorf("RetryAfter = %v, want 24h", got.RetryAfter)
	}
	if sender.count() != 200 {
		t.Errorf("delivery attempts = %d, want 200", sender.count())
	}
}

// A delivery failure after an optimistic acknowledgment never revises the
// shown outcome; it is only recorded.
func TestSubmit_OptimisticDeliveryFailureInvisible(t *testing.T) {
	sender := &fakeSender{err: errors.New("relay exploded")}
	sink := &outcomeSink{}
	rec := &fakeRecorder{}
	c, fields := newTestController(t, Config{}, sender, sink, WithRecorder(rec))
	fillValid(t, fields)

	c.Submit(context.Background())
	c.Wait()

	if len(sink.outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(sink.outcomes))
	}
	if sink.outcomes[0].Kind != types.OutcomeSuccess {
		t.Errorf("Kind = %v, want Success", sink.outcomes[0].Kind)
	}
	if got := rec.lastStatus(); got != "failed" {
		t.Errorf("recorded status = %q, want failed", got)
	}
}

func TestSubmit_ConfirmedPolicy(t *testing.T) {
	t.Run("failure surfaces DeliveryError and keeps the form", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("relay exploded")}
		sink := &outcomeSink{}
		c, fields := newTestController(t, Config{Policy: AckConfirmed}, sender, sink)
		fillValid(t, fields)

		c.Submit(context.Background())

		got := sink.last(t)
		if got.Kind != types.OutcomeDeliveryError {
			t.Fatalf("Kind = %v, want DeliveryError", got.Kind)
		}
		if got.Reason == "" {
			t.Error("Reason empty")
		}
		if fields.Snapshot().IsZero() {
			t.Error("form cleared despite delivery failure")
		}
	})

	t.Run("success clears the form", func(t *testing.T) {
		sender := &fakeSender{receipt: types.DeliveryReceipt{MessageID: "m-2"}}
		sink := &outcomeSink{}
		c, fields := newTestController(t, Config{Policy: AckConfirmed}, sender, sink)
		fillValid(t, fields)

		c.Submit(context.Background())

		if got := sink.last(t); got.Kind != types.OutcomeSuccess {
			t.Fatalf("Kind = %v, want Success", got.Kind)
		}
		if !fields.Snapshot().IsZero() {
			t.Error("form not cleared on confirmed success")
		}
	})
}

// A submit trigger while a confirmed send is in flight is ignored without an
// outcome callback.
func TestSubmit_ReentrancyIgnored(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	sink := &outcomeSink{}
	c, fields := newTestController(t, Config{Policy: AckConfirmed}, sender, sink)
	fillValid(t, fields)

	var done atomic.Bool
	go func() {
		c.Submit(context.Background())
		done.Store(true)
	}()

	// Wait for the first attempt to reach the sender.
	for sender.count() == 0 {
		time.Sleep(time.Millisecond)
	}

	if c.Submit(context.Background()) {
		t.Error("reentrant Submit() = true, want ignored")
	}

	close(sender.block)
	for !done.Load() {
		time.Sleep(time.Millisecond)
	}

	if len(sink.outcomes) != 1 {
		t.Errorf("outcomes = %d, want exactly 1", len(sink.outcomes))
	}
	if sender.count() != 1 {
		t.Errorf("delivery attempts = %d, want 1", sender.count())
	}
}

func TestParseAckPolicy(t *testing.T) {
	if p, err := ParseAckPolicy("optimistic"); err != nil || p != AckOptimistic {
		t.Errorf("ParseAckPolicy(optimistic) = %v, %v", p, err)
	}
	if p, err := ParseAckPolicy("confirmed"); err != nil || p != AckConfirmed {
		t.Errorf("ParseAckPolicy(confirmed) = %v, %v", p, err)
	}
	if _, err := ParseAckPolicy("eventually"); err == nil {
		t.Error("ParseAckPolicy(eventually) error = nil, want error")
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	accepted []types.DeliveryRequest
	statuses []string
}

func (r *fakeRecorder) RecordAccepted(_ context.Context, req types.DeliveryRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepted = append(r.accepted, req)
	return nil
}

func (r *fakeRecorder) RecordDelivery(_ context.Context, _ types.SubmissionID, status, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeRecorder) lastStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}
