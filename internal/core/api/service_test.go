package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/solatis/stagedoor/internal/core/config"
	"github.com/solatis/stagedoor/internal/ratelimit"
	"github.com/solatis/stagedoor/internal/types"
)

// fakeMailer records requests and returns a scripted result, optionally
// blocking until released.
type fakeMailer struct {
	mu        sync.Mutex
	requests  []types.DeliveryRequest
	block     chan struct{} // nil means respond immediately
	messageID string
	err       error
}

func (m *fakeMailer) Send(_ context.Context, req types.DeliveryRequest) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.block != nil {
		<-m.block
	}
	return m.messageID, m.err
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// failingLimiter always errors, exercising the fail-open path.
type failingLimiter struct{}

func (failingLimiter) Acquire(context.Context, string, time.Time, ratelimit.Limits) (bool, ratelimit.State, error) {
	return false, ratelimit.State{}, errors.New("store down")
}

type recorded struct {
	id     types.SubmissionID
	status string
	detail string
}

type fakeRecorder struct {
	accepted   []types.DeliveryRequest
	deliveries []recorded
}

func (r *fakeRecorder) RecordAccepted(_ context.Context, req types.DeliveryRequest) error {
	r.accepted = append(r.accepted, req)
	return nil
}

func (r *fakeRecorder) RecordDelivery(_ context.Context, id types.SubmissionID, status, detail string) error {
	r.deliveries = append(r.deliveries, recorded{id, status, detail})
	return nil
}

func newTestService(t *testing.T, mailer Mailer, opts ...Option) *RelayService {
	t.Helper()
	svc, err := NewRelayService(config.DefaultRelayConfig(), mailer, ratelimit.NewMemoryStore(), nil, opts...)
	if err != nil {
		t.Fatalf("NewRelayService() error = %v", err)
	}
	return svc
}

func validRequest() ContactRequest {
	return ContactRequest{
		Name:          "Jane Doe",
		Email:         "jane@example.com",
		Website:       "https://janedoe.example",
		Ideas:         "A two-act show about typography",
		HowDidYouHear: "A friend",
	}
}

func TestSubmitContact_Success(t *testing.T) {
	mailer := &fakeMailer{messageID: "<m-1@smtp.zoho.com>"}
	rec := &fakeRecorder{}
	svc := newTestService(t, mailer, WithRecorder(rec))

	result := svc.SubmitContact(context.Background(), "203.0.113.7", validRequest())

	if result.Status != http.StatusOK {
		t.Fatalf("Status = %d, want 200", result.Status)
	}
	if !result.Body.Success || result.Body.Message != "Email sent successfully" {
		t.Errorf("Body = %+v", result.Body)
	}
	if result.Body.MessageID != "<m-1@smtp.zoho.com>" {
		t.Errorf("MessageID = %q", result.Body.MessageID)
	}

	if len(mailer.requests) != 1 {
		t.Fatalf("send attempts = %d, want 1", len(mailer.requests))
	}
	sent := mailer.requests[0]
	if sent.Subject != "New Contact: Jane Doe" {
		t.Errorf("Subject = %q", sent.Subject)
	}
	if sent.Values.FullName != "Jane Doe" || sent.Values.Email != "jane@example.com" {
		t.Errorf("Values = %+v", sent.Values)
	}

	if len(rec.accepted) != 1 {
		t.Fatalf("accepted records = %d, want 1", len(rec.accepted))
	}
	if len(rec.deliveries) != 1 || rec.deliveries[0].status != "sent" {
		t.Errorf("deliveries = %+v", rec.deliveries)
	}
	if rec.deliveries[0].id != sent.ID {
		t.Errorf("delivery recorded for %s, want %s", rec.deliveries[0].id, sent.ID)
	}
}

func TestSubmitContact_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ContactRequest)
		wantError string
	}{
		{"missing name", func(r *ContactRequest) { r.Name = "" }, "Missing required fields: name, email, and ideas are required"},
		{"whitespace name", func(r *ContactRequest) { r.Name = "   " }, "Missing required fields: name, email, and ideas are required"},
		{"missing email", func(r *ContactRequest) { r.Email = "" }, "Missing required fields: name, email, and ideas are required"},
		{"missing ideas", func(r *ContactRequest) { r.Ideas = "" }, "Missing required fields: name, email, and ideas are required"},
		{"malformed email", func(r *ContactRequest) { r.Email = "not-an-email" }, "Invalid email format"},
		{"email without domain dot", func(r *ContactRequest) { r.Email = "jane@example" }, "Invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			svc := newTestService(t, mailer)

			req := validRequest()
			tt.mutate(&req)
			result := svc.SubmitContact(context.Background(), "203.0.113.7", req)

			if result.Status != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", result.Status)
			}
			if result.Body.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", result.Body.Error, tt.wantError)
			}
			if len(mailer.requests) != 0 {
				t.Errorf("send attempts = %d, want 0", len(mailer.requests))
			}
		})
	}
}

func TestSubmitContact_OptionalFieldsEmpty(t *testing.T) {
	mailer := &fakeMailer{messageID: "<m-2@smtp.zoho.com>"}
	svc := newTestService(t, mailer)

	req := validRequest()
	req.Website = ""
	req.HowDidYouHear = "  "
	result := svc.SubmitContact(context.Background(), "203.0.113.7", req)

	if result.Status != http.StatusOK {
		t.Fatalf("Status = %d, want 200", result.Status)
	}
	if got := mailer.requests[0].Values.HeardFrom; got != "" {
		t.Errorf("HeardFrom = %q, want empty after trimming", got)
	}
}

func TestSubmitContact_RateLimited(t *testing.T) {
	cfg := config.DefaultRelayConfig()
	cfg.RateLimitMax = 2
	mailer := &fakeMailer{messageID: "<m-3@smtp.zoho.com>"}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewRelayService(cfg, mailer, ratelimit.NewMemoryStore(), nil,
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewRelayService() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if result := svc.SubmitContact(ctx, "203.0.113.7", validRequest()); result.Status != http.StatusOK {
			t.Fatalf("submission %d: Status = %d, want 200", i+1, result.Status)
		}
	}

	result := svc.SubmitContact(ctx, "203.0.113.7", validRequest())
	if result.Status != http.StatusTooManyRequests {
		t.Fatalf("Status = %d, want 429", result.Status)
	}
	if result.Body.Error != "Too many submissions. Please try again later." {
		t.Errorf("Error = %q", result.Body.Error)
	}
	if result.RetryAfter != cfg.RateLimitWindow {
		t.Errorf("RetryAfter = %v, want %v", result.RetryAfter, cfg.RateLimitWindow)
	}
	if len(mailer.requests) != 2 {
		t.Errorf("send attempts = %d, want 2", len(mailer.requests))
	}

	// Other clients keep their own budget.
	if result := svc.SubmitContact(ctx, "198.51.100.4", validRequest()); result.Status != http.StatusOK {
		t.Errorf("other client Status = %d, want 200", result.Status)
	}
}

func TestSubmitContact_LimiterFailureFailsOpen(t *testing.T) {
	mailer := &fakeMailer{messageID: "<m-4@smtp.zoho.com>"}
	svc, err := NewRelayService(config.DefaultRelayConfig(), mailer, failingLimiter{}, nil)
	if err != nil {
		t.Fatalf("NewRelayService() error = %v", err)
	}

	result := svc.SubmitContact(context.Background(), "203.0.113.7", validRequest())
	if result.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200 despite limiter failure", result.Status)
	}
}

func TestSubmitContact_DeliveryErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantError   string
		wantDetails string
	}{
		{
			"smtp auth failure",
			fmt.Errorf("both relay ports failed: %w", types.ErrSMTPAuthFailed),
			"SMTP authentication failed",
			"Unable to connect to email server. Please try again later.",
		},
		{
			"missing credentials",
			types.ErrMissingCredentials,
			"Server configuration error",
			"",
		},
		{
			"generic failure",
			errors.New("connection reset"),
			"Failed to send email. Please try again later.",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &fakeMailer{err: tt.err}
			rec := &fakeRecorder{}
			svc := newTestService(t, mailer, WithRecorder(rec))

			result := svc.SubmitContact(context.Background(), "203.0.113.7", validRequest())

			if result.Status != http.StatusInternalServerError {
				t.Errorf("Status = %d, want 500", result.Status)
			}
			if result.Body.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", result.Body.Error, tt.wantError)
			}
			if result.Body.Details != tt.wantDetails {
				t.Errorf("Details = %q, want %q", result.Body.Details, tt.wantDetails)
			}
			if len(rec.deliveries) != 1 || rec.deliveries[0].status != "failed" {
				t.Errorf("deliveries = %+v, want one failed record", rec.deliveries)
			}
		})
	}
}

func TestSubmitContact_OptimisticPolicy(t *testing.T) {
	t.Run("responds before delivery resolves", func(t *testing.T) {
		cfg := config.DefaultRelayConfig()
		cfg.AckPolicy = "optimistic"
		mailer := &fakeMailer{block: make(chan struct{}), messageID: "<m-5@smtp.zoho.com>"}
		svc, err := NewRelayService(cfg, mailer, ratelimit.NewMemoryStore(), nil)
		if err != nil {
			t.Fatalf("NewRelayService() error = %v", err)
		}

		// Returns while the mailer is still blocked: optimistic.
		result := svc.SubmitContact(context.Background(), "203.0.113.7", validRequest())
		if result.Status != http.StatusOK {
			t.Fatalf("Status = %d, want 200", result.Status)
		}
		if !result.Body.Success || result.Body.Message != "Email sent successfully" {
			t.Errorf("Body = %+v", result.Body)
		}
		if result.Body.MessageID != "" {
			t.Errorf("MessageID = %q, want empty before delivery resolves", result.Body.MessageID)
		}

		close(mailer.block)
		svc.Wait()
		if mailer.count() != 1 {
			t.Errorf("send attempts = %d, want 1", mailer.count())
		}
	})

	t.Run("delivery failure invisible to the client", func(t *testing.T) {
		cfg := config.DefaultRelayConfig()
		cfg.AckPolicy = "optimistic"
		mailer := &fakeMailer{err: errors.New("relay exploded")}
		rec := &fakeRecorder{}
		svc, err := NewRelayService(cfg, mailer, ratelimit.NewMemoryStore(), nil, WithRecorder(rec))
		if err != nil {
			t.Fatalf("NewRelayService() error = %v", err)
		}

		result := svc.SubmitContact(context.Background(), "203.0.113.7", validRequest())
		if result.Status != http.StatusOK {
			t.Fatalf("Status = %d, want 200 despite pending failure", result.Status)
		}

		svc.Wait()
		if len(rec.deliveries) != 1 || rec.deliveries[0].status != "failed" {
			t.Errorf("deliveries = %+v, want one failed record", rec.deliveries)
		}
	})
}

func TestNewRelayService_InvalidAckPolicy(t *testing.T) {
	cfg := config.DefaultRelayConfig()
	cfg.AckPolicy = "eventually"
	if _, err := NewRelayService(cfg, &fakeMailer{}, ratelimit.NewMemoryStore(), nil); err == nil {
		t.Error("invalid ack policy accepted")
	}
}

func TestNewRelayService_NilDependencies(t *testing.T) {
	cfg := config.DefaultRelayConfig()
	limiter := ratelimit.NewMemoryStore()

	if _, err := NewRelayService(nil, &fakeMailer{}, limiter, nil); err == nil {
		t.Error("nil config accepted")
	}
	if _, err := NewRelayService(cfg, nil, limiter, nil); err == nil {
		t.Error("nil mailer accepted")
	}
	if _, err := NewRelayService(cfg, &fakeMailer{}, nil, nil); err == nil {
		t.Error("nil limiter accepted")
	}
}
