// Package api implements the contact relay request handling.
//
// Thin orchestration layer delegating to form validation, rate limiting, the
// SMTP mailer, and the audit store. Transport concerns (CORS, methods, JSON
// framing) live in the server package.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/solatis/stagedoor/internal/core/config"
	"github.com/solatis/stagedoor/internal/form"
	"github.com/solatis/stagedoor/internal/ratelimit"
	"github.com/solatis/stagedoor/internal/submit"
	"github.com/solatis/stagedoor/internal/types"
	"go.uber.org/zap"
)

// Visitor-facing messages, kept stable for the site's front end.
const (
	msgMissingFields  = "Missing required fields: name, email, and ideas are required"
	msgInvalidEmail   = "Invalid email format"
	msgRateLimited    = "Too many submissions. Please try again later."
	msgConfigError    = "Server configuration error"
	msgSMTPAuthFailed = "SMTP authentication failed"
	msgSMTPDetails    = "Unable to connect to email server. Please try again later."
	msgSendFailed     = "Failed to send email. Please try again later."
	msgSent           = "Email sent successfully"
)

// Mailer delivers one submission and returns a message identifier.
type Mailer interface {
	Send(ctx context.Context, req types.DeliveryRequest) (string, error)
}

// Recorder persists submission outcomes. Satisfied by db.SubmissionStore.
type Recorder interface {
	RecordAccepted(ctx context.Context, req types.DeliveryRequest) error
	RecordDelivery(ctx context.Context, id types.SubmissionID, status, detail string) error
}

// ContactRequest is the JSON payload the site's contact form posts.
type ContactRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Website       string `json:"website"`
	Ideas         string `json:"ideas"`
	HowDidYouHear string `json:"howDidYouHear"`
}

// ContactResponse is the JSON body returned for every contact request.
type ContactResponse struct {
	Success   bool   `json:"success,omitempty"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
	Details   string `json:"details,omitempty"`
}

// Result pairs the response body with its HTTP status.
type Result struct {
	Status int
	Body   ContactResponse

	// RetryAfter is non-zero for rate-limited results.
	RetryAfter time.Duration
}

// RelayService handles contact submissions on behalf of the relay endpoint.
//
// The acknowledgment policy decides when the HTTP response is written:
// confirmed (the default) holds it until the SMTP send resolves, so delivery
// failures surface as 500s; optimistic answers 200 as soon as the submission
// is accepted and resolves the send in the background, where failures are
// logged and recorded only.
type RelayService struct {
	cfg      *config.RelayConfig
	policy   submit.AckPolicy
	mailer   Mailer
	limiter  ratelimit.Store
	limits   ratelimit.Limits
	recorder Recorder
	clock    func() time.Time
	log      *zap.Logger
	wg       sync.WaitGroup
}

// Option configures a RelayService.
type Option func(*RelayService)

// WithRecorder attaches an audit sink.
func WithRecorder(rec Recorder) Option {
	return func(s *RelayService) { s.recorder = rec }
}

// WithClock injects a time source for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *RelayService) { s.clock = clock }
}

// NewRelayService creates a service instance with its dependencies.
func NewRelayService(cfg *config.RelayConfig, mailer Mailer, limiter ratelimit.Store, log *zap.Logger, opts ...Option) (*RelayService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer cannot be nil")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	policy, err := submit.ParseAckPolicy(cfg.AckPolicy)
	if err != nil {
		return nil, err
	}

	s := &RelayService{
		cfg:     cfg,
		policy:  policy,
		mailer:  mailer,
		limiter: limiter,
		limits:  ratelimit.Limits{Max: cfg.RateLimitMax, Window: cfg.RateLimitWindow},
		clock:   time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitContact processes one contact submission for the given client key
// (the visitor's network identity, used for rate limiting).
func (s *RelayService) SubmitContact(ctx context.Context, clientKey string, req ContactRequest) Result {
	values := types.FormValues{
		FullName:  req.Name,
		Email:     req.Email,
		Website:   req.Website,
		Ideas:     req.Ideas,
		HeardFrom: req.HowDidYouHear,
	}.Trimmed()

	// The relay requires the message body on top of the core's required set.
	res := form.ValidateRequired(values,
		types.FieldFullName, types.FieldEmail, types.FieldIdeas)
	if !res.Valid() {
		// A present but malformed email gets its own message, matching the
		// original endpoint; anything else is the generic missing-fields one.
		if len(res.MissingFields) == 1 && res.MissingFields[0] == types.FieldEmail && values.Email != "" {
			return Result{Status: http.StatusBadRequest, Body: ContactResponse{Error: msgInvalidEmail}}
		}
		s.log.Debug("submission rejected",
			zap.Strings("missing_fields", res.MissingFields))
		return Result{Status: http.StatusBadRequest, Body: ContactResponse{Error: msgMissingFields}}
	}

	now := s.clock()
	allowed, state, err := s.limiter.Acquire(ctx, clientKey, now, s.limits)
	if err != nil {
		// Fail open: a broken counter store should not drop visitor mail.
		s.log.Error("rate limit store unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		s.log.Warn("submission rate limited",
			zap.String("client_key", clientKey),
			zap.Int("count", state.Count))
		return Result{
			Status:     http.StatusTooManyRequests,
			Body:       ContactResponse{Error: msgRateLimited},
			RetryAfter: state.RetryAfter(now, s.limits),
		}
	}

	deliveryReq := types.DeliveryRequest{
		ID:      types.NewSubmissionID(),
		Values:  values,
		Subject: fmt.Sprintf(s.cfg.SubjectTemplate, values.FullName),
	}
	s.record(ctx, func(r Recorder) error { return r.RecordAccepted(ctx, deliveryReq) })

	if s.policy == submit.AckOptimistic {
		// Detach from the request context: the send outlives the HTTP
		// exchange, bounded only by the mailer's own deadlines.
		bg := context.WithoutCancel(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(bg, deliveryReq)
		}()
		return Result{
			Status: http.StatusOK,
			Body:   ContactResponse{Success: true, Message: msgSent},
		}
	}

	messageID, err := s.mailer.Send(ctx, deliveryReq)
	if err != nil {
		s.log.Error("delivery failed",
			zap.String("submission_id", string(deliveryReq.ID)),
			zap.Error(err))
		s.record(ctx, func(r Recorder) error {
			return r.RecordDelivery(ctx, deliveryReq.ID, "failed", err.Error())
		})

		switch {
		case errors.Is(err, types.ErrMissingCredentials):
			return Result{Status: http.StatusInternalServerError, Body: ContactResponse{Error: msgConfigError}}
		case errors.Is(err, types.ErrSMTPAuthFailed):
			return Result{Status: http.StatusInternalServerError, Body: ContactResponse{Error: msgSMTPAuthFailed, Details: msgSMTPDetails}}
		default:
			return Result{Status: http.StatusInternalServerError, Body: ContactResponse{Error: msgSendFailed}}
		}
	}

	s.log.Info("submission delivered",
		zap.String("submission_id", string(deliveryReq.ID)),
		zap.String("message_id", messageID))
	s.record(ctx, func(r Recorder) error {
		return r.RecordDelivery(ctx, deliveryReq.ID, "sent", messageID)
	})

	return Result{
		Status: http.StatusOK,
		Body:   ContactResponse{Success: true, Message: msgSent, MessageID: messageID},
	}
}

// deliver resolves a background send under the optimistic policy. The HTTP
// response is long gone; failures are logged and recorded only.
func (s *RelayService) deliver(ctx context.Context, req types.DeliveryRequest) {
	messageID, err := s.mailer.Send(ctx, req)
	if err != nil {
		s.log.Error("delivery failed",
			zap.String("submission_id", string(req.ID)),
			zap.Error(err))
		s.record(ctx, func(r Recorder) error {
			return r.RecordDelivery(ctx, req.ID, "failed", err.Error())
		})
		return
	}

	s.log.Info("submission delivered",
		zap.String("submission_id", string(req.ID)),
		zap.String("message_id", messageID))
	s.record(ctx, func(r Recorder) error {
		return r.RecordDelivery(ctx, req.ID, "sent", messageID)
	})
}

// Wait blocks until all background deliveries have resolved. Used by graceful
// shutdown and tests.
func (s *RelayService) Wait() {
	s.wg.Wait()
}

// record applies fn against the recorder when one is attached. The audit
// trail is best-effort, never authoritative.
func (s *RelayService) record(_ context.Context, fn func(Recorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(s.recorder); err != nil {
		s.log.Warn("failed to record submission", zap.Error(err))
	}
}
