// Package submit orchestrates the contact form submission lifecycle.
//
// One submission attempt walks Idle -> Validating -> RateChecking -> Sending
// -> Acknowledged. All transitions up to the delivery call are synchronous and
// atomic; delivery is the only suspending operation. The presentation layer
// receives exactly one SubmissionOutcome per accepted trigger.
package submit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/solatis/stagedoor/internal/form"
	"github.com/solatis/stagedoor/internal/ratelimit"
	"github.com/solatis/stagedoor/internal/types"
	"go.uber.org/zap"
)

// AckPolicy selects when the visitor-visible outcome is reported.
type AckPolicy int

const (
	// AckOptimistic reports Success and clears the form before delivery is
	// confirmed; a later delivery failure is logged and recorded, never
	// surfaced to the visitor. This matches the newest site revision.
	AckOptimistic AckPolicy = iota

	// AckConfirmed holds the outcome until delivery resolves and surfaces
	// failures as OutcomeDeliveryError.
	AckConfirmed
)

// ParseAckPolicy converts a config string to an AckPolicy.
func ParseAckPolicy(s string) (AckPolicy, error) {
	switch s {
	case "optimistic", "":
		return AckOptimistic, nil
	case "confirmed":
		return AckConfirmed, nil
	default:
		return 0, fmt.Errorf("unknown ack policy %q (expected optimistic or confirmed)", s)
	}
}

// phase is the controller's position in the submission state machine.
type phase int

const (
	phaseIdle phase = iota
	phaseValidating
	phaseRateChecking
	phaseSending
	phaseAcknowledged
)

// Sender performs one delivery attempt. Implemented by delivery.Client for
// HTTP relays and by adapters over the SMTP mailer.
type Sender interface {
	Send(ctx context.Context, req types.DeliveryRequest) (types.DeliveryReceipt, error)
}

// Recorder persists submission outcomes for operator visibility. Recording is
// best-effort: a failing recorder is logged, never surfaced to the visitor.
type Recorder interface {
	RecordAccepted(ctx context.Context, req types.DeliveryRequest) error
	RecordDelivery(ctx context.Context, id types.SubmissionID, status, detail string) error
}

// Config holds the controller's per-instance settings.
type Config struct {
	// Limits bounds submission volume for this session. Zero value falls
	// back to ratelimit.DefaultLimits.
	Limits ratelimit.Limits

	// Policy selects optimistic or confirmed acknowledgment.
	Policy AckPolicy

	// Receiver is the destination inbox carried on every delivery request.
	Receiver string

	// SubjectTemplate renders the subject line; %s receives the full name.
	SubjectTemplate string

	// SessionKey identifies this session in the rate limit store.
	SessionKey string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithClock injects a time source for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithRecorder attaches an audit sink.
func WithRecorder(rec Recorder) Option {
	return func(c *Controller) { c.recorder = rec }
}

// Controller owns one form instance's submission lifecycle.
type Controller struct {
	cfg       Config
	fields    *form.FieldStore
	limiter   ratelimit.Store
	sender    Sender
	recorder  Recorder
	onOutcome func(types.SubmissionOutcome)
	clock     func() time.Time
	log       *zap.Logger

	mu    sync.Mutex
	phase phase
	wg    sync.WaitGroup
}

// NewController creates a controller with its collaborators.
func NewController(cfg Config, fields *form.FieldStore, limiter ratelimit.Store, sender Sender, onOutcome func(types.SubmissionOutcome), opts ...Option) (*Controller, error) {
	if fields == nil {
		return nil, fmt.Errorf("fields cannot be nil")
	}
	if limiter == nil {
		return nil, fmt.Errorf("limiter cannot be nil")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if onOutcome == nil {
		return nil, fmt.Errorf("onOutcome cannot be nil")
	}
	if cfg.Limits == (ratelimit.Limits{}) {
		cfg.Limits = ratelimit.DefaultLimits()
	}
	if cfg.SubjectTemplate == "" {
		cfg.SubjectTemplate = "New Contact: %s"
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = "session"
	}

	c := &Controller{
		cfg:       cfg,
		fields:    fields,
		limiter:   limiter,
		sender:    sender,
		onOutcome: onOutcome,
		clock:     time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit processes one submit trigger against the current field values.
// Returns false when the trigger is ignored because a previous attempt is
// still in flight; otherwise exactly one outcome callback follows.
func (c *Controller) Submit(ctx context.Context) bool {
	c.mu.Lock()

	// Reentrancy guard: a new trigger is ignored unless the machine is at
	// rest (Idle, or Acknowledged where a new attempt is the interaction
	// that returns it to Idle).
	if c.phase != phaseIdle && c.phase != phaseAcknowledged {
		c.mu.Unlock()
		c.log.Debug("submit trigger ignored", zap.Error(types.ErrSubmissionInFlight))
		return false
	}

	c.phase = phaseValidating
	values := c.fields.Snapshot().Trimmed()

	if res := form.Validate(values); !res.Valid() {
		// Field values stay untouched so the visitor can correct in place.
		c.acknowledgeLocked(types.SubmissionOutcome{
			Kind:          types.OutcomeValidationFailed,
			MissingFields: res.MissingFields,
		})
		return true
	}

	c.phase = phaseRateChecking
	now := c.clock()
	allowed, state, err := c.limiter.Acquire(ctx, c.cfg.SessionKey, now, c.cfg.Limits)
	if err != nil {
		// Fail open: a broken counter store should not drop visitor mail.
		c.log.Error("rate limit store unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		c.acknowledgeLocked(types.SubmissionOutcome{
			Kind:       types.OutcomeRateLimited,
			RetryAfter: state.RetryAfter(now, c.cfg.Limits),
		})
		return true
	}

	c.phase = phaseSending
	req := types.DeliveryRequest{
		ID:       types.NewSubmissionID(),
		Values:   values,
		Receiver: c.cfg.Receiver,
		Subject:  fmt.Sprintf(c.cfg.SubjectTemplate, values.FullName),
	}
	c.record(ctx, func(r Recorder) error { return r.RecordAccepted(ctx, req) })

	if c.cfg.Policy == AckConfirmed {
		return c.submitConfirmed(ctx, req)
	}
	return c.submitOptimistic(ctx, req)
}

// submitOptimistic acknowledges Success and clears the form before delivery
// resolves, then fires the delivery attempt in the background. Called with
// c.mu held; releases it.
func (c *Controller) submitOptimistic(ctx context.Context, req types.DeliveryRequest) bool {
	c.fields.Clear()
	c.acknowledgeLocked(types.SubmissionOutcome{
		Kind:         types.OutcomeSuccess,
		SubmissionID: req.ID,
	})

	// Detach from the trigger's context: an optimistic send outlives the UI
	// event that started it, bounded only by the sender's own timeout.
	bg := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		receipt, err := c.sender.Send(bg, req)
		c.resolveDelivery(bg, req, receipt, err)
	}()
	return true
}

// submitConfirmed performs the delivery attempt before acknowledging, holding
// the Sending phase so concurrent triggers are ignored. Called with c.mu
// held; releases it.
func (c *Controller) submitConfirmed(ctx context.Context, req types.DeliveryRequest) bool {
	c.mu.Unlock()
	receipt, err := c.sender.Send(ctx, req)
	c.resolveDelivery(ctx, req, receipt, err)

	c.mu.Lock()
	if err != nil {
		c.acknowledgeLocked(types.SubmissionOutcome{
			Kind:         types.OutcomeDeliveryError,
			SubmissionID: req.ID,
			Reason:       err.Error(),
		})
		return true
	}

	c.fields.Clear()
	c.acknowledgeLocked(types.SubmissionOutcome{
		Kind:         types.OutcomeSuccess,
		SubmissionID: req.ID,
	})
	return true
}

// resolveDelivery logs and records the final delivery result. Under the
// optimistic policy this runs after the outcome was already shown and never
// reopens the state machine.
func (c *Controller) resolveDelivery(ctx context.Context, req types.DeliveryRequest, receipt types.DeliveryReceipt, err error) {
	if err != nil {
		c.log.Error("delivery failed",
			zap.String("submission_id", string(req.ID)),
			zap.Error(err))
		c.record(ctx, func(r Recorder) error {
			return r.RecordDelivery(ctx, req.ID, "failed", err.Error())
		})
		return
	}

	c.log.Info("delivery confirmed",
		zap.String("submission_id", string(req.ID)),
		zap.String("message_id", receipt.MessageID))
	c.record(ctx, func(r Recorder) error {
		return r.RecordDelivery(ctx, req.ID, "sent", receipt.MessageID)
	})
}

// acknowledgeLocked moves to Acknowledged and reports the outcome. Called
// with c.mu held; releases it before invoking the callback so the callback
// may immediately trigger the next attempt.
func (c *Controller) acknowledgeLocked(outcome types.SubmissionOutcome) {
	c.phase = phaseAcknowledged
	c.mu.Unlock()
	c.onOutcome(outcome)
}

// Dismiss returns the machine to Idle after the presentation layer has shown
// the outcome. A new Submit works from Acknowledged as well; Dismiss exists
// for front ends that model modal dismissal explicitly.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseAcknowledged {
		c.phase = phaseIdle
	}
}

// Wait blocks until all background delivery attempts have resolved. Used by
// graceful shutdown and tests.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// record applies fn against the recorder when one is attached. Failures are
// logged only; the audit trail is not authoritative.
func (c *Controller) record(_ context.Context, fn func(Recorder) error) {
	if c.recorder == nil {
		return
	}
	if err := fn(c.recorder); err != nil {
		c.log.Warn("failed to record submission", zap.Error(err))
	}
}
