// Package mailer delivers accepted submissions to an inbox over SMTP.
//
// One internal fallback exists between two SMTP configurations: the primary
// port with STARTTLS and an alternate port with implicit TLS. That retry is
// local to this collaborator; callers see a single send.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/solatis/stagedoor/internal/types"
	"go.uber.org/zap"
)

// Reference SMTP endpoints of the mail provider.
const (
	DefaultHost         = "smtp.zoho.com"
	DefaultPrimaryPort  = 587 // STARTTLS
	DefaultFallbackPort = 465 // implicit TLS
	DefaultDialTimeout  = 10 * time.Second
)

// fromName is the display name on outgoing mail.
const fromName = "Portfolio Contact Form"

// Config holds SMTP connection settings. Credentials are separate; they come
// from the environment only.
type Config struct {
	Host         string
	PrimaryPort  int
	FallbackPort int
	DialTimeout  time.Duration
}

// DefaultConfig returns the reference SMTP configuration.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		PrimaryPort:  DefaultPrimaryPort,
		FallbackPort: DefaultFallbackPort,
		DialTimeout:  DefaultDialTimeout,
	}
}

// Credentials are the three secrets the relay depends on: the authenticating
// account, its app password, and the inbox that receives submissions.
type Credentials struct {
	User     string
	Password string
	Receiver string
}

// dialFunc abstracts the TCP dial for tests.
type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Mailer sends submission mail through one SMTP account.
type Mailer struct {
	cfg   Config
	creds Credentials
	log   *zap.Logger
	dial  dialFunc
}

// New creates a mailer. Returns ErrMissingCredentials when any of the three
// secrets is absent.
func New(cfg Config, creds Credentials, log *zap.Logger) (*Mailer, error) {
	if creds.User == "" || creds.Password == "" || creds.Receiver == "" {
		return nil, types.ErrMissingCredentials
	}
	if cfg.Host == "" {
		cfg = DefaultConfig()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Mailer{cfg: cfg, creds: creds, log: log, dial: d.DialContext}, nil
}

// Send delivers one submission. The primary configuration is tried first; on
// any connection or authentication failure the fallback configuration gets
// exactly one attempt before the send is reported failed.
// Returns the generated message identifier on success.
func (m *Mailer) Send(ctx context.Context, req types.DeliveryRequest) (string, error) {
	receiver := req.Receiver
	if receiver == "" {
		receiver = m.creds.Receiver
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.Must(uuid.NewV7()).String(), m.cfg.Host)
	msg := buildMessage(req, m.creds.User, receiver, messageID)

	primaryErr := m.sendVia(ctx, m.cfg.PrimaryPort, false, receiver, msg)
	if primaryErr == nil {
		m.log.Info("email sent",
			zap.String("submission_id", string(req.ID)),
			zap.Int("port", m.cfg.PrimaryPort),
			zap.String("message_id", messageID))
		return messageID, nil
	}

	m.log.Warn("primary SMTP configuration failed, trying fallback",
		zap.Int("primary_port", m.cfg.PrimaryPort),
		zap.Int("fallback_port", m.cfg.FallbackPort),
		zap.Error(primaryErr))

	fallbackErr := m.sendVia(ctx, m.cfg.FallbackPort, true, receiver, msg)
	if fallbackErr == nil {
		m.log.Info("email sent via fallback",
			zap.String("submission_id", string(req.ID)),
			zap.Int("port", m.cfg.FallbackPort),
			zap.String("message_id", messageID))
		return messageID, nil
	}

	return "", fmt.Errorf("%w: primary port %d: %v; fallback port %d: %v",
		types.ErrSMTPAuthFailed, m.cfg.PrimaryPort, primaryErr, m.cfg.FallbackPort, fallbackErr)
}

// sendVia performs one full SMTP session against a single configuration.
// implicitTLS selects TLS-on-connect (port 465 style); otherwise the session
// upgrades with STARTTLS after EHLO.
func (m *Mailer) sendVia(ctx context.Context, port int, implicitTLS bool, receiver string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", port))

	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// The deadline bounds the whole SMTP session, not just the dial; a server
	// that accepts TCP but never greets must not block the sender forever.
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.cfg.DialTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set session deadline: %w", err)
	}

	if implicitTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: m.cfg.Host})
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("SMTP handshake failed: %w", err)
	}
	defer client.Close()

	if !implicitTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	// Auth success doubles as connection verification; there is no separate
	// probe before the send.
	auth := smtp.PlainAuth("", m.creds.User, m.creds.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if err := client.Mail(m.creds.User); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(receiver); err != nil {
		return fmt.Errorf("RCPT TO rejected: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message not accepted: %w", err)
	}

	return client.Quit()
}
