// Package config provides configuration management for stagedoor services.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// RelayConfig holds configuration for the HTTP contact relay service.
type RelayConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	DeliveryTimeout time.Duration

	SMTPHost         string
	SMTPPrimaryPort  int
	SMTPFallbackPort int

	RateLimitMax    int
	RateLimitWindow time.Duration

	SubjectTemplate string
	AckPolicy       string
	AllowOrigin     string
}

// DefaultRelayConfig returns configuration with default values.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Host:             "0.0.0.0",
		Port:             8080,
		RequestTimeout:   30 * time.Second,
		DeliveryTimeout:  8 * time.Second,
		SMTPHost:         "smtp.zoho.com",
		SMTPPrimaryPort:  587,
		SMTPFallbackPort: 465,
		RateLimitMax:     200,
		RateLimitWindow:  24 * time.Hour,
		SubjectTemplate:  "New Contact: %s",
		AckPolicy:        "confirmed",
		AllowOrigin:      "*",
	}
}

// SMTPCredentials holds the three secrets the relay depends on.
// Environment-only per 12-factor principles; never read from config files.
type SMTPCredentials struct {
	User     string
	Password string
	Receiver string
}

// Environment variable names for SMTP credentials.
const (
	EnvSMTPUser     = "SD_SMTP_USER"
	EnvSMTPPassword = "SD_SMTP_PASS"
	EnvSMTPReceiver = "SD_SMTP_RECEIVER"
)

// LoadSMTPCredentials extracts SMTP credentials from environment variables.
// Returns an error naming every missing variable; values are never logged.
func LoadSMTPCredentials() (*SMTPCredentials, error) {
	creds := &SMTPCredentials{
		User:     strings.TrimSpace(os.Getenv(EnvSMTPUser)),
		Password: strings.TrimSpace(os.Getenv(EnvSMTPPassword)),
		Receiver: strings.TrimSpace(os.Getenv(EnvSMTPReceiver)),
	}

	var missing []string
	if creds.User == "" {
		missing = append(missing, EnvSMTPUser)
	}
	if creds.Password == "" {
		missing = append(missing, EnvSMTPPassword)
	}
	if creds.Receiver == "" {
		missing = append(missing, EnvSMTPReceiver)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}

	return creds, nil
}

// Mask returns a loggable form of an address-like secret: first three
// characters plus the domain, never the full value.
func Mask(s string) string {
	if s == "" {
		return "MISSING"
	}
	at := strings.IndexByte(s, '@')
	if at < 0 {
		if len(s) <= 3 {
			return "***"
		}
		return s[:3] + "..."
	}
	prefix := s[:at]
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return prefix + "...@" + s[at+1:]
}
