package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadRelayConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadRelayConfig(configPath string) (*RelayConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultRelayConfig
	v.SetDefault("relay.host", "0.0.0.0")
	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.request_timeout", "30s")
	// Confirmed holds the HTTP response until the SMTP send resolves, so
	// delivery failures stay observable as 500s; optimistic answers first.
	v.SetDefault("relay.ack_policy", "confirmed")
	v.SetDefault("relay.allow_origin", "*")
	v.SetDefault("delivery.timeout", "8s")
	v.SetDefault("delivery.subject_template", "New Contact: %s")
	v.SetDefault("smtp.host", "smtp.zoho.com")
	v.SetDefault("smtp.primary_port", 587)
	v.SetDefault("smtp.fallback_port", 465)
	v.SetDefault("rate_limit.max_submissions", 200)
	v.SetDefault("rate_limit.window", "24h")

	// Bind environment variables with SD_ prefix
	v.SetEnvPrefix("SD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Security check: reject secrets in config files
	// Credentials must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &RelayConfig{
		Host:             v.GetString("relay.host"),
		Port:             v.GetInt("relay.port"),
		RequestTimeout:   v.GetDuration("relay.request_timeout"),
		AckPolicy:        v.GetString("relay.ack_policy"),
		AllowOrigin:      v.GetString("relay.allow_origin"),
		DeliveryTimeout:  v.GetDuration("delivery.timeout"),
		SubjectTemplate:  v.GetString("delivery.subject_template"),
		SMTPHost:         v.GetString("smtp.host"),
		SMTPPrimaryPort:  v.GetInt("smtp.primary_port"),
		SMTPFallbackPort: v.GetInt("smtp.fallback_port"),
		RateLimitMax:     v.GetInt("rate_limit.max_submissions"),
		RateLimitWindow:  v.GetDuration("rate_limit.window"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port ranges, positive durations, and the ack policy.
func validateConfig(cfg *RelayConfig) error {
	for name, port := range map[string]int{
		"port":               cfg.Port,
		"smtp.primary_port":  cfg.SMTPPrimaryPort,
		"smtp.fallback_port": cfg.SMTPFallbackPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
		}
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}
	if cfg.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive, got %v", cfg.DeliveryTimeout)
	}
	if cfg.RateLimitMax <= 0 {
		return fmt.Errorf("max_submissions must be positive, got %d", cfg.RateLimitMax)
	}
	if cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %v", cfg.RateLimitWindow)
	}
	if cfg.AckPolicy != "optimistic" && cfg.AckPolicy != "confirmed" {
		return fmt.Errorf("ack_policy must be optimistic or confirmed, got %q", cfg.AckPolicy)
	}
	if !strings.Contains(cfg.SubjectTemplate, "%s") {
		return fmt.Errorf("subject_template must contain a %%s placeholder, got %q", cfg.SubjectTemplate)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	// InConfig inspects only the file, so exported SD_SMTP_* variables do not
	// trip the check.
	for _, key := range []string{"smtp.user", "smtp.pass", "smtp.password", "smtp.receiver"} {
		if v.InConfig(key) {
			return fmt.Errorf("SMTP credentials not allowed in config files (use %s, %s and %s environment variables)",
				EnvSMTPUser, EnvSMTPPassword, EnvSMTPReceiver)
		}
	}
	return nil
}
