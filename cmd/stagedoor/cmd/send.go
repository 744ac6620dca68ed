package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/stagedoor/internal/core/config"
	"github.com/solatis/stagedoor/internal/core/logging"
	"github.com/solatis/stagedoor/internal/mailer"
	"github.com/solatis/stagedoor/internal/types"
	"github.com/spf13/cobra"
)

var testSendCmd = &cobra.Command{
	Use:   "test-send",
	Short: "Send a test submission through the SMTP relay",
	Long:  `Sends a synthetic contact submission using the configured SMTP credentials. Useful for verifying credentials and relay connectivity before going live.`,
	RunE:  runTestSend,
}

func init() {
	rootCmd.AddCommand(testSendCmd)
	testSendCmd.Flags().String("name", "Stagedoor Test", "sender name for the test message")
	testSendCmd.Flags().String("email", "test@example.com", "reply-to address for the test message")
	testSendCmd.Flags().String("message", "This is a test submission from the stagedoor CLI.", "message body")
}

func runTestSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadRelayConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(logLevel, logFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	creds, err := config.LoadSMTPCredentials()
	if err != nil {
		return fmt.Errorf("failed to load SMTP credentials: %w", err)
	}

	m, err := mailer.New(mailer.Config{
		Host:         cfg.SMTPHost,
		PrimaryPort:  cfg.SMTPPrimaryPort,
		FallbackPort: cfg.SMTPFallbackPort,
	}, mailer.Credentials{
		User:     creds.User,
		Password: creds.Password,
		Receiver: creds.Receiver,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	message, _ := cmd.Flags().GetString("message")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := types.DeliveryRequest{
		ID: types.NewSubmissionID(),
		Values: types.FormValues{
			FullName: name,
			Email:    email,
			Ideas:    message,
		},
		Subject: fmt.Sprintf(cfg.SubjectTemplate, name),
	}

	messageID, err := m.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("test send failed: %w", err)
	}

	fmt.Printf("test message sent to %s (message id %s)\n", config.Mask(creds.Receiver), messageID)
	return nil
}
