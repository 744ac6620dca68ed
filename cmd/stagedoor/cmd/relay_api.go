package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/stagedoor/internal/core/api"
	"github.com/solatis/stagedoor/internal/core/config"
	"github.com/solatis/stagedoor/internal/core/db"
	"github.com/solatis/stagedoor/internal/core/logging"
	"github.com/solatis/stagedoor/internal/core/server"
	"github.com/solatis/stagedoor/internal/mailer"
	"github.com/solatis/stagedoor/internal/ratelimit"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const Version = "0.1.0"

var relayAPICmd = &cobra.Command{
	Use:   "relay-api",
	Short: "Start HTTP contact relay service",
	RunE:  runRelayAPI,
}

func init() {
	rootCmd.AddCommand(relayAPICmd)
	relayAPICmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	relayAPICmd.Flags().Int("port", 8080, "HTTP server port")
}

func runRelayAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadRelayConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Port = port
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
		DialTimeout:  cfg.DeliveryTimeout,
	}, mailer.Credentials{
		User:     creds.User,
		Password: creds.Password,
		Receiver: creds.Receiver,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create mailer: %w", err)
	}

	// Without a database the relay still runs; counters live in memory and
	// no audit rows are written.
	var (
		limiter ratelimit.Store = ratelimit.NewMemoryStore()
		opts    []api.Option
	)
	if dbURL != "" {
		database, err := db.Open(dbURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		queries, err := db.LoadQueries(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}

		limiter = db.NewRateLimitStore(queries)
		opts = append(opts, api.WithRecorder(db.NewSubmissionStore(queries)))
		log.Info("using database-backed stores")
	}

	service, err := api.NewRelayService(cfg, m, limiter, log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg, service, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("starting stagedoor relay API",
		zap.String("version", Version),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("smtp_user", config.Mask(creds.User)),
		zap.String("receiver", config.Mask(creds.Receiver)))

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
		// Under the optimistic policy deliveries outlive their requests.
		service.Wait()
		return nil
	}
}
