package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/guiderelay/internal/config"
	"github.com/tyemirov/guiderelay/internal/db"
	"github.com/tyemirov/guiderelay/internal/httpapi"
	"github.com/tyemirov/guiderelay/internal/service"
	"github.com/tyemirov/guiderelay/pkg/logging"
)

const defaultDeliveryListLimit = 20

type rootOptions struct {
	configFile string
}

func newRootCommand(output io.Writer) *cobra.Command {
	options := &rootOptions{}

	root := &cobra.Command{
		Use:           "guiderelay",
		Short:         "Relay travel-guide questions to Flowise and email itineraries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := v.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
				return err
			}
			cfg, err := config.Load(v, options.configFile)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&options.configFile, "config", "", "Configuration file (yaml, json, toml, or env); environment variables take precedence")
	root.Flags().Int("port", 0, "HTTP port, overrides PORT")

	root.AddCommand(buildDeliveriesCommand(options, output))
	return root
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting guide relay...", "flowise_url", cfg.FlowiseAPIURL, "delivery_log", cfg.DeliveryLogEnabled())
	if !cfg.EmailConfigured() {
		logger.Warn("GMAIL_USER or GMAIL_PASS is not set; itinerary emails will be refused")
	}

	encoder, err := service.NewUploadEncoder(cfg.UploadFolder, logger)
	if err != nil {
		return err
	}

	forwarder := service.NewPredictionForwarder(service.FlowiseConfig{
		EndpointURL: cfg.FlowiseAPIURL,
		APIKey:      cfg.FlowiseAPIKey,
		Timeout:     cfg.PredictionTimeout,
	}, logger)

	emailSender := service.NewSMTPEmailSender(service.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.GmailUser,
		Password:    cfg.GmailPass,
		FromAddress: cfg.GmailUser,
		Timeout:     cfg.SMTPTimeout,
	}, logger)

	var recorder service.DeliveryRecorder
	if cfg.DeliveryLogEnabled() {
		deliveryLog, openErr := openDeliveryLog(cfg.DatabasePath, logger)
		if openErr != nil {
			return openErr
		}
		defer func() {
			if closeErr := deliveryLog.Close(); closeErr != nil {
				logger.Error("Failed to close delivery log", "error", closeErr)
			}
		}()
		recorder = deliveryLog
	}

	notifier := service.NewNotificationSender(
		service.SenderCredentials{Username: cfg.GmailUser, Password: cfg.GmailPass},
		emailSender,
		recorder,
		logger,
	)

	server, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:         cfg.ListenAddr(),
		AllowedOrigins:     cfg.AllowedOrigins,
		Encoder:            encoder,
		Forwarder:          forwarder,
		NotificationSender: notifier,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down guide relay...")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
		return err
	}
	logger.Info("Server shut down gracefully.")
	return nil
}

func openDeliveryLog(databasePath string, logger *slog.Logger) (*db.DeliveryLog, error) {
	gormDB, err := db.InitDB(databasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open delivery log: %w", err)
	}
	return db.NewDeliveryLog(gormDB), nil
}

func buildDeliveriesCommand(options *rootOptions, output io.Writer) *cobra.Command {
	var limit int

	command := &cobra.Command{
		Use:   "deliveries",
		Short: "List recent itinerary email attempts from the delivery log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), options.configFile)
			if err != nil {
				return err
			}
			if !cfg.DeliveryLogEnabled() {
				return errors.New("delivery log is disabled: set DATABASE_PATH")
			}

			logger := logging.NewLoggerWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			deliveryLog, err := openDeliveryLog(cfg.DatabasePath, logger)
			if err != nil {
				return err
			}
			defer deliveryLog.Close()

			records, err := deliveryLog.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list deliveries: %w", err)
			}

			if output == nil {
				output = io.Discard
			}
			if len(records) == 0 {
				_, writeErr := fmt.Fprintln(output, "No deliveries recorded")
				return writeErr
			}
			for _, record := range records {
				line := fmt.Sprintf("%s\t%s\t%s\t%q", record.CreatedAt.UTC().Format(time.RFC3339), record.Status, record.Recipient, record.Subject)
				if record.FailureKind != "" {
					line += fmt.Sprintf("\t%s: %s", record.FailureKind, record.FailureDetail)
				}
				if _, writeErr := fmt.Fprintln(output, line); writeErr != nil {
					return writeErr
				}
			}
			return nil
		},
	}

	command.Flags().IntVar(&limit, "limit", defaultDeliveryListLimit, "Maximum number of records to print")
	return command
}
