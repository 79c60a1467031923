package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/marketdesk/marketdesk/api"
	"github.com/marketdesk/marketdesk/internal/config"
	"github.com/marketdesk/marketdesk/pkg/dashboard"
	"github.com/marketdesk/marketdesk/pkg/feed"
	"github.com/marketdesk/marketdesk/pkg/gateway"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketdesk",
		Short: "Live trading dashboard client",
		Long:  `A streaming dashboard client that mirrors market quotes, rolling price history and order flow from a trading backend`,
		Run:   runDashboard,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runDashboard(cmd *cobra.Command, args []string) {
	// Local overrides for development
	_ = godotenv.Load()

	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	// Order gateway against the trading backend
	client := gateway.NewClient(cfg.Backend.BaseURL, gateway.Credentials{
		Username: cfg.Backend.Username,
		Password: cfg.Backend.Password,
	}, logger)

	// Streaming feed connection
	manager := feed.NewManager(cfg.Feed.URL, logger)
	if delay := cfg.Feed.ReconnectDelay(); delay > 0 {
		manager.ReconnectDelay = delay
	}

	controller := dashboard.New(manager, client, cfg.Dashboard.DefaultSymbol, logger)
	if ttl := cfg.Dashboard.NotificationTTL(); ttl > 0 {
		controller.NotificationTTL = ttl
	}

	if err := controller.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start dashboard")
	}

	// View API for the presentation layer
	apiServer := api.NewServer(controller, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start view API")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Dashboard is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	if err := controller.Close(); err != nil {
		logger.WithError(err).Warn("Error during shutdown")
	}

	logger.Info("Dashboard stopped")
}
