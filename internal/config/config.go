package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/marketdesk/marketdesk/pkg/secrets"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	GCP       GCPConfig       `mapstructure:"gcp"`
}

// ServerConfig is the local view API the presentation layer attaches to.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type FeedConfig struct {
	URL              string `mapstructure:"url"`
	ReconnectDelayMS int    `mapstructure:"reconnect_delay_ms"`
}

func (f FeedConfig) ReconnectDelay() time.Duration {
	return time.Duration(f.ReconnectDelayMS) * time.Millisecond
}

// BackendConfig points at the trading backend's order and auth endpoints.
// Username/password are optional; without them the backend is used
// anonymously.
type BackendConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type DashboardConfig struct {
	DefaultSymbol     string `mapstructure:"default_symbol"`
	NotificationTTLMS int    `mapstructure:"notification_ttl_ms"`
}

func (d DashboardConfig) NotificationTTL() time.Duration {
	return time.Duration(d.NotificationTTLMS) * time.Millisecond
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	ProjectID   string              `mapstructure:"project_id"`
	UseSecrets  bool                `mapstructure:"use_secrets"`
	SecretNames secrets.SecretNames `mapstructure:"secret_names"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/marketdesk")
	}

	v.SetEnvPrefix("MARKETDESK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// View API defaults
	v.SetDefault("server.port", 8090)

	// Feed defaults
	v.SetDefault("feed.url", "ws://localhost:8080/ws")
	v.SetDefault("feed.reconnect_delay_ms", 3000)

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.username", "")
	v.SetDefault("backend.password", "")

	// Dashboard defaults
	v.SetDefault("dashboard.default_symbol", "AAPL")
	v.SetDefault("dashboard.notification_ttl_ms", 3000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// GCP defaults
	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")

	secretNames := secrets.DefaultSecretNames()
	v.SetDefault("gcp.secret_names.backend_username", secretNames.BackendUsername)
	v.SetDefault("gcp.secret_names.backend_password", secretNames.BackendPassword)
}

func overrideFromEnv(config *Config) {
	if url := os.Getenv("MARKETDESK_FEED_URL"); url != "" {
		config.Feed.URL = url
	}
	if baseURL := os.Getenv("MARKETDESK_BACKEND_URL"); baseURL != "" {
		config.Backend.BaseURL = baseURL
	}
	if username := os.Getenv("MARKETDESK_BACKEND_USERNAME"); username != "" {
		config.Backend.Username = username
	}
	if password := os.Getenv("MARKETDESK_BACKEND_PASSWORD"); password != "" {
		config.Backend.Password = password
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	secretManager, err := secrets.NewGCPSecretManager(ctx, config.GCP.ProjectID, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret manager: %w", err)
	}
	defer secretManager.Close()

	// Only load secrets that are not already set
	if config.Backend.Username == "" {
		config.Backend.Username = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.BackendUsername, "")
	}
	if config.Backend.Password == "" {
		config.Backend.Password = secretManager.GetSecretWithDefault(ctx,
			config.GCP.SecretNames.BackendPassword, "")
	}

	logger.Info("Successfully loaded secrets from GCP Secret Manager")
	return nil
}
