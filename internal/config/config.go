// Package config loads and validates the CLI configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables < command-line flags. Environment variables use the DVC_ prefix
// (e.g., DVC_DATAVERSE_URL overrides dataverse.url in the YAML). Flags are
// bound by name through flagKeys, so `--url` on the command line wins over
// everything else.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Dataverse DataverseConfig `mapstructure:"dataverse"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Export    ExportConfig    `mapstructure:"export"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Lock      LockConfig      `mapstructure:"lock"`
}

// DataverseConfig holds the environment connection and client-credentials settings
type DataverseConfig struct {
	// URL is the environment root, e.g. https://contoso.crm4.dynamics.com
	URL          string `mapstructure:"url"`
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	APIVersion   string `mapstructure:"api_version"`

	Timeout time.Duration `mapstructure:"timeout"`
	// RequestsPerSecond and Burst throttle the client below the service protection limits.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// SharedRateLimit keeps the request budget in the lock Redis so that
	// concurrent runs against one environment share it.
	SharedRateLimit bool `mapstructure:"shared_rate_limit"`
}

// Host returns the host part of the environment URL.
func (c *DataverseConfig) Host() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}
	return u.Host
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus push configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// PushgatewayURL receives the run metrics when the process ends; empty disables pushing.
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ExportConfig selects how reports are written out
type ExportConfig struct {
	// Format is none, json, yaml or csv.
	Format string `mapstructure:"format"`
	// Directory is the local directory or the object key prefix.
	Directory string `mapstructure:"directory"`
	// Backend is local, s3, azure or gcs.
	Backend string `mapstructure:"backend"`
}

// StorageConfig holds the export backend settings
type StorageConfig struct {
	Azure AzureStorageConfig `mapstructure:"azure"`
	S3    S3StorageConfig    `mapstructure:"s3"`
	GCS   GCSStorageConfig   `mapstructure:"gcs"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is "default", "static", "oidc" or "assume_role".
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`

	// AuthMethod is "default", "service_account" or "workload_identity".
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`

	// Endpoint overrides the API endpoint (emulators)
	Endpoint string `mapstructure:"endpoint"`
}

// HistoryConfig enables the PostgreSQL run history
type HistoryConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Database DatabaseConfig `mapstructure:"database"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// LockConfig enables the Redis run lock
type LockConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"url":            "dataverse.url",
	"tenant-id":      "dataverse.tenant_id",
	"client-id":      "dataverse.client_id",
	"client-secret":  "dataverse.client_secret",
	"api-version":    "dataverse.api_version",
	"timeout":        "dataverse.timeout",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"export":         "export.format",
	"export-dir":     "export.directory",
	"export-backend": "export.backend",
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Dataverse
		"dataverse.url",
		"dataverse.tenant_id",
		"dataverse.client_id",
		"dataverse.client_secret",
		"dataverse.api_version",
		"dataverse.timeout",
		"dataverse.requests_per_second",
		"dataverse.burst",
		"dataverse.shared_rate_limit",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.pushgateway_url",
		"telemetry.metrics.job",

		// Export
		"export.format",
		"export.directory",
		"export.backend",

		// Storage
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.s3.web_identity_token_file",
		"storage.gcs.bucket",
		"storage.gcs.project_id",
		"storage.gcs.auth_method",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",

		// History
		"history.enabled",
		"history.database.host",
		"history.database.port",
		"history.database.name",
		"history.database.user",
		"history.database.password",
		"history.database.ssl_mode",
		"history.database.max_connections",

		// Lock
		"lock.enabled",
		"lock.address",
		"lock.password",
		"lock.db",
		"lock.ttl",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Load loads configuration from file, environment variables and flags and
// validates all of it. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	return load(configPath, flags, (*Config).Validate)
}

// LoadLocal is Load for commands that never contact Dataverse. The dataverse
// section is not validated.
func LoadLocal(configPath string, flags *pflag.FlagSet) (*Config, error) {
	return load(configPath, flags, (*Config).ValidateLocal)
}

func load(configPath string, flags *pflag.FlagSet, validate func(*Config) error) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/dataverse-convenience")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("DVC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Dataverse.ClientSecret = expandEnv(cfg.Dataverse.ClientSecret)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.GCS.CredentialsJSON = expandEnv(cfg.Storage.GCS.CredentialsJSON)
	cfg.History.Database.Password = expandEnv(cfg.History.Database.Password)
	cfg.Lock.Password = expandEnv(cfg.Lock.Password)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("dataverse.api_version", "9.2")
	v.SetDefault("dataverse.timeout", "60s")
	v.SetDefault("dataverse.requests_per_second", 10)
	v.SetDefault("dataverse.burst", 5)
	v.SetDefault("dataverse.shared_rate_limit", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("telemetry.metrics.enabled", false)
	v.SetDefault("telemetry.metrics.job", "dataverse-convenience")

	v.SetDefault("export.format", "none")
	v.SetDefault("export.directory", ".")
	v.SetDefault("export.backend", "local")

	v.SetDefault("storage.s3.auth_method", "default")
	v.SetDefault("storage.gcs.auth_method", "default")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.database.host", "localhost")
	v.SetDefault("history.database.port", 5432)
	v.SetDefault("history.database.name", "dataverse_convenience")
	v.SetDefault("history.database.ssl_mode", "require")
	v.SetDefault("history.database.max_connections", 5)

	v.SetDefault("lock.enabled", false)
	v.SetDefault("lock.address", "localhost:6379")
	v.SetDefault("lock.ttl", "15m")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.ValidateDataverse(); err != nil {
		return err
	}
	return c.ValidateLocal()
}

// ValidateDataverse checks the connection settings of the environment
func (c *Config) ValidateDataverse() error {
	if c.Dataverse.URL == "" {
		return fmt.Errorf("dataverse.url is required")
	}
	if u, err := url.Parse(c.Dataverse.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid dataverse.url: %q", c.Dataverse.URL)
	}
	if c.Dataverse.TenantID == "" {
		return fmt.Errorf("dataverse.tenant_id is required")
	}
	if c.Dataverse.ClientID == "" {
		return fmt.Errorf("dataverse.client_id is required")
	}
	if c.Dataverse.ClientSecret == "" {
		return fmt.Errorf("dataverse.client_secret is required")
	}
	if c.Dataverse.RequestsPerSecond < 0 {
		return fmt.Errorf("dataverse.requests_per_second must not be negative")
	}
	if c.Dataverse.SharedRateLimit {
		if c.Dataverse.RequestsPerSecond == 0 {
			return fmt.Errorf("dataverse.requests_per_second is required for a shared rate limit")
		}
		if c.Lock.Address == "" {
			return fmt.Errorf("lock.address is required for a shared rate limit")
		}
	}
	return nil
}

// ValidateLocal checks every section except dataverse
func (c *Config) ValidateLocal() error {
	validFormats := map[string]bool{"none": true, "json": true, "yaml": true, "csv": true}
	if !validFormats[c.Export.Format] {
		return fmt.Errorf("invalid export format: %s (must be none, json, yaml, or csv)", c.Export.Format)
	}

	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Export.Backend] {
		return fmt.Errorf("invalid export backend: %s (must be azure, s3, gcs, or local)", c.Export.Backend)
	}

	if c.Export.Format != "none" {
		switch c.Export.Backend {
		case "azure":
			if c.Storage.Azure.AccountName == "" {
				return fmt.Errorf("storage.azure.account_name is required when using Azure backend")
			}
			if c.Storage.Azure.AccountKey == "" {
				return fmt.Errorf("storage.azure.account_key is required when using Azure backend")
			}
			if c.Storage.Azure.ContainerName == "" {
				return fmt.Errorf("storage.azure.container_name is required when using Azure backend")
			}
		case "s3":
			if c.Storage.S3.Bucket == "" {
				return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
			}
			if c.Storage.S3.Region == "" {
				return fmt.Errorf("storage.s3.region is required when using S3 backend")
			}
		case "gcs":
			if c.Storage.GCS.Bucket == "" {
				return fmt.Errorf("storage.gcs.bucket is required when using GCS backend")
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	if c.History.Enabled {
		if c.History.Database.Host == "" {
			return fmt.Errorf("history.database.host is required when history is enabled")
		}
		if c.History.Database.Name == "" {
			return fmt.Errorf("history.database.name is required when history is enabled")
		}
		if c.History.Database.User == "" {
			return fmt.Errorf("history.database.user is required when history is enabled")
		}
	}

	if c.Lock.Enabled {
		if c.Lock.Address == "" {
			return fmt.Errorf("lock.address is required when the run lock is enabled")
		}
		if c.Lock.TTL <= 0 {
			return fmt.Errorf("lock.ttl must be positive")
		}
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
