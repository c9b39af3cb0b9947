// Package config defines the application configuration and its loading rules.
// Values come from config.yml, environment variables, and defaults, in that
// order of precedence (environment always wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultAppName     = "apod-pipeline"
	defaultVersion     = "0.1.0"
	defaultEnvironment = "production"

	defaultAPIBaseURL = "https://api.nasa.gov"
	defaultAPITimeout = 30 * time.Second

	defaultDBHost    = "localhost"
	defaultDBPort    = 5432
	defaultDBUser    = "postgres"
	defaultDBName    = "apod"
	defaultDBSSLMode = "disable"

	defaultSnapshotPath   = "data/snapshots.db"
	defaultSnapshotDir    = "data"
	defaultExportFileName = "apod_records.csv"

	// defaultScheduleSpec runs the pipeline daily at 06:00.
	defaultScheduleSpec = "0 6 * * *"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  LoggingConfig  `mapstructure:"logger"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds the metadata endpoint configuration.
type APIConfig struct {
	// BaseURL is the root of the metadata API.
	BaseURL string `mapstructure:"base_url"`
	// Key is the access credential passed through on every request.
	Key string `mapstructure:"key"`
	// Timeout bounds each fetch request.
	Timeout time.Duration `mapstructure:"timeout"`
	// RawDumpPath, when set, receives a copy of each raw response for
	// debugging.
	RawDumpPath string `mapstructure:"raw_dump_path"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// MigrateURL returns the connection URL used by the migration tooling.
func (d *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User), url.QueryEscape(d.Password),
		d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// SnapshotConfig holds the versioned dataset store configuration.
type SnapshotConfig struct {
	// Path is the location of the local revision database.
	Path string `mapstructure:"path"`
	// WorkDir is the working directory that receives the latest export.
	WorkDir string `mapstructure:"workdir"`
	// ExportFile is the export file name inside WorkDir.
	ExportFile string `mapstructure:"export_file"`
	// Remote configures the optional off-host object store.
	Remote RemoteConfig `mapstructure:"remote"`
}

// RemoteConfig holds the S3-compatible remote target for snapshot pushes.
type RemoteConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// ScheduleConfig holds the scheduler configuration.
type ScheduleConfig struct {
	// Spec is the cron expression for scheduled runs.
	Spec string `mapstructure:"spec"`
}

// Load unmarshals the configuration from viper.
// SetDefaults must have been applied to the same viper instance first.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app", map[string]any{
		"name":        defaultAppName,
		"version":     defaultVersion,
		"environment": defaultEnvironment,
		"debug":       false,
	})

	v.SetDefault("logger", map[string]any{
		"level":  "info",
		"format": "json",
	})

	v.SetDefault("api", map[string]any{
		"base_url": defaultAPIBaseURL,
		"timeout":  defaultAPITimeout.String(),
	})

	v.SetDefault("database", map[string]any{
		"host":    defaultDBHost,
		"port":    defaultDBPort,
		"user":    defaultDBUser,
		"name":    defaultDBName,
		"sslmode": defaultDBSSLMode,
	})

	v.SetDefault("snapshot", map[string]any{
		"path":        defaultSnapshotPath,
		"workdir":     defaultSnapshotDir,
		"export_file": defaultExportFileName,
	})

	v.SetDefault("schedule", map[string]any{
		"spec": defaultScheduleSpec,
	})
}

// Validate checks that the configuration is usable for a pipeline run.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return errors.New("api.key is required (APOD_API_KEY)")
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
		return errors.New("database host, name and user are required")
	}
	if c.Snapshot.Path == "" {
		return errors.New("snapshot.path is required")
	}
	if c.Snapshot.Remote.Enabled {
		if c.Snapshot.Remote.Endpoint == "" || c.Snapshot.Remote.Bucket == "" {
			return errors.New("snapshot remote requires endpoint and bucket")
		}
	}
	return nil
}
