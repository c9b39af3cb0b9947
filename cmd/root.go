// Package cmd implements the command-line interface for the APOD pipeline.
// It provides the root command and subcommands for running, scheduling and
// inspecting the extraction pipeline.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skywatch/apod-pipeline/internal/config"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug enables debug logging for all commands.
	debug bool

	// rootCmd represents the root command of the CLI.
	rootCmd = &cobra.Command{
		Use:   "apod-pipeline",
		Short: "Daily astronomy metadata extraction pipeline",
		Long: `Fetches the daily astronomy metadata record, stores it exactly once
per calendar date in PostgreSQL, and commits versioned snapshots of the
accumulated dataset into a content-addressed store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// CodedError carries a process exit code alongside the error. The scheduling
// host distinguishes retryable from fatal runs by exit code.
type CodedError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CodedError) Unwrap() error {
	return e.Err
}

// Exit codes reported to the scheduling host.
const (
	// ExitFatal marks runs that must not be retried without intervention.
	ExitFatal = 1
	// ExitTransient marks runs the host should retry with backoff.
	ExitTransient = 2
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to viper
	_ = godotenv.Load()

	// Parse flags before initConfig so --config and --debug are visible to
	// it; cobra parses them again during ExecuteContext.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yml or ./config/config.yml)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("apod-pipeline version %s\n", viper.GetString("app.version"))
		},
	})

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(backfillCommand())
	rootCmd.AddCommand(scheduleCommand())
	rootCmd.AddCommand(historyCommand())
	rootCmd.AddCommand(migrateCommand())
}

// initConfig reads the config file and binds environment variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	// Config file is optional; environment variables and defaults cover
	// everything it would provide.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	if debug || viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}

	return nil
}

// bindEnvVars maps well-known environment variables to config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"app.environment":            {"APP_ENV"},
		"app.debug":                  {"APP_DEBUG"},
		"logger.level":               {"LOG_LEVEL"},
		"logger.format":              {"LOG_FORMAT"},
		"api.key":                    {"APOD_API_KEY", "NASA_API_KEY"},
		"api.base_url":               {"APOD_API_BASE_URL"},
		"database.host":              {"POSTGRES_HOST"},
		"database.port":              {"POSTGRES_PORT"},
		"database.user":              {"POSTGRES_USER"},
		"database.password":          {"POSTGRES_PASSWORD"},
		"database.name":              {"POSTGRES_DB"},
		"database.sslmode":           {"POSTGRES_SSLMODE"},
		"snapshot.remote.endpoint":   {"SNAPSHOT_REMOTE_ENDPOINT"},
		"snapshot.remote.access_key": {"SNAPSHOT_REMOTE_ACCESS_KEY"},
		"snapshot.remote.secret_key": {"SNAPSHOT_REMOTE_SECRET_KEY"},
		"snapshot.remote.bucket":     {"SNAPSHOT_REMOTE_BUCKET"},
	}

	for key, envVars := range bindings {
		args := append([]string{key}, envVars...)
		if err := viper.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}
