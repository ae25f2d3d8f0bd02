package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/logging"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable that overrides defaultConfigPath.
const configEnv = "MOOD_CONFIG"

// defaultDisconnectTimeout is used when mqtt.timeouts.disconnect_ms is unset.
const defaultDisconnectTimeout = time.Second

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "moodcore",
		Short: "MQTT connection manager and mood lamp controller",
		Long: `moodcore keeps a single MQTT broker connection alive, reconnecting with
a randomised backoff, and drives a mood lamp over it.

The lamp listens on <topic>/<id> for "mood" or a six digit hex colour and
reports its current colour on <topic>/<id>/msg as "r,g,b".

Configuration is read from --config, $MOOD_CONFIG or configs/config.yaml,
and MOOD_* environment variables override it. A .env file is loaded first
when present.

Examples:
  # Run the manager, lamp controller and HTTP API
  moodcore serve

  # Set the lamp to magenta, then hand it back to mood mode
  moodcore send ff00aa
  moodcore send mood

  # Follow connection events and lamp reports
  moodcore watch`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv(flags.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"config file (default $MOOD_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(flags),
		newSendCmd(flags),
		newWatchCmd(flags),
	)
	return root
}

// loadDotEnv loads environment variables from path. A missing file is not
// an error so .env files stay optional. Variables already set win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath picks the --config flag, then MOOD_CONFIG, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads the configuration and builds a logger writing to w.
// Commands that print to stdout pass stderr so output stays parseable.
func loadConfig(flags *globalFlags, w io.Writer) (*config.Config, *logging.Logger, error) {
	path := resolveConfigPath(flags.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	log := logging.NewWithWriter(cfg.Logging, version, w)
	log.Debug("configuration loaded", "path", path)
	return cfg, log, nil
}

// disconnectTimeout returns the configured graceful disconnect window.
func disconnectTimeout(cfg *config.Config) time.Duration {
	if cfg.MQTT.Timeouts.DisconnectMS <= 0 {
		return defaultDisconnectTimeout
	}
	return time.Duration(cfg.MQTT.Timeouts.DisconnectMS) * time.Millisecond
}
