package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mood-core/internal/api"
	"github.com/nerrad567/mood-core/internal/infrastructure/config"
	"github.com/nerrad567/mood-core/internal/infrastructure/database"
	"github.com/nerrad567/mood-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mood-core/internal/infrastructure/logging"
	"github.com/nerrad567/mood-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mood-core/internal/lamp"
	"github.com/nerrad567/mood-core/migrations"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the connection manager, lamp controller and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(flags, os.Stdout)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, log)
		},
	}
}

// run is the actual application logic, separated from the command for
// testability. It blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - cfg: Validated configuration
//   - log: Configured logger
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("starting Mood Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Open database (optional)
	var (
		db      *database.DB
		history lamp.History
	)
	if cfg.Database.Enabled {
		var err error
		db, err = openDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		history = lamp.NewSQLiteHistory(db.DB)
	} else {
		log.Info("database disabled, history will not be recorded")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		var err error
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the connection manager
	devTopics := mqtt.NewDeviceTopics(cfg.Lamp.Topic, cfg.Lamp.ID, byte(cfg.MQTT.QoS)) //nolint:gosec // validated 0..2 by config
	endpoint, mqttOpts := mqtt.OptionsFromConfig(cfg.MQTT, devTopics.Status())
	mqttLog := log.With("component", "mqtt")
	mqttOpts.Logger = mqttLog
	manager := mqtt.NewManager(mqtt.NewPahoTransport(mqttLog), endpoint, mqttOpts)

	// Attach the lamp controller before the first connect so it sees it
	lampOpts := lamp.OptionsFromConfig(cfg)
	lampOpts.Logger = log.With("component", "lamp")
	if history != nil {
		lampOpts.History = history
	}
	if influxClient != nil {
		lampOpts.Telemetry = influxClient
	}
	controller, err := lamp.NewController(manager, lampOpts)
	if err != nil {
		return fmt.Errorf("creating lamp controller: %w", err)
	}
	if err := controller.Attach(); err != nil {
		return fmt.Errorf("attaching lamp controller: %w", err)
	}
	defer controller.Detach()

	manager.Start(ctx)
	defer func() {
		log.Info("disconnecting from MQTT")
		manager.Stop(disconnectTimeout(cfg))
	}()

	// Start the HTTP API (optional)
	if cfg.API.Enabled {
		srv, err := newAPIServer(cfg, log, manager, controller, history, db, influxClient)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"lamp", devTopics.Incoming.Name,
		"broker", endpoint.URL(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, MQTT (final disconnect), lamp controller, InfluxDB, database.

	log.Info("Mood Core stopped")
	return nil
}

// openDatabase opens SQLite and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	applied, err := db.Migrate(ctx, migrations.FS())
	if err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)
	return db, nil
}

// newAPIServer wires the API over the running components. Optional stores
// are only passed when configured so the server sees nil interfaces.
func newAPIServer(
	cfg *config.Config,
	log *logging.Logger,
	manager *mqtt.Manager,
	controller *lamp.Controller,
	history lamp.History,
	db *database.DB,
	influxClient *influxdb.Client,
) (*api.Server, error) {
	deps := api.Deps{
		Config:            cfg.API,
		WS:                cfg.WebSocket,
		Logger:            log.With("component", "api"),
		Manager:           manager,
		Lamp:              controller,
		History:           history,
		DisconnectTimeout: disconnectTimeout(cfg),
		Version:           version,
	}
	if db != nil {
		deps.Database = db
	}
	if influxClient != nil {
		deps.Telemetry = influxClient
	}
	return api.New(deps)
}
