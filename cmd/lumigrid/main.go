// LumiGrid Core - Streetlight Fleet Backend
//
// This is the main entry point for the LumiGrid Core application.
// LumiGrid manages a fleet of LoRa streetlight gateways and the lighting
// nodes behind them: device registration, schedule configuration, control
// commands with acknowledgement tracking, and telemetry history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lumigrid/lumigrid-core/migrations"

	"github.com/lumigrid/lumigrid-core/internal/command"
	"github.com/lumigrid/lumigrid-core/internal/downlink"
	"github.com/lumigrid/lumigrid-core/internal/fleet"
	"github.com/lumigrid/lumigrid-core/internal/gateway"
	"github.com/lumigrid/lumigrid-core/internal/infrastructure/config"
	"github.com/lumigrid/lumigrid-core/internal/infrastructure/database"
	"github.com/lumigrid/lumigrid-core/internal/infrastructure/influxdb"
	"github.com/lumigrid/lumigrid-core/internal/infrastructure/logging"
	"github.com/lumigrid/lumigrid-core/internal/infrastructure/mqtt"
	"github.com/lumigrid/lumigrid-core/internal/node"
	"github.com/lumigrid/lumigrid-core/internal/sequence"
	"github.com/lumigrid/lumigrid-core/internal/uplink"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LumiGrid Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Directories, allocator, and the command ledger
	gatewayRepo := gateway.NewSQLiteRepository(db.DB)
	eventLog := gateway.NewSQLiteEventLog(db.DB)
	nodeRepo := node.NewSQLiteRepository(db.DB)
	allocator := sequence.NewAllocator(db.DB)
	ledger := command.NewSQLiteLedger(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		// Set up InfluxDB error callback
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Downlink publisher over the shared broker connection
	publisher := downlink.NewPublisher(mqttClient, mqttClient.DefaultQoS(), cfg.Devices.Bootstrap)

	// Command expiry sweeper
	sweeper := command.NewSweeper(command.SweeperConfig{
		Ledger:      ledger,
		AckDeadline: cfg.GetAckDeadline(),
		Interval:    cfg.GetSweepInterval(),
		Retention:   cfg.GetRetention(),
	})
	sweeper.SetLogger(log)
	sweeper.Start(ctx)
	defer func() {
		log.Info("stopping command sweeper")
		sweeper.Stop()
	}()
	log.Info("command sweeper started",
		"ack_deadline", cfg.GetAckDeadline().String(),
		"interval", cfg.GetSweepInterval().String(),
	)

	// Uplink router over the device topic wildcard
	var telemetry uplink.Telemetry
	if influxClient != nil {
		telemetry = influxClient
	}
	router := uplink.NewRouter(uplink.Config{
		Gateways:          gatewayRepo,
		Events:            eventLog,
		Nodes:             nodeRepo,
		Ledger:            ledger,
		Downlink:          publisher,
		Telemetry:         telemetry,
		Logger:            log.With("component", "uplink"),
		QoS:               byte(cfg.MQTT.QoS),
		FanOutConcurrency: cfg.Commands.FanOutConcurrency,
	})
	if err := router.Start(mqttClient); err != nil {
		return fmt.Errorf("starting uplink router: %w", err)
	}

	// Fleet orchestrator (consumed by the request boundary)
	orchestrator := fleet.New(fleet.Config{
		Gateways:           gatewayRepo,
		Nodes:              nodeRepo,
		Allocator:          allocator,
		Ledger:             ledger,
		CmdIDs:             command.NewCmdIDSource(),
		Publisher:          publisher,
		Logger:             log.With("component", "fleet"),
		MaxNodesPerGateway: cfg.Devices.MaxNodesPerGateway,
	})
	_ = orchestrator // Wired to the request boundary when it lands

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Sweeper
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("LumiGrid Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LUMIGRID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LUMIGRID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
