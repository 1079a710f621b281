// Homeworks Core - Lutron Homeworks QS tool server
//
// This is the main entry point for the Homeworks Core daemon. It owns
// the telnet session to the lighting processor and exposes device
// control and catalogue queries as a JSON-RPC tool server over HTTP,
// with a WebSocket event stream and optional MQTT event republishing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/homeworks-core/internal/bridges/homeworks"
	"github.com/nerrad567/homeworks-core/internal/database"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
	sqlitedb "github.com/nerrad567/homeworks-core/internal/infrastructure/database"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/logging"
	"github.com/nerrad567/homeworks-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/homeworks-core/internal/mcp"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Deferred closes unwind in reverse start order.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Homeworks Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open the SQLite cache for the device catalogue
	db, err := sqlitedb.Open(sqlitedb.Config{
		Path:        cfg.Database.Path,
		WALMode:     true,
		BusyTimeout: 5,
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

	catalogue, err := buildCatalogue(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// A failed initial refresh is survivable: the catalogue serves the
	// SQLite cache, and refresh_device_database can retry later.
	if refreshErr := catalogue.Refresh(ctx); refreshErr != nil {
		log.Warn("device database refresh failed, catalogue may be empty", "error", refreshErr)
	} else {
		log.Info("device database ready", "entities", catalogue.Count())
	}

	// Connect to the processor. Start blocks until the login handshake
	// completes, so a nil error means the session is live.
	engine, err := homeworks.New(processorConfig(cfg.Processor), log)
	if err != nil {
		return fmt.Errorf("creating processor client: %w", err)
	}
	if startErr := engine.Start(ctx); startErr != nil {
		return fmt.Errorf("connecting to processor: %w", startErr)
	}
	defer func() {
		log.Info("closing processor connection")
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("error closing processor connection", "error", closeErr)
		}
	}()
	log.Info("processor connected", "host", cfg.Processor.Host, "port", cfg.Processor.Port)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		publisher := homeworks.NewEventPublisher(mqttClient, engine.Registry(), byte(cfg.MQTT.QoS), log)
		publisher.Start()
		defer func() {
			log.Info("stopping MQTT event publisher")
			publisher.Stop()
		}()
		log.Info("MQTT event publisher started", "qos", cfg.MQTT.QoS)
	} else {
		log.Info("MQTT disabled")
	}

	// Assemble the tool surface
	registry := mcp.NewToolRegistry()
	mcp.RegisterDeviceTools(registry, engine)
	mcp.RegisterDatabaseTools(registry, catalogue)

	dispatcher := mcp.NewDispatcher(registry, buildForwardTable(cfg.Forward), mcp.ServerInfo{
		Name:    "homeworks-core",
		Version: version,
	}, log)

	server, err := mcp.NewServer(mcp.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Dispatcher: dispatcher,
		Engine:     engine,
		Database:   catalogue,
		MQTT:       mqttClient,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating tool server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting tool server: %w", startErr)
	}
	defer func() {
		log.Info("stopping tool server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing tool server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// buildCatalogue wires the device database from configuration.
func buildCatalogue(ctx context.Context, cfg *config.Config, db *sqlitedb.DB, log *logging.Logger) (*database.Database, error) {
	store, err := database.NewStore(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("preparing catalogue store: %w", err)
	}

	specs := make([]database.FilterSpec, 0, len(cfg.Database.Filters))
	for _, f := range cfg.Database.Filters {
		specs = append(specs, database.FilterSpec{Name: f.Name, Args: f.Args})
	}
	filters, err := database.BuildFilters(specs)
	if err != nil {
		return nil, fmt.Errorf("building catalogue filters: %w", err)
	}

	opts := database.Options{
		Store:        store,
		CacheOnly:    cfg.Database.CacheOnly,
		Filters:      filters,
		ExcludePaths: cfg.Database.ExcludePaths,
		Synonyms:     cfg.Database.Synonyms,
		Logger:       log,
	}
	if !cfg.Database.CacheOnly {
		opts.Loader = database.NewLoader(cfg.DatabaseAddress(), log)
	}

	catalogue, err := database.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating device database: %w", err)
	}
	return catalogue, nil
}

// processorConfig converts the YAML processor section into the client's
// config.
func processorConfig(p config.ProcessorConfig) homeworks.Config {
	return homeworks.Config{
		Host:                  p.Host,
		Port:                  p.Port,
		Username:              p.Username,
		Password:              p.Password,
		CommandTimeout:        p.GetCommandTimeout(),
		NoResponseWindow:      p.GetNoResponseWindow(),
		MaxInFlight:           p.MaxInFlight,
		QueueSize:             p.QueueSize,
		DispatchRetries:       p.DispatchRetries,
		MaxLineLength:         p.MaxLineLength,
		KeepaliveInterval:     p.GetKeepaliveInterval(),
		ReconnectInitialDelay: p.Reconnect.GetInitialDelay(),
		ReconnectMaxDelay:     p.Reconnect.GetMaxDelay(),
	}
}

// buildForwardTable creates forwarders for the configured downstream
// tool servers. Returns nil when none are configured.
func buildForwardTable(cfg config.ForwardConfig) *mcp.ForwardTable {
	if len(cfg.Servers) == 0 {
		return nil
	}

	forwarders := make([]*mcp.Forwarder, 0, len(cfg.Servers))
	for name, srv := range cfg.Servers {
		forwarders = append(forwarders, mcp.NewForwarder(name, srv.URL, cfg.GetTimeout()))
	}
	return mcp.NewForwardTable(forwarders...)
}

// getConfigPath returns the configuration file path.
// Uses HOMEWORKS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEWORKS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *sqlitedb.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}
