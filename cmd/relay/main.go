// Relay Core - keyboard shortcut relay controller
//
// This is the main entry point for the relay controller. It loads the
// bindings file, serves the HTTP API and MQTT trigger topics, and dispatches
// every triggered binding to the target agents named in the file.
//
// Usage:
//
//	relay                         serve until interrupted
//	relay trigger <name>          run one binding and exit
//	relay token [-role r] <sub>   print an API token signed with the configured secret
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/relay-core/internal/api"
	"github.com/nerrad567/relay-core/internal/audit"
	"github.com/nerrad567/relay-core/internal/auth"
	"github.com/nerrad567/relay-core/internal/binding"
	"github.com/nerrad567/relay-core/internal/engine"
	"github.com/nerrad567/relay-core/internal/infrastructure/config"
	"github.com/nerrad567/relay-core/internal/infrastructure/database"
	"github.com/nerrad567/relay-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/relay-core/internal/infrastructure/logging"
	"github.com/nerrad567/relay-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/relay-core/internal/remote"
	"github.com/nerrad567/relay-core/internal/trigger"
	"github.com/nerrad567/relay-core/internal/variables"
	"github.com/nerrad567/relay-core/migrations"
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
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - out: Where subcommands print their result
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cmd := ""
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "token":
		return mintToken(cfg, args, out)
	case "trigger":
		if len(args) != 1 {
			return errors.New("usage: relay trigger <binding>")
		}
		return triggerOnce(ctx, cfg, args[0], out)
	case "", "serve":
		return serve(ctx, cfg)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// mintToken prints an API token for subject. There are no user accounts;
// operators hand these tokens to whatever calls the API.
func mintToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	role := fs.String("role", string(auth.RoleOperator), "operator or admin")
	ttl := fs.Int("ttl", cfg.Security.JWT.AccessTokenTTL, "lifetime in minutes")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing token flags: %w", err)
	}
	if fs.NArg() != 1 {
		return errors.New("usage: relay token [-role operator|admin] [-ttl minutes] <subject>")
	}

	r := auth.Role(*role)
	if r != auth.RoleOperator && r != auth.RoleAdmin {
		return fmt.Errorf("role must be %q or %q", auth.RoleOperator, auth.RoleAdmin)
	}

	token, err := auth.GenerateAccessToken(fs.Arg(0), r, cfg.Security.JWT.Secret, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// core holds the components shared by serve and trigger.
type core struct {
	db       *database.DB
	store    *variables.Store
	registry *binding.Registry
	remote   *remote.Client
	auditLog *audit.Writer
	auditDB  *audit.SQLiteRepository
}

// openCore opens the database, the variable store, the binding registry and
// the remote client. The returned cleanup closes whatever was opened.
func openCore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*core, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, cleanup, fmt.Errorf("opening database: %w", err)
	}
	cleanups = append(cleanups, func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	})
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return nil, cleanup, fmt.Errorf("running migrations: %w", migrateErr)
	}

	var persister variables.Persister
	switch cfg.Variables.Backend {
	case config.VariablesBackendSQLite:
		persister = variables.NewSQLitePersister(db.DB)
	default:
		persister = variables.NewFilePersister(cfg.Variables.Path)
	}
	store := variables.NewStore(persister, log)
	if openErr := store.Open(ctx); openErr != nil {
		return nil, cleanup, fmt.Errorf("loading variables: %w", openErr)
	}
	log.Info("variable store loaded", "backend", cfg.Variables.Backend, "variables", len(store.Names()))

	registry := binding.NewRegistry(binding.FileLoader(cfg.Bindings.Path))
	registry.SetLogger(log)

	tokens := auth.NewTokenSource(cfg.Controller.Name, cfg.Security.JWT.Secret, cfg.Remote.TokenTTL)
	client, err := remote.New(cfg.Remote, tokens, log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("creating remote client: %w", err)
	}

	repo := audit.NewSQLiteRepository(db.DB)
	writer := audit.NewWriter(repo, log)
	writer.Start(ctx)
	cleanups = append(cleanups, writer.Close)

	return &core{
		db:       db,
		store:    store,
		registry: registry,
		remote:   client,
		auditLog: writer,
		auditDB:  repo,
	}, cleanup, nil
}

// triggerOnce runs a single binding and prints its execution id.
func triggerOnce(ctx context.Context, cfg *config.Config, name string, out io.Writer) error {
	log := logging.New(cfg.Logging, cfg.Controller.Name, version)

	c, cleanup, err := openCore(ctx, cfg, log)
	defer cleanup()
	if err != nil {
		return err
	}

	svc, err := trigger.New(trigger.Deps{
		Engine:   engine.Deps{Index: engine.NewMemoryIndex(), Client: c.remote, Logger: log},
		Store:    c.store,
		Reloader: c.registry,
		Audit:    c.auditLog,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating trigger service: %w", err)
	}
	c.registry.OnReload(svc.Load)
	if err := c.registry.Reload(ctx); err != nil {
		return fmt.Errorf("loading bindings: %w", err)
	}

	id, err := svc.Trigger(ctx, name, trigger.SourceCLI)
	if err != nil {
		return fmt.Errorf("triggering %s: %w", name, err)
	}
	fmt.Fprintln(out, id)
	return nil
}

// serve runs the controller until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, cfg.Controller.Name, version)
	log.Info("starting relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	c, cleanup, err := openCore(ctx, cfg, log)
	defer cleanup()
	if err != nil {
		return err
	}

	components := map[string]api.HealthChecker{"database": c.db}
	engineDeps := engine.Deps{Index: engine.NewMemoryIndex(), Client: c.remote, Logger: log}
	deps := trigger.Deps{
		Store:    c.store,
		Reloader: c.registry,
		Audit:    c.auditLog,
		Logger:   log,
	}

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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected", "subscriptions", mqttClient.Subscriptions())
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		deps.Events = mqttClient
		components["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Controller.Name)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		engineDeps.Observer = influxClient
		deps.Metrics = influxClient
		components["influxdb"] = influxClient
	}

	// The hub is shared so trigger events reach websocket clients.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	deps.Hub = hub
	deps.Engine = engineDeps

	svc, err := trigger.New(deps)
	if err != nil {
		return fmt.Errorf("creating trigger service: %w", err)
	}
	c.registry.OnReload(svc.Load)
	if err := c.registry.Reload(ctx); err != nil {
		return fmt.Errorf("loading bindings: %w", err)
	}
	table, _ := c.registry.Table() //nolint:errcheck // loaded above
	log.Info("bindings loaded",
		"path", cfg.Bindings.Path,
		"bindings", len(table.Bindings),
		"targets", len(table.Targets),
	)

	if cfg.Bindings.Watch {
		watcher := binding.NewWatcher(cfg.Bindings.Path, c.registry, cfg.GetBindingsDebounce(), log)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("watching bindings: %w", err)
		}
		defer watcher.Close() //nolint:errcheck // shutdown
	}

	if mqttClient != nil {
		listener := trigger.NewListener(svc, mqttClient, log)
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("subscribing to triggers: %w", err)
		}
		defer func() {
			if closeErr := listener.Close(); closeErr != nil {
				log.Error("error closing trigger listener", "error", closeErr)
			}
		}()
	}

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Registry:    c.registry,
		Triggers:    svc,
		Variables:   c.store,
		Remote:      c.remote,
		AuditRepo:   c.auditDB,
		Audit:       c.auditLog,
		Components:  components,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the config path from RELAY_CONFIG, or the default.
func getConfigPath() string {
	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
