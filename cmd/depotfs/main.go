package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/depotfs/depotfs/internal/api/auth"
	"github.com/depotfs/depotfs/internal/api/handlers"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/internal/telemetry"
	"github.com/depotfs/depotfs/pkg/api"
	"github.com/depotfs/depotfs/pkg/authz"
	"github.com/depotfs/depotfs/pkg/claim"
	"github.com/depotfs/depotfs/pkg/config"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/depot"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/metrics"
	"github.com/depotfs/depotfs/pkg/ownership"
	"github.com/depotfs/depotfs/pkg/proof"
	"github.com/depotfs/depotfs/pkg/ticket"
	"github.com/depotfs/depotfs/pkg/usage"

	// Import prometheus metrics to register init() functions
	_ "github.com/depotfs/depotfs/pkg/metrics/prometheus"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usageText = `DepotFS - Multi-tenant content-addressed storage

Usage:
  depotfs <command> [flags]

Commands:
  init       Initialize a sample configuration file
  start      Start the DepotFS server
  bootstrap  Create a realm's root delegate and print its tokens
  version    Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/depotfs/config.yaml)
  --force            Force overwrite existing config file (init command only)
  --realm string     Realm name (bootstrap command only)

Examples:
  # Initialize config file
  depotfs init

  # Start server with custom config
  depotfs start --config /etc/depotfs/config.yaml

  # Create the root delegate for a realm
  depotfs bootstrap --realm acme

  # Use environment variables to override config
  DEPOTFS_LOGGING_LEVEL=DEBUG depotfs start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: DEPOTFS_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    DEPOTFS_LOGGING_LEVEL=DEBUG
    DEPOTFS_AUTH_JWT_SECRET=<secret>
    DEPOTFS_NODE_STORE_TYPE=badger
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "bootstrap":
		runBootstrap()
	case "help", "--help", "-h":
		fmt.Print(usageText)
	case "version", "--version", "-v":
		fmt.Printf("depotfs %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}
}

// runInit handles the init subcommand.
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")
	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	path := *configFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !*force {
		log.Fatalf("Config file already exists at %s (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	// A fresh install gets its own random signing secret.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatalf("Failed to generate JWT secret: %v", err)
	}
	cfg.Auth.JWTSecret = hex.EncodeToString(secret)

	if err := config.SaveConfig(cfg, path); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: depotfs start")
	fmt.Println("  3. Create a realm root delegate: depotfs bootstrap --realm <name>")
}

// services is the wired core of a running node.
type services struct {
	cfg        *config.Config
	delegates  *delegate.Service
	jwtService *auth.JWTService
	deps       api.Deps
	closers    []func() error
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Error("Shutdown close error", "error", err)
		}
	}
}

// buildServices creates the stores and core services from configuration.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	nodes, err := config.CreateNodeStore(ctx, cfg.NodeStore)
	if err != nil {
		return nil, fmt.Errorf("create node store: %w", err)
	}
	metaStore, err := config.CreateMetaStore(cfg.MetaStore)
	if err != nil {
		_ = nodes.Close()
		return nil, fmt.Errorf("create meta store: %w", err)
	}
	sharedCache, cacheClose, err := config.CreateCache(cfg.Cache)
	if err != nil {
		_ = nodes.Close()
		_ = metaStore.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	owners, err := ownership.New(metaStore, 1024)
	if err != nil {
		return nil, fmt.Errorf("create ownership index: %w", err)
	}
	delegates := delegate.New(metaStore, nodes)
	depots := depot.New(metaStore, sharedCache)
	accountant := usage.New(owners, metaStore, nodes, sharedCache)
	verifier := proof.NewVerifier(nodes, depots)
	gate := authz.New(owners, delegates, verifier)
	fsService := fs.New(nodes, accountant, gate, fs.Config{
		NodeLimit:         uint64(cfg.Limits.NodeLimit),
		MaxWriteBytes:     int(cfg.Limits.MaxWriteBytes),
		MaxRewriteEntries: cfg.Limits.MaxRewriteEntries,
	})
	tickets := ticket.New(metaStore)
	claims := claim.New(owners, delegates, nodes)

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               cfg.Auth.JWTSecret,
		AccessTokenDuration:  cfg.Auth.AccessTokenTTL,
		RefreshTokenDuration: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create JWT service (set DEPOTFS_AUTH_JWT_SECRET): %w", err)
	}

	return &services{
		cfg:        cfg,
		delegates:  delegates,
		jwtService: jwtService,
		deps: api.Deps{
			JWT:       jwtService,
			Delegates: delegates,
			FS:        fsService,
			Depots:    depots,
			Tickets:   tickets,
			Claims:    claims,
			Gate:      gate,
			Nodes:     nodes,
			Hook:      accountant,
			NodeLimit: uint64(cfg.Limits.NodeLimit),
			HealthChecks: map[string]handlers.HealthChecker{
				"node_store": nodes,
				"meta_store": metaStore,
			},
			HTTPMetrics: metrics.NewHTTPMetrics(),
		},
		closers: []func() error{nodes.Close, metaStore.Close, cacheClose},
	}, nil
}

// loadConfig resolves and loads the configuration for a subcommand.
func loadConfig(configFile string) *config.Config {
	if configFile == "" && !config.DefaultConfigExists() {
		fmt.Fprintf(os.Stderr, "Error: No configuration file found at default location: %s\n\n", config.GetDefaultConfigPath())
		fmt.Fprintln(os.Stderr, "Please initialize a configuration file first:")
		fmt.Fprintln(os.Stderr, "  depotfs init")
		os.Exit(1)
	}
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: Configuration file not found: %s\n", configFile)
			os.Exit(1)
		}
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

// runStart handles the start subcommand.
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file")
	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg := loadConfig(*configFile)

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "depotfs",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// Metrics must come up before the stores so the instrumented wrappers
	// see an enabled registry.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	svcs, err := buildServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer svcs.close()

	apiServer, err := api.NewServer(cfg.API, svcs.deps)
	if err != nil {
		log.Fatalf("Failed to create API server: %v", err)
	}

	if metricsServer != nil {
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error", "error", err)
			}
		case <-time.After(cfg.ShutdownTimeout):
			logger.Error("Shutdown timed out", "timeout", cfg.ShutdownTimeout)
		}
	case err := <-serverDone:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", "error", err)
		}
	}
}

// runBootstrap creates a realm's root delegate and prints its record and
// initial token pair as JSON. It runs against the configured stores, so
// run it on the node that owns them (or against the shared backends).
func runBootstrap() {
	bootstrapFlags := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	configFile := bootstrapFlags.String("config", "", "Path to config file")
	realm := bootstrapFlags.String("realm", "", "Realm name")
	if err := bootstrapFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}
	if *realm == "" {
		log.Fatal("bootstrap requires --realm")
	}

	cfg := loadConfig(*configFile)
	logger.SetLevel("ERROR")

	ctx := context.Background()
	svcs, err := buildServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer svcs.close()

	record, err := svcs.delegates.Create(ctx, delegate.CreateParams{
		Realm:          *realm,
		CanUpload:      true,
		CanManageDepot: true,
	})
	if err != nil {
		log.Fatalf("Failed to create root delegate: %v", err)
	}

	pair, err := svcs.jwtService.GenerateTokenPair(record.DelegateID, record.Realm)
	if err != nil {
		log.Fatalf("Failed to mint tokens: %v", err)
	}
	err = svcs.delegates.SetTokens(ctx, record.DelegateID,
		auth.TokenHash(pair.AccessToken), auth.TokenHash(pair.RefreshToken), pair.ExpiresAt)
	if err != nil {
		log.Fatalf("Failed to install tokens: %v", err)
	}

	out, err := json.MarshalIndent(map[string]any{
		"delegate": record,
		"tokens":   pair,
	}, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render output: %v", err)
	}
	fmt.Println(string(out))
}
