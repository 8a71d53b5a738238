// Command pushbridge connects the OneSignal plugin surface to a native host
// and runs the configured scripts against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	dbmigrations "github.com/coachpo/pushbridge/db/migrations"
	"github.com/coachpo/pushbridge/internal/bridge"
	"github.com/coachpo/pushbridge/internal/infra/config"
	"github.com/coachpo/pushbridge/internal/infra/journal"
	"github.com/coachpo/pushbridge/internal/infra/jsapi"
	"github.com/coachpo/pushbridge/internal/infra/persistence/migrations"
	"github.com/coachpo/pushbridge/internal/infra/persistence/postgres"
	httpserver "github.com/coachpo/pushbridge/internal/infra/server/http"
	"github.com/coachpo/pushbridge/internal/infra/telemetry"
	"github.com/coachpo/pushbridge/internal/infra/transport/wsnative"
	"github.com/coachpo/pushbridge/pkg/onesignal"
)

const (
	defaultConfigPath        = "config/app.yaml"
	bridgeLoggerPrefix       = "pushbridge "
	scriptLoggerPrefix       = "js "
	shutdownTimeout          = 30 * time.Second
	runtimeShutdownTimeout   = 5 * time.Second
	controlShutdownTimeout   = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	controlReadHeaderTimeout = 5 * time.Second
	journalShutdownTimeout   = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	migrationTimeout         = 30 * time.Second
)

func main() {
	cfgPathFlag, scriptsFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	logger := newBridgeLogger()

	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, resolveConfigPath(cfgPathFlag))
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if !loadedFromFile {
		logger.Printf("configuration file not found, using defaults")
	}
	if scriptsFlag != "" {
		appCfg.Scripts.Directory = filepath.Clean(scriptsFlag)
	}
	logger.Printf("configuration initialised: env=%s, endpoint=%s, journal=%t",
		appCfg.Environment, appCfg.Transport.Endpoint, appCfg.Journal.Enabled)

	telemetry.SetEnvironment(string(appCfg.Environment))
	telemetryProvider, err := initTelemetry(ctx, logger, appCfg.Environment, appCfg.Telemetry)
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	transport := wsnative.New(ctx, transportConfig(appCfg.Transport), wsnative.WithLogger(logger))
	if err := transport.Start(); err != nil {
		logger.Printf("native host not reachable yet, calls stay queued: %v", err)
	}

	var invoker bridge.Invoker = transport
	var (
		recorder *journal.Journal
		dbPool   *pgxpool.Pool
	)
	if appCfg.Journal.Enabled {
		recorder, dbPool, err = initJournal(ctx, logger, appCfg.Journal, transport)
		if err != nil {
			logger.Fatalf("initialise journal: %v", err)
		}
		invoker = recorder
	}

	runtime, err := jsapi.New(invoker, jsapi.WithLogger(log.New(os.Stdout, scriptLoggerPrefix, log.LstdFlags|log.Lmicroseconds)))
	if err != nil {
		logger.Fatalf("initialise script runtime: %v", err)
	}

	if _, err := runtime.Execute(func(*goja.Runtime) (goja.Value, error) {
		bootstrap(runtime.SDK(), appCfg.Bridge, logger)
		return goja.Undefined(), nil
	}); err != nil {
		logger.Fatalf("bootstrap plugin: %v", err)
	}

	if dir := appCfg.Scripts.Directory; dir != "" {
		ran, err := runtime.RunDir(ctx, dir)
		if err != nil {
			logger.Printf("scripts: %v", err)
		}
		logger.Printf("scripts executed: %d from %s", len(ran), dir)
	}

	var lifecycle conc.WaitGroup
	var controlServer *http.Server
	if addr := appCfg.Control.Addr; addr != "" {
		controlServer = buildControlServer(addr, appCfg.Environment, runtime, transport, recorder)
		startControlServer(&lifecycle, logger, controlServer)
		logger.Printf("control API listening on %s", addr)
	}

	logger.Print("pushbridge started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Print("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:    controlServer,
		lifecycle: &lifecycle,
		runtime:   runtime,
		transport: transport,
		journal:   recorder,
		dbPool:    dbPool,
		telemetry: telemetryProvider,
	})
	logger.Printf("shutdown completed in %v", time.Since(shutdownStart))
}

func parseFlags() (string, string) {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	scripts := flag.String("scripts", "", "Directory of JavaScript files to run (overrides scripts.directory)")
	flag.Parse()
	return *cfgPath, *scripts
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newBridgeLogger() *log.Logger {
	return log.New(os.Stdout, bridgeLoggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}

func initTelemetry(ctx context.Context, logger *log.Logger, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.Environment = string(env)
	telemetryCfg.OTLPInsecure = cfg.OTLPInsecure
	telemetryCfg.EnableMetrics = cfg.EnableMetrics

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}

	if telemetryCfg.Enabled {
		logger.Printf("telemetry initialized: endpoint=%s, service=%s", telemetryCfg.OTLPEndpoint, telemetryCfg.ServiceName)
	} else {
		logger.Printf("telemetry disabled")
	}
	return provider, nil
}

func transportConfig(cfg config.TransportConfig) wsnative.Config {
	return wsnative.Config{
		URL:                  cfg.Endpoint,
		DialTimeout:          cfg.DialTimeout,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectInterval: cfg.MaxReconnectInterval,
		PingInterval:         cfg.PingInterval,
		ReadLimit:            cfg.ReadLimitBytes,
		RateLimit:            cfg.RateLimit,
		Burst:                cfg.RateBurst,
	}
}

// initJournal records traffic in memory, or in PostgreSQL when a DSN is set.
// The returned pool is nil for the in-memory store.
func initJournal(ctx context.Context, logger *log.Logger, cfg config.JournalConfig, next bridge.Invoker) (*journal.Journal, *pgxpool.Pool, error) {
	opts := []journal.Option{
		journal.WithLogger(logger),
		journal.WithWorkers(cfg.Workers, cfg.Queue),
	}
	if !cfg.Persistent() {
		j, err := journal.New(next, journal.NewMemoryStore(cfg.MemoryCapacity), opts...)
		if err != nil {
			return nil, nil, err
		}
		logger.Printf("journal recording in memory: capacity=%d", cfg.MemoryCapacity)
		return j, nil, nil
	}

	if cfg.Database.RunMigrations {
		migrateCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
		err := migrations.ApplyEmbedded(migrateCtx, cfg.Database.DSN, dbmigrations.Files, logger)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	postgres.ObservePoolMetrics(pool, "journal")

	j, err := journal.New(next, postgres.NewJournalStore(pool), opts...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Printf("journal recording to postgres: maxConns=%d", cfg.Database.MaxConns)
	return j, pool, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// bootstrap applies the configured plugin settings. Consent flags go out
// before initialize so the native SDK holds data until consent is given.
func bootstrap(sdk *onesignal.OneSignal, cfg config.BridgeConfig, logger *log.Logger) {
	sdk.Debug.SetLogLevel(onesignal.LogLevel(cfg.LogLevel))
	sdk.Debug.SetAlertLevel(onesignal.LogLevel(cfg.AlertLevel))
	if cfg.ConsentRequired {
		sdk.SetConsentRequired(true)
	}
	if cfg.ConsentGiven {
		sdk.SetConsentGiven(true)
	}
	if cfg.AppID == "" {
		logger.Printf("bridge appId not configured; scripts must call OneSignal.initialize")
		return
	}
	sdk.Initialize(cfg.AppID).Then(func(_ struct{}, err error) {
		if err != nil {
			logger.Printf("initialize %s: %v", cfg.AppID, err)
			return
		}
		logger.Printf("plugin initialised: appId=%s", cfg.AppID)
	})
}

func buildControlServer(addr string, env config.Environment, runtime *jsapi.Runtime, transport *wsnative.Transport, recorder *journal.Journal) *http.Server {
	deps := httpserver.Deps{
		AppID: func() string {
			// The plugin is owned by the script loop.
			var id string
			_, _ = runtime.Execute(func(*goja.Runtime) (goja.Value, error) {
				id = runtime.SDK().AppID()
				return goja.Undefined(), nil
			})
			return id
		},
		Scripts:   runtime,
		Transport: transport,
	}
	if recorder != nil {
		deps.Journal = recorder.Store()
	}
	return &http.Server{
		Addr:              addr,
		Handler:           httpserver.NewHandler(env, deps),
		ReadHeaderTimeout: controlReadHeaderTimeout,
	}
}

func startControlServer(lifecycle *conc.WaitGroup, logger *log.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("control server: %v", err)
		}
	})
}

type gracefulShutdownConfig struct {
	server    *http.Server
	lifecycle *conc.WaitGroup
	runtime   *jsapi.Runtime
	transport *wsnative.Transport
	journal   *journal.Journal
	dbPool    *pgxpool.Pool
	telemetry *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *log.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Printf("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			logger.Printf("shutdown: %s failed: %v", name, err)
		} else {
			logger.Printf("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping control server", controlShutdownTimeout, cfg.server.Shutdown)
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.transport != nil {
		shutdownStep("closing native transport", runtimeShutdownTimeout, func(context.Context) error {
			cfg.transport.Close()
			return nil
		})
	}

	if cfg.runtime != nil {
		shutdownStep("stopping script runtime", runtimeShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.runtime.Close()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for script runtime: %w", stepCtx.Err())
			}
		})
	}

	if cfg.journal != nil {
		shutdownStep("flushing journal", journalShutdownTimeout, cfg.journal.Close)
	}

	if cfg.dbPool != nil {
		shutdownStep("closing database pool", runtimeShutdownTimeout, func(context.Context) error {
			cfg.dbPool.Close()
			return nil
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, cfg.telemetry.Shutdown)
	}
}
