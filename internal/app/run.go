package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/zerowrap"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/adapters/in/http/api"
	"github.com/bnema/berth/internal/adapters/out/docker"
	"github.com/bnema/berth/internal/adapters/out/eventbus"
	"github.com/bnema/berth/internal/adapters/out/journal"
	"github.com/bnema/berth/internal/adapters/out/ratelimit"
	"github.com/bnema/berth/internal/adapters/out/simulated"
	"github.com/bnema/berth/internal/adapters/out/sqlite"
	"github.com/bnema/berth/internal/adapters/out/telemetry"
	"github.com/bnema/berth/internal/boundaries/out"
	"github.com/bnema/berth/internal/logging"
	"github.com/bnema/berth/internal/usecase/lifecycle"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
	Commit  string
}

// Run loads the configuration, wires every component and serves until ctx is
// cancelled. Components are stopped in reverse order of start.
func Run(ctx context.Context, configPath string, build BuildInfo) error {
	_, cfg, err := initConfig(configPath)
	if err != nil {
		return err
	}

	log, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer cleanup()

	ctx = zerowrap.WithCtx(ctx, log)
	log.Info().
		Str(zerowrap.FieldLayer, "app").
		Str("version", build.Version).
		Str("driver", cfg.Runtime.Driver).
		Msg("starting berth")

	return run(ctx, cfg, build, log)
}

func run(ctx context.Context, cfg Config, build BuildInfo, log zerowrap.Logger) error {
	_, shutdownTelemetry, err := telemetry.NewProvider(ctx, cfg.Telemetry, "berth", build.Version)
	if err != nil {
		return log.WrapErr(err, "failed to initialize telemetry")
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(tctx)
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return log.WrapErr(err, "failed to create metrics")
	}

	notifier := eventbus.NewNotifier(cfg.Events, log)
	notifier.SetMetrics(metrics)
	if err := notifier.Start(); err != nil {
		return log.WrapErr(err, "failed to start event bus")
	}
	defer func() { _ = notifier.Stop() }()

	driver, closeDriver, err := newDriver(cfg.Runtime, log)
	if err != nil {
		return log.WrapErr(err, "failed to create runtime driver")
	}
	defer closeDriver()

	if err := driver.Ping(ctx); err != nil {
		log.Warn().Err(err).Str(zerowrap.FieldLayer, "app").Msg("runtime not reachable yet; reconciliation will keep retrying")
	}

	service := lifecycle.NewService(driver, notifier, cfg.Lifecycle)
	service.SetMetrics(metrics)

	if cfg.Store.Enabled {
		stopPersister, err := startPersistence(ctx, cfg.Store, service, log)
		if err != nil {
			return err
		}
		defer stopPersister()
	}

	if cfg.Journal.Enabled {
		stopJournal, err := startJournal(ctx, cfg.Journal, service, log)
		if err != nil {
			return err
		}
		defer stopJournal()
	}

	monitor := lifecycle.NewMonitor(service)
	monitor.Start(ctx)
	defer monitor.Stop()

	var limiter out.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = ratelimit.NewMemoryStore(cfg.Server.RateLimit, log)
	}

	handler := api.NewHandler(service, service, cfg.Server.Events, dto.VersionResponse{
		Version: build.Version,
		Commit:  build.Commit,
	})
	server := api.NewServer(cfg.Server.ServerConfig, handler, limiter, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Str(zerowrap.FieldLayer, "app").Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return log.WrapErr(err, "API server failed")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("API server shutdown error")
	}
	if err := <-errCh; err != nil {
		log.Warn().Err(err).Msg("API server stopped with error")
	}

	log.Info().Str(zerowrap.FieldLayer, "app").Msg("berth shutdown complete")
	return nil
}

// newDriver builds the configured runtime driver and its cleanup.
func newDriver(cfg RuntimeConfig, log zerowrap.Logger) (out.RuntimeDriver, func(), error) {
	switch cfg.Driver {
	case DriverSimulated:
		opts := []simulated.Option{simulated.WithLogger(log)}
		if cfg.Seed {
			opts = append(opts, simulated.WithSeed())
		}
		return simulated.NewDriver(opts...), func() {}, nil
	case DriverDocker:
		drv, err := docker.NewDriver(cfg.Config)
		if err != nil {
			return nil, nil, err
		}
		return drv, func() { _ = drv.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown runtime driver %q", cfg.Driver)
	}
}

// startPersistence opens the record store, restores it into the service and
// starts mirroring events. The returned func stops the mirror and closes the store.
func startPersistence(ctx context.Context, cfg StoreConfig, service *lifecycle.Service, log zerowrap.Logger) (func(), error) {
	store, err := sqlite.Open(ctx, cfg.Path)
	if err != nil {
		return nil, log.WrapErr(err, "failed to open record store")
	}

	persister, err := lifecycle.NewPersister(service, store, cfg.Buffer)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if _, err := persister.Load(ctx); err != nil {
		persister.Stop()
		_ = store.Close()
		return nil, err
	}

	// Writes issued while shutting down must still land.
	persister.Run(context.WithoutCancel(ctx))
	log.Info().Str(zerowrap.FieldLayer, "app").Str(zerowrap.FieldPath, cfg.Path).Msg("record store enabled")

	return func() {
		persister.Stop()
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close record store")
		}
	}, nil
}

// startJournal appends every event to the rotated journal file. The returned
// func unsubscribes, waits for the writer to drain and closes the file.
func startJournal(ctx context.Context, cfg JournalConfig, service *lifecycle.Service, log zerowrap.Logger) (func(), error) {
	j, err := journal.Open(cfg.FileConfig)
	if err != nil {
		return nil, log.WrapErr(err, "failed to open event journal")
	}
	sub, err := service.Subscribe(cfg.Buffer)
	if err != nil {
		_ = j.Close()
		return nil, log.WrapErr(err, "failed to subscribe event journal")
	}

	j.Follow(ctx, sub)
	log.Info().Str(zerowrap.FieldLayer, "app").Str(zerowrap.FieldPath, j.Path()).Msg("event journal enabled")

	return func() {
		sub.Close()
		<-j.Done()
		if err := j.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event journal")
		}
	}, nil
}
