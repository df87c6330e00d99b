package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/api"
	"github.com/bobby-s-dev/location-weather/internal/config"
	"github.com/bobby-s-dev/location-weather/internal/display"
	"github.com/bobby-s-dev/location-weather/internal/lifecycle"
	"github.com/bobby-s-dev/location-weather/internal/location"
	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/bobby-s-dev/location-weather/internal/permission"
	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"github.com/bobby-s-dev/location-weather/internal/services"
	"github.com/bobby-s-dev/location-weather/internal/telemetry"
	"github.com/bobby-s-dev/location-weather/pkg/client"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Initialize logger
	zapConfig := zap.NewProductionConfig()
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	logger.Info("Starting Location Weather Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := zapConfig.Level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		logger.Warn("Unknown log level, keeping info", zap.String("level", cfg.Server.LogLevel))
	}

	shutdownTracer, err := telemetry.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.ZipkinURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	mode, err := permission.ParseMode(cfg.Permission.Mode)
	if err != nil {
		logger.Fatal("Invalid permission mode", zap.Error(err))
	}

	clientConfig := client.ClientConfig{
		ConnectTimeout: cfg.WeatherAPI.ConnectTimeout,
		ReadTimeout:    cfg.WeatherAPI.ReadTimeout,
		WriteTimeout:   cfg.WeatherAPI.WriteTimeout,
		Threshold:      cfg.CircuitBreaker.Threshold,
		BreakerTimeout: cfg.CircuitBreaker.Timeout,
	}

	surface := display.NewSurface(os.Stdout, logger)
	loop := scheduler.NewLoop(logger)
	executor := scheduler.NewExecutor(logger)
	permissions := permission.NewManager(mode, logger)
	provider := location.NewPollingProvider(newLocator(cfg, clientConfig, logger), logger)
	weatherClient := client.NewOpenWeatherClient(cfg.WeatherAPI.BaseURL, cfg.WeatherAPI.OpenWeatherAPIKey, clientConfig, logger)

	controller := services.NewController(cfg, services.Dependencies{
		Loop:       loop,
		Executor:   executor,
		Client:     weatherClient,
		Authorizer: permissions,
		Provider:   provider,
		Display:    surface,
		Notifier:   surface,
	}, logger)

	owner := lifecycle.NewOwner(loop, logger)
	owner.AddObserver(controller)

	app := newApp(cfg)
	handler := api.NewHandler(loop, owner, controller, surface, permissions, provider, logger)
	api.SetupRoutes(app, handler, logger)

	// The UI loop outlives the signal context so teardown can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	svc := &service{
		app:            app,
		loop:           loop,
		owner:          owner,
		provider:       provider,
		stopLoop:       stopLoop,
		shutdownTracer: shutdownTracer,
		logger:         logger,
	}
	defer svc.recoverAndTeardown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loop.Run(loopCtx)
		return nil
	})

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	owner.Post(lifecycle.EventCreate)
	owner.Post(lifecycle.EventResume)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svc.teardown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service exited with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// newApp builds the Fiber app with the service's timeouts and JSON error handler.
func newApp(cfg *config.Config) *fiber.App {
	return fiber.New(fiber.Config{
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})
}

func newLocator(cfg *config.Config, clientConfig client.ClientConfig, logger *zap.Logger) location.Locator {
	if cfg.Location.Provider == "ip" {
		return location.NewIPLocator(cfg.Location.IPLocatorURL, clientConfig, logger)
	}
	return location.StaticLocator{Position: models.Position{
		Latitude:  cfg.Location.Latitude,
		Longitude: cfg.Location.Longitude,
	}}
}

// service owns what main starts and stops it exactly once.
type service struct {
	app            *fiber.App
	loop           *scheduler.Loop
	owner          *lifecycle.Owner
	provider       *location.PollingProvider
	stopLoop       context.CancelFunc
	shutdownTracer telemetry.ShutdownFunc
	logger         *zap.Logger

	once sync.Once
}

// teardown stops the HTTP server, destroys the screen on the UI loop, then
// stops the location provider, the loop and the tracer.
func (s *service) teardown(ctx context.Context) {
	s.once.Do(func() {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("Server shutdown failed", zap.Error(err))
		}

		err := s.loop.Call(ctx, func() {
			if err := s.owner.Handle(lifecycle.EventDestroy); err != nil {
				s.logger.Warn("Destroy rejected", zap.Error(err))
			}
		})
		if err != nil {
			s.logger.Error("Teardown did not run on the UI loop", zap.Error(err))
		}

		s.provider.Close()
		s.stopLoop()
		<-s.loop.Done()

		if s.shutdownTracer != nil {
			if err := s.shutdownTracer(ctx); err != nil {
				s.logger.Error("Tracer shutdown failed", zap.Error(err))
			}
		}
	})
}

// recoverAndTeardown runs teardown when main panics and then re-panics.
func (s *service) recoverAndTeardown() {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Error("Recovered panic in main", zap.Any("panic", r), zap.Stack("stack"))

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.teardown(ctx)
	panic(r)
}
