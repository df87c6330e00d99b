package services

import (
	"errors"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/config"
	"github.com/bobby-s-dev/location-weather/internal/display"
	"github.com/bobby-s-dev/location-weather/internal/location"
	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/bobby-s-dev/location-weather/internal/permission"
	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"go.uber.org/zap"
)

// Dependencies are the platform pieces the controller is composed from.
type Dependencies struct {
	Loop       scheduler.Poster
	Executor   *scheduler.Executor
	Client     WeatherClient
	Authorizer permission.Authorizer
	Provider   location.Provider
	Display    display.Display
	Notifier   display.Notifier
}

// Status is a snapshot of the controller for diagnostics.
type Status struct {
	Location  string                  `json:"location"`
	Destroyed bool                    `json:"destroyed"`
	Executor  scheduler.ExecutorStats `json:"executor"`
}

// Controller chains permission → location → fetch → display for one screen.
// It implements lifecycle.Observer, location.Listener and
// permission.ResultListener; every callback runs on the UI loop.
type Controller struct {
	loop          scheduler.Poster
	executor      *scheduler.Executor
	client        WeatherClient
	fetcher       *Fetcher
	gate          *permission.Gate
	source        *location.Source
	presenter     *Presenter
	token         *scheduler.Token
	shutdownGrace time.Duration
	destroyed     bool
	logger        *zap.Logger
}

func NewController(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Controller {
	logger = logger.Named("controller")

	c := &Controller{
		loop:          deps.Loop,
		executor:      deps.Executor,
		client:        deps.Client,
		fetcher:       NewFetcher(deps.Client, deps.Executor, logger),
		presenter:     NewPresenter(deps.Display, deps.Notifier, logger),
		token:         scheduler.NewToken(),
		shutdownGrace: cfg.Executor.ShutdownGrace,
		logger:        logger,
	}
	c.gate = permission.NewGate(deps.Authorizer, deps.Loop, c, cfg.Permission.RequestCode, logger)
	c.source = location.NewSource(deps.Provider, deps.Loop, c, location.UpdateRequest{
		MinInterval:     cfg.Location.MinUpdateInterval,
		MinDisplacement: cfg.Location.MinDisplacement,
	}, logger)

	return c
}

func (c *Controller) OnCreate() {
	if c.gate.Check() {
		c.startLocationUpdates()
	}
}

func (c *Controller) OnResume() {
	if c.gate.Granted() {
		c.startLocationUpdates()
	}
}

func (c *Controller) OnPause() {
	c.stopLocationUpdates()
}

func (c *Controller) OnDestroy() {
	c.teardown()
}

func (c *Controller) OnPermissionResult(requestCode int, granted bool) {
	if c.destroyed {
		return
	}

	switch c.gate.HandleResult(requestCode, granted) {
	case permission.Granted:
		c.startLocationUpdates()
	case permission.Denied:
		c.presenter.ShowPermissionDenied()
	}
}

func (c *Controller) OnLocationChanged(pos models.Position) {
	if c.destroyed {
		return
	}
	c.fetchWeather(pos)
}

func (c *Controller) Status() Status {
	return Status{
		Location:  c.source.State().String(),
		Destroyed: c.destroyed,
		Executor:  c.executor.Stats(),
	}
}

func (c *Controller) startLocationUpdates() {
	if c.destroyed || !c.gate.Granted() {
		return
	}

	if err := c.source.Start(); err != nil {
		c.presenter.ShowLocationError(err)
	}
}

func (c *Controller) stopLocationUpdates() {
	// Stop already logs provider errors and leaves the source inactive.
	_ = c.source.Stop()
}

func (c *Controller) fetchWeather(pos models.Position) {
	token := c.token
	presenter := c.presenter
	logger := c.logger

	c.fetcher.Fetch(pos, token).Then(c.loop, func(body []byte, err error) {
		if !token.Alive() {
			logger.Debug("Dropping fetch result for destroyed controller")
			return
		}
		if errors.Is(err, ErrOwnerGone) {
			return
		}
		if err != nil {
			presenter.ShowNetworkError(err)
			return
		}
		presenter.Present(string(body))
	})
}

// teardown releases resources in order: location updates, background
// executor, then the HTTP client's pooled connections.
func (c *Controller) teardown() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.token.Revoke()

	c.stopLocationUpdates()

	c.executor.Shutdown()
	if !c.executor.AwaitTermination(c.shutdownGrace) {
		aborted := c.executor.ShutdownNow()
		c.logger.Warn("Background executor did not stop in time",
			zap.Duration("grace", c.shutdownGrace),
			zap.Int("aborted", aborted))
	}

	c.client.Close()
	c.logger.Info("Controller destroyed")
}
