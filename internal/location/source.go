package location

import (
	"fmt"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"go.uber.org/zap"
)

type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Source subscribes to a Provider and forwards updates to its listener on the
// UI loop. Start, Stop and State must only be called from the UI loop.
type Source struct {
	provider Provider
	listener Listener
	request  UpdateRequest
	relay    *relay
	state    State
	logger   *zap.Logger
}

// relay is what the provider sees. It hops each update onto the UI loop and
// drops updates that land after Stop.
type relay struct {
	loop   scheduler.Poster
	source *Source
}

func (r *relay) OnLocationChanged(pos models.Position) {
	r.loop.Post(func() {
		if r.source.state != Active {
			return
		}
		r.source.listener.OnLocationChanged(pos)
	})
}

func NewSource(provider Provider, loop scheduler.Poster, listener Listener, request UpdateRequest, logger *zap.Logger) *Source {
	s := &Source{
		provider: provider,
		listener: listener,
		request:  request,
		logger:   logger.Named("location"),
	}
	s.relay = &relay{loop: loop, source: s}
	return s
}

// Start moves the source to Active. It is a no-op when already active. On
// error the source stays Inactive and the error wraps ErrSubscription.
func (s *Source) Start() error {
	if s.state == Active {
		return nil
	}

	if err := s.provider.RequestUpdates(s.request, s.relay); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscription, err)
	}
	s.state = Active
	s.logger.Info("Location updates started",
		zap.Duration("min_interval", s.request.MinInterval),
		zap.Float64("min_displacement_m", s.request.MinDisplacement))

	if pos, ok := s.provider.LastKnown(); ok {
		s.logger.Debug("Using last known position", zap.Stringer("position", pos))
		s.listener.OnLocationChanged(pos)
	}
	return nil
}

// Stop moves the source to Inactive. It is a no-op when already inactive.
// The source is inactive afterwards even if the provider reports an error.
func (s *Source) Stop() error {
	if s.state == Inactive {
		return nil
	}
	s.state = Inactive

	if err := s.provider.RemoveUpdates(s.relay); err != nil {
		s.logger.Error("Error stopping location updates", zap.Error(err))
		return err
	}
	s.logger.Info("Location updates stopped")
	return nil
}

func (s *Source) State() State {
	return s.state
}
