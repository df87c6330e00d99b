package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrOwnerGone is returned by a fetch whose owner was destroyed before it ran.
var ErrOwnerGone = errors.New("owner destroyed before fetch started")

type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, pos models.Position) ([]byte, error)
	// Close releases pooled connections.
	Close()
}

// Fetcher turns each position into one background request. Superseded
// requests are neither cancelled nor de-duplicated.
type Fetcher struct {
	client   WeatherClient
	executor *scheduler.Executor
	tracer   trace.Tracer
	logger   *zap.Logger
}

func NewFetcher(client WeatherClient, executor *scheduler.Executor, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client:   client,
		executor: executor,
		tracer:   otel.Tracer("location-weather/fetcher"),
		logger:   logger.Named("fetcher"),
	}
}

// Fetch queues a request for pos. The task holds only the liveness token of
// its owner and gives up before touching the network if the owner is gone.
func (f *Fetcher) Fetch(pos models.Position, owner *scheduler.Token) *scheduler.Future[[]byte] {
	fetchID := uuid.NewString()
	f.logger.Debug("Queueing weather fetch",
		zap.String("fetch_id", fetchID),
		zap.Stringer("position", pos))

	return scheduler.Submit(f.executor, func(ctx context.Context) ([]byte, error) {
		if !owner.Alive() {
			return nil, ErrOwnerGone
		}

		ctx, span := f.tracer.Start(ctx, "weather.fetch")
		defer span.End()
		span.SetAttributes(
			attribute.String("fetch.id", fetchID),
			attribute.Float64("position.lat", pos.Latitude),
			attribute.Float64("position.lon", pos.Longitude))

		body, err := f.client.GetCurrentWeather(ctx, pos)
		if err != nil {
			span.RecordError(err)
			f.logger.Error("Error fetching weather data",
				zap.String("fetch_id", fetchID),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}

		f.logger.Debug("Weather fetch completed",
			zap.String("fetch_id", fetchID),
			zap.Int("body_size", len(body)))
		return body, nil
	})
}
