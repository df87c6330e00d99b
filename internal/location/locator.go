package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/bobby-s-dev/location-weather/pkg/client"
	"go.uber.org/zap"
)

// StaticLocator always reports the same position.
type StaticLocator struct {
	Position models.Position
}

func (l StaticLocator) Locate(ctx context.Context) (models.Position, error) {
	if err := ctx.Err(); err != nil {
		return models.Position{}, err
	}
	return l.Position, nil
}

// IPLocator resolves the device position through an IP geolocation service
// answering with ip-api.com style JSON.
type IPLocator struct {
	*client.BaseClient
	url string
}

type ipLocatorResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

func NewIPLocator(url string, config client.ClientConfig, logger *zap.Logger) *IPLocator {
	return &IPLocator{
		BaseClient: client.NewBaseClient("iplocator", config, logger.Named("iplocator")),
		url:        url,
	}
}

func (l *IPLocator) Locate(ctx context.Context) (models.Position, error) {
	data, status, err := l.Get(ctx, l.url)
	if err != nil {
		return models.Position{}, fmt.Errorf("ip lookup failed: %w", err)
	}
	if status != http.StatusOK {
		return models.Position{}, fmt.Errorf("ip lookup returned HTTP %d", status)
	}

	var body ipLocatorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return models.Position{}, fmt.Errorf("failed to parse ip lookup response: %w", err)
	}
	if body.Status != "success" {
		return models.Position{}, fmt.Errorf("ip lookup status %q: %s", body.Status, body.Message)
	}

	return models.Position{Latitude: body.Lat, Longitude: body.Lon}, nil
}
