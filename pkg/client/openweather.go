package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"go.uber.org/zap"
)

type OpenWeatherClient struct {
	*BaseClient
	apiKey  string
	baseURL string
}

func NewOpenWeatherClient(baseURL, apiKey string, config ClientConfig, logger *zap.Logger) *OpenWeatherClient {
	baseClient := NewBaseClient("openweather", config, logger)
	return &OpenWeatherClient{
		BaseClient: baseClient,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}
}

// GetCurrentWeather returns the raw JSON payload for the given position.
// A non-2xx answer with a body is still returned; interpreting it is the caller's job.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, pos models.Position) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/data/2.5/weather?lat=%f&lon=%f&appid=%s",
		c.baseURL, pos.Latitude, pos.Longitude, url.QueryEscape(c.apiKey))

	data, status, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current weather: %w", err)
	}

	if status < 200 || status >= 300 {
		c.logger.Warn("Weather API returned non-success status",
			zap.Int("status", status),
			zap.Stringer("position", pos))
	}

	return data, nil
}
