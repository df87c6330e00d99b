package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bobby-s-dev/location-weather/internal/display"
	"github.com/bobby-s-dev/location-weather/internal/models"
	"go.uber.org/zap"
)

const kelvinOffset = 273.15

// Fixed display texts.
const (
	PermissionRequiredText = "Location permission required for weather updates"
	FetchErrorText         = "Error fetching weather data"
	ParseErrorText         = "Error parsing weather data"
	LocationErrorText      = "Error getting location updates"
)

// Notification texts.
const (
	PermissionDeniedNotice = "Location permission denied"
	NetworkErrorNotice     = "Network error"
	ParseErrorNotice       = "Error processing weather data"
	LocationErrorNotice    = "Error getting location updates"
)

var (
	ErrNetwork = errors.New("network error")
	ErrParse   = errors.New("parse error")
)

// ParseWeather extracts the summary from an OpenWeatherMap current-weather payload.
func ParseWeather(payload string) (models.WeatherSummary, error) {
	var resp models.CurrentWeatherResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return models.WeatherSummary{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	if resp.Name == nil {
		return models.WeatherSummary{}, fmt.Errorf("%w: missing name", ErrParse)
	}
	if len(resp.Weather) == 0 {
		return models.WeatherSummary{}, fmt.Errorf("%w: missing weather[0]", ErrParse)
	}
	if resp.Weather[0].Description == nil {
		return models.WeatherSummary{}, fmt.Errorf("%w: missing weather[0].description", ErrParse)
	}
	if resp.Main == nil {
		return models.WeatherSummary{}, fmt.Errorf("%w: missing main", ErrParse)
	}
	if resp.Main.Temp == nil {
		return models.WeatherSummary{}, fmt.Errorf("%w: missing main.temp", ErrParse)
	}

	return models.WeatherSummary{
		CityName:           *resp.Name,
		Description:        *resp.Weather[0].Description,
		TemperatureCelsius: *resp.Main.Temp - kelvinOffset,
	}, nil
}

func FormatSummary(s models.WeatherSummary) string {
	return fmt.Sprintf("Location: %s\nWeather: %s\nTemperature: %.1f°C",
		s.CityName, s.Description, s.TemperatureCelsius)
}

// Presenter writes to the display. It must only be used from the UI loop.
type Presenter struct {
	display  display.Display
	notifier display.Notifier
	logger   *zap.Logger
}

func NewPresenter(d display.Display, n display.Notifier, logger *zap.Logger) *Presenter {
	return &Presenter{
		display:  d,
		notifier: n,
		logger:   logger.Named("presenter"),
	}
}

// Present renders payload, or the parse error text if it cannot be read.
func (p *Presenter) Present(payload string) {
	summary, err := ParseWeather(payload)
	if err != nil {
		p.logger.Error("Error parsing weather data", zap.Error(err))
		p.display.SetText(ParseErrorText)
		p.notifier.Notify(ParseErrorNotice)
		return
	}

	p.logger.Info("Weather updated",
		zap.String("city", summary.CityName),
		zap.String("description", summary.Description),
		zap.Float64("temperature_c", summary.TemperatureCelsius))
	p.display.SetText(FormatSummary(summary))
}

func (p *Presenter) ShowNetworkError(err error) {
	p.logger.Error("Error fetching weather data", zap.Error(err))
	p.display.SetText(FetchErrorText)
	p.notifier.Notify(NetworkErrorNotice)
}

func (p *Presenter) ShowPermissionDenied() {
	p.display.SetText(PermissionRequiredText)
	p.notifier.Notify(PermissionDeniedNotice)
}

func (p *Presenter) ShowLocationError(err error) {
	p.logger.Error("Error starting location updates", zap.Error(err))
	p.display.SetText(LocationErrorText)
	p.notifier.Notify(LocationErrorNotice)
}
