package models

import (
	"fmt"
)

// Position is a single location fix. It is handed straight to the fetcher and
// never stored by the controller.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p Position) String() string {
	return fmt.Sprintf("%f,%f", p.Latitude, p.Longitude)
}

// WeatherSummary exists only long enough to be rendered.
type WeatherSummary struct {
	CityName           string  `json:"city_name"`
	Description        string  `json:"description"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
}

// CurrentWeatherResponse is the part of the OpenWeatherMap /data/2.5/weather
// payload the presenter reads. Pointers distinguish a missing field from a zero value.
type CurrentWeatherResponse struct {
	Name    *string `json:"name"`
	Weather []struct {
		Description *string `json:"description"`
	} `json:"weather"`
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}
