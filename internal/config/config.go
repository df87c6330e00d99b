package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Fixed tuning values. These are deliberately not read from the environment.
const (
	MinUpdateInterval     = 60000 * time.Millisecond
	MinDisplacement       = 100.0 // meters
	PermissionRequestCode = 123
	NetworkTimeout        = 30 * time.Second
	ExecutorShutdownGrace = time.Second
)

// Config is built once at startup and handed to each component that needs it.
// Components copy what they need; nothing mutates it after LoadConfig returns.
type Config struct {
	Server struct {
		Port         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		LogLevel     string
	}

	WeatherAPI struct {
		OpenWeatherAPIKey string
		BaseURL           string
		ConnectTimeout    time.Duration
		ReadTimeout       time.Duration
		WriteTimeout      time.Duration
	}

	Location struct {
		Provider          string
		Latitude          float64
		Longitude         float64
		IPLocatorURL      string
		MinUpdateInterval time.Duration
		MinDisplacement   float64
	}

	Permission struct {
		Mode        string
		RequestCode int
	}

	Executor struct {
		ShutdownGrace time.Duration
	}

	CircuitBreaker struct {
		Threshold int
		Timeout   time.Duration
	}

	Tracing struct {
		ZipkinURL   string
		ServiceName string
	}
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

type ErrInvalidValue struct {
	Name  string
	Value string
}

func (e *ErrInvalidValue) Error() string {
	return fmt.Sprintf("environment variable %q has invalid value %q", e.Name, e.Value)
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		zap.L().Info("No .env file found, using environment variables")
	}

	cfg := &Config{}

	// Server configuration
	cfg.Server.Port = getEnv("FIBER_PORT", "8080")
	cfg.Server.ReadTimeout = parseDuration(getEnv("FIBER_READ_TIMEOUT", "10s"))
	cfg.Server.WriteTimeout = parseDuration(getEnv("FIBER_WRITE_TIMEOUT", "10s"))
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")

	// Weather API configuration
	cfg.WeatherAPI.OpenWeatherAPIKey = getEnv("OPENWEATHER_API_KEY", "")
	if cfg.WeatherAPI.OpenWeatherAPIKey == "" {
		return nil, &ErrMissingRequiredEnvVar{Name: "OPENWEATHER_API_KEY"}
	}
	cfg.WeatherAPI.BaseURL = strings.TrimRight(getEnv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"), "/")
	cfg.WeatherAPI.ConnectTimeout = NetworkTimeout
	cfg.WeatherAPI.ReadTimeout = NetworkTimeout
	cfg.WeatherAPI.WriteTimeout = NetworkTimeout

	// Location configuration
	cfg.Location.Provider = strings.ToLower(getEnv("LOCATION_PROVIDER", "static"))
	switch cfg.Location.Provider {
	case "static", "ip":
	default:
		return nil, &ErrInvalidValue{Name: "LOCATION_PROVIDER", Value: cfg.Location.Provider}
	}
	cfg.Location.Latitude = parseFloat(getEnv("LOCATION_LATITUDE", "0"))
	cfg.Location.Longitude = parseFloat(getEnv("LOCATION_LONGITUDE", "0"))
	cfg.Location.IPLocatorURL = getEnv("IP_LOCATOR_URL", "http://ip-api.com/json")
	cfg.Location.MinUpdateInterval = MinUpdateInterval
	cfg.Location.MinDisplacement = MinDisplacement

	// Permission configuration
	cfg.Permission.Mode = strings.ToLower(getEnv("LOCATION_PERMISSION", "prompt"))
	switch cfg.Permission.Mode {
	case "granted", "denied", "prompt":
	default:
		return nil, &ErrInvalidValue{Name: "LOCATION_PERMISSION", Value: cfg.Permission.Mode}
	}
	cfg.Permission.RequestCode = PermissionRequestCode

	cfg.Executor.ShutdownGrace = ExecutorShutdownGrace

	// Circuit breaker configuration
	cfg.CircuitBreaker.Threshold = parseInt(getEnv("CIRCUIT_BREAKER_THRESHOLD", "5"))
	cfg.CircuitBreaker.Timeout = parseDuration(getEnv("CIRCUIT_BREAKER_TIMEOUT", "30s"))

	// Tracing configuration
	cfg.Tracing.ZipkinURL = getEnv("ZIPKIN_URL", "")
	cfg.Tracing.ServiceName = getEnv("SERVICE_NAME", "location-weather")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		zap.L().Warn("Failed to parse duration", zap.String("value", value), zap.Error(err))
		return 0
	}
	return duration
}

func parseInt(value string) int {
	intValue, err := strconv.Atoi(value)
	if err != nil {
		zap.L().Warn("Failed to parse int", zap.String("value", value), zap.Error(err))
		return 0
	}
	return intValue
}

func parseFloat(value string) float64 {
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		zap.L().Warn("Failed to parse float", zap.String("value", value), zap.Error(err))
		return 0
	}
	return floatValue
}
