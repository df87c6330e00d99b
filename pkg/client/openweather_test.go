package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap/zaptest"
)

func testConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		Threshold:      0,
		BreakerTimeout: time.Minute,
	}
}

func TestOpenWeatherClient_GetCurrentWeather(t *testing.T) {
	const payload = `{"name":"Paris","weather":[{"description":"clear sky"}],"main":{"temp":295.15}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/data/2.5/weather" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "40.712800" || q.Get("lon") != "-74.006000" {
			t.Errorf("coordinates = %s,%s", q.Get("lat"), q.Get("lon"))
		}
		if q.Get("appid") != "test-key" {
			t.Errorf("appid = %s", q.Get("appid"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	c := NewOpenWeatherClient(server.URL, "test-key", testConfig(), zaptest.NewLogger(t))
	defer c.Close()

	data, err := c.GetCurrentWeather(context.Background(), models.Position{Latitude: 40.7128, Longitude: -74.0060})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("payload = %q", data)
	}
}

func TestOpenWeatherClient_NonSuccessStatusReturnsBody(t *testing.T) {
	const payload = `{"cod":401,"message":"Invalid API key"}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	c := NewOpenWeatherClient(server.URL, "bad", testConfig(), zaptest.NewLogger(t))

	data, err := c.GetCurrentWeather(context.Background(), models.Position{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("payload = %q", data)
	}
}

func TestOpenWeatherClient_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewOpenWeatherClient(server.URL, "key", testConfig(), zaptest.NewLogger(t))

	_, err := c.GetCurrentWeather(context.Background(), models.Position{})
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestOpenWeatherClient_ReadTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	c := NewOpenWeatherClient(server.URL, "key", cfg, zaptest.NewLogger(t))

	start := time.Now()
	_, err := c.GetCurrentWeather(context.Background(), models.Position{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("request took %s, read timeout was not applied", elapsed)
	}
}

func TestOpenWeatherClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := server.URL
	server.Close()

	cfg := testConfig()
	cfg.Threshold = 2
	c := NewOpenWeatherClient(deadURL, "key", cfg, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		if _, err := c.GetCurrentWeather(context.Background(), models.Position{}); err == nil {
			t.Fatalf("attempt %d: expected connection error", i)
		}
	}

	_, err := c.GetCurrentWeather(context.Background(), models.Position{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://api.openweathermap.org/data/2.5/weather?lat=1.000000&lon=2.000000&appid=secret")
	if strings.Contains(got, "secret") {
		t.Fatalf("api key leaked: %s", got)
	}
	if !strings.Contains(got, "appid=REDACTED") {
		t.Fatalf("unexpected redaction: %s", got)
	}
}
