package location

import (
	"errors"
	"math"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/models"
)

var (
	// ErrSubscription wraps any refusal to register for updates.
	ErrSubscription = errors.New("location subscription rejected")
	// ErrProviderUnavailable means the provider is closed or has nothing to poll.
	ErrProviderUnavailable = errors.New("location provider unavailable")
)

// Listener receives location updates.
type Listener interface {
	OnLocationChanged(pos models.Position)
}

type UpdateRequest struct {
	MinInterval     time.Duration
	MinDisplacement float64 // meters
}

// Provider is the platform location service.
type Provider interface {
	RequestUpdates(req UpdateRequest, listener Listener) error
	RemoveUpdates(listener Listener) error
	// LastKnown returns a cached fix without waiting for a new one.
	LastKnown() (models.Position, bool)
}

const earthRadiusMeters = 6371008.8

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b models.Position) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func validPosition(p models.Position) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180 &&
		!math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}
