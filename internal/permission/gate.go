package permission

import (
	"github.com/bobby-s-dev/location-weather/internal/scheduler"
	"go.uber.org/zap"
)

// ResultListener is notified on the UI loop when a request is answered.
type ResultListener interface {
	OnPermissionResult(requestCode int, granted bool)
}

type Decision int

const (
	// Ignored covers answers for another request code or duplicates.
	Ignored Decision = iota
	Granted
	Denied
)

func (d Decision) String() string {
	switch d {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "ignored"
	}
}

// Gate makes sure location access is authorized before any sensor or network
// activity. All methods run on the UI loop.
type Gate struct {
	auth        Authorizer
	loop        scheduler.Poster
	listener    ResultListener
	requestCode int
	awaiting    bool
	logger      *zap.Logger
}

func NewGate(auth Authorizer, loop scheduler.Poster, listener ResultListener, requestCode int, logger *zap.Logger) *Gate {
	return &Gate{
		auth:        auth,
		loop:        loop,
		listener:    listener,
		requestCode: requestCode,
		logger:      logger.Named("gate"),
	}
}

// Check reports whether access is already granted. When it is not, a request
// is issued and the answer arrives later through the listener.
func (g *Gate) Check() bool {
	if g.auth.Granted() {
		return true
	}
	if g.awaiting {
		return false
	}

	g.awaiting = true
	g.auth.Request(g.requestCode, func(code int, granted bool) {
		g.loop.Post(func() { g.listener.OnPermissionResult(code, granted) })
	})
	return false
}

func (g *Gate) Granted() bool {
	return g.auth.Granted()
}

// HandleResult evaluates an answer once. Answers for other request codes and
// repeated answers are ignored.
func (g *Gate) HandleResult(requestCode int, granted bool) Decision {
	if requestCode != g.requestCode || !g.awaiting {
		g.logger.Debug("Ignoring permission result",
			zap.Int("request_code", requestCode),
			zap.Bool("awaiting", g.awaiting))
		return Ignored
	}
	g.awaiting = false

	if granted {
		return Granted
	}
	g.logger.Info("Location permission denied", zap.Error(ErrDenied))
	return Denied
}
