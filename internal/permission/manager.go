package permission

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrDenied means the user refused location access.
	ErrDenied = errors.New("location permission denied")
	// ErrNoPendingRequest is returned by Resolve when nobody asked.
	ErrNoPendingRequest = errors.New("no pending permission request")
)

// ResultFunc receives the answer to a permission request.
type ResultFunc func(requestCode int, granted bool)

// Authorizer is the platform side of location permission.
type Authorizer interface {
	Granted() bool
	// Request asks the user. The answer is delivered to onResult exactly once,
	// possibly on another goroutine.
	Request(requestCode int, onResult ResultFunc)
}

type Mode string

const (
	ModeGranted Mode = "granted"
	ModeDenied  Mode = "denied"
	ModePrompt  Mode = "prompt"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeGranted, ModeDenied, ModePrompt:
		return m, nil
	default:
		return "", fmt.Errorf("unknown permission mode %q", s)
	}
}

type pendingRequest struct {
	code     int
	onResult ResultFunc
}

// Manager is a headless Authorizer. In prompt mode a request waits until
// Resolve is called; a grant sticks for the life of the process.
type Manager struct {
	mu      sync.Mutex
	mode    Mode
	granted bool
	pending *pendingRequest
	logger  *zap.Logger
}

func NewManager(mode Mode, logger *zap.Logger) *Manager {
	return &Manager{
		mode:    mode,
		granted: mode == ModeGranted,
		logger:  logger.Named("permission"),
	}
}

func (m *Manager) Granted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

func (m *Manager) Request(requestCode int, onResult ResultFunc) {
	m.mu.Lock()
	switch {
	case m.granted:
		m.mu.Unlock()
		onResult(requestCode, true)
		return
	case m.mode == ModeDenied:
		m.mu.Unlock()
		m.logger.Info("Permission request auto-denied", zap.Int("request_code", requestCode))
		onResult(requestCode, false)
		return
	}

	replaced := m.pending
	m.pending = &pendingRequest{code: requestCode, onResult: onResult}
	m.mu.Unlock()

	// Only one request can wait for the user; the one it replaces is denied.
	if replaced != nil {
		m.logger.Warn("Replacing unanswered permission request", zap.Int("request_code", replaced.code))
		replaced.onResult(replaced.code, false)
	}
	m.logger.Info("Location permission requested, awaiting answer", zap.Int("request_code", requestCode))
}

// Resolve answers the pending request.
func (m *Manager) Resolve(granted bool) error {
	m.mu.Lock()
	p := m.pending
	if p == nil {
		m.mu.Unlock()
		return ErrNoPendingRequest
	}
	m.pending = nil
	if granted {
		m.granted = true
	}
	m.mu.Unlock()

	m.logger.Info("Permission request answered",
		zap.Int("request_code", p.code),
		zap.Bool("granted", granted))
	p.onResult(p.code, granted)
	return nil
}

func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}
