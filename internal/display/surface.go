package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NotificationTTL matches a short pop-up: notifications disappear after it.
const NotificationTTL = 2 * time.Second

// Display is the single text region of the screen.
type Display interface {
	SetText(text string)
}

// Notifier shows transient pop-up messages.
type Notifier interface {
	Notify(message string)
}

type Notification struct {
	Message   string    `json:"message"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Snapshot is what a reader of the surface sees at one instant.
type Snapshot struct {
	Text          string         `json:"text"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Notifications []Notification `json:"notifications"`
}

// Surface holds the current display text and live notifications. Writes come
// from the UI loop; reads may come from any goroutine.
type Surface struct {
	mu            sync.RWMutex
	text          string
	updatedAt     time.Time
	notifications []Notification

	mirror io.Writer
	logger *zap.Logger
	now    func() time.Time
}

// NewSurface returns an empty surface. When mirror is non-nil every text change
// and notification is also written to it.
func NewSurface(mirror io.Writer, logger *zap.Logger) *Surface {
	return &Surface{
		mirror: mirror,
		logger: logger.Named("display"),
		now:    time.Now,
	}
}

func (s *Surface) SetText(text string) {
	s.mu.Lock()
	s.text = text
	s.updatedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("Display updated", zap.String("text", text))
	if s.mirror != nil {
		fmt.Fprintf(s.mirror, "\n%s\n", text)
	}
}

func (s *Surface) Notify(message string) {
	now := s.now()

	s.mu.Lock()
	s.notifications = append(s.pruneLocked(now), Notification{
		Message:   message,
		ShownAt:   now,
		ExpiresAt: now.Add(NotificationTTL),
	})
	s.mu.Unlock()

	s.logger.Info("Notification shown", zap.String("message", message))
	if s.mirror != nil {
		fmt.Fprintf(s.mirror, "[!] %s\n", message)
	}
}

func (s *Surface) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}

func (s *Surface) Snapshot() Snapshot {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifications = s.pruneLocked(now)
	live := make([]Notification, len(s.notifications))
	copy(live, s.notifications)

	return Snapshot{
		Text:          s.text,
		UpdatedAt:     s.updatedAt,
		Notifications: live,
	}
}

func (s *Surface) pruneLocked(now time.Time) []Notification {
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	return kept
}
