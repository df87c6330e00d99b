package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestSurface_TextAndMirror(t *testing.T) {
	var buf bytes.Buffer
	s := NewSurface(&buf, zaptest.NewLogger(t))

	s.SetText("Location: Paris")
	if s.Text() != "Location: Paris" {
		t.Fatalf("text = %q", s.Text())
	}
	if !strings.Contains(buf.String(), "Location: Paris") {
		t.Fatalf("mirror missing text: %q", buf.String())
	}
}

func TestSurface_NotificationsExpire(t *testing.T) {
	s := NewSurface(nil, zaptest.NewLogger(t))
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Notify("Network error")
	if snap := s.Snapshot(); len(snap.Notifications) != 1 || snap.Notifications[0].Message != "Network error" {
		t.Fatalf("notifications = %+v", snap.Notifications)
	}

	now = now.Add(NotificationTTL)
	if snap := s.Snapshot(); len(snap.Notifications) != 0 {
		t.Fatalf("expected expired notifications, got %+v", snap.Notifications)
	}
}
