package location

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/bobby-s-dev/location-weather/pkg/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type queuePoster struct {
	tasks []func()
}

func (q *queuePoster) Post(fn func()) bool {
	q.tasks = append(q.tasks, fn)
	return true
}

func (q *queuePoster) drain() {
	for len(q.tasks) > 0 {
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		fn()
	}
}

type fakeProvider struct {
	requests   int
	removes    int
	requestErr error
	listener   Listener
	lastKnown  *models.Position
}

func (f *fakeProvider) RequestUpdates(req UpdateRequest, l Listener) error {
	if f.requestErr != nil {
		return f.requestErr
	}
	f.requests++
	f.listener = l
	return nil
}

func (f *fakeProvider) RemoveUpdates(l Listener) error {
	f.removes++
	return nil
}

func (f *fakeProvider) LastKnown() (models.Position, bool) {
	if f.lastKnown == nil {
		return models.Position{}, false
	}
	return *f.lastKnown, true
}

type recordingListener struct {
	mu        sync.Mutex
	positions []models.Position
}

func (r *recordingListener) OnLocationChanged(pos models.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, pos)
}

func (r *recordingListener) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

var testRequest = UpdateRequest{MinInterval: time.Minute, MinDisplacement: 100}

func TestDistance(t *testing.T) {
	nyc := models.Position{Latitude: 40.7128, Longitude: -74.0060}
	paris := models.Position{Latitude: 48.8566, Longitude: 2.3522}

	d := Distance(nyc, paris)
	if math.Abs(d-5837000) > 10000 {
		t.Fatalf("NYC-Paris distance = %.0f m", d)
	}
	if Distance(nyc, nyc) != 0 {
		t.Fatal("distance to self should be zero")
	}
}

func TestSource_StartIsIdempotent(t *testing.T) {
	p := &fakeProvider{}
	s := NewSource(p, &queuePoster{}, &recordingListener{}, testRequest, zaptest.NewLogger(t))

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if p.requests != 1 {
		t.Fatalf("subscribed %d times, want 1", p.requests)
	}
	if s.State() != Active {
		t.Fatalf("state = %s", s.State())
	}

	_ = s.Stop()
	_ = s.Stop()
	if p.removes != 1 {
		t.Fatalf("unsubscribed %d times, want 1", p.removes)
	}
	if s.State() != Inactive {
		t.Fatalf("state = %s", s.State())
	}
}

func TestSource_LastKnownDeliveredImmediately(t *testing.T) {
	pos := models.Position{Latitude: 40.7128, Longitude: -74.0060}
	p := &fakeProvider{lastKnown: &pos}
	l := &recordingListener{}
	s := NewSource(p, &queuePoster{}, l, testRequest, zaptest.NewLogger(t))

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if l.count() != 1 || l.positions[0] != pos {
		t.Fatalf("positions = %v", l.positions)
	}
}

func TestSource_SubscriptionErrorStaysInactive(t *testing.T) {
	p := &fakeProvider{requestErr: errors.New("invalid provider")}
	s := NewSource(p, &queuePoster{}, &recordingListener{}, testRequest, zaptest.NewLogger(t))

	err := s.Start()
	if !errors.Is(err, ErrSubscription) {
		t.Fatalf("expected ErrSubscription, got %v", err)
	}
	if s.State() != Inactive {
		t.Fatalf("state = %s", s.State())
	}
}

func TestSource_UpdatesHopOntoLoopAndStopAfterStop(t *testing.T) {
	p := &fakeProvider{}
	loop := &queuePoster{}
	l := &recordingListener{}
	s := NewSource(p, loop, l, testRequest, zaptest.NewLogger(t))
	_ = s.Start()

	p.listener.OnLocationChanged(models.Position{Latitude: 1, Longitude: 1})
	if l.count() != 0 {
		t.Fatal("update delivered off the loop")
	}
	loop.drain()
	if l.count() != 1 {
		t.Fatalf("delivered %d updates, want 1", l.count())
	}

	p.listener.OnLocationChanged(models.Position{Latitude: 2, Longitude: 2})
	_ = s.Stop()
	loop.drain()
	if l.count() != 1 {
		t.Fatal("update delivered after stop")
	}
}

type scriptedLocator struct {
	mu        sync.Mutex
	positions []models.Position
	calls     int
}

func (s *scriptedLocator) Locate(ctx context.Context) (models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.positions) {
		i = len(s.positions) - 1
	}
	s.calls++
	return s.positions[i], nil
}

func TestPollingProvider_DisplacementFilter(t *testing.T) {
	base := models.Position{Latitude: 40.7128, Longitude: -74.0060}
	near := models.Position{Latitude: 40.7130, Longitude: -74.0060} // ~22 m
	far := models.Position{Latitude: 40.7200, Longitude: -74.0060}  // ~800 m
	locator := &scriptedLocator{positions: []models.Position{base, near, far}}

	p := NewPollingProvider(locator, zaptest.NewLogger(t))

	sub := &subscription{listener: &recordingListener{}, request: testRequest, ctx: context.Background()}
	p.sub = sub
	l := sub.listener.(*recordingListener)

	p.poll(sub)
	p.poll(sub)
	p.poll(sub)

	if l.count() != 2 {
		t.Fatalf("delivered %d fixes, want 2", l.count())
	}
	if l.positions[0] != base || l.positions[1] != far {
		t.Fatalf("positions = %v", l.positions)
	}
	if last, ok := p.LastKnown(); !ok || last != far {
		t.Fatalf("last known = %v, %v", last, ok)
	}
}

func TestPollingProvider_FirstFixIsImmediate(t *testing.T) {
	pos := models.Position{Latitude: 48.8566, Longitude: 2.3522}
	// cron logs at debug from its own goroutine, which may outlive the test.
	p := NewPollingProvider(StaticLocator{Position: pos}, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	defer p.Close()

	l := &recordingListener{}
	if err := p.RequestUpdates(testRequest, l); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for l.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.count() != 1 {
		t.Fatalf("delivered %d fixes, want 1", l.count())
	}

	if err := p.RemoveUpdates(l); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if p.GetStatus()["subscribed"].(bool) {
		t.Fatal("still subscribed after RemoveUpdates")
	}
}

func TestPollingProvider_RejectsInvalidRequests(t *testing.T) {
	p := NewPollingProvider(StaticLocator{}, zaptest.NewLogger(t))

	if err := p.RequestUpdates(UpdateRequest{}, &recordingListener{}); err == nil {
		t.Fatal("expected error for zero interval")
	}
	if err := p.RequestUpdates(testRequest, nil); err == nil {
		t.Fatal("expected error for nil listener")
	}

	p.Close()
	if err := p.RequestUpdates(testRequest, &recordingListener{}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func ipLocatorConfig() client.ClientConfig {
	return client.ClientConfig{
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		BreakerTimeout: time.Minute,
	}
}

func TestIPLocator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","lat":40.7128,"lon":-74.006,"city":"New York"}`))
	}))
	defer server.Close()

	pos, err := NewIPLocator(server.URL, ipLocatorConfig(), zaptest.NewLogger(t)).Locate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Latitude != 40.7128 || pos.Longitude != -74.006 {
		t.Fatalf("position = %v", pos)
	}
}

func TestIPLocator_FailedLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"private range"}`))
	}))
	defer server.Close()

	if _, err := NewIPLocator(server.URL, ipLocatorConfig(), zaptest.NewLogger(t)).Locate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIPLocator_PropagatesTraceContext(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
		_ = provider.Shutdown(context.Background())
	})

	headers := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("traceparent")
		_, _ = w.Write([]byte(`{"status":"success","lat":40.7128,"lon":-74.006}`))
	}))
	defer server.Close()

	ctx, span := provider.Tracer("test").Start(context.Background(), "locate")
	defer span.End()

	if _, err := NewIPLocator(server.URL, ipLocatorConfig(), zaptest.NewLogger(t)).Locate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	traceparent := <-headers
	if !strings.Contains(traceparent, span.SpanContext().TraceID().String()) {
		t.Fatalf("traceparent = %q, want trace %s", traceparent, span.SpanContext().TraceID())
	}
}

func TestIPLocator_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	if _, err := NewIPLocator(server.URL, ipLocatorConfig(), zaptest.NewLogger(t)).Locate(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 429")
	}
}

func TestPollingProvider_ResubscribeSkipsUnchangedFix(t *testing.T) {
	pos := models.Position{Latitude: 48.8566, Longitude: 2.3522}
	p := NewPollingProvider(StaticLocator{Position: pos}, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	defer p.Close()

	first := &recordingListener{}
	if err := p.RequestUpdates(testRequest, first); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	waitFor(t, func() bool { return first.count() == 1 })
	_ = p.RemoveUpdates(first)

	before := p.GetStatus()["last_poll"].(time.Time)
	second := &recordingListener{}
	if err := p.RequestUpdates(testRequest, second); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	waitFor(t, func() bool { return !p.GetStatus()["last_poll"].(time.Time).Equal(before) })
	time.Sleep(50 * time.Millisecond)

	if second.count() != 0 {
		t.Fatalf("unchanged fix delivered %d times after resubscribe", second.count())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
