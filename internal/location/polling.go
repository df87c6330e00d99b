package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobby-s-dev/location-weather/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Locator produces a fresh fix on demand.
type Locator interface {
	Locate(ctx context.Context) (models.Position, error)
}

type subscription struct {
	listener      Listener
	request       UpdateRequest
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	lastDelivered *models.Position
}

// PollingProvider turns a Locator into a periodic location service. A fix is
// delivered when it has moved at least the requested displacement since the
// last delivered fix. The first fix of a subscription is compared against the
// provider's last known position, if any.
type PollingProvider struct {
	locator Locator
	logger  *zap.Logger

	mu        sync.Mutex
	sub       *subscription
	lastKnown *models.Position
	lastPoll  time.Time
	closed    bool
}

func NewPollingProvider(locator Locator, logger *zap.Logger) *PollingProvider {
	return &PollingProvider{
		locator: locator,
		logger:  logger.Named("provider"),
	}
}

func (p *PollingProvider) RequestUpdates(req UpdateRequest, listener Listener) error {
	if listener == nil {
		return fmt.Errorf("listener is required")
	}
	if req.MinInterval <= 0 {
		return fmt.Errorf("invalid min interval %s", req.MinInterval)
	}
	if req.MinDisplacement < 0 {
		return fmt.Errorf("invalid min displacement %v", req.MinDisplacement)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.locator == nil {
		return ErrProviderUnavailable
	}
	if p.sub != nil {
		p.stopLocked()
	}

	cronLog := cronLogger{logger: p.logger.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		listener: listener,
		request:  req,
		ctx:      ctx,
		cancel:   cancel,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	// Fixes already handed out via LastKnown count as delivered.
	if p.lastKnown != nil {
		seen := *p.lastKnown
		sub.lastDelivered = &seen
	}
	sub.cron.Schedule(cron.Every(req.MinInterval), cron.FuncJob(func() { p.poll(sub) }))
	sub.cron.Start()
	p.sub = sub

	p.logger.Info("Provider subscription registered",
		zap.Duration("interval", req.MinInterval),
		zap.Float64("min_displacement_m", req.MinDisplacement))

	// First fix right away; the interval only spaces later ones.
	go p.poll(sub)

	return nil
}

func (p *PollingProvider) RemoveUpdates(listener Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub == nil || p.sub.listener != listener {
		return nil
	}
	p.stopLocked()
	return nil
}

func (p *PollingProvider) LastKnown() (models.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastKnown == nil {
		return models.Position{}, false
	}
	return *p.lastKnown, true
}

// Close stops any subscription; later RequestUpdates calls fail.
func (p *PollingProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sub != nil {
		p.stopLocked()
	}
	p.closed = true
}

func (p *PollingProvider) GetStatus() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	status := map[string]interface{}{
		"subscribed": p.sub != nil,
		"last_poll":  p.lastPoll,
	}
	if p.lastKnown != nil {
		status["last_known"] = *p.lastKnown
	}
	return status
}

func (p *PollingProvider) stopLocked() {
	sub := p.sub
	p.sub = nil
	sub.cancel()
	sub.cron.Stop()
	p.logger.Info("Provider subscription removed")
}

func (p *PollingProvider) poll(sub *subscription) {
	pos, err := p.locator.Locate(sub.ctx)
	if err != nil {
		if sub.ctx.Err() == nil {
			p.logger.Warn("Failed to locate device", zap.Error(err))
		}
		return
	}
	if !validPosition(pos) {
		p.logger.Warn("Locator returned out-of-range position", zap.Stringer("position", pos))
		return
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.lastKnown = &pos
	if p.sub != sub {
		p.mu.Unlock()
		return
	}
	if sub.lastDelivered != nil {
		if moved := Distance(*sub.lastDelivered, pos); moved < sub.request.MinDisplacement {
			p.mu.Unlock()
			p.logger.Debug("Skipping fix below displacement threshold", zap.Float64("moved_m", moved))
			return
		}
	}
	sub.lastDelivered = &pos
	p.mu.Unlock()

	sub.listener.OnLocationChanged(pos)
}

// cronLogger routes robfig/cron logging into zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
