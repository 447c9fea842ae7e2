// Package tracker turns modem fixes into uploads: it samples positions,
// drops samples that did not move far enough, and hands the rest to a
// Publisher.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/modem"
)

// Locator yields position fixes.
type Locator interface {
	GPSFix(ctx context.Context, maxAttempts int, retryInterval time.Duration) (modem.GPSData, error)
}

// Messenger sends text messages.
type Messenger interface {
	SendTextMessage(ctx context.Context, recipient, message string) (string, error)
}

// Config controls how a Tracker samples and filters.
type Config struct {
	DeviceID      string
	Attempts      int
	RetryInterval time.Duration
	// MinDistance in meters; zero publishes every fix.
	MinDistance float64
}

// Tracker samples fixes and publishes them.
type Tracker struct {
	locator   Locator
	publisher Publisher
	config    Config
	logger    *zap.Logger

	// lock serializes modem access with other owners; may be nil.
	lock      sync.Locker
	messenger Messenger
	last      modem.GPSData
}

type Option func(*Tracker)

// WithLocker shares a lock with other users of the same modem.
func WithLocker(l sync.Locker) Option {
	return func(t *Tracker) { t.lock = l }
}

// WithMessenger enables SendMapLink.
func WithMessenger(m Messenger) Option {
	return func(t *Tracker) { t.messenger = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func New(locator Locator, publisher Publisher, config Config, opts ...Option) *Tracker {
	if config.Attempts <= 0 {
		config.Attempts = 1
	}
	t := &Tracker{
		locator:   locator,
		publisher: publisher,
		config:    config,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) fix(ctx context.Context) (modem.GPSData, error) {
	if t.lock != nil {
		t.lock.Lock()
		defer t.lock.Unlock()
	}
	return t.locator.GPSFix(ctx, t.config.Attempts, t.config.RetryInterval)
}

// publish holds the lock too, since HTTPPublisher talks to the modem.
func (t *Tracker) publish(ctx context.Context, batch Batch) error {
	if t.lock != nil {
		t.lock.Lock()
		defer t.lock.Unlock()
	}
	return t.publisher.Publish(ctx, batch)
}

// Collect takes n samples spaced by interval. Samples without a fix are
// logged and skipped; any other error stops the collection and is
// returned together with what was gathered so far.
func (t *Tracker) Collect(ctx context.Context, n int, interval time.Duration) ([]modem.GPSData, error) {
	if n < 0 {
		return nil, errors.Errorf("sample count must not be negative, got %d", n)
	}
	fixes := make([]modem.GPSData, 0, n)
	for i := 0; i < n; i++ {
		fix, err := t.fix(ctx)
		switch {
		case errors.Is(err, modem.ErrGPSNotAcquired):
			t.logger.Warn("sample skipped", zap.Int("sample", i+1), zap.Error(err))
		case err != nil:
			return fixes, err
		default:
			fixes = append(fixes, fix)
		}

		if i < n-1 {
			if err := sleep(ctx, interval); err != nil {
				return fixes, err
			}
		}
	}
	return fixes, nil
}

// Step takes one fix and publishes it if the device moved at least
// MinDistance since the last published fix. It reports whether
// something was published.
func (t *Tracker) Step(ctx context.Context) (bool, error) {
	fix, err := t.fix(ctx)
	if err != nil {
		return false, err
	}
	if !MovedAtLeast(t.last, fix, t.config.MinDistance) {
		t.logger.Debug("fix within distance threshold",
			zap.String("latitude", fix.Latitude),
			zap.String("longitude", fix.Longitude))
		return false, nil
	}

	batch := ComposeBatch([]modem.GPSData{fix}, t.config.DeviceID)
	if err := t.publish(ctx, batch); err != nil {
		return false, errors.Wrap(err, "publish fix")
	}
	t.last = fix
	t.logger.Info("fix published",
		zap.String("latitude", fix.Latitude),
		zap.String("longitude", fix.Longitude),
		zap.String("datetime", fix.Datetime))
	return true, nil
}

// Run calls Step every period until ctx is done. Step errors are
// logged and do not stop the loop.
func (t *Tracker) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		if _, err := t.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("tracking step failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SendMapLink texts a map link of the current position to recipient.
// A missing fix is logged and nothing is sent.
func (t *Tracker) SendMapLink(ctx context.Context, recipient string) error {
	if t.messenger == nil {
		return errors.New("tracker: no messenger configured")
	}
	fix, err := t.fix(ctx)
	if errors.Is(err, modem.ErrGPSNotAcquired) {
		t.logger.Warn("map link not sent", zap.String("to", recipient), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	if t.lock != nil {
		t.lock.Lock()
		defer t.lock.Unlock()
	}
	if _, err := t.messenger.SendTextMessage(ctx, recipient, fix.ComposeLink()); err != nil {
		return errors.Wrapf(err, "send map link to %s", recipient)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
