package modem

import (
	"context"
	"time"

	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock_pin.go -package=modem . Pin

// Pin is the digital output wired to the module's PWRKEY line.
type Pin interface {
	High() error
	Low() error
}

// Sleeper performs the fixed per-command waits. It returns early with the
// context error when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts an ordinary function to a Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config holds everything New needs to bring up a Modem.
type Config struct {
	Dialer   Dialer
	PowerPin Pin
	Logger   *zap.Logger
	Sleeper  Sleeper
	// TimeUnit scales every fixed device wait. The SIM868 budgets are
	// expressed in seconds.
	TimeUnit time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if c.PowerPin == nil {
		return ErrNoPowerPin
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Sleeper == nil {
		c.Sleeper = timerSleeper{}
	}
	if c.TimeUnit <= 0 {
		c.TimeUnit = time.Second
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithPowerPin(p Pin) *ConfigBuilder {
	b.config.PowerPin = p
	return b
}

func (b *ConfigBuilder) WithLogger(l *zap.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithSleeper(s Sleeper) *ConfigBuilder {
	b.config.Sleeper = s
	return b
}

func (b *ConfigBuilder) WithTimeUnit(d time.Duration) *ConfigBuilder {
	b.config.TimeUnit = d
	return b
}

// Build validates the collected settings and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
