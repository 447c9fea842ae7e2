package modem

import (
	"context"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/at"
)

// Modem drives a SIM868 module over its UART using AT commands.
//
// Every operation is a strict request, wait, response exchange on one
// serial line. A Modem is not safe for concurrent use; callers sharing it
// must serialize access themselves.
type Modem struct {
	uart     *uart
	power    *powerController
	sleeper  Sleeper
	timeUnit float64
	logger   *zap.Logger

	gnssOn     bool
	httpOpen   bool
	lastNumber string
	closed     bool
}

// New dials the modem and reconciles the remembered power state with the
// device by sending an echo probe. A module that answers is switched off.
//
// Returns an error if the transport connection or the probe fails.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	port, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if port == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		uart:     newUART(port, config.Logger),
		power:    newPowerController(config.PowerPin, config.Logger),
		sleeper:  config.Sleeper,
		timeUnit: float64(config.TimeUnit),
		logger:   config.Logger,
	}

	if err := m.ensureKnownPowerState(ctx); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "initialize modem")
	}

	return m, nil
}

// Close releases the serial line. It does not change the module power.
func (m *Modem) Close() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	m.closed = true
	return m.uart.port.Close()
}

// LastCommand returns the last frame written to the line.
func (m *Modem) LastCommand() string {
	return m.uart.lastCommand
}

func (m *Modem) usable() error {
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.uart == nil || m.uart.port == nil {
		return ErrNotInitialized
	}
	return nil
}

// Echo sends the bare AT command and reports whether the module answered
// with OK.
func (m *Modem) Echo(ctx context.Context) (bool, error) {
	ok, err := m.sendAndVerify(ctx, at.CmdAt, at.OK, 1, true, Fail)
	if errors.Is(err, ErrIncorrectCommandOutput) {
		return false, nil
	}
	return ok, err
}

var csqPattern = regexp.MustCompile(`\+CSQ: (\d+),\d+`)

// SignalQualityUnknown is the RSSI value reported when the signal is not
// detectable.
const SignalQualityUnknown = 99

// SignalQuality returns the RSSI index: 0 is -115 dBm or less, 31 is
// -52 dBm or greater, SignalQualityUnknown means not detectable.
func (m *Modem) SignalQuality(ctx context.Context) (int, error) {
	resp, err := m.send(ctx, at.CmdSignalQuality, 1, true)
	if err != nil {
		return 0, err
	}

	match := csqPattern.FindStringSubmatch(resp)
	if match == nil {
		return 0, &CommandOutputError{Command: at.CmdSignalQuality, Expected: at.RespSignalQuality, Response: resp}
	}
	rssi, err := strconv.Atoi(match[1])
	if err != nil || (rssi > 31 && rssi != SignalQualityUnknown) {
		return 0, &CommandOutputError{Command: at.CmdSignalQuality, Expected: "rssi 0-31 or 99", Response: resp}
	}
	return rssi, nil
}
