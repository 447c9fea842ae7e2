package modem

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/sim868/at"
)

// OnFailure selects what a verified send does when the expected token is
// missing from the response.
type OnFailure int

const (
	// Report logs the mismatch and still reports success.
	Report OnFailure = iota
	// Fail returns a *CommandOutputError.
	Fail
)

func (o OnFailure) String() string {
	if o == Fail {
		return "fail"
	}
	return "report"
}

// send issues one command, waits the given number of time units and
// returns the normalized response. Waiting is the only pacing mechanism.
func (m *Modem) send(ctx context.Context, cmd string, waitUnits float64, terminate bool) (string, error) {
	if err := m.usable(); err != nil {
		return "", err
	}

	frame := cmd
	if terminate {
		frame += at.CR
	}
	if err := m.uart.write([]byte(frame)); err != nil {
		return "", err
	}
	if err := m.wait(ctx, waitUnits); err != nil {
		return "", err
	}

	resp, err := m.uart.read()
	if err != nil {
		return "", err
	}
	m.logger.Debug("command response",
		zap.String("command", cmd), zap.String("response", resp))
	return resp, nil
}

// sendAndVerify runs send and checks that expected occurs in the response.
// With Report a mismatch is logged and true is still returned, so callers
// cannot tell a verified success from a tolerated mismatch.
func (m *Modem) sendAndVerify(ctx context.Context, cmd, expected string, waitUnits float64, terminate bool, onFailure OnFailure) (bool, error) {
	resp, err := m.send(ctx, cmd, waitUnits, terminate)
	if err != nil {
		return false, err
	}
	if strings.Contains(resp, expected) {
		return true, nil
	}

	if onFailure == Fail {
		return false, &CommandOutputError{Command: cmd, Expected: expected, Response: resp}
	}
	m.logger.Warn("unexpected command output tolerated",
		zap.String("command", cmd),
		zap.String("expected", expected),
		zap.String("response", resp))
	return true, nil
}

// readLines waits the given number of time units and reads the line in
// multi-line mode without issuing a command.
func (m *Modem) readLines(ctx context.Context, waitUnits float64) ([]string, error) {
	if err := m.usable(); err != nil {
		return nil, err
	}
	if err := m.wait(ctx, waitUnits); err != nil {
		return nil, err
	}
	return m.uart.readLines()
}

// sendLines issues a command and reads the reply in multi-line mode.
func (m *Modem) sendLines(ctx context.Context, cmd string, waitUnits float64) ([]string, error) {
	if err := m.usable(); err != nil {
		return nil, err
	}
	if err := m.uart.write([]byte(cmd + at.CR)); err != nil {
		return nil, err
	}
	lines, err := m.readLines(ctx, waitUnits)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("command response",
		zap.String("command", cmd), zap.Strings("lines", lines))
	return lines, nil
}

func (m *Modem) wait(ctx context.Context, units float64) error {
	return m.sleeper.Sleep(ctx, time.Duration(units*float64(m.timeUnit)))
}
