package modem

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"i4.energy/across/sim868/at"
)

//go:generate mockgen -destination=mock_transport.go -package=modem . Port,Dialer

// Port represents an established serial line to the SIM868.
//
// It is the subset of go.bug.st/serial.Port the driver relies on, so any
// opened serial.Port satisfies it. Drain is the "transmission complete"
// query: it returns once every written byte left the UART, and an error
// when the line could not finish.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Drain() error
}

// Dialer opens a Port to the modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double) and is used during modem construction
// only. Once a Port is obtained, the Dialer is no longer needed.
type Dialer interface {
	// Dial creates and returns a connected Port. It should respect
	// cancellation of the provided context.
	Dial(ctx context.Context) (Port, error)
}

const (
	// DefaultBaudRate is the SIM868 factory UART speed.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds a single Read on an idle line.
	DefaultReadTimeout = 100 * time.Millisecond
	// maxFrameSize caps one response read.
	maxFrameSize = 16 * 1024
)

// SerialDialer opens the modem UART using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyS0" or "/dev/ttyUSB0".
	PortName string
	// BaudRate is used when Mode is nil. Zero means DefaultBaudRate.
	BaudRate int
	// Mode overrides the 8N1 default line settings.
	Mode *serial.Mode
	// ReadTimeout is the idle time after which a Read returns. Zero means
	// DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Dial implements Dialer.
func (d SerialDialer) Dial(ctx context.Context) (Port, error) {
	if d.PortName == "" {
		return nil, errors.New("sim868: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("sim868: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "sim868: open serial port %s", d.PortName)
	}

	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, errors.Wrapf(err, "sim868: set read timeout on %s", d.PortName)
	}

	return port, nil
}

// uart moves bytes between the driver and the Port and normalizes
// response frames.
type uart struct {
	port        Port
	logger      *zap.Logger
	lastCommand string
}

func newUART(port Port, logger *zap.Logger) *uart {
	return &uart{port: port, logger: logger}
}

// write flushes pending transmit and receive state, then writes the
// command frame.
func (u *uart) write(frame []byte) error {
	u.lastCommand = string(frame)

	if err := u.port.ResetOutputBuffer(); err != nil {
		return errors.Wrap(err, "flush output buffer")
	}
	if err := u.port.ResetInputBuffer(); err != nil {
		return errors.Wrap(err, "flush input buffer")
	}
	if _, err := u.port.Write(frame); err != nil {
		return errors.Wrapf(err, "write command %q", frame)
	}
	return nil
}

// read returns the normalized single-line response. An empty string means
// the device sent nothing.
func (u *uart) read() (string, error) {
	raw, err := u.readRaw()
	if err != nil {
		return "", err
	}
	return normalizeFrame(raw), nil
}

// readLines is the multi-line read mode used for unsolicited notifications
// and message listings. It does not apply the single-line framing
// heuristic.
func (u *uart) readLines() ([]string, error) {
	raw, err := u.readRaw()
	if err != nil {
		return nil, err
	}
	return at.Lines(raw), nil
}

func (u *uart) readRaw() ([]byte, error) {
	if err := u.port.Drain(); err != nil {
		u.logger.Error("uart transmission not complete",
			zap.String("command", u.lastCommand), zap.Error(err))
		return nil, errors.Wrapf(ErrTransportNotReady, "after %q: %v", u.lastCommand, err)
	}

	var buf bytes.Buffer
	chunk := make([]byte, 256)
	for buf.Len() < maxFrameSize {
		n, err := u.port.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "read response")
		}
		if n == 0 {
			// Read timeout on an idle line: the frame is complete.
			break
		}
	}
	return buf.Bytes(), nil
}

// normalizeFrame decodes a raw response. A frame with exactly two newlines
// is echo, payload and terminator, and only the payload is kept. All CR and
// LF characters are then removed.
func normalizeFrame(raw []byte) string {
	text := string(raw)
	if strings.Count(text, "\n") == 2 {
		text = strings.Split(text, "\n")[1]
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(text)
}
