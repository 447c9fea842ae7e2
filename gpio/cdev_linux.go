//go:build linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "sim868-pwrkey"

// CdevPin drives a GPIO line through the Linux GPIO character device.
type CdevPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenCdev requests offset on chip (e.g. "gpiochip0") as an output
// driven low.
func OpenCdev(chip string, offset int) (*CdevPin, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chip)
	}
	l, err := c.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "request gpio line %s:%d", chip, offset)
	}
	return &CdevPin{chip: c, line: l}, nil
}

func (p *CdevPin) High() error {
	return p.line.SetValue(1)
}

func (p *CdevPin) Low() error {
	return p.line.SetValue(0)
}

// Close drives the line low and releases it.
func (p *CdevPin) Close() error {
	_ = p.line.SetValue(0)
	err := p.line.Close()
	if cerr := p.chip.Close(); err == nil {
		err = cerr
	}
	return err
}
