// Package gpio provides the PWRKEY line backends for the modem driver.
package gpio

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphPin drives a GPIO line through periph.io.
type PeriphPin struct {
	pin gpio.PinOut
}

// OpenPeriph initializes the periph host drivers and claims the named
// line (e.g. "GPIO14") as an output driven low.
func OpenPeriph(name string) (*PeriphPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio pin %q not found", name)
	}
	return NewPeriphPin(p)
}

// NewPeriphPin wraps an already resolved output and drives it low.
func NewPeriphPin(p gpio.PinOut) (*PeriphPin, error) {
	if err := p.Out(gpio.Low); err != nil {
		return nil, errors.Wrapf(err, "gpio pin %s as output", p)
	}
	return &PeriphPin{pin: p}, nil
}

func (p *PeriphPin) High() error {
	return p.pin.Out(gpio.High)
}

func (p *PeriphPin) Low() error {
	return p.pin.Out(gpio.Low)
}
