package modem

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	stateUnknown = "unknown"
	stateOff     = "off"
	stateOn      = "on"

	eventPowerOn  = "power_on"
	eventPowerOff = "power_off"
)

// PWRKEY timings in time units.
const (
	pulseHoldUnits   = 1
	powerSettleUnits = 3
)

// powerController owns the PWRKEY pulse and the remembered module power
// state. The state is a memory of pulses sent; it is read from the device
// only once, by the echo probe at construction.
type powerController struct {
	pin    Pin
	state  *fsm.FSM
	logger *zap.Logger
}

func newPowerController(pin Pin, logger *zap.Logger) *powerController {
	p := &powerController{pin: pin, logger: logger}
	all := []string{stateUnknown, stateOff, stateOn}
	p.state = fsm.NewFSM(
		stateUnknown,
		fsm.Events{
			{Name: eventPowerOn, Src: all, Dst: stateOn},
			{Name: eventPowerOff, Src: all, Dst: stateOff},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				p.logger.Info("module power state changed",
					zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
	return p
}

func (p *powerController) on() bool {
	return p.state.Is(stateOn)
}

func (p *powerController) set(on bool) error {
	event := eventPowerOff
	if on {
		event = eventPowerOn
	}
	err := p.state.Event(event)
	if _, same := err.(fsm.NoTransitionError); same {
		return nil
	}
	return err
}

// pulse drives the pin high for one time unit. The gesture is edge
// triggered: two pulses return the module to its prior state.
func (m *Modem) pulsePowerPin(ctx context.Context) error {
	if err := m.power.pin.High(); err != nil {
		return errors.Wrap(err, "drive power pin high")
	}
	waitErr := m.wait(ctx, pulseHoldUnits)
	if err := m.power.pin.Low(); err != nil {
		return errors.Wrap(err, "drive power pin low")
	}
	return waitErr
}

func (m *Modem) toggle(ctx context.Context, force *bool) error {
	target := !m.power.on()
	if force != nil {
		target = *force
	}
	m.logger.Info("toggling module power",
		zap.Bool("remembered", m.power.on()), zap.Bool("target", target))

	if err := m.pulsePowerPin(ctx); err != nil {
		return err
	}
	if err := m.power.set(target); err != nil {
		return errors.Wrap(err, "record module power state")
	}
	return m.wait(ctx, powerSettleUnits)
}

// TogglePower pulses PWRKEY once and flips the remembered power state.
func (m *Modem) TogglePower(ctx context.Context) error {
	if err := m.usable(); err != nil {
		return err
	}
	return m.toggle(ctx, nil)
}

// ForcePowerState pulses PWRKEY once and records on as the power state,
// whatever the state was before.
func (m *Modem) ForcePowerState(ctx context.Context, on bool) error {
	if err := m.usable(); err != nil {
		return err
	}
	return m.toggle(ctx, &on)
}

// EnsurePowerOn toggles the module only when it is remembered as off.
func (m *Modem) EnsurePowerOn(ctx context.Context) error {
	if m.PowerOn() {
		return nil
	}
	return m.TogglePower(ctx)
}

// PowerOn reports the remembered module power state.
func (m *Modem) PowerOn() bool {
	return m.power.on()
}

// ensureKnownPowerState reconciles the remembered state with the device.
// A module that answers the echo probe is switched off so that memory and
// hardware agree.
func (m *Modem) ensureKnownPowerState(ctx context.Context) error {
	answered, err := m.Echo(ctx)
	if err != nil {
		return errors.Wrap(err, "probe module power state")
	}
	if !answered {
		return m.power.set(false)
	}

	m.logger.Info("module answered echo probe, switching it off")
	if err := m.power.set(true); err != nil {
		return err
	}
	return m.toggle(ctx, boolPtr(false))
}

func boolPtr(v bool) *bool {
	return &v
}
