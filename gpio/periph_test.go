package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"i4.energy/across/sim868/modem"
)

var _ modem.Pin = (*PeriphPin)(nil)
var _ modem.Pin = (*CdevPin)(nil)

func TestPeriphPin(t *testing.T) {
	line := &gpiotest.Pin{N: "GPIO14", Num: 14, L: gpio.High}

	pin, err := NewPeriphPin(line)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, line.L, "new pin must start low")

	require.NoError(t, pin.High())
	assert.Equal(t, gpio.High, line.L)

	require.NoError(t, pin.Low())
	assert.Equal(t, gpio.Low, line.L)
}

func TestOpenPeriph_UnknownPin(t *testing.T) {
	_, err := OpenPeriph("NO_SUCH_PIN_42")
	assert.Error(t, err)
}
