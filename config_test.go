package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		config, err := LoadConfig(WithDefaults())
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8080", config.BindAddress)
		assert.Equal(t, 115200, config.BaudRate)
		assert.Equal(t, time.Second, config.TimeUnit)
		assert.Equal(t, "periph", config.PowerBackend)
	})

	t.Run("File overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sim868.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"serial_port: /dev/ttyAMA0\n"+
				"apn: internet\n"+
				"track_period: 1m\n"+
				"min_distance: 50.5\n"+
				"power_backend: cdev\n"+
				"gpio_line: 4\n"), 0o600))

		config, err := LoadConfig(WithDefaults(), WithFile(path))
		require.NoError(t, err)
		assert.Equal(t, "/dev/ttyAMA0", config.SerialPort)
		assert.Equal(t, "internet", config.APN)
		assert.Equal(t, time.Minute, config.TrackPeriod)
		assert.Equal(t, 50.5, config.MinDistance)
		assert.Equal(t, "cdev", config.PowerBackend)
		assert.Equal(t, 4, config.GPIOLine)
		assert.Equal(t, 115200, config.BaudRate)
	})

	t.Run("Missing file", func(t *testing.T) {
		_, err := LoadConfig(WithFile(filepath.Join(t.TempDir(), "absent.yaml")))
		assert.Error(t, err)
	})

	t.Run("Empty path is ignored", func(t *testing.T) {
		_, err := LoadConfig(WithFile(""))
		assert.NoError(t, err)
	})

	t.Run("Environment", func(t *testing.T) {
		t.Setenv("SERIAL_PORT", "/dev/ttyUSB2")
		t.Setenv("GPS_RETRY", "2s")
		t.Setenv("MQTT_BROKER", "tcp://broker:1883")

		config, err := LoadConfig(WithDefaults(), WithEnv())
		require.NoError(t, err)
		assert.Equal(t, "/dev/ttyUSB2", config.SerialPort)
		assert.Equal(t, 2*time.Second, config.GPSRetry)
		assert.Equal(t, "tcp://broker:1883", config.MQTTBroker)
	})

	t.Run("Invalid environment value", func(t *testing.T) {
		t.Setenv("BAUD_RATE", "fast")
		_, err := LoadConfig(WithDefaults(), WithEnv())
		assert.ErrorContains(t, err, "BAUD_RATE")
	})

	t.Run("Flags win", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "warn")

		fSet := flag.NewFlagSet("test", flag.ContinueOnError)
		fSet.String("log-level", "info", "")
		fSet.Int("baud-rate", 115200, "")
		fSet.String("apn", "", "")
		require.NoError(t, fSet.Parse([]string{"-log-level=debug", "-baud-rate=9600"}))

		config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(fSet))
		require.NoError(t, err)
		assert.Equal(t, "debug", config.LogLevel)
		assert.Equal(t, 9600, config.BaudRate)
		// unset flags do not override
		assert.Equal(t, "", config.APN)
	})
}

func TestOpenPowerPin(t *testing.T) {
	_, _, err := openPowerPin(&Config{PowerBackend: "relay"})
	assert.ErrorContains(t, err, "unknown power backend")
}

func TestNewPublisher(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		pub, closeFn, err := newPublisher(&Config{}, nil)
		require.NoError(t, err)
		assert.Nil(t, pub)
		closeFn()
	})

	t.Run("GPRS upload needs a bearer", func(t *testing.T) {
		_, _, err := newPublisher(&Config{TrackURL: "https://example.com"}, nil)
		assert.Error(t, err)
	})

	t.Run("GPRS upload", func(t *testing.T) {
		pub, _, err := newPublisher(&Config{TrackURL: "https://example.com", APN: "internet"}, nil)
		require.NoError(t, err)
		assert.NotNil(t, pub)
	})
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug")
	assert.NoError(t, err)

	_, err = newLogger("chatty")
	assert.Error(t, err)
}
