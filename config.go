package main

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration
type Config struct {
	// BindAddress is the address the API listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the SIM868 UART (e.g. "/dev/ttyS0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the UART baud rate (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
	// TimeUnit is the base of every fixed wait of the driver
	TimeUnit time.Duration `yaml:"time_unit"`

	// PowerBackend selects the power pin driver: "periph" or "cdev"
	PowerBackend string `yaml:"power_backend"`
	// PowerPin is the periph.io pin name (e.g. "GPIO14")
	PowerPin string `yaml:"power_pin"`
	// GPIOChip and GPIOLine address the pin for the cdev backend
	GPIOChip string `yaml:"gpio_chip"`
	GPIOLine int    `yaml:"gpio_line"`

	// APN enables the GPRS bearer and HTTP uploads when set
	APN            string `yaml:"apn"`
	BearerAddress  string `yaml:"bearer_address"`
	BearerUser     string `yaml:"bearer_user"`
	BearerPassword string `yaml:"bearer_password"`

	GPSAttempts int           `yaml:"gps_attempts"`
	GPSRetry    time.Duration `yaml:"gps_retry"`

	// DeviceID tags every uploaded record
	DeviceID string `yaml:"device_id"`
	// TrackPeriod enables the tracker loop when positive
	TrackPeriod time.Duration `yaml:"track_period"`
	// MinDistance in meters a fix must move before it is uploaded again
	MinDistance float64 `yaml:"min_distance"`
	// TrackURL receives batches over GPRS
	TrackURL string `yaml:"track_url"`

	// MQTTBroker, when set, publishes batches over MQTT instead of GPRS
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTUser     string `yaml:"mqtt_user"`
	MQTTPassword string `yaml:"mqtt_password"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyS0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.TimeUnit = time.Second
		c.PowerBackend = "periph"
		c.PowerPin = "GPIO14"
		c.GPIOChip = "gpiochip0"
		c.GPIOLine = 14
		c.GPSAttempts = 10
		c.GPSRetry = 5 * time.Second
		c.MinDistance = 25
		c.MQTTTopic = "sim868/track"
		c.MQTTClientID = "sim868"
		return nil
	}
}

// WithFile overlays the YAML file at path. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.Wrapf(err, "parse config file %s", path)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for name, set := range setters(c) {
			if v := os.Getenv(envName(name)); v != "" {
				if err := set(v); err != nil {
					return errors.Wrapf(err, "environment %s", envName(name))
				}
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags that were set
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		set := setters(c)
		var err error
		fSet.Visit(func(f *flag.Flag) {
			if fn, ok := set[f.Name]; ok && err == nil {
				if e := fn(f.Value.String()); e != nil {
					err = errors.Wrapf(e, "flag -%s", f.Name)
				}
			}
		})
		return err
	}
}

// setters maps flag names to field assignments.
func setters(c *Config) map[string]func(string) error {
	return map[string]func(string) error{
		"bind-address":    str(&c.BindAddress),
		"serial-port":     str(&c.SerialPort),
		"baud-rate":       integer(&c.BaudRate),
		"log-level":       str(&c.LogLevel),
		"time-unit":       duration(&c.TimeUnit),
		"power-backend":   str(&c.PowerBackend),
		"power-pin":       str(&c.PowerPin),
		"gpio-chip":       str(&c.GPIOChip),
		"gpio-line":       integer(&c.GPIOLine),
		"apn":             str(&c.APN),
		"bearer-address":  str(&c.BearerAddress),
		"bearer-user":     str(&c.BearerUser),
		"bearer-password": str(&c.BearerPassword),
		"gps-attempts":    integer(&c.GPSAttempts),
		"gps-retry":       duration(&c.GPSRetry),
		"device-id":       str(&c.DeviceID),
		"track-period":    duration(&c.TrackPeriod),
		"min-distance":    float(&c.MinDistance),
		"track-url":       str(&c.TrackURL),
		"mqtt-broker":     str(&c.MQTTBroker),
		"mqtt-topic":      str(&c.MQTTTopic),
		"mqtt-client-id":  str(&c.MQTTClientID),
		"mqtt-user":       str(&c.MQTTUser),
		"mqtt-password":   str(&c.MQTTPassword),
	}
}

// envName turns "baud-rate" into "BAUD_RATE".
func envName(flagName string) string {
	return strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func str(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func float(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func duration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
