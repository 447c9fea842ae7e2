package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"i4.energy/across/sim868/gpio"
	"i4.energy/across/sim868/modem"
	"i4.energy/across/sim868/tracker"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "YAML configuration file")
	flag.String("serial-port", "/dev/ttyS0", "Serial port of the SIM868 module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Duration("time-unit", time.Second, "Base unit of the module's fixed waits")
	flag.String("power-backend", "periph", "Power pin driver (periph, cdev)")
	flag.String("power-pin", "GPIO14", "Power pin name for the periph backend")
	flag.String("gpio-chip", "gpiochip0", "GPIO chip for the cdev backend")
	flag.Int("gpio-line", 14, "GPIO line offset for the cdev backend")
	flag.String("apn", "", "GPRS access point name; enables HTTP uploads")
	flag.String("bearer-address", "", "Explicit access point address")
	flag.String("bearer-user", "", "GPRS bearer user")
	flag.String("bearer-password", "", "GPRS bearer password")
	flag.Int("gps-attempts", 10, "GNSS fix attempts per request")
	flag.Duration("gps-retry", 5*time.Second, "Pause between GNSS fix attempts")
	flag.String("device-id", "", "Device id attached to uploaded records")
	flag.Duration("track-period", 0, "Tracking period; zero disables the tracker")
	flag.Float64("min-distance", 25, "Meters moved before a fix is uploaded again")
	flag.String("track-url", "", "URL receiving tracking batches over GPRS")
	flag.String("mqtt-broker", "", "MQTT broker URL; publishes batches over MQTT")
	flag.String("mqtt-topic", "sim868/track", "MQTT topic for tracking batches")
	flag.String("mqtt-client-id", "sim868", "MQTT client id")
	flag.String("mqtt-user", "", "MQTT user")
	flag.String("mqtt-password", "", "MQTT password")
	flag.Parse()

	boot, _ := zap.NewProduction()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		boot.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		boot.Fatal("Failed to create logger", zap.Error(err))
	}
	defer logger.Sync()

	pin, closePin, err := openPowerPin(config)
	if err != nil {
		logger.Fatal("Failed to open power pin", zap.Error(err), zap.String("backend", config.PowerBackend))
	}
	defer closePin()

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		WithPowerPin(pin).
		WithLogger(logger.Named("modem")).
		WithTimeUnit(config.TimeUnit).
		Build()
	if err != nil {
		logger.Fatal("Failed to create modem config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Fatal("Failed to create modem", zap.Error(err))
	}

	if err := m.EnsurePowerOn(ctx); err != nil {
		logger.Fatal("Failed to power on module", zap.Error(err))
	}

	if config.APN != "" {
		err := m.InitializeHTTPSession(ctx, modem.BearerConfig{
			APN:      config.APN,
			Address:  config.BearerAddress,
			User:     config.BearerUser,
			Password: config.BearerPassword,
		})
		if err != nil {
			logger.Fatal("Failed to initialize HTTP session", zap.Error(err))
		}
	}

	var lock sync.Mutex
	var wg sync.WaitGroup

	publisher, closePublisher, err := newPublisher(config, m)
	if err != nil {
		logger.Fatal("Failed to create publisher", zap.Error(err))
	}
	defer closePublisher()

	t := tracker.New(m, publisher, tracker.Config{
		DeviceID:      config.DeviceID,
		Attempts:      config.GPSAttempts,
		RetryInterval: config.GPSRetry,
		MinDistance:   config.MinDistance,
	},
		tracker.WithLocker(&lock),
		tracker.WithMessenger(m),
		tracker.WithLogger(logger.Named("tracker")),
	)

	if config.TrackPeriod > 0 && publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Starting tracker", zap.Duration("period", config.TrackPeriod))
			if err := t.Run(ctx, config.TrackPeriod); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Tracker stopped", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:      logger.Named("server"),
			Modem:       m,
			Tracker:     t,
			Lock:        &lock,
			GPSAttempts: config.GPSAttempts,
			GPSRetry:    config.GPSRetry,
			DeviceID:    config.DeviceID,
		},
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Closing modem connection")
	lock.Lock()
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", zap.Error(err))
	}
	lock.Unlock()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

func openPowerPin(config *Config) (modem.Pin, func(), error) {
	switch config.PowerBackend {
	case "periph":
		pin, err := gpio.OpenPeriph(config.PowerPin)
		if err != nil {
			return nil, nil, err
		}
		return pin, func() {}, nil
	case "cdev":
		pin, err := gpio.OpenCdev(config.GPIOChip, config.GPIOLine)
		if err != nil {
			return nil, nil, err
		}
		return pin, func() { pin.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown power backend %q", config.PowerBackend)
	}
}

// newPublisher picks MQTT when a broker is configured and GPRS uploads
// when a track URL is. Neither leaves the tracker without a publisher.
func newPublisher(config *Config, m *modem.Modem) (tracker.Publisher, func(), error) {
	switch {
	case config.MQTTBroker != "":
		pub, err := tracker.DialMQTT(tracker.MQTTConfig{
			Broker:   config.MQTTBroker,
			ClientID: config.MQTTClientID,
			Topic:    config.MQTTTopic,
			Username: config.MQTTUser,
			Password: config.MQTTPassword,
			QoS:      1,
		})
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	case config.TrackURL != "":
		if config.APN == "" {
			return nil, nil, errors.New("track-url needs an apn for the GPRS bearer")
		}
		return &tracker.HTTPPublisher{Poster: m, URL: config.TrackURL}, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}
