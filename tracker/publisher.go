package tracker

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// Publisher delivers a batch of records somewhere off the device.
type Publisher interface {
	Publish(ctx context.Context, batch Batch) error
}

// Poster is the part of the modem used to upload over GPRS.
type Poster interface {
	HTTPPost(ctx context.Context, url, body string) (string, error)
}

// HTTPPublisher posts batches as JSON through the modem's HTTP session.
type HTTPPublisher struct {
	Poster Poster
	URL    string
}

func (p *HTTPPublisher) Publish(ctx context.Context, batch Batch) error {
	body, err := batch.JSON()
	if err != nil {
		return errors.Wrap(err, "encode batch")
	}
	if _, err := p.Poster.HTTPPost(ctx, p.URL, string(body)); err != nil {
		return errors.Wrapf(err, "post batch to %s", p.URL)
	}
	return nil
}

// MQTTConfig describes the broker connection of an MQTTPublisher.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
	Retained bool
}

// MQTTPublisher publishes batches as JSON to one topic.
type MQTTPublisher struct {
	client   mqtt.Client
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
}

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect mqtt broker %s", cfg.Broker)
	}
	return NewMQTTPublisher(client, cfg), nil
}

// NewMQTTPublisher publishes through an existing client.
func NewMQTTPublisher(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		retained: cfg.Retained,
		timeout:  10 * time.Second,
	}
}

func (p *MQTTPublisher) Publish(ctx context.Context, batch Batch) error {
	payload, err := batch.JSON()
	if err != nil {
		return errors.Wrap(err, "encode batch")
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return errors.Errorf("publish to %s timed out", p.topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", p.topic)
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
