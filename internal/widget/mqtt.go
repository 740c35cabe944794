package widget

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	publishTimeout = 5 * time.Second
	retryDelay     = 5 * time.Second
)

// MQTTPublisher publishes payloads as retained messages, so a widget that
// connects later still receives the current state.
//
// Publish never waits on the broker. A background worker sends the newest
// payload; payloads superseded while the broker is slow are dropped.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string

	timeout    time.Duration
	retryDelay time.Duration

	latest  chan []byte
	done    chan struct{}
	stopped chan struct{}
}

// NewMQTTPublisher connects to broker (e.g. "tcp://localhost:1883").
func NewMQTTPublisher(broker, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("prayer-notify-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, token.Error())
	}
	return newMQTTPublisher(client, topic, publishTimeout, retryDelay), nil
}

func newMQTTPublisher(client mqtt.Client, topic string, timeout, retry time.Duration) *MQTTPublisher {
	m := &MQTTPublisher{
		client:     client,
		topic:      topic,
		timeout:    timeout,
		retryDelay: retry,
		latest:     make(chan []byte, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Publish queues payload, replacing any payload not yet sent.
func (m *MQTTPublisher) Publish(_ context.Context, payload []byte) error {
	m.offer(payload, true)
	return nil
}

// offer puts payload in the single slot. With replace false it leaves a
// newer queued payload alone.
func (m *MQTTPublisher) offer(payload []byte, replace bool) {
	for {
		select {
		case m.latest <- payload:
			return
		default:
		}
		if !replace {
			return
		}
		select {
		case <-m.latest:
		default:
		}
	}
}

func (m *MQTTPublisher) run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case payload := <-m.latest:
			err := m.send(payload)
			if err == nil {
				continue
			}
			log.Warn().Err(err).Str("topic", m.topic).Msg("MQTT publish failed, will retry")
			m.offer(payload, false)
			select {
			case <-m.done:
				return
			case <-time.After(m.retryDelay):
			}
		}
	}
}

// send publishes with QoS 1 and the retain flag set.
func (m *MQTTPublisher) send(payload []byte) error {
	token := m.client.Publish(m.topic, 1, true, payload)
	if !token.WaitTimeout(m.timeout) {
		return errors.New("timed out publishing to MQTT")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", m.topic, err)
	}
	return nil
}

// Close stops the worker and disconnects from the broker.
func (m *MQTTPublisher) Close() {
	close(m.done)
	<-m.stopped
	m.client.Disconnect(250)
}
