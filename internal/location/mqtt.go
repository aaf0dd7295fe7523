package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/broker"
	"github.com/ukydev/campus-transit/internal/models"
)

// Subscriber is the part of mqtt.Client the source needs.
type Subscriber interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// MQTTSource reads fixes that driver devices publish on their fix topic.
type MQTTSource struct {
	client  Subscriber
	topics  broker.Topics
	timeout time.Duration
}

// NewMQTTSource creates a source subscribing at QoS 0 (a lost fix is superseded by the next).
func NewMQTTSource(client Subscriber, topics broker.Topics, timeout time.Duration) *MQTTSource {
	return &MQTTSource{client: client, topics: topics, timeout: timeout}
}

type mqttStream struct {
	client Subscriber
	topic  string
	fixes  chan models.Fix
	done   chan struct{}
	once   sync.Once
}

func (s *mqttStream) Fixes() <-chan models.Fix { return s.fixes }
func (s *mqttStream) Done() <-chan struct{}    { return s.done }

func (s *mqttStream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.client.Unsubscribe(s.topic)
	})
}

// Acquire subscribes to the vehicle's fix topic.
func (m *MQTTSource) Acquire(_ context.Context, vehicleID string) (Stream, error) {
	if m.client == nil || !m.client.IsConnected() {
		return nil, ErrSourceUnavailable
	}
	s := &mqttStream{
		client: m.client,
		topic:  m.topics.Fix(vehicleID),
		fixes:  make(chan models.Fix),
		done:   make(chan struct{}),
	}
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var fm FixMessage
		if err := json.Unmarshal(msg.Payload(), &fm); err != nil {
			log.WithError(err).WithField("topic", msg.Topic()).Debug("Dropping undecodable fix")
			return
		}
		select {
		case s.fixes <- fm.Fix(vehicleID):
		case <-s.done:
		}
	}
	// A failed subscribe may still complete at the broker later, so the
	// stream is closed to unsubscribe and release the handler.
	token := m.client.Subscribe(s.topic, 0, handler)
	if !token.WaitTimeout(m.timeout) {
		s.Close()
		return nil, fmt.Errorf("%w: subscribe to %s timed out", ErrSourceUnavailable, s.topic)
	}
	if err := token.Error(); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return s, nil
}
