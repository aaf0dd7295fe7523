package events

import (
	"context"
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/campus-transit/internal/broker"
	"github.com/ukydev/campus-transit/internal/models"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes events as JSON. Publish failures are logged, never returned.
type MQTTSink struct {
	client Publisher
	topics broker.Topics
	qos    byte
}

// NewMQTTSink creates a sink publishing at QoS 1 under the given topics.
func NewMQTTSink(client Publisher, topics broker.Topics) *MQTTSink {
	return &MQTTSink{client: client, topics: topics, qos: 1}
}

func (s *MQTTSink) CheckpointReached(_ context.Context, e models.CheckpointReachedEvent) {
	s.publish(s.topics.CheckpointEvents(), e, log.Fields{"vehicle_id": e.VehicleID, "checkpoint_id": e.CheckpointID})
}

func (s *MQTTSink) BreakdownChanged(_ context.Context, e models.BreakdownChangedEvent) {
	s.publish(s.topics.BreakdownEvents(), e, log.Fields{"vehicle_id": e.VehicleID, "broken": e.Broken})
}

func (s *MQTTSink) publish(topic string, v interface{}, fields log.Fields) {
	data, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Failed to marshal event")
		return
	}
	token := s.client.Publish(topic, s.qos, false, data)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.WithError(err).WithFields(fields).WithField("topic", topic).Error("Failed to publish event")
		}
	}()
}
