// Package broker connects to the MQTT broker shared by the event sink, the
// location source and the simulator, and names the topics they use.
package broker

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Connect dials the MQTT broker and waits up to timeout for the session.
func Connect(brokerURL, clientID string, timeout time.Duration) (mqtt.Client, error) {
	if brokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is empty")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			log.WithField("broker", brokerURL).Info("MQTT connected")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out after %s", brokerURL, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}
	return client, nil
}

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) base() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return "transit"
	}
	return p
}

// Fix is the topic a vehicle's device publishes raw fixes on.
func (t Topics) Fix(vehicleID string) string {
	return t.base() + "/vehicles/" + vehicleID + "/fix"
}

// CheckpointEvents is the topic checkpoint-reached events are published on.
func (t Topics) CheckpointEvents() string {
	return t.base() + "/events/checkpoint"
}

// BreakdownEvents is the topic breakdown-changed events are published on.
func (t Topics) BreakdownEvents() string {
	return t.base() + "/events/breakdown"
}
