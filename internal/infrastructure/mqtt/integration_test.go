//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
)

// Integration tests for broker-backed behaviour.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// The client under test only publishes, so the consumer side of each
// test is a plain paho client.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "homeworks-integration-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// rawConsumer connects a bare paho client subscribed to topic.
func rawConsumer(t *testing.T, clientID, topic string) (pahomqtt.Client, <-chan []byte) {
	t.Helper()

	received := make(chan []byte, 4)
	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID(clientID)

	consumer := pahomqtt.NewClient(opts)
	if token := consumer.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("consumer connect: %v", token.Error())
	}
	t.Cleanup(func() { consumer.Disconnect(100) })

	token := consumer.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- msg.Payload()
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("consumer subscribe: %v", token.Error())
	}
	return consumer, received
}

func TestIntegration_ConnectAndHealth(t *testing.T) {
	cfg := integrationConfig()

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

// TestIntegration_PublishDelivery verifies a published event reaches a
// wildcard subscriber.
func TestIntegration_PublishDelivery(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "homeworks-int-pub"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck

	_, received := rawConsumer(t, "homeworks-int-consumer", "homeworks/event/+/+")
	time.Sleep(100 * time.Millisecond)

	topic := Topics{}.Event("OUTPUT", "5")
	expected := `{"family":"OUTPUT","iid":"5","fields":["5","1","75.00"]}`

	if err := client.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != expected {
			t.Errorf("Received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

// TestIntegration_StatusRetained verifies the retained online status is
// visible to late subscribers.
func TestIntegration_StatusRetained(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "homeworks-int-status"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck

	// The OnConnect handler publishes the status asynchronously.
	time.Sleep(200 * time.Millisecond)

	// Subscribing after the fact still sees the retained message.
	_, received := rawConsumer(t, "homeworks-int-status-sub", Topics{}.SystemStatus())

	select {
	case msg := <-received:
		var status statusPayload
		if err := json.Unmarshal(msg, &status); err != nil {
			t.Fatalf("status payload is not valid JSON: %v", err)
		}
		if status.Status != "online" || status.ClientID != "homeworks-int-status" {
			t.Errorf("status = %+v, want online from homeworks-int-status", status)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for retained status")
	}
}
