package homeworks

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type recordedPublish struct {
	topic   string
	payload []byte
	qos     byte
}

// fakeBroker records publishes and signals arrival on a channel.
type fakeBroker struct {
	mu        sync.Mutex
	published []recordedPublish
	arrived   chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{arrived: make(chan struct{}, 16)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	b.published = append(b.published, recordedPublish{topic: topic, payload: payload, qos: qos})
	b.mu.Unlock()
	b.arrived <- struct{}{}
	return nil
}

func (b *fakeBroker) await(t *testing.T) recordedPublish {
	t.Helper()
	select {
	case <-b.arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for publish")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[len(b.published)-1]
}

func TestEventPublisher_ClassifiedEvent(t *testing.T) {
	registry := NewRegistry(0)
	defer registry.Close()

	broker := newFakeBroker()
	pub := NewEventPublisher(broker, registry, 1, nil)
	pub.Start()
	defer pub.Stop()

	registry.Publish(Event{
		Command:   "OUTPUT",
		Fields:    []string{"5", "1", "75.00"},
		Raw:       "~OUTPUT,5,1,75.00",
		Timestamp: time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	})

	got := broker.await(t)
	if got.topic != "homeworks/event/output/5" {
		t.Errorf("topic = %q, want homeworks/event/output/5", got.topic)
	}
	if got.qos != 1 {
		t.Errorf("qos = %d, want 1", got.qos)
	}

	var msg eventMessage
	if err := json.Unmarshal(got.payload, &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.Family != "OUTPUT" || msg.IID != "5" || msg.Raw != "~OUTPUT,5,1,75.00" {
		t.Errorf("payload = %+v", msg)
	}
	if len(msg.Fields) != 3 || msg.Fields[2] != "75.00" {
		t.Errorf("fields = %v", msg.Fields)
	}
}

func TestEventPublisher_RawLine(t *testing.T) {
	registry := NewRegistry(0)
	defer registry.Close()

	broker := newFakeBroker()
	pub := NewEventPublisher(broker, registry, 0, nil)
	pub.Start()
	defer pub.Stop()

	registry.Publish(Event{
		Raw:       "some unexpected line",
		Timestamp: time.Now(),
	})

	got := broker.await(t)
	if got.topic != "homeworks/event/raw" {
		t.Errorf("topic = %q, want homeworks/event/raw", got.topic)
	}

	var msg eventMessage
	if err := json.Unmarshal(got.payload, &msg); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if msg.Family != "" || msg.Raw != "some unexpected line" {
		t.Errorf("payload = %+v", msg)
	}
}

func TestEventPublisher_StopIsIdempotent(t *testing.T) {
	registry := NewRegistry(0)
	defer registry.Close()

	pub := NewEventPublisher(newFakeBroker(), registry, 1, nil)
	pub.Start()

	pub.Stop()
	pub.Stop()

	if registry.Count() != 0 {
		t.Errorf("Count() = %d after Stop(), want 0", registry.Count())
	}
}
