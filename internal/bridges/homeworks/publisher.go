package homeworks

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/mqtt"
)

// EventBroker is the publishing surface the event republisher needs from
// the MQTT client.
type EventBroker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// eventMessage is the JSON payload published for each device event.
type eventMessage struct {
	Family    string   `json:"family,omitempty"`
	IID       string   `json:"iid,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Raw       string   `json:"raw"`
	Timestamp string   `json:"timestamp"`
}

// EventPublisher republishes unsolicited device events onto an MQTT
// broker. Classified events go to homeworks/event/{family}/{iid}; lines
// the engine could not classify go to homeworks/event/raw.
//
// The publisher is a plain subscriber on the event registry: it shares
// the bounded-buffer drop-oldest policy with every other listener, so a
// slow or disconnected broker never backs up into the correlator.
type EventPublisher struct {
	broker EventBroker
	qos    byte
	logger Logger

	reg  *Registry
	sub  *Subscription
	stop sync.Once
	wg   sync.WaitGroup
}

// NewEventPublisher creates a publisher for events from registry.
// A nil logger discards log output.
func NewEventPublisher(broker EventBroker, registry *Registry, qos byte, logger Logger) *EventPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventPublisher{
		broker: broker,
		qos:    qos,
		logger: logger,
		reg:    registry,
	}
}

// Start subscribes to the registry and begins republishing.
func (p *EventPublisher) Start() {
	p.sub = p.reg.Subscribe(nil)
	p.wg.Add(1)
	go p.run()
}

// Stop unsubscribes and waits for in-flight publishes to finish.
// Safe to call more than once.
func (p *EventPublisher) Stop() {
	p.stop.Do(func() {
		if p.sub != nil {
			p.reg.Unsubscribe(p.sub.ID())
		}
	})
	p.wg.Wait()
}

func (p *EventPublisher) run() {
	defer p.wg.Done()

	for e := range p.sub.C() {
		p.publish(e)
	}
}

func (p *EventPublisher) publish(e Event) {
	msg := eventMessage{
		Family:    e.Command,
		IID:       e.IID(),
		Fields:    e.Fields,
		Raw:       e.Raw,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("marshalling event for mqtt", "error", err)
		return
	}

	topic := mqtt.Topics{}.EventRaw()
	if e.Command != "" && e.IID() != "" {
		topic = mqtt.Topics{}.Event(e.Command, e.IID())
	}

	if err := p.broker.Publish(topic, payload, p.qos, false); err != nil {
		p.logger.Warn("publishing event to mqtt", "topic", topic, "error", err)
	}
}
