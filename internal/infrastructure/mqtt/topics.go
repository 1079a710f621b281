package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. All topics use the flat scheme
// homeworks/{category}/... so brokers shared with other integrations can
// scope ACLs to a single root.
const (
	// TopicPrefix is the base for all topics.
	TopicPrefix = "homeworks"

	// TopicPrefixEvent is the base for republished device events.
	TopicPrefixEvent = "homeworks/event"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "homeworks/system"
)

// Topics provides builders for the MQTT topic hierarchy. Using these
// helpers keeps topic naming consistent across publisher and consumers.
//
//	topics := mqtt.Topics{}
//	topic := topics.Event("OUTPUT", "5")
//	// Returns: "homeworks/event/output/5"
type Topics struct{}

// Event returns the topic for an unsolicited device event. The family is
// lowercased so subscribers don't need to care about processor casing.
//
// Example: homeworks/event/output/5
func (Topics) Event(family, iid string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvent, strings.ToLower(family), iid)
}

// EventRaw returns the topic for lines the engine could not classify.
// Raw lines carry no family or integration ID, so they share one topic.
//
// Example: homeworks/event/raw
func (Topics) EventRaw() string {
	return TopicPrefixEvent + "/raw"
}

// SystemStatus returns the online/offline status topic. Retained, and
// also used as the Last Will topic for crash detection.
//
// Example: homeworks/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Consumers subscribe with standard MQTT wildcards against this
// hierarchy, e.g. homeworks/event/+/+ for every device event or
// homeworks/event/output/+ for one family.
