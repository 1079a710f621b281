package mqtt

import (
	"fmt"
)

// maxPayloadSize caps a single message at 1MB, in line with common
// broker limits. Event payloads are a few hundred bytes; anything near
// this cap is a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends one message and waits for the broker to acknowledge it
// at the requested QoS. Retained messages replace the broker's stored
// copy for the topic; use them for state, never for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
