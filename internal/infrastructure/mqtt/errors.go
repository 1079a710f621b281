package mqtt

import "errors"

// Sentinel errors for the publish path. Callers check them with
// errors.Is; wrapped variants carry the operation detail.
var (
	// ErrNotConnected: the broker session is down. The publisher logs
	// and drops; paho's auto-reconnect brings the session back.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed: the initial Connect never reached the broker.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed: the broker did not acknowledge a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS: QoS outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic: empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
