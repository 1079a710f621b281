// Package mqtt is the broker-facing side of the event mirror.
//
// This package manages:
//   - One outbound connection to the broker with auto-reconnect
//   - Event and status publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is an optional, strictly outbound surface: unsolicited processor
// events are republished on homeworks/event/{family}/{iid} so
// home-automation consumers (dashboards, rule engines) can follow
// lighting state without speaking the processor's telnet protocol.
// Nothing is subscribed; commands do not flow in over MQTT, the tool
// server is the command surface.
//
// Service liveness is announced on homeworks/system/status: a retained
// online message on every (re)connect, a graceful offline message on
// Close, and a broker-delivered offline Last Will on crash.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.Event("OUTPUT", "5")
//	err = client.Publish(topic, payload, 1, false)
package mqtt
