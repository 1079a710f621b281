package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/homeworks-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial broker connection.
	connectTimeout = 10 * time.Second

	// publishTimeout bounds the wait for a publish acknowledgement.
	publishTimeout = 5 * time.Second

	// disconnectQuiesceMs is the grace period paho gets to flush
	// pending publishes on Close.
	disconnectQuiesceMs = 1000

	// keepAlive is the MQTT keepalive interval.
	keepAlive = 60 * time.Second

	// maxQoS is the highest QoS level the protocol defines.
	maxQoS = 2

	// tlsMinVersion is the floor for broker TLS sessions.
	tlsMinVersion = tls.VersionTLS12
)

// Status values published on the system status topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonDisconnect = "unexpected_disconnect"
)

// statusPayload is the body on homeworks/system/status: the retained
// online/offline announcements and the broker-delivered Last Will all
// share this shape.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func statusJSON(status, clientID, reason string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}

// newClientOptions translates the YAML mqtt section into paho options:
// broker URL, credentials, auto-reconnect backoff, TLS, and the Last
// Will on the status topic so consumers can tell a crash from a
// graceful shutdown.
func newClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Clean session: the publisher holds no broker-side state worth
	// resuming, and a stale session would replay nothing useful.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	// Last Will: retained offline status the broker publishes if this
	// client vanishes without a clean disconnect.
	opts.SetBinaryWill(Topics{}.SystemStatus(),
		statusJSON(statusOffline, cfg.Broker.ClientID, reasonDisconnect), 1, true)

	return opts
}
