package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2file/internal/session"
)

// Connection constants.
const (
	// ackInterval is how often manual acknowledgements are flushed.
	ackInterval = 20 * time.Millisecond

	// defaultOperationTimeout bounds subscribe and disconnect round trips.
	defaultOperationTimeout = 10 * time.Second

	// defaultQueueSize is used when New is given a non-positive queue size.
	defaultQueueSize = 100

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// protocolVersion is the only MQTT version this package speaks.
	protocolVersion = 5

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// defaultPorts maps URI schemes to the port used when the URI has none.
var defaultPorts = map[string]string{
	"tcp":   "1883",
	"mqtt":  "1883",
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
	"ws":    "80",
	"wss":   "443",
}

// parseBrokerURI validates a broker URI and fills in the default port.
func parseBrokerURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing broker uri: %w", err)
	}
	port, ok := defaultPorts[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("parsing broker uri: %q has no host", raw)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u, nil
}

// dial opens the network connection for a broker URI.
func dial(ctx context.Context, u *url.URL, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch u.Scheme {
	case "tcp", "mqtt":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", u.Host)
	case "ssl", "tls", "mqtts":
		d := tls.Dialer{Config: tlsConfig(u)}
		return d.DialContext(ctx, "tcp", u.Host)
	case "ws", "wss":
		return dialWebsocket(ctx, u, timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func tlsConfig(u *url.URL) *tls.Config {
	return &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: u.Hostname(),
	}
}

// buildConnect creates the CONNECT packet for a client identity and session
// policy.
//
// A clean policy sets Clean Start and no expiry, so the broker discards any
// state held for the identity. A persistent policy clears Clean Start and
// requests the policy's Session Expiry Interval.
func buildConnect(cfg config.MQTTConfig, clientID string, policy session.Policy) *paho.Connect {
	cp := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  uint16(cfg.KeepAlive), // #nosec G115 -- validated to 0..65535 by config
		CleanStart: policy.CleanStart(),
	}

	if policy.Persistent {
		expiry := policy.ExpirySeconds
		cp.Properties = &paho.ConnectProperties{
			SessionExpiryInterval: &expiry,
		}
	}

	if cfg.Username != "" {
		cp.Username = cfg.Username
		cp.UsernameFlag = true
	}
	if cfg.Password != "" {
		cp.Password = []byte(cfg.Password)
		cp.PasswordFlag = true
	}

	return cp
}
