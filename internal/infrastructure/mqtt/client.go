package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/eclipse/paho.golang/paho/session/state"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/config"
	"github.com/nerrad567/mqtt2file/internal/session"
)

// Client is the live connection to the broker.
//
// It wraps a paho.golang v5 client. Reconnect replaces the network
// connection and the protocol client in place while keeping the same
// in-memory session state, so a caller holds one *Client for the whole
// process lifetime.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - StopConsuming, StartConsuming and Disconnect are idempotent.
type Client struct {
	cfg    config.MQTTConfig
	broker *url.URL

	// session is shared by every paho client this Client creates so that
	// in-flight QoS state survives a reconnect.
	session *state.State

	// Connection state, guarded by mu.
	mu        sync.Mutex
	pc        *paho.Client
	conn      net.Conn
	connect   *paho.Connect
	gen       uint64
	connected bool
	closed    bool

	// release is closed when the current connection is replaced or shut
	// down, freeing a PUBLISH held back while delivery is stopped.
	release chan struct{}

	// Delivery state, guarded by consumeMu. paused is closed while delivery
	// is stopped and resumed is closed while it runs.
	consumeMu sync.Mutex
	consuming bool
	paused    chan struct{}
	resumed   chan struct{}
	messages  chan *Message
	lost      chan error

	// subscriptions maps subscription identifiers to topic filters.
	subscriptions map[int]string
	nextSubID     int
	subIDs        bool
	subMu         sync.RWMutex

	// logger for connection and delivery events (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ConnAck is the broker's answer to a successful connection.
type ConnAck struct {
	ServerURI       string
	ProtocolVersion int

	// SessionPresent is true when the broker resumed a stored session,
	// including its subscriptions.
	SessionPresent bool

	// SessionExpiry is the expiry the broker granted, if it overrode ours.
	SessionExpiry *uint32
}

// New creates a Client for the configured broker. It does not connect.
//
// Delivery starts enabled, so messages that arrive immediately after the
// connection is acknowledged (a resumed session's backlog) are queued.
//
// Parameters:
//   - cfg: MQTT configuration
//   - queueSize: capacity of the Messages() channel
//
// Returns:
//   - *Client: Client ready for Connect
//   - error: If the broker URI is invalid
func New(cfg config.MQTTConfig, queueSize int) (*Client, error) {
	broker, err := parseBrokerURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	resumed := make(chan struct{})
	close(resumed)

	return &Client{
		cfg:           cfg,
		broker:        broker,
		session:       state.NewInMemory(),
		consuming:     true,
		paused:        make(chan struct{}),
		resumed:       resumed,
		messages:      make(chan *Message, queueSize),
		lost:          make(chan error, 1),
		subscriptions: make(map[int]string),
	}, nil
}

// Connect establishes the initial connection using the given identity and
// session policy.
//
// Returns:
//   - *ConnAck: Negotiated protocol version and session-present flag
//   - error: ErrConnectionFailed wrapping the cause
func (c *Client) Connect(ctx context.Context, clientID string, policy session.Policy) (*ConnAck, error) {
	cp := buildConnect(c.cfg, clientID, policy)

	c.mu.Lock()
	c.connect = cp
	c.closed = false
	c.mu.Unlock()

	return c.establish(ctx, cp)
}

// Reconnect re-establishes a lost connection with the same CONNECT packet
// as the last Connect. Subscriptions are not restored here; a resumed
// persistent session keeps them on the broker and the caller decides
// whether to subscribe again from ConnAck.SessionPresent.
//
// The connection being replaced is retired before it is closed, so errors
// it reports while shutting down never reach Lost(). A notification still
// pending for it is discarded.
func (c *Client) Reconnect(ctx context.Context) (*ConnAck, error) {
	c.mu.Lock()
	cp := c.connect
	if cp == nil {
		c.mu.Unlock()
		return nil, ErrNeverConnected
	}
	old := c.conn
	c.gen++
	c.connected = false
	c.releaseLocked()
	c.mu.Unlock()

	select {
	case <-c.lost:
	default:
	}

	if old != nil {
		old.Close() //nolint:errcheck // Replaced connection
	}

	return c.establish(ctx, cp)
}

// establish dials the broker and performs the CONNECT/CONNACK exchange.
func (c *Client) establish(ctx context.Context, cp *paho.Connect) (*ConnAck, error) {
	timeout := c.cfg.GetConnectTimeout()

	conn, err := dial(ctx, c.broker, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	release := make(chan struct{})

	pc := paho.NewClient(paho.ClientConfig{
		ClientID:                   cp.ClientID,
		Conn:                       conn,
		Session:                    c.session,
		EnableManualAcknowledgment: true,
		SendAcksInterval:           ackInterval,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				c.handlePublish(pr.Client, pr.Packet, release)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			c.connectionLost(gen, err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.connectionLost(gen, fmt.Errorf("%w: reason code 0x%02x", ErrServerDisconnect, d.ReasonCode))
		},
	})

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ca, err := pc.Connect(connCtx, cp)
	if err != nil {
		close(release)
		conn.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	if gen != c.gen || c.closed {
		// Replaced or disconnected while the CONNACK was in flight.
		c.mu.Unlock()
		close(release)
		conn.Close() //nolint:errcheck // Superseded connection
		return nil, fmt.Errorf("%w: connection superseded", ErrConnectionFailed)
	}
	c.pc = pc
	c.conn = conn
	c.connected = true
	c.release = release
	c.mu.Unlock()

	ack := &ConnAck{
		ServerURI:       c.ServerURI(),
		ProtocolVersion: protocolVersion,
		SessionPresent:  ca.SessionPresent,
	}
	if ca.Properties != nil {
		ack.SessionExpiry = ca.Properties.SessionExpiryInterval
		c.setSubscriptionIDsAvailable(ca.Properties.SubIDAvailable)
	} else {
		c.setSubscriptionIDsAvailable(false)
	}

	return ack, nil
}

// connectionLost marks the connection generation gen as down and notifies
// Lost() once. Stale generations and deliberate disconnects are ignored.
func (c *Client) connectionLost(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || !c.connected || c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.releaseLocked()
	c.mu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	select {
	case c.lost <- err:
	default:
	}
}

// Lost delivers one notification per lost connection. Deliberate
// disconnects are not reported.
func (c *Client) Lost() <-chan error {
	return c.lost
}

// Disconnect stops delivery and sends DISCONNECT if the connection is up.
// Calling it more than once, or on a connection that is already down, is
// not an error.
func (c *Client) Disconnect(ctx context.Context) error {
	c.StopConsuming()

	c.mu.Lock()
	c.closed = true
	pc := c.pc
	conn := c.conn
	connected := c.connected
	c.connected = false
	c.releaseLocked()
	c.mu.Unlock()

	if pc == nil {
		return nil
	}
	if !connected {
		if conn != nil {
			conn.Close() //nolint:errcheck // Already disconnected
		}
		return nil
	}

	// Let the ack routine send PUBACKs for messages acked just before.
	select {
	case <-time.After(2 * ackInterval):
	case <-ctx.Done():
	}

	done := make(chan error, 1)
	go func() {
		done <- pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mqtt disconnect: %w", err)
		}
		return nil
	case <-ctx.Done():
		conn.Close() //nolint:errcheck // Abandoning a stuck disconnect
		return fmt.Errorf("mqtt disconnect: %w", ctx.Err())
	}
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ServerURI returns the normalised broker URI.
func (c *Client) ServerURI() string {
	return c.broker.String()
}

// SetLogger sets a logger for connection and delivery events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// releaseLocked frees any PUBLISH held for the current connection.
// c.mu must be held.
func (c *Client) releaseLocked() {
	if c.release != nil {
		close(c.release)
		c.release = nil
	}
}

// current returns the protocol client of the live connection.
func (c *Client) current() (*paho.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pc, c.connected
}
