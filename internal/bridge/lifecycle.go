package bridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2file/internal/session"
)

// Manager owns connection establishment and subscription reconciliation.
type Manager struct {
	transport Transport
	identity  session.Identity
	policy    session.Policy
	filter    string
	logger    *logging.Logger
}

// NewManager creates a Manager subscribing to "<prefix>/#".
func NewManager(t Transport, identity session.Identity, policy session.Policy, prefix string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		transport: t,
		identity:  identity,
		policy:    policy,
		filter:    mqtt.TopicFilter(prefix),
		logger:    logger,
	}
}

// Filter returns the topic filter the manager subscribes to.
func (m *Manager) Filter() string {
	return m.filter
}

// Policy returns the session policy used for every connection.
func (m *Manager) Policy() session.Policy {
	return m.policy
}

// Connect establishes the initial connection.
//
// Returns:
//   - *mqtt.ConnAck: Protocol version, server URI and session-present flag
//   - error: ErrConnect wrapping the cause
func (m *Manager) Connect(ctx context.Context) (*mqtt.ConnAck, error) {
	ack, err := m.transport.Connect(ctx, m.identity.ClientID(), m.policy)
	if err != nil {
		return nil, fmt.Errorf("%w as %s: %w", ErrConnect, m.identity, err)
	}

	m.logConnected(ack)
	return ack, nil
}

// Reconcile makes sure the topic filter is subscribed on the current
// connection. A persistent session the broker reports as present already
// carries the subscription, so nothing is sent. A clean session always
// subscribes, whatever the broker reports.
//
// It issues at most one subscribe request per call.
func (m *Manager) Reconcile(ctx context.Context, ack *mqtt.ConnAck) error {
	if m.policy.Persistent && ack != nil && ack.SessionPresent {
		m.logger.Info("session already present on broker, not subscribing", "filter", m.filter)
		return nil
	}

	if err := m.transport.Subscribe(ctx, m.filter, mqtt.QoSAtLeastOnce); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrSubscription, m.filter, err)
	}

	m.logger.Info("subscribed", "filter", m.filter, "qos", mqtt.QoSAtLeastOnce)
	return nil
}

// Start is Connect followed by Reconcile, used once at startup.
func (m *Manager) Start(ctx context.Context) (*mqtt.ConnAck, error) {
	ack, err := m.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Reconcile(ctx, ack); err != nil {
		return ack, err
	}
	return ack, nil
}

// Establish reconnects and reconciles. It is the attempt function the
// Supervisor runs after a lost connection; a subscribe failure counts as a
// failed attempt.
func (m *Manager) Establish(ctx context.Context) error {
	ack, err := m.transport.Reconnect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	m.logConnected(ack)
	return m.Reconcile(ctx, ack)
}

func (m *Manager) logConnected(ack *mqtt.ConnAck) {
	m.logger.Info(fmt.Sprintf("Connected to '%s' with MQTT version %d", ack.ServerURI, ack.ProtocolVersion),
		"client_id", m.identity.ClientID(),
		"persistent", m.policy.Persistent,
		"session_present", ack.SessionPresent,
	)
	if ack.SessionExpiry != nil && m.policy.Persistent && *ack.SessionExpiry != m.policy.ExpirySeconds {
		m.logger.Warn("broker overrode session expiry",
			"requested", m.policy.ExpirySeconds,
			"granted", *ack.SessionExpiry,
		)
	}
}
