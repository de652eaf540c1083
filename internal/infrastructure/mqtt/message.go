package mqtt

import "github.com/eclipse/paho.golang/paho"

// Message is a received PUBLISH.
//
// A Message is handed to exactly one consumer and is not retained after
// Ack has been called.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte

	// Properties holds the MQTT v5 user properties. When a key is repeated
	// the first value wins.
	Properties map[string]string

	// SubscriptionID is the subscription identifier the broker attached,
	// or zero if none.
	SubscriptionID int

	// Filter is the topic filter registered under SubscriptionID, if this
	// client made that subscription.
	Filter string

	ack func() error
}

// Property returns a user property and whether it was present.
func (m *Message) Property(key string) (string, bool) {
	v, ok := m.Properties[key]
	return v, ok
}

// Ack acknowledges the message to the broker. It is a no-op for QoS 0
// messages and for messages built without a connection.
func (m *Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// NewMessage builds a Message that is not tied to a connection. It is used
// by tests and by callers replaying messages from elsewhere.
func NewMessage(topic string, payload []byte, properties map[string]string) *Message {
	return &Message{
		Topic:      topic,
		Payload:    payload,
		Properties: properties,
	}
}

// WithAck sets the function Ack calls and returns m.
func (m *Message) WithAck(ack func() error) *Message {
	m.ack = ack
	return m
}

// fromPublish converts a paho PUBLISH into a Message whose Ack goes back to
// the client that received it.
func fromPublish(pc *paho.Client, p *paho.Publish) *Message {
	msg := &Message{
		Topic:      p.Topic,
		Payload:    p.Payload,
		QoS:        p.QoS,
		Properties: map[string]string{},
	}

	if p.Properties != nil {
		for _, up := range p.Properties.User {
			if _, seen := msg.Properties[up.Key]; !seen {
				msg.Properties[up.Key] = up.Value
			}
		}
		if p.Properties.SubscriptionIdentifier != nil {
			msg.SubscriptionID = *p.Properties.SubscriptionIdentifier
		}
	}

	if p.QoS > 0 && pc != nil {
		msg.ack = func() error { return pc.Ack(p) }
	}

	return msg
}
