// Package testutil provides an embedded MQTT v5 broker for tests.
//
// It is imported only from _test.go files, so the broker never ends up in
// the mqtt2file binary.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker is a running in-process MQTT broker listening on loopback.
type Broker struct {
	Server *mochi.Server
	Addr   string
}

// StartBroker starts a broker on a free loopback port and stops it when the
// test finishes.
func StartBroker(t *testing.T) *Broker {
	t.Helper()
	addr := FreeAddr(t)

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("adding auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "t-" + uuid.NewString(), Address: addr})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("adding listener on %s: %v", addr, err)
	}

	go func() {
		_ = server.Serve() //nolint:errcheck // Listener errors surface as client connect failures
	}()

	b := &Broker{Server: server, Addr: addr}
	b.waitReady(t)
	t.Cleanup(func() { _ = b.Server.Close() })

	return b
}

// URI returns the tcp:// URI of the broker.
func (b *Broker) URI() string {
	return "tcp://" + b.Addr
}

// Kick drops the connection of a client, as a network failure would.
func (b *Broker) Kick(t *testing.T, clientID string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cl, ok := b.Server.Clients.Get(clientID); ok {
			cl.Stop(errors.New("kicked by test"))
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client %q never connected", clientID)
}

// Publish sends one QoS 1 message with user properties through a separate
// MQTT v5 client.
func (b *Broker) Publish(t *testing.T, topic string, payload []byte, props map[string]string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := net.Dial("tcp", b.Addr)
	if err != nil {
		t.Fatalf("dialing broker: %v", err)
	}

	pc := paho.NewClient(paho.ClientConfig{Conn: conn})
	if _, err := pc.Connect(ctx, &paho.Connect{
		ClientID:   "publisher-" + uuid.NewString(),
		CleanStart: true,
		KeepAlive:  30,
	}); err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer pc.Disconnect(&paho.Disconnect{ReasonCode: 0}) //nolint:errcheck // Test cleanup

	var user paho.UserProperties
	for k, v := range props {
		user = append(user, paho.UserProperty{Key: k, Value: v})
	}

	if _, err := pc.Publish(ctx, &paho.Publish{
		Topic:      topic,
		QoS:        1,
		Payload:    payload,
		Properties: &paho.PublishProperties{User: user},
	}); err != nil {
		t.Fatalf("publish to %s: %v", topic, err)
	}
}

// FreeAddr returns a loopback address with a currently unused port.
func FreeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// waitReady blocks until the listener accepts connections.
func (b *Broker) waitReady(t *testing.T) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", b.Addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("broker on %s did not start", b.Addr)
}
