//go:build integration

package mqtt

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/mqtt2file/internal/session"
	"github.com/nerrad567/mqtt2file/internal/testutil"
)

// Integration tests against an embedded MQTT v5 broker.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

// brokerClient returns a Client configured for the embedded broker.
func brokerClient(t *testing.T, broker *testutil.Broker) *Client {
	t.Helper()

	cfg := testConfig()
	cfg.URI = broker.URI()

	c, err := New(cfg, 10)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Disconnect(ctx)
	})
	return c
}

// assertNoMessage fails if a message is queued within wait.
func assertNoMessage(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()

	select {
	case msg := <-c.Messages():
		t.Fatalf("unexpected message on %q", msg.Topic)
	case <-time.After(wait):
	}
}

// receive waits for the next queued message.
func receive(t *testing.T, c *Client) *Message {
	t.Helper()

	select {
	case msg := <-c.Messages():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// =============================================================================
// Broker Integration Tests
// =============================================================================

func TestBrokerCleanSessionReceivesUserProperties(t *testing.T) {
	broker := testutil.StartBroker(t)
	c := brokerClient(t, broker)
	ctx := context.Background()

	ack, err := c.Connect(ctx, "mqtt2file-clean", session.BuildPolicy(false))
	require.NoError(t, err)
	assert.False(t, ack.SessionPresent)
	assert.Equal(t, protocolVersion, ack.ProtocolVersion)
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Subscribe(ctx, TopicFilter("sensors"), QoSAtLeastOnce))

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	broker.Publish(t, "sensors/probe", payload, map[string]string{"filename": "probe.bin"})

	msg := receive(t, c)
	assert.Equal(t, "sensors/probe", msg.Topic)
	assert.True(t, bytes.Equal(payload, msg.Payload))
	name, ok := msg.Property("filename")
	assert.True(t, ok)
	assert.Equal(t, "probe.bin", name)
	assert.NoError(t, msg.Ack())
}

func TestBrokerIgnoresTopicsOutsideFilter(t *testing.T) {
	broker := testutil.StartBroker(t)
	c := brokerClient(t, broker)
	ctx := context.Background()

	_, err := c.Connect(ctx, "mqtt2file-filter", session.BuildPolicy(false))
	require.NoError(t, err)
	require.NoError(t, c.Subscribe(ctx, TopicFilter("sensors"), QoSAtLeastOnce))

	broker.Publish(t, "other/topic", []byte("x"), map[string]string{"filename": "x"})
	broker.Publish(t, "sensors/deep/level", []byte("y"), map[string]string{"filename": "y"})

	msg := receive(t, c)
	assert.Equal(t, "sensors/deep/level", msg.Topic)
}

func TestBrokerPersistentSessionResumes(t *testing.T) {
	broker := testutil.StartBroker(t)
	ctx := context.Background()
	policy := session.BuildPolicy(true)

	first := brokerClient(t, broker)
	ack, err := first.Connect(ctx, "mqtt2file-host-a", policy)
	require.NoError(t, err)
	assert.False(t, ack.SessionPresent, "first connect has no stored session")
	require.NoError(t, first.Subscribe(ctx, TopicFilter("sensors"), QoSAtLeastOnce))
	require.NoError(t, first.Disconnect(ctx))

	broker.Publish(t, "sensors/offline", []byte("queued"), map[string]string{"filename": "offline.txt"})

	second := brokerClient(t, broker)
	ack, err = second.Connect(ctx, "mqtt2file-host-a", policy)
	require.NoError(t, err)
	assert.True(t, ack.SessionPresent, "persistent session should be resumed")

	msg := receive(t, second)
	assert.Equal(t, "sensors/offline", msg.Topic)
	assert.NoError(t, msg.Ack())
}

func TestBrokerCleanSessionDiscardsState(t *testing.T) {
	broker := testutil.StartBroker(t)
	ctx := context.Background()

	persistent := brokerClient(t, broker)
	_, err := persistent.Connect(ctx, "mqtt2file-shared", session.BuildPolicy(true))
	require.NoError(t, err)
	require.NoError(t, persistent.Disconnect(ctx))

	clean := brokerClient(t, broker)
	ack, err := clean.Connect(ctx, "mqtt2file-shared", session.BuildPolicy(false))
	require.NoError(t, err)
	assert.False(t, ack.SessionPresent, "clean start must not resume a session")
}

func TestBrokerLostAndReconnect(t *testing.T) {
	broker := testutil.StartBroker(t)
	c := brokerClient(t, broker)
	ctx := context.Background()

	_, err := c.Connect(ctx, "mqtt2file-host-kick", session.BuildPolicy(true))
	require.NoError(t, err)
	require.NoError(t, c.Subscribe(ctx, TopicFilter("sensors"), QoSAtLeastOnce))

	broker.Kick(t, "mqtt2file-host-kick")

	select {
	case err := <-c.Lost():
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Lost() did not fire after the broker dropped the client")
	}
	assert.False(t, c.IsConnected())

	ack, err := c.Reconnect(ctx)
	require.NoError(t, err)
	assert.True(t, ack.SessionPresent)
	assert.True(t, c.IsConnected())

	broker.Publish(t, "sensors/after", []byte("back"), map[string]string{"filename": "after.txt"})
	msg := receive(t, c)
	assert.Equal(t, "sensors/after", msg.Topic)
}

func TestBrokerDisconnectNotReportedAsLost(t *testing.T) {
	broker := testutil.StartBroker(t)
	c := brokerClient(t, broker)
	ctx := context.Background()

	_, err := c.Connect(ctx, "mqtt2file-bye", session.BuildPolicy(false))
	require.NoError(t, err)
	require.NoError(t, c.Disconnect(ctx))

	select {
	case err := <-c.Lost():
		t.Fatalf("Lost() fired after a deliberate disconnect: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBrokerReconnectWhileConnectedIsNotLost(t *testing.T) {
	broker := testutil.StartBroker(t)
	c := brokerClient(t, broker)
	ctx := context.Background()

	_, err := c.Connect(ctx, "mqtt2file-host-replace", session.BuildPolicy(true))
	require.NoError(t, err)

	for i := range 3 {
		_, err := c.Reconnect(ctx)
		require.NoError(t, err, "reconnect %d", i)

		select {
		case err := <-c.Lost():
			t.Fatalf("Lost() fired for the replaced connection on round %d: %v", i, err)
		case <-time.After(200 * time.Millisecond):
		}
		assert.True(t, c.IsConnected())
	}
}

func TestBrokerStopStartKeepsAcknowledgementOrder(t *testing.T) {
	broker := testutil.StartBroker(t)
	ctx := context.Background()
	policy := session.BuildPolicy(true)

	first := brokerClient(t, broker)
	_, err := first.Connect(ctx, "mqtt2file-host-order", policy)
	require.NoError(t, err)
	require.NoError(t, first.Subscribe(ctx, TopicFilter("sensors"), QoSAtLeastOnce))

	first.StopConsuming()
	broker.Publish(t, "sensors/while-stopped", []byte("b"), map[string]string{"filename": "b"})
	assertNoMessage(t, first, 200*time.Millisecond)

	first.StartConsuming()
	broker.Publish(t, "sensors/after-start", []byte("c"), map[string]string{"filename": "c"})

	held := receive(t, first)
	assert.Equal(t, "sensors/while-stopped", held.Topic)
	require.NoError(t, held.Ack())

	next := receive(t, first)
	assert.Equal(t, "sensors/after-start", next.Topic)
	require.NoError(t, next.Ack())

	require.NoError(t, first.Disconnect(ctx))

	second := brokerClient(t, broker)
	ack, err := second.Connect(ctx, "mqtt2file-host-order", policy)
	require.NoError(t, err)
	require.True(t, ack.SessionPresent)

	assertNoMessage(t, second, 500*time.Millisecond)
}

func TestBrokerMessageHeldAtDisconnectIsRedelivered(t *testing.T) {
	broker := testutil.StartBroker(t)
	ctx := context.Background()
	policy := session.BuildPolicy(true)

	first := brokerClient(t, broker)
	_, err := first.Connect(ctx, "mqtt2file-host-held", policy)
	require.NoError(t, err)
	require.NoError(t, first.Subscribe(ctx, TopicFilter("sensors"), QoSAtLeastOnce))

	first.StopConsuming()
	broker.Publish(t, "sensors/held", []byte("h"), map[string]string{"filename": "h"})
	assertNoMessage(t, first, 200*time.Millisecond)
	require.NoError(t, first.Disconnect(ctx))

	second := brokerClient(t, broker)
	_, err = second.Connect(ctx, "mqtt2file-host-held", policy)
	require.NoError(t, err)

	msg := receive(t, second)
	assert.Equal(t, "sensors/held", msg.Topic)
	assert.NoError(t, msg.Ack())
}
