package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2file/internal/persist"
	"github.com/nerrad567/mqtt2file/internal/session"
)

// fakeTransport is a scripted Transport.
type fakeTransport struct {
	mu sync.Mutex

	connectAck   *mqtt.ConnAck
	connectErr   error
	reconnectAck *mqtt.ConnAck

	// reconnectErrs are returned by successive Reconnect calls; once
	// exhausted Reconnect succeeds.
	reconnectErrs []error
	onReconnect   func()
	subscribeErr  error

	clientID    string
	policy      session.Policy
	subscribes  []string
	reconnects  int
	starts      int
	stops       int
	disconnects int
	connected   bool
	consuming   bool

	messages chan *mqtt.Message
	lost     chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connectAck:   &mqtt.ConnAck{ServerURI: "tcp://fake:1883", ProtocolVersion: 5},
		reconnectAck: &mqtt.ConnAck{ServerURI: "tcp://fake:1883", ProtocolVersion: 5},
		consuming:    true,
		messages:     make(chan *mqtt.Message, 10),
		lost:         make(chan error, 1),
	}
}

func (f *fakeTransport) Connect(_ context.Context, clientID string, policy session.Policy) (*mqtt.ConnAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clientID = clientID
	f.policy = policy
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.connected = true
	return f.connectAck, nil
}

func (f *fakeTransport) Reconnect(context.Context) (*mqtt.ConnAck, error) {
	f.mu.Lock()
	f.reconnects++
	if len(f.reconnectErrs) > 0 {
		err := f.reconnectErrs[0]
		f.reconnectErrs = f.reconnectErrs[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.connected = true
	hook := f.onReconnect
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return f.reconnectAck, nil
}

func (f *fakeTransport) Subscribe(_ context.Context, filter string, _ byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, filter)
	return f.subscribeErr
}

func (f *fakeTransport) Messages() <-chan *mqtt.Message { return f.messages }
func (f *fakeTransport) Lost() <-chan error             { return f.lost }

func (f *fakeTransport) StartConsuming() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.consuming = true
}

func (f *fakeTransport) StopConsuming() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.consuming = false
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	f.consuming = false
	return nil
}

// drop simulates a lost connection.
func (f *fakeTransport) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.lost <- err
}

func (f *fakeTransport) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes)
}

// countingHandler records handled messages.
type countingHandler struct {
	mu     sync.Mutex
	topics []string
}

func (h *countingHandler) Handle(_ context.Context, msg *mqtt.Message) persist.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics = append(h.topics, msg.Topic)
	return persist.Record{Topic: msg.Topic, Status: persist.StatusSaved}
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// reconnectLog records observed reconnection attempts.
type reconnectLog struct {
	mu       sync.Mutex
	attempts []int
	failures int
}

func (r *reconnectLog) ObserveReconnect(_ context.Context, attempt int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	if err != nil {
		r.failures++
	}
}

var errBrokerDown = errors.New("broker down")
