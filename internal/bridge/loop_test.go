package bridge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2file/internal/persist"
)

const testTimeout = 30 * time.Millisecond

func newTestLoop(ft *fakeTransport, h MessageHandler, timeout time.Duration) (*Loop, *[]Phase) {
	m := newTestManager(ft, "")
	sup, _ := newTestSupervisor(12)
	loop := NewLoop(m, h, sup, timeout, logging.Discard())

	var phases []Phase
	loop.OnPhase(func(p Phase) { phases = append(phases, p) })
	return loop, &phases
}

func testMessage(topic string) *mqtt.Message {
	return mqtt.NewMessage(topic, []byte("x"), map[string]string{persist.FilenameProperty: "x"})
}

// runWithDeadline runs the loop and fails the test if it does not return.
func runWithDeadline(t *testing.T, ctx context.Context, loop *Loop) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

// =============================================================================
// Phase Transition Tests
// =============================================================================

func TestLoopStopsAfterTwoSilentTimeouts(t *testing.T) {
	ft := newFakeTransport()
	loop, phases := newTestLoop(ft, &countingHandler{}, testTimeout)

	start := time.Now()
	if err := runWithDeadline(t, context.Background(), loop); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	want := []Phase{Draining, Idle, Stopped}
	if !reflect.DeepEqual(*phases, want) {
		t.Errorf("phases = %v, want %v", *phases, want)
	}
	if elapsed < 2*testTimeout {
		t.Errorf("stopped after %v, want at least two timeouts (%v)", elapsed, 2*testTimeout)
	}
	if ft.stops != 1 {
		t.Errorf("StopConsuming calls = %d, want 1", ft.stops)
	}
	if loop.Phase() != Stopped {
		t.Errorf("Phase() = %v, want stopped", loop.Phase())
	}
}

func TestLoopHandlesMessagesWhileDraining(t *testing.T) {
	ft := newFakeTransport()
	h := &countingHandler{}
	for i := 0; i < 3; i++ {
		ft.messages <- testMessage("sensors/a")
	}
	loop, phases := newTestLoop(ft, h, testTimeout)

	if err := runWithDeadline(t, context.Background(), loop); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.count() != 3 {
		t.Errorf("handled = %d, want 3", h.count())
	}
	want := []Phase{Draining, Idle, Stopped}
	if !reflect.DeepEqual(*phases, want) {
		t.Errorf("phases = %v, want %v", *phases, want)
	}
}

func TestLoopMessageDuringIdleResumesDraining(t *testing.T) {
	ft := newFakeTransport()
	h := &countingHandler{}
	loop, phases := newTestLoop(ft, h, testTimeout)

	injected := false
	loop.OnPhase(func(p Phase) {
		*phases = append(*phases, p)
		if p == Idle && !injected {
			injected = true
			ft.messages <- testMessage("sensors/late")
		}
	})

	if err := runWithDeadline(t, context.Background(), loop); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []Phase{Draining, Idle, Draining, Idle, Stopped}
	if !reflect.DeepEqual(*phases, want) {
		t.Errorf("phases = %v, want %v", *phases, want)
	}
	if h.count() != 1 {
		t.Errorf("handled = %d, want 1", h.count())
	}
	if ft.starts != 1 {
		t.Errorf("StartConsuming calls = %d, want 1", ft.starts)
	}
	if ft.stops != 2 {
		t.Errorf("StopConsuming calls = %d, want 2", ft.stops)
	}
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		Draining:  "draining",
		Idle:      "idle",
		Stopped:   "stopped",
		Phase(42): "phase(42)",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}

// =============================================================================
// Reconnection Tests
// =============================================================================

func TestLoopReconnectsAndKeepsReceiving(t *testing.T) {
	ft := newFakeTransport()
	h := &countingHandler{}
	ft.reconnectErrs = []error{errBrokerDown, errBrokerDown}
	ft.onReconnect = func() { ft.messages <- testMessage("sensors/after") }
	ft.drop(errors.New("connection reset"))

	loop, _ := newTestLoop(ft, h, testTimeout)

	if err := runWithDeadline(t, context.Background(), loop); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if ft.reconnects != 3 {
		t.Errorf("reconnect calls = %d, want 3", ft.reconnects)
	}
	if got := ft.subscribeCount(); got != 1 {
		t.Errorf("subscribe calls = %d, want 1 after reconnect", got)
	}
	if h.count() != 1 || h.topics[0] != "sensors/after" {
		t.Errorf("handled %v, want [sensors/after]", h.topics)
	}
}

func TestLoopReconnectExhausted(t *testing.T) {
	ft := newFakeTransport()
	for i := 0; i < DefaultReconnectAttempts; i++ {
		ft.reconnectErrs = append(ft.reconnectErrs, errBrokerDown)
	}
	ft.drop(errors.New("connection reset"))

	loop, phases := newTestLoop(ft, &countingHandler{}, time.Hour)

	err := runWithDeadline(t, context.Background(), loop)
	if !errors.Is(err, ErrReconnectExhausted) {
		t.Fatalf("Run() error = %v, want ErrReconnectExhausted", err)
	}
	if ft.reconnects != DefaultReconnectAttempts {
		t.Errorf("reconnect calls = %d, want %d", ft.reconnects, DefaultReconnectAttempts)
	}
	if last := (*phases)[len(*phases)-1]; last != Stopped {
		t.Errorf("final phase = %v, want stopped", last)
	}
}

func TestLoopSubscribeFailureCountsAsFailedAttempt(t *testing.T) {
	ft := newFakeTransport()
	ft.subscribeErr = errors.New("not authorised")
	ft.drop(errors.New("connection reset"))

	loop, _ := newTestLoop(ft, &countingHandler{}, time.Hour)

	err := runWithDeadline(t, context.Background(), loop)
	if !errors.Is(err, ErrReconnectExhausted) || !errors.Is(err, ErrSubscription) {
		t.Fatalf("Run() error = %v, want ErrReconnectExhausted wrapping ErrSubscription", err)
	}
	if got := ft.subscribeCount(); got != DefaultReconnectAttempts {
		t.Errorf("subscribe calls = %d, want one per attempt (%d)", got, DefaultReconnectAttempts)
	}
}

// =============================================================================
// Shutdown Tests
// =============================================================================

func TestLoopShutdownDrainsQueued(t *testing.T) {
	ft := newFakeTransport()
	h := &countingHandler{}
	ft.messages <- testMessage("sensors/1")
	ft.messages <- testMessage("sensors/2")

	loop, phases := newTestLoop(ft, h, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runWithDeadline(t, ctx, loop); err != nil {
		t.Fatalf("Run() error = %v, want graceful stop", err)
	}

	if h.count() != 2 {
		t.Errorf("handled = %d, want 2", h.count())
	}
	if ft.stops < 1 {
		t.Error("StopConsuming not called on shutdown")
	}
	if last := (*phases)[len(*phases)-1]; last != Stopped {
		t.Errorf("final phase = %v, want stopped", last)
	}
}

func TestLoopShutdownDuringWait(t *testing.T) {
	ft := newFakeTransport()
	loop, _ := newTestLoop(ft, &countingHandler{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	if err := runWithDeadline(t, ctx, loop); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if ft.starts != 0 {
		t.Errorf("StartConsuming calls = %d, want 0", ft.starts)
	}
}

func TestLoopConnectionLostDuringShutdownDoesNotReconnect(t *testing.T) {
	ft := newFakeTransport()
	loop, phases := newTestLoop(ft, &countingHandler{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ft.drop(errBrokerDown)

	if err := runWithDeadline(t, ctx, loop); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if ft.reconnects != 0 {
		t.Errorf("Reconnect calls = %d, want 0", ft.reconnects)
	}
	if last := (*phases)[len(*phases)-1]; last != Stopped {
		t.Errorf("final phase = %v, want stopped", last)
	}
}

// =============================================================================
// End-to-End Scenario
// =============================================================================

func TestScenarioSingleMessageThenSilence(t *testing.T) {
	dir := t.TempDir()
	ft := newFakeTransport()
	m := newTestManager(ft, "")

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := ft.subscribeCount(); got != 1 {
		t.Fatalf("subscribe calls = %d, want 1", got)
	}

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	ft.messages <- mqtt.NewMessage("sensors/probe", payload, map[string]string{"filename": "a.bin"})

	sup, _ := newTestSupervisor(12)
	loop := NewLoop(m, persist.NewHandler(dir, logging.Discard()), sup, testTimeout, logging.Discard())

	if err := runWithDeadline(t, context.Background(), loop); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("a.bin = %x, want %x", got, payload)
	}
}
