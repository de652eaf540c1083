package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
)

// DefaultIdleTimeout is the wait for a message before changing phase.
const DefaultIdleTimeout = 5 * time.Minute

// Phase is the state of the consumption loop.
type Phase int

const (
	// Draining means messages are expected and delivery is running.
	Draining Phase = iota

	// Idle means one timeout passed in silence; delivery is stopped and the
	// loop waits once more before stopping.
	Idle

	// Stopped is terminal.
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Draining:
		return "draining"
	case Idle:
		return "idle"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Loop is the dual-phase consumption loop.
//
// It exits gracefully after two consecutive silent waits of Timeout, or
// after shutdown once the already-buffered messages are handled. It exits
// with ErrReconnectExhausted when a lost connection cannot be restored.
//
// Run must be called from a single goroutine. The phase is owned by that
// goroutine and is not safe to read elsewhere.
type Loop struct {
	manager    *Manager
	transport  Transport
	handler    MessageHandler
	supervisor *Supervisor
	timeout    time.Duration
	logger     *logging.Logger

	phase   Phase
	onPhase func(Phase)
}

// NewLoop creates a Loop over the manager's transport.
func NewLoop(m *Manager, handler MessageHandler, supervisor *Supervisor, timeout time.Duration, logger *logging.Logger) *Loop {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loop{
		manager:    m,
		transport:  m.transport,
		handler:    handler,
		supervisor: supervisor,
		timeout:    timeout,
		logger:     logger,
		phase:      Draining,
	}
}

// Phase returns the current phase. Only valid from the goroutine running
// Run, or after Run has returned.
func (l *Loop) Phase() Phase {
	return l.phase
}

// OnPhase registers a hook called on every phase change, on the Run
// goroutine.
func (l *Loop) OnPhase(fn func(Phase)) {
	l.onPhase = fn
}

// Run consumes messages until the loop stops.
//
// Cancelling ctx stops delivery; messages already queued are still handled
// and the loop then stops gracefully.
//
// Returns:
//   - error: nil on graceful stop, or ErrReconnectExhausted
func (l *Loop) Run(ctx context.Context) error {
	// Handling continues through shutdown to drain the queue.
	handleCtx := context.WithoutCancel(ctx)

	messages := l.transport.Messages()
	lost := l.transport.Lost()
	done := ctx.Done()

	l.setPhase(Draining)

	for {
		deadline := time.Now().Add(l.timeout)
		l.logger.Info("waiting for messages", "phase", l.phase, "until", deadline.Format(time.RFC3339))
		l.logger.Debug("wait timeout", "timeout", l.timeout)

		timer := time.NewTimer(l.timeout)

		select {
		case msg := <-messages:
			timer.Stop()
			l.handle(handleCtx, msg)
			if l.phase == Idle {
				l.logger.Info("message received while idle, resuming delivery")
				l.transport.StartConsuming()
				l.setPhase(Draining)
			}

		case err := <-lost:
			timer.Stop()
			l.logger.Warn("connection lost", "error", err)
			if ctx.Err() != nil {
				l.transport.StopConsuming()
				l.setPhase(Idle)
				l.drain(handleCtx, messages)
				l.setPhase(Stopped)
				return nil
			}

			attempts, rerr := l.supervisor.Run(ctx, l.manager.Establish)
			if rerr != nil {
				l.setPhase(Stopped)
				return rerr
			}
			if !l.transport.IsConnected() {
				l.setPhase(Stopped)
				return fmt.Errorf("%w: reconnected after %d attempts but connection is down", ErrReconnectExhausted, attempts)
			}
			if l.phase == Idle {
				l.transport.StartConsuming()
			}
			l.setPhase(Draining)

		case <-done:
			timer.Stop()
			l.logger.Info("shutdown requested, stopping delivery")
			l.transport.StopConsuming()
			l.setPhase(Idle)
			l.drain(handleCtx, messages)
			l.setPhase(Stopped)
			return nil

		case <-timer.C:
			if l.phase == Idle {
				l.logger.Info("no messages for a second timeout, stopping", "timeout", l.timeout)
				l.setPhase(Stopped)
				return nil
			}
			l.logger.Info("no messages before timeout, stopping delivery", "timeout", l.timeout)
			l.transport.StopConsuming()
			l.setPhase(Idle)
		}
	}
}

// drain handles every message that is already queued.
func (l *Loop) drain(ctx context.Context, messages <-chan *mqtt.Message) {
	for {
		select {
		case msg := <-messages:
			l.handle(ctx, msg)
		default:
			return
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg *mqtt.Message) {
	rec := l.handler.Handle(ctx, msg)
	l.logger.Debug("message handled", "topic", msg.Topic, "status", rec.Status)
}

func (l *Loop) setPhase(p Phase) {
	if l.phase != p {
		l.logger.Debug("phase change", "from", l.phase, "to", p)
	}
	l.phase = p
	if l.onPhase != nil {
		l.onPhase(p)
	}
}
