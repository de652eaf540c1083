package bridge

import (
	"context"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt2file/internal/persist"
	"github.com/nerrad567/mqtt2file/internal/session"
)

// Transport is the broker connection the bridge drives.
//
// StopConsuming, StartConsuming and Disconnect must be idempotent and safe
// to call from any goroutine.
type Transport interface {
	Connect(ctx context.Context, clientID string, policy session.Policy) (*mqtt.ConnAck, error)
	Reconnect(ctx context.Context) (*mqtt.ConnAck, error)
	Subscribe(ctx context.Context, filter string, qos byte) error

	// Messages yields received messages while delivery is running.
	Messages() <-chan *mqtt.Message

	// Lost yields one value per unexpected loss of the connection.
	Lost() <-chan error

	StartConsuming()
	StopConsuming()
	IsConnected() bool
	Disconnect(ctx context.Context) error
}

// MessageHandler processes one received message. It must not return
// per-message failures to the caller; *persist.Handler is the production
// implementation.
type MessageHandler interface {
	Handle(ctx context.Context, msg *mqtt.Message) persist.Record
}

// Observer is notified of every reconnection attempt.
type Observer interface {
	ObserveReconnect(ctx context.Context, attempt int, err error)
}

var _ Transport = (*mqtt.Client)(nil)
