package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/nerrad567/mqtt2file/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt2file/internal/infrastructure/mqtt"
)

// Status is the outcome of handling one message.
type Status string

const (
	// StatusSaved means the payload was written.
	StatusSaved Status = "saved"

	// StatusFailed means the write was attempted and failed.
	StatusFailed Status = "failed"

	// StatusDropped means the message could not be mapped to a file
	// (missing or unsafe filename) and was discarded.
	StatusDropped Status = "dropped"
)

// Record describes one handled message. It is what Recorders receive.
type Record struct {
	Topic      string
	Filter     string
	Filename   string
	Path       string
	Size       int
	SHA256     string
	Status     Status
	Err        error
	ReceivedAt time.Time
}

// Recorder receives the outcome of every handled message.
//
// Implementations must be safe for concurrent use. Errors are logged by the
// Handler and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Handler persists messages for the consumption loop.
//
// Per-message errors never escape Handle: they are logged, recorded and
// the message is acknowledged so it is not redelivered forever.
type Handler struct {
	dir       string
	logger    *logging.Logger
	recorders []Recorder
	now       func() time.Time
}

// NewHandler creates a Handler writing into dir.
func NewHandler(dir string, logger *logging.Logger, recorders ...Recorder) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		dir:       dir,
		logger:    logger,
		recorders: recorders,
		now:       time.Now,
	}
}

// Handle writes msg, acknowledges it and reports the outcome.
func (h *Handler) Handle(ctx context.Context, msg *mqtt.Message) Record {
	rec := Record{
		Topic:      msg.Topic,
		Filter:     msg.Filter,
		Size:       len(msg.Payload),
		ReceivedAt: h.now().UTC(),
	}
	rec.Filename, _ = msg.Property(FilenameProperty)

	path, err := Persist(msg, h.dir)
	rec.Path = path
	rec.Err = err

	switch {
	case err == nil:
		sum := sha256.Sum256(msg.Payload)
		rec.SHA256 = hex.EncodeToString(sum[:])
		rec.Status = StatusSaved
		h.logger.Info("saved message", "topic", msg.Topic, "path", path, "bytes", rec.Size)
	case errors.Is(err, ErrMissingFilename):
		rec.Status = StatusDropped
		h.logger.Warn("message without filename property dropped", "topic", msg.Topic)
	case errors.Is(err, ErrUnsafeFilename):
		rec.Status = StatusDropped
		h.logger.Warn("message with unsafe filename dropped", "topic", msg.Topic, "filename", rec.Filename)
	default:
		rec.Status = StatusFailed
		h.logger.Error("failed to save message", "topic", msg.Topic, "error", err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		h.logger.Warn("failed to acknowledge message", "topic", msg.Topic, "error", ackErr)
	}

	for _, r := range h.recorders {
		if recErr := r.Record(ctx, rec); recErr != nil {
			h.logger.Warn("failed to record message outcome", "topic", msg.Topic, "error", recErr)
		}
	}

	return rec
}
