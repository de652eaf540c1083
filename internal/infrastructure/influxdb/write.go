package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqtt2file/internal/persist"
)

// Measurement names.
const (
	MeasurementMessages   = "mqtt2file_messages"
	MeasurementReconnects = "mqtt2file_reconnects"
)

// Record writes one mqtt2file_messages point for a handled message.
// It implements persist.Recorder.
func (c *Client) Record(_ context.Context, rec persist.Record) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	tags := map[string]string{"status": string(rec.Status)}
	if rec.Filter != "" {
		tags["filter"] = rec.Filter
	}

	ts := rec.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementMessages,
		tags,
		map[string]any{"bytes": rec.Size},
		ts,
	))
	return nil
}

// ObserveReconnect writes one mqtt2file_reconnects point per attempt.
// It implements bridge.Observer.
func (c *Client) ObserveReconnect(_ context.Context, attempt int, err error) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementReconnects,
		nil,
		map[string]any{
			"attempt": attempt,
			"success": err == nil,
		},
		time.Now(),
	))
}
