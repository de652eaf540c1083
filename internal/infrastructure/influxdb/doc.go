// Package influxdb writes bridge statistics to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two measurements
// are written through the non-blocking, batched write API:
//
//	mqtt2file_messages   tags: status, filter   fields: bytes
//	mqtt2file_reconnects                        fields: attempt, success
//
// *Client implements persist.Recorder for the first and bridge.Observer
// for the second. Write failures are reported asynchronously through the
// callback set with SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package influxdb
