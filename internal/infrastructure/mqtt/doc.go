// Package mqtt provides the MQTT v5 transport used by mqtt2file.
//
// This package manages:
//   - Connection to the broker with clean or persistent sessions
//   - Re-establishing the connection in place after it is lost
//   - Topic subscriptions with subscription identifiers
//   - A bounded message queue that can be stopped and resumed
//   - Manual QoS 1 acknowledgement once a message has been handled
//
// # Architecture
//
// The paho reader goroutine hands every PUBLISH to the Client, which pushes
// it onto a bounded channel read by the consumption loop:
//
//	broker → paho reader → Client.Messages() → consumption loop → file
//
// Connection loss is reported on a separate channel, Client.Lost(). The
// Client never reconnects on its own; the caller decides when to call
// Reconnect and how often.
//
// # Delivery Guarantees
//
// Messages are acknowledged only when the consumer calls Message.Ack, and
// PUBACKs go out in arrival order. While consumption is stopped the next
// incoming message is held back, unqueued and unacknowledged, until
// StartConsuming; if the connection ends first, a persistent session
// redelivers it the next time the bridge connects.
//
// # Supported Brokers URIs
//
//   - tcp://host:1883, mqtt://host:1883
//   - ssl://host:8883, tls://host:8883, mqtts://host:8883
//   - ws://host/mqtt, wss://host/mqtt (MQTT over WebSocket)
//
// # Usage
//
//	client, err := mqtt.New(cfg.MQTT, cfg.Bridge.QueueSize)
//	if err != nil {
//	    return err
//	}
//	ack, err := client.Connect(ctx, identity.ClientID(), policy)
//	if err != nil {
//	    return err
//	}
//	if !ack.SessionPresent {
//	    err = client.Subscribe(ctx, mqtt.TopicFilter("sensors"), mqtt.QoSAtLeastOnce)
//	}
//	for msg := range client.Messages() {
//	    // handle, then
//	    msg.Ack()
//	}
package mqtt
