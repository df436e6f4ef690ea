// Package mqtt provides MQTT client connectivity for Keyless Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Keyless uses MQTT as the message bus between the Core and lock
// firmware. Core publishes canonical lock state; lock hardware reports
// battery levels inbound over the same namespace.
//
//	Keyless Core ↔ MQTT Broker ↔ Lock Firmware
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//   - PIN material is never published on any topic
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to battery reports from all locks
//	err = client.Subscribe(mqtt.Topics{}.AllLockBatteries(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish canonical lock state
//	topic := mqtt.Topics{}.LockState("lck-a1b2c3d4")
//	client.PublishRetained(topic, []byte(`{"is_locked":true}`))
package mqtt
