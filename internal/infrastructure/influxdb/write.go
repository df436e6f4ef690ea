package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBatteryLevel writes a lock battery level measurement to InfluxDB.
//
// This is the primary method for recording lock telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - lockID: Unique identifier for the lock (e.g., "lck-a1b2c3d4")
//   - level: Battery level percentage (0-100)
//
// Example:
//
//	client.WriteBatteryLevel("lck-a1b2c3d4", 87)
func (c *Client) WriteBatteryLevel(lockID string, level int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"lock_battery",
		map[string]string{
			"lock_id": lockID,
		},
		map[string]interface{}{
			"level": level,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTransition writes a lock state transition measurement.
//
// Used for tracking transition frequency per lock. Only the action name
// is recorded; no credential material is ever written.
//
// Parameters:
//   - lockID: Lock identifier
//   - action: The resulting state ("locked" or "unlocked")
func (c *Client) WriteTransition(lockID string, action string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"lock_transitions",
		map[string]string{
			"lock_id": lockID,
			"action":  action,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteVerifyDuration writes the wall-clock duration of a PIN verification.
//
// Used for monitoring Argon2 hashing cost over time. Records only the
// duration and outcome, never anything derived from the PIN itself.
//
// Parameters:
//   - lockID: Lock identifier
//   - valid: Whether the verification succeeded
//   - duration: Time taken by the verification
func (c *Client) WriteVerifyDuration(lockID string, valid bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	outcome := "denied"
	if valid {
		outcome = "granted"
	}

	point := write.NewPoint(
		"pin_verifications",
		map[string]string{
			"lock_id": lockID,
			"outcome": outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
