package mqtt

import "fmt"

// Topic prefixes for the Keyless MQTT namespace.
//
// Lock topics use the scheme: keyless/locks/{lock_id}/{channel}
// State and battery topics are published by Core; battery may also be
// reported inbound by lock firmware on the same topic.
const (
	// TopicPrefixLocks is the base for all per-lock topics.
	TopicPrefixLocks = "keyless/locks"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "keyless/system"
)

// Topics provides builders for Keyless MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.LockState("lck-a1b2c3d4")
//	// Returns: "keyless/locks/lck-a1b2c3d4/state"
type Topics struct{}

// LockState returns the topic for canonical lock state published by Core.
//
// Example: keyless/locks/lck-a1b2c3d4/state
func (Topics) LockState(lockID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixLocks, lockID)
}

// LockBattery returns the topic for lock battery level reports.
// Lock firmware publishes here; Core consumes and persists the level.
//
// Example: keyless/locks/lck-a1b2c3d4/battery
func (Topics) LockBattery(lockID string) string {
	return fmt.Sprintf("%s/%s/battery", TopicPrefixLocks, lockID)
}

// LockActivity returns the topic for lock activity events.
//
// Example: keyless/locks/lck-a1b2c3d4/activity
func (Topics) LockActivity(lockID string) string {
	return fmt.Sprintf("%s/%s/activity", TopicPrefixLocks, lockID)
}

// SystemStatus returns the service status topic. Used for the broker
// LWT so subscribers can detect Core going offline.
//
// Example: keyless/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllLockBatteries returns a pattern matching battery reports from all locks.
//
// Pattern: keyless/locks/+/battery
func (Topics) AllLockBatteries() string {
	return fmt.Sprintf("%s/+/battery", TopicPrefixLocks)
}

// AllLockStates returns a pattern matching all canonical lock states.
//
// Pattern: keyless/locks/+/state
func (Topics) AllLockStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixLocks)
}

// AllTopics returns a pattern matching all Keyless topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: keyless/#
func (Topics) AllTopics() string {
	return "keyless/#"
}

// LockIDFromTopic extracts the lock ID from a per-lock topic.
// Returns "" if the topic does not match the keyless/locks/{id}/{channel} shape.
func LockIDFromTopic(topic string) string {
	const prefix = TopicPrefixLocks + "/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	rest := topic[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return ""
}
