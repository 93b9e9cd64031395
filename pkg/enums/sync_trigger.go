package enums

import "fmt"

// SyncTrigger records what started a sync run.
type SyncTrigger string

const (
	SyncTriggerSchedule SyncTrigger = "schedule"
	SyncTriggerManual   SyncTrigger = "manual"
)

var validSyncTriggers = []SyncTrigger{
	SyncTriggerSchedule,
	SyncTriggerManual,
}

// String implements fmt.Stringer.
func (t SyncTrigger) String() string {
	return string(t)
}

// IsValid reports whether the value is a known trigger.
func (t SyncTrigger) IsValid() bool {
	for _, candidate := range validSyncTriggers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSyncTrigger converts the raw string to SyncTrigger.
func ParseSyncTrigger(value string) (SyncTrigger, error) {
	for _, candidate := range validSyncTriggers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync trigger %q", value)
}
