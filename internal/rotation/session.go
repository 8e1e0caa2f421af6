package rotation

import "time"

// SessionState tracks one rotating session's bookkeeping between the
// rotation thread's ScheduledRotation/CheckPendingRotation jobs and
// its SessionConsumedSize edge-arming (spec.md §4.6).
type SessionState struct {
	ID string

	// Inactive and RotatedSinceStop gate ScheduledRotation: a stopped
	// session that has already rotated once since it stopped is never
	// rotated again by a stale timer.
	Inactive         bool
	RotatedSinceStop bool

	// Pending is set while a rotation has been requested but not yet
	// confirmed complete by the relay.
	Pending bool

	// ConsumedThresholdBytes is the SessionConsumedSize threshold the
	// thread is currently subscribed at; RotateSizeBytes is the step
	// it advances by after each edge-arm fire.
	ConsumedThresholdBytes uint64
	RotateSizeBytes        uint64

	// RecheckInterval is how often CheckPendingRotation reschedules
	// itself while waiting on the relay (original-source supplement;
	// sourced from session config, not a fixed constant).
	RecheckInterval time.Duration
}
