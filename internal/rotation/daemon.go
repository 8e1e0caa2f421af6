package rotation

import (
	"context"
	"errors"

	"github.com/lttng/notifd/internal/trigobj"
)

// ErrRotationPending is the benign outcome of requesting a rotation on
// a session that already has one in flight (spec.md §4.6: "if that
// returns already pending, drop" / "RotationPending is a benign
// outcome").
var ErrRotationPending = errors.New("rotation: session rotation already pending")

// SessionRotator invokes the daemon's session-rotation command. It
// abstracts the tracing-session control-plane call the rotation
// thread makes on both ScheduledRotation and the edge-armed
// SessionConsumedSize path.
type SessionRotator interface {
	RotateSession(ctx context.Context, sessionID string) error
}

// RelayProber probes a relay daemon for the completion of a
// previously requested rotation (spec.md §4.6 CheckPendingRotation).
type RelayProber interface {
	ProbePendingRotation(ctx context.Context, sessionID string) (complete bool, location *trigobj.TraceArchiveLocation, err error)
}
