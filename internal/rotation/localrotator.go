package rotation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lttng/notifd/internal/trigobj"
)

// LocalRotator rotates a session entirely on the local filesystem: it
// renames the session's active trace-chunk directory into a
// timestamped archive directory under the same trace path. It is the
// default SessionRotator/RelayProber pair for deployments with no
// relay daemon configured, completing the rotation synchronously
// rather than polling a remote archive (the Thread's pending/recheck
// machinery still applies — ProbePendingRotation simply has nothing
// to wait for and reports completion on first check).
type LocalRotator struct {
	TracePath string // base directory holding one subdirectory per session

	mu       sync.Mutex
	archives map[string]string // sessionID -> most recent archive path
}

// RotateSession renames sessionID's active chunk directory to an
// archive directory suffixed with the rotation time.
func (r *LocalRotator) RotateSession(ctx context.Context, sessionID string) error {
	active := filepath.Join(r.TracePath, sessionID)
	if _, err := os.Stat(active); os.IsNotExist(err) {
		// Nothing traced yet for this session; treat as a no-op
		// rotation rather than an error.
		return nil
	}

	archive := filepath.Join(r.TracePath, fmt.Sprintf("%s-%d", sessionID, nowUnix()))
	if err := os.Rename(active, archive); err != nil {
		return fmt.Errorf("rotation: rename %s: %w", active, err)
	}
	if err := os.MkdirAll(active, 0755); err != nil {
		return fmt.Errorf("rotation: recreate %s: %w", active, err)
	}

	r.mu.Lock()
	if r.archives == nil {
		r.archives = make(map[string]string)
	}
	r.archives[sessionID] = archive
	r.mu.Unlock()
	return nil
}

// ProbePendingRotation always reports completion: a local rotation
// has nothing left to wait for once RotateSession returns. The
// archive path is looked up per sessionID so that two sessions
// rotating in quick succession never cross-report each other's
// location.
func (r *LocalRotator) ProbePendingRotation(ctx context.Context, sessionID string) (bool, *trigobj.TraceArchiveLocation, error) {
	r.mu.Lock()
	archive := r.archives[sessionID]
	r.mu.Unlock()
	return true, &trigobj.TraceArchiveLocation{
		Kind:         trigobj.LocationLocal,
		AbsolutePath: archive,
	}, nil
}

// nowUnix is indirected so tests can pin the archive suffix.
var nowUnix = func() int64 { return time.Now().Unix() }
