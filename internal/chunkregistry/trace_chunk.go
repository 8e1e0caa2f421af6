// Package chunkregistry implements the ref-counted trace-chunk
// registry of spec.md §3/§4.2: chunks are published under
// (session_id, chunk_id) with add-unique discipline, and external
// holders extend a chunk's lifetime by acquiring a reference rather
// than by copying it.
package chunkregistry

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Credentials selects which identity is used when creating a chunk's
// subdirectories: either the current process's, or an explicit
// (uid, gid) pair assumed for the duration of the directory-creation
// call (spec.md §4.2).
type Credentials struct {
	UseCurrentUser bool
	UID            int
	GID            int
}

// DirHandle is a scope-bound handle on an open directory. Close
// releases the underlying file descriptor; callers must not use a
// DirHandle after Close.
type DirHandle struct {
	path string
	f    *os.File
}

// OpenDir opens path as a directory handle, creating it first if
// missing.
func OpenDir(path string) (*DirHandle, error) {
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("chunkregistry: mkdir %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunkregistry: open %s: %w", path, err)
	}
	return &DirHandle{path: path, f: f}, nil
}

// Path returns the directory's filesystem path.
func (d *DirHandle) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Close releases the directory handle. Safe to call on a nil handle
// or to call twice.
func (d *DirHandle) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// TraceChunk is the filesystem artifact produced between two rotation
// checkpoints (spec.md §3). Anonymous chunks (HasID false) carry a
// CorrelationID so operators can address them externally even though
// their registry key has no chunk_id.
type TraceChunk struct {
	SessionID uint64
	ID        uint64
	HasID     bool

	CreatedAt      time.Time
	TimestampBegin time.Time
	HasTimestamp   bool

	// TimestampEnd is set once a chunk is closed off by a rotation,
	// and renders as the optional "-<end>" component of Name().
	TimestampEnd    time.Time
	HasEndTimestamp bool

	Credentials Credentials

	SessionOutputDir *DirHandle
	ChunkDir         *DirHandle

	CorrelationID uuid.UUID

	refcount atomic.Int32
	closed   atomic.Bool
}

// NewTraceChunk constructs an anonymous or identified chunk. Pass
// hasID=false for an anonymous chunk; a CorrelationID is always
// assigned so anonymous chunks remain addressable.
func NewTraceChunk(sessionID, id uint64, hasID bool, creds Credentials, sessionOutputDir, chunkDir *DirHandle) *TraceChunk {
	c := &TraceChunk{
		SessionID:        sessionID,
		ID:               id,
		HasID:            hasID,
		CreatedAt:        time.Now(),
		Credentials:      creds,
		SessionOutputDir: sessionOutputDir,
		ChunkDir:         chunkDir,
		CorrelationID:    uuid.New(),
	}
	c.refcount.Store(1)
	return c
}

// Name derives the chunk's display name: "<start>[-<end>]-<id>" when
// both id and a begin timestamp are set, else empty (spec.md §3). The
// "-<end>" component only appears once the chunk has been closed off
// by a rotation and carries an end timestamp; an open chunk's name
// has just the begin timestamp and id.
func (c *TraceChunk) Name() string {
	if !c.HasID || !c.HasTimestamp {
		return ""
	}
	begin := c.TimestampBegin.UTC().Format(time.RFC3339)
	if c.HasEndTimestamp {
		end := c.TimestampEnd.UTC().Format(time.RFC3339)
		return fmt.Sprintf("%s-%s-%d", begin, end, c.ID)
	}
	return fmt.Sprintf("%s-%d", begin, c.ID)
}

// key identifies c within the registry: (session_id, chunk_id), with
// an absent chunk_id a distinct key slot from any present one
// (spec.md §4.2).
func (c *TraceChunk) key() chunkKey {
	return chunkKey{sessionID: c.SessionID, hasID: c.HasID, id: c.ID}
}

// Equivalent reports whether c and other would occupy the same
// registry slot — used by Publish's add-unique discipline to decide
// whether a concurrent publisher is racing the same chunk.
func (c *TraceChunk) Equivalent(other *TraceChunk) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.key() == other.key()
}

// acquire attempts to take a reference, failing if the chunk's
// refcount has already reached zero (it is being concurrently
// released). The registry must never hand out a reference to such a
// chunk (spec.md §4.2, §5 invariant 6).
func (c *TraceChunk) acquire() bool {
	for {
		n := c.refcount.Load()
		if n <= 0 {
			return false
		}
		if c.refcount.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops a reference. When the refcount reaches zero, the
// chunk closes its directory handles in the mandated order: the
// session-output directory handle first, then the chunk directory
// handle (spec.md §4.2).
func (c *TraceChunk) Release() {
	if c.refcount.Add(-1) > 0 {
		return
	}
	if c.closed.CompareAndSwap(false, true) {
		c.SessionOutputDir.Close()
		c.ChunkDir.Close()
	}
}

// RefCount reports the current strong reference count. Intended for
// tests and diagnostics only.
func (c *TraceChunk) RefCount() int32 {
	return c.refcount.Load()
}
