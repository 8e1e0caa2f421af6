package chunkregistry

import (
	"hash/maphash"
	"sync"
)

const shardCount = 32

// chunkKey is the registry's lookup key: (session_id, chunk_id), with
// an absent chunk_id a distinct slot from any present chunk_id value.
type chunkKey struct {
	sessionID uint64
	hasID     bool
	id        uint64
}

type shard struct {
	mu    sync.RWMutex
	byKey map[chunkKey]*TraceChunk
}

// Registry is the process-wide trace-chunk registry of spec.md §4.2.
// It is sharded by a seeded hash of the full (session id, chunk id)
// key — generalizing the teacher's single sync.RWMutex-guarded map
// (connwatch.Manager.watchers) to several independently-locked
// shards — so that lookups of different chunks usually take
// different locks. Chunks of unrelated sessions can still share a
// shard.
type Registry struct {
	seed   maphash.Seed
	shards [shardCount]*shard
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{seed: maphash.MakeSeed()}
	for i := range r.shards {
		r.shards[i] = &shard{byKey: make(map[chunkKey]*TraceChunk)}
	}
	return r
}

func (r *Registry) shardFor(k chunkKey) *shard {
	var h maphash.Hash
	h.SetSeed(r.seed)
	var buf [17]byte
	putUint64(buf[0:8], k.sessionID)
	putUint64(buf[8:16], k.id)
	if k.hasID {
		buf[16] = 1
	}
	h.Write(buf[:])
	return r.shards[h.Sum64()%shardCount]
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Publish inserts chunk under its (session_id, chunk_id) key, or
// returns the already-published equivalent chunk with a fresh
// reference if one exists. This is the add-unique discipline of
// spec.md §4.2: two concurrent publishers of an equivalent chunk
// always end up sharing exactly one surviving element.
func (r *Registry) Publish(chunk *TraceChunk) *TraceChunk {
	k := chunk.key()
	s := r.shardFor(k)

	for {
		s.mu.Lock()
		if existing, ok := s.byKey[k]; ok {
			s.mu.Unlock()
			if existing.acquire() {
				return existing
			}
			// existing is being concurrently released; help evict the
			// stale entry and retry the insert.
			s.mu.Lock()
			if cur, ok := s.byKey[k]; ok && cur == existing {
				delete(s.byKey, k)
			}
			s.mu.Unlock()
			continue
		}
		s.byKey[k] = chunk
		s.mu.Unlock()
		return chunk
	}
}

// Lookup returns a fresh reference to the chunk published under
// (sessionID, id), or nil if none is registered or the registered
// entry's refcount has already reached zero.
func (r *Registry) Lookup(sessionID uint64, id uint64, hasID bool) *TraceChunk {
	k := chunkKey{sessionID: sessionID, hasID: hasID, id: id}
	s := r.shardFor(k)

	s.mu.RLock()
	existing, ok := s.byKey[k]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if !existing.acquire() {
		return nil
	}
	return existing
}

// Remove evicts chunk from the registry if it is still the entry
// published under its key. Callers must still Release their own
// reference; Remove only stops new lookups from finding the chunk.
func (r *Registry) Remove(chunk *TraceChunk) {
	k := chunk.key()
	s := r.shardFor(k)

	s.mu.Lock()
	if cur, ok := s.byKey[k]; ok && cur == chunk {
		delete(s.byKey, k)
	}
	s.mu.Unlock()
}

// Len reports the total number of published entries across all
// shards. Intended for tests and diagnostics.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.byKey)
		s.mu.RUnlock()
	}
	return n
}
