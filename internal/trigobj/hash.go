package trigobj

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// HashCondition computes the structural hash used as the key into the
// notification thread's condition-keyed indexes (spec.md §4.3):
// `channel_triggers`, `notification_trigger_clients`, `triggers`. Two
// structurally equal conditions (per Condition.Equal) always hash
// identically because the hash is taken over the same serialized form
// used for the wire codec, not over pointer identity or field order.
func HashCondition(c *Condition) uint64 {
	e := newEncoder()
	c.serialize(e)
	sum := blake2b.Sum512(e.buf)
	return binary.LittleEndian.Uint64(sum[:8])
}
