package notifengine

import (
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/lttng/notifd/internal/trigobj"
)

// Client is a connected notification-socket peer (spec.md §3). Conn
// is owned exclusively by the notification-thread goroutine; no other
// goroutine writes to it (spec.md §5).
type Client struct {
	Conn net.Conn
	UID  int
	GID  int
	ID   uuid.UUID

	mu                   sync.Mutex
	subscribedConditions []*trigobj.Condition
}

func newClient(conn net.Conn, uid, gid int) *Client {
	return &Client{Conn: conn, UID: uid, GID: gid, ID: uuid.New()}
}

// Subscriptions returns a defensive copy of the client's current
// subscribed conditions.
func (c *Client) Subscriptions() []*trigobj.Condition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*trigobj.Condition, len(c.subscribedConditions))
	copy(out, c.subscribedConditions)
	return out
}

// hasCondition reports whether cond is already in the client's
// subscription list, by structural equality.
func (c *Client) hasCondition(cond *trigobj.Condition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.subscribedConditions {
		if existing.Equal(cond) {
			return true
		}
	}
	return false
}

// addCondition appends cond to the client's subscription list.
func (c *Client) addCondition(cond *trigobj.Condition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribedConditions = append(c.subscribedConditions, cond)
}

// removeCondition removes the first condition structurally equal to
// cond, reporting whether one was found.
func (c *Client) removeCondition(cond *trigobj.Condition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.subscribedConditions {
		if existing.Equal(cond) {
			c.subscribedConditions = append(c.subscribedConditions[:i], c.subscribedConditions[i+1:]...)
			return true
		}
	}
	return false
}
