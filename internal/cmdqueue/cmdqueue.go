// Package cmdqueue implements the mutex-protected command queue of
// spec.md §4.4: every daemon thread other than the notification
// thread itself is a client of this queue. Enqueue is fire-and-forget;
// Submit additionally blocks the caller on a per-command waiter until
// the notification thread has handled the command and posted a reply.
package cmdqueue

import (
	"sync"

	"github.com/lttng/notifd/internal/trigobj"
)

// Kind enumerates the command kinds of spec.md §4.4.
type Kind uint8

const (
	RegisterTrigger Kind = iota
	UnregisterTrigger
	AddChannel
	RemoveChannel
	SessionRotationOngoing
	SessionRotationCompleted
	AddApplication
	RemoveApplication
	GetTokens
	ListTriggers
	Quit
)

func (k Kind) String() string {
	switch k {
	case RegisterTrigger:
		return "RegisterTrigger"
	case UnregisterTrigger:
		return "UnregisterTrigger"
	case AddChannel:
		return "AddChannel"
	case RemoveChannel:
		return "RemoveChannel"
	case SessionRotationOngoing:
		return "SessionRotationOngoing"
	case SessionRotationCompleted:
		return "SessionRotationCompleted"
	case AddApplication:
		return "AddApplication"
	case RemoveApplication:
		return "RemoveApplication"
	case GetTokens:
		return "GetTokens"
	case ListTriggers:
		return "ListTriggers"
	case Quit:
		return "Quit"
	default:
		return "Unknown"
	}
}

// Credentials identifies the uid/gid of a command's requester, used
// by ListTriggers' ownership filter (spec.md original-source
// supplement: non-root callers only see triggers they registered).
type Credentials struct {
	UID int
	GID int
}

// ChannelKey identifies a channel uniquely within a domain.
type ChannelKey struct {
	Key    uint64
	Domain trigobj.Domain
}

// ChannelInfo describes a channel the consumer daemon has announced,
// used by AddChannel/RemoveChannel (spec.md §3 ChannelInfo).
type ChannelInfo struct {
	Key           ChannelKey
	SessionName   string
	ChannelName   string
	CapacityBytes uint64
}

// ApplicationInfo describes an instrumented application process
// (AddApplication/RemoveApplication).
type ApplicationInfo struct {
	PID    int
	Domain trigobj.Domain
}

// Command is the payload enqueued into the queue. Only the fields
// relevant to Kind are meaningful, mirroring the tagged-union style
// used throughout this codebase (trigobj.Condition, trigobj.Action).
type Command struct {
	Kind Kind

	Requester Credentials

	// RegisterTrigger / UnregisterTrigger.
	Trigger     *trigobj.Trigger
	TriggerName string

	// AddChannel / RemoveChannel.
	Channel   ChannelInfo
	ChannelID ChannelKey

	// SessionRotationOngoing / SessionRotationCompleted.
	SessionName  string
	SessionCreds Credentials
	ChunkID      uint64
	HasChunkID   bool
	Location     *trigobj.TraceArchiveLocation // set only for SessionRotationCompleted

	// AddApplication / RemoveApplication.
	App ApplicationInfo

	// GetTokens: no input fields; Result carries the snapshot.
	// ListTriggers: uses Requester for the ownership filter.

	waiter chan Reply
}

// Reply is the result of a handled command, posted by the
// notification thread to a command's waiter channel (Submit only).
type Reply struct {
	Err    error
	Tokens []TokenEntry
	List   []*trigobj.Trigger
}

// TokenEntry pairs a trigger name with its allocated token, for
// GetTokens' snapshot.
type TokenEntry struct {
	TriggerName string
	Token       uint64
}

// Queue is the mutex-protected FIFO of spec.md §4.4. Every enqueue
// makes a non-blocking send on the Notify channel, which has a buffer
// of one and is never closed or replaced, so a single consumer select
// loop can multiplex it alongside other event sources — Go's
// buffered-channel-of-one idiom standing in for the source's
// event-fd write.
type Queue struct {
	mu     sync.Mutex
	list   []*Command
	notify chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Notify returns the channel that receives a wakeup signal whenever a
// command is enqueued. The notification thread's event loop selects
// on this channel the same way it would poll an event-fd.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue appends cmd without creating a waiter; the caller does not
// block and will never see a reply.
func (q *Queue) Enqueue(cmd *Command) {
	q.mu.Lock()
	q.list = append(q.list, cmd)
	q.mu.Unlock()
	q.wake()
}

// Submit appends cmd with a waiter and blocks until the notification
// thread posts a reply via Reply.
func (q *Queue) Submit(cmd *Command) Reply {
	cmd.waiter = make(chan Reply, 1)
	q.mu.Lock()
	q.list = append(q.list, cmd)
	q.mu.Unlock()
	q.wake()
	return <-cmd.waiter
}

// Drain removes and returns every command currently queued, in FIFO
// order, for the notification thread to process in one wakeup.
func (q *Queue) Drain() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.list) == 0 {
		return nil
	}
	drained := q.list
	q.list = nil
	return drained
}

// Respond posts r to cmd's waiter, if it has one (Submit commands do;
// Enqueue commands do not and Respond is then a no-op).
func Respond(cmd *Command, r Reply) {
	if cmd.waiter == nil {
		return
	}
	cmd.waiter <- r
}
