// Package notifengine implements the notification thread's state and
// event loop (spec.md §4.3, C3): the five hash indexes plus the
// pollset-driven dispatch loop, generalized to a single goroutine
// multiplexing channels via select instead of poll(2).
package notifengine

import (
	"context"
	"log/slog"
	"net"

	"github.com/lttng/notifd/internal/audit"
	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/evaluate"
	"github.com/lttng/notifd/internal/events"
	"github.com/lttng/notifd/internal/trigobj"
)

// SampleMsg is one channel-occupancy reading drained from a
// per-tracer channel-monitor pipe (spec.md §4.5), tagged with the
// domain the pipe belongs to.
type SampleMsg struct {
	Key      cmdqueue.ChannelKey
	Sample   evaluate.Sample
	Capacity uint64
}

// TriggerHitMsg is one event-rule hit forwarded from the trigger-hit
// pipe (spec.md §3/§4.8).
type TriggerHitMsg struct {
	Token          uint64
	CapturedValues *trigobj.EventFieldValue
	HasCaptured    bool
}

type clientFrameEvent struct {
	c     *Client
	frame client.Frame
	err   error
}

// Engine is the notification thread's state and event loop.
type Engine struct {
	logger     *slog.Logger
	queue      *cmdqueue.Queue
	listener   net.Listener
	captureSet *trigobj.CaptureBytecodeSet

	st *state

	clientEvents chan clientFrameEvent
	newConns     chan net.Conn
	samples      chan SampleMsg
	triggerHits  chan TriggerHitMsg

	credentialsOf func(net.Conn) (uid, gid int, err error)

	audit *audit.Log // nil disables audit recording

	events *events.Bus // nil disables live streaming (Publish is nil-safe)
}

// SetAuditLog attaches an audit log that every subsequent dispatch is
// best-effort recorded into.
func (e *Engine) SetAuditLog(l *audit.Log) {
	e.audit = l
}

// SetEventBus attaches the bus that every subsequent dispatch,
// trigger registration/removal is published onto for live observers
// (the admin dashboard's websocket stream). A nil bus is fine — Bus.
// Publish on nil is a no-op.
func (e *Engine) SetEventBus(b *events.Bus) {
	e.events = b
}

// New creates an engine listening on l and draining commands from q.
// credentialsOf retrieves a newly accepted connection's peer
// credentials (client.PeerCredentials in production; overridable in
// tests).
func New(logger *slog.Logger, l net.Listener, q *cmdqueue.Queue, credentialsOf func(net.Conn) (int, int, error)) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:        logger,
		queue:         q,
		listener:      l,
		captureSet:    trigobj.NewCaptureBytecodeSet(),
		st:            newState(),
		clientEvents:  make(chan clientFrameEvent, 64),
		newConns:      make(chan net.Conn, 16),
		samples:       make(chan SampleMsg, 256),
		triggerHits:   make(chan TriggerHitMsg, 64),
		credentialsOf: credentialsOf,
	}
}

// Samples returns the channel the consumer-side timer thread (or a
// test) writes channel-occupancy samples into.
func (e *Engine) Samples() chan<- SampleMsg { return e.samples }

// TriggerHits returns the channel event-rule hits are forwarded on.
func (e *Engine) TriggerHits() chan<- TriggerHitMsg { return e.triggerHits }

// acceptLoop accepts new connections until the listener closes or ctx
// is cancelled, forwarding each to newConns for the main loop to
// admit (event 8 of spec.md §4.3).
func (e *Engine) acceptLoop(ctx context.Context) {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			e.logger.Warn("notifengine: accept error", "error", err)
			return
		}
		select {
		case e.newConns <- conn:
		case <-ctx.Done():
			conn.Close()
			return
		}
	}
}

// clientReadLoop reads frames from c until it errors or ctx is
// cancelled, forwarding each to clientEvents (event 9).
func (e *Engine) clientReadLoop(ctx context.Context, c *Client) {
	for {
		f, err := client.ReadFrame(c.Conn)
		select {
		case e.clientEvents <- clientFrameEvent{c: c, frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Run drives the event loop until ctx is cancelled, standing in for
// spec.md §4.3's poll(-1) over the quit fd, command-queue event-fd,
// listening socket, client sockets, channel-monitor pipes, and
// trigger-hit pipe.
func (e *Engine) Run(ctx context.Context) {
	go e.acceptLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			e.handleQuit()
			return

		case <-e.queue.Notify():
			for _, cmd := range e.queue.Drain() {
				if cmd.Kind == cmdqueue.Quit {
					cmdqueue.Respond(cmd, cmdqueue.Reply{})
					e.handleQuit()
					return
				}
				e.handleCommand(cmd)
			}

		case conn := <-e.newConns:
			e.handleNewClient(ctx, conn)

		case ev := <-e.clientEvents:
			if ev.err != nil {
				e.handleClientDisconnect(ev.c)
				continue
			}
			e.handleClientFrame(ev.c, ev.frame)

		case s := <-e.samples:
			e.handleChannelSample(s)

		case hit := <-e.triggerHits:
			e.handleTriggerHit(hit)
		}
	}
}
