package rotation

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/events"
	"github.com/lttng/notifd/internal/trigobj"
)

type notificationEvent struct {
	frame client.Frame
	err   error
}

// Thread is the rotation thread of spec.md §4.6: a sibling of the
// notification thread that owns its own job queue and is itself a
// client of the notification thread's command queue and socket
// protocol. Its event loop generalizes the teacher's
// internal/scheduler.Scheduler (per-task time.Timer map, Start/Stop/
// wg.Wait shutdown) to rotation jobs instead of cron-style tasks.
type Thread struct {
	logger   *slog.Logger
	jobs     *JobQueue
	cmdQueue *cmdqueue.Queue
	rotator  SessionRotator
	relay    RelayProber
	conn     net.Conn // the thread's own notification-channel client connection
	events   *events.Bus

	mu       sync.Mutex
	sessions map[string]*SessionState
	timers   map[jobKey]*time.Timer
	running  bool

	notifications chan notificationEvent
	wg            sync.WaitGroup
}

// New creates a rotation thread. conn is a connection already dialed
// against the notification thread's client socket (spec.md §4.6: "a
// notification-channel socket it opens against the notification
// thread").
func New(logger *slog.Logger, jobs *JobQueue, cmdQueue *cmdqueue.Queue, rotator SessionRotator, relay RelayProber, conn net.Conn) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	return &Thread{
		logger:        logger,
		jobs:          jobs,
		cmdQueue:      cmdQueue,
		rotator:       rotator,
		relay:         relay,
		conn:          conn,
		sessions:      make(map[string]*SessionState),
		timers:        make(map[jobKey]*time.Timer),
		notifications: make(chan notificationEvent, 16),
	}
}

// SetEventBus attaches the bus rotation start/completion is published
// onto for live observers (the admin dashboard's websocket stream). A
// nil bus is fine — Bus.Publish on nil is a no-op.
func (t *Thread) SetEventBus(b *events.Bus) {
	t.events = b
}

// RegisterSession begins tracking sess and subscribes the thread's
// notification connection to a SessionConsumedSize condition at its
// initial threshold.
func (t *Thread) RegisterSession(sess *SessionState) error {
	t.mu.Lock()
	t.sessions[sess.ID] = sess
	t.mu.Unlock()
	return t.subscribeConsumedSize(sess.ID, sess.ConsumedThresholdBytes)
}

func (t *Thread) subscribeConsumedSize(sessionID string, thresholdBytes uint64) error {
	cond := trigobj.NewSessionConsumedSizeCondition(sessionID, thresholdBytes)
	return client.WriteFrame(t.conn, client.Frame{Type: client.MsgSubscribe, Payload: cond.Serialize(nil)})
}

func (t *Thread) unsubscribeConsumedSize(sessionID string, thresholdBytes uint64) error {
	cond := trigobj.NewSessionConsumedSizeCondition(sessionID, thresholdBytes)
	return client.WriteFrame(t.conn, client.Frame{Type: client.MsgUnsubscribe, Payload: cond.Serialize(nil)})
}

// ScheduleRotation arms a ScheduledRotation job for sessionID after
// delay, standing in for the source's periodic session timer.
func (t *Thread) ScheduleRotation(sessionID string, delay time.Duration) {
	t.armTimer(Job{Kind: ScheduledRotation, SessionID: sessionID}, delay)
}

// armTimer (re)schedules a job's deferred enqueue.
func (t *Thread) armTimer(job Job, delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := job.key()
	if existing, ok := t.timers[k]; ok {
		existing.Stop()
	}
	t.timers[k] = time.AfterFunc(delay, func() {
		t.jobs.Enqueue(job)
	})
}

// readLoop forwards frames from the notification connection to the
// event loop until it errors or ctx is cancelled.
func (t *Thread) readLoop(ctx context.Context) {
	defer t.wg.Done()
	for {
		f, err := client.ReadFrame(t.conn)
		select {
		case t.notifications <- notificationEvent{frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// Run drives the rotation thread's event loop until ctx is cancelled,
// standing in for spec.md §4.6's poll set over the quit fd, the job
// queue's event-fd, and the notification-channel socket.
func (t *Thread) Run(ctx context.Context) {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			t.shutdown()
			return

		case <-t.jobs.Notify():
			for _, job := range t.jobs.Drain() {
				t.handleJob(ctx, job)
			}

		case ev := <-t.notifications:
			if ev.err != nil {
				t.logger.Warn("rotation: notification connection closed", "error", ev.err)
				t.shutdown()
				return
			}
			t.handleFrame(ctx, ev.frame)
		}
	}
}

func (t *Thread) shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.timers = make(map[jobKey]*time.Timer)
}

func (t *Thread) handleJob(ctx context.Context, job Job) {
	switch job.Kind {
	case ScheduledRotation:
		t.handleScheduledRotation(ctx, job.SessionID)
	case CheckPendingRotation:
		t.handleCheckPendingRotation(ctx, job.SessionID)
	}
}

// handleScheduledRotation implements spec.md §4.6's ScheduledRotation.
func (t *Thread) handleScheduledRotation(ctx context.Context, sessionID string) {
	sess := t.sessionFor(sessionID)
	if sess == nil {
		return
	}
	if sess.Inactive && sess.RotatedSinceStop {
		return
	}
	if sess.Pending {
		return
	}
	if err := t.rotator.RotateSession(ctx, sessionID); err != nil {
		if err == ErrRotationPending {
			return
		}
		t.logger.Error("rotation: scheduled rotation failed", "session", sessionID, "error", err)
		return
	}

	t.mu.Lock()
	sess.Pending = true
	t.mu.Unlock()
	t.events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceRotation,
		Kind:      events.KindRotationStarted,
		Data:      map[string]any{"session_id": sessionID},
	})
	t.armTimer(Job{Kind: CheckPendingRotation, SessionID: sessionID}, sess.RecheckInterval)
}

// handleCheckPendingRotation implements spec.md §4.6's
// CheckPendingRotation.
func (t *Thread) handleCheckPendingRotation(ctx context.Context, sessionID string) {
	sess := t.sessionFor(sessionID)
	if sess == nil {
		return
	}
	complete, location, err := t.relay.ProbePendingRotation(ctx, sessionID)
	if err != nil {
		t.logger.Error("rotation: probe pending rotation failed", "session", sessionID, "error", err)
		t.armTimer(Job{Kind: CheckPendingRotation, SessionID: sessionID}, sess.RecheckInterval)
		return
	}
	if !complete {
		t.armTimer(Job{Kind: CheckPendingRotation, SessionID: sessionID}, sess.RecheckInterval)
		return
	}

	t.mu.Lock()
	sess.Pending = false
	sess.RotatedSinceStop = true
	t.mu.Unlock()

	t.events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceRotation,
		Kind:      events.KindRotationComplete,
		Data:      map[string]any{"session_id": sessionID, "archive_path": location.AbsolutePath},
	})

	t.cmdQueue.Enqueue(&cmdqueue.Command{
		Kind:        cmdqueue.SessionRotationCompleted,
		SessionName: sessionID,
		Location:    location,
	})
}

// handleFrame dispatches one frame received on the notification
// connection: only MsgNotification is expected here (the thread never
// receives command replies on this connection).
func (t *Thread) handleFrame(ctx context.Context, f client.Frame) {
	if f.Type != client.MsgNotification {
		return
	}
	n, err := trigobj.DeserializeNotification(f.Payload)
	if err != nil {
		t.logger.Warn("rotation: malformed notification", "error", err)
		return
	}
	if n.Condition.Kind != trigobj.ConditionSessionConsumedSize {
		return
	}
	t.handleConsumedSizeNotification(ctx, n)
}

// handleConsumedSizeNotification implements spec.md §4.6's edge-arming
// rule: unsubscribe from the threshold that just fired, invoke a
// rotation, and resubscribe with the threshold advanced by the
// session's configured rotate_size.
func (t *Thread) handleConsumedSizeNotification(ctx context.Context, n *trigobj.Notification) {
	sessionID := n.Condition.SessionName
	sess := t.sessionFor(sessionID)
	if sess == nil {
		return
	}

	firedThreshold := n.Condition.ConsumedThresholdBytes
	if err := t.unsubscribeConsumedSize(sessionID, firedThreshold); err != nil {
		t.logger.Warn("rotation: unsubscribe failed", "session", sessionID, "error", err)
	}

	if err := t.rotator.RotateSession(ctx, sessionID); err != nil && err != ErrRotationPending {
		t.logger.Error("rotation: edge-armed rotation failed", "session", sessionID, "error", err)
	} else {
		t.events.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceRotation,
			Kind:      events.KindRotationStarted,
			Data:      map[string]any{"session_id": sessionID},
		})
	}

	t.mu.Lock()
	sess.Pending = true
	sess.ConsumedThresholdBytes = firedThreshold + sess.RotateSizeBytes
	nextThreshold := sess.ConsumedThresholdBytes
	t.mu.Unlock()

	if err := t.subscribeConsumedSize(sessionID, nextThreshold); err != nil {
		t.logger.Warn("rotation: resubscribe failed", "session", sessionID, "error", err)
	}
	t.armTimer(Job{Kind: CheckPendingRotation, SessionID: sessionID}, sess.RecheckInterval)
}

func (t *Thread) sessionFor(sessionID string) *SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[sessionID]
}
