package rotation

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/trigobj"
)

type fakeRotator struct {
	calls []string
	err   error
}

func (f *fakeRotator) RotateSession(ctx context.Context, sessionID string) error {
	f.calls = append(f.calls, sessionID)
	return f.err
}

type fakeRelay struct {
	complete bool
	location *trigobj.TraceArchiveLocation
	err      error
}

func (f *fakeRelay) ProbePendingRotation(ctx context.Context, sessionID string) (bool, *trigobj.TraceArchiveLocation, error) {
	return f.complete, f.location, f.err
}

func newTestThread(t *testing.T, rotator SessionRotator, relay RelayProber) (*Thread, net.Conn) {
	t.Helper()
	server, peer := net.Pipe()
	jobs := NewJobQueue()
	cmdQueue := cmdqueue.New()
	th := New(nil, jobs, cmdQueue, rotator, relay, server)
	t.Cleanup(func() { server.Close(); peer.Close() })
	return th, peer
}

func TestRegisterSession_SendsSubscribeFrame(t *testing.T) {
	th, peer := newTestThread(t, &fakeRotator{}, &fakeRelay{})
	sess := &SessionState{ID: "sess1", ConsumedThresholdBytes: 1000, RotateSizeBytes: 500}

	done := make(chan error, 1)
	go func() { done <- th.RegisterSession(sess) }()

	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != client.MsgSubscribe {
		t.Fatalf("expected Subscribe frame, got %v", f.Type)
	}
	cond, err := trigobj.DeserializeCondition(f.Payload)
	if err != nil {
		t.Fatalf("DeserializeCondition: %v", err)
	}
	if cond.Kind != trigobj.ConditionSessionConsumedSize || cond.ConsumedThresholdBytes != 1000 {
		t.Errorf("unexpected subscribed condition: %+v", cond)
	}
	if err := <-done; err != nil {
		t.Fatalf("RegisterSession: %v", err)
	}
}

func TestHandleScheduledRotation_InactiveAlreadyRotatedDrops(t *testing.T) {
	rotator := &fakeRotator{}
	th, _ := newTestThread(t, rotator, &fakeRelay{})
	th.sessions["sess1"] = &SessionState{ID: "sess1", Inactive: true, RotatedSinceStop: true}

	th.handleScheduledRotation(context.Background(), "sess1")

	if len(rotator.calls) != 0 {
		t.Fatalf("expected no rotation call, got %v", rotator.calls)
	}
}

func TestHandleScheduledRotation_AlreadyPendingDrops(t *testing.T) {
	rotator := &fakeRotator{}
	th, _ := newTestThread(t, rotator, &fakeRelay{})
	th.sessions["sess1"] = &SessionState{ID: "sess1", Pending: true}

	th.handleScheduledRotation(context.Background(), "sess1")

	if len(rotator.calls) != 0 {
		t.Fatalf("expected no rotation call when already pending, got %v", rotator.calls)
	}
}

func TestHandleScheduledRotation_InvokesRotateAndArmsPending(t *testing.T) {
	rotator := &fakeRotator{}
	th, _ := newTestThread(t, rotator, &fakeRelay{})
	sess := &SessionState{ID: "sess1", RecheckInterval: time.Hour}
	th.sessions["sess1"] = sess

	th.handleScheduledRotation(context.Background(), "sess1")

	if len(rotator.calls) != 1 || rotator.calls[0] != "sess1" {
		t.Fatalf("expected one rotation call for sess1, got %v", rotator.calls)
	}
	if !sess.Pending {
		t.Fatal("expected session marked pending after a scheduled rotation")
	}
}

func TestHandleScheduledRotation_AlreadyPendingErrorIsBenign(t *testing.T) {
	rotator := &fakeRotator{err: ErrRotationPending}
	th, _ := newTestThread(t, rotator, &fakeRelay{})
	sess := &SessionState{ID: "sess1"}
	th.sessions["sess1"] = sess

	th.handleScheduledRotation(context.Background(), "sess1")

	if sess.Pending {
		t.Fatal("an already-pending outcome should not mark the session pending again")
	}
}

func TestHandleCheckPendingRotation_IncompleteReschedules(t *testing.T) {
	th, _ := newTestThread(t, &fakeRotator{}, &fakeRelay{complete: false})
	sess := &SessionState{ID: "sess1", Pending: true, RecheckInterval: time.Hour}
	th.sessions["sess1"] = sess

	th.handleCheckPendingRotation(context.Background(), "sess1")

	if !sess.Pending {
		t.Fatal("session should remain pending while the relay reports incomplete")
	}
	if _, ok := th.timers[(Job{Kind: CheckPendingRotation, SessionID: "sess1"}).key()]; !ok {
		t.Fatal("expected a rescheduled CheckPendingRotation timer")
	}
}

func TestHandleCheckPendingRotation_CompleteEnqueuesRotationCompleted(t *testing.T) {
	loc := &trigobj.TraceArchiveLocation{Kind: trigobj.LocationLocal, AbsolutePath: "/tmp/chunk"}
	th, _ := newTestThread(t, &fakeRotator{}, &fakeRelay{complete: true, location: loc})
	sess := &SessionState{ID: "sess1", Pending: true}
	th.sessions["sess1"] = sess

	th.handleCheckPendingRotation(context.Background(), "sess1")

	if sess.Pending {
		t.Fatal("expected Pending cleared on completion")
	}
	if !sess.RotatedSinceStop {
		t.Fatal("expected RotatedSinceStop set on completion")
	}

	drained := th.cmdQueue.Drain()
	if len(drained) != 1 || drained[0].Kind != cmdqueue.SessionRotationCompleted {
		t.Fatalf("expected one SessionRotationCompleted command, got %+v", drained)
	}
	if drained[0].Location != loc {
		t.Fatalf("expected location to be forwarded, got %+v", drained[0].Location)
	}
}

func TestHandleConsumedSizeNotification_EdgeArmsAndAdvancesThreshold(t *testing.T) {
	rotator := &fakeRotator{}
	th, peer := newTestThread(t, rotator, &fakeRelay{})
	sess := &SessionState{ID: "sess1", ConsumedThresholdBytes: 1000, RotateSizeBytes: 500, RecheckInterval: time.Hour}
	th.sessions["sess1"] = sess

	cond := trigobj.NewSessionConsumedSizeCondition("sess1", 1000)
	eval := trigobj.NewBufferUsageEvaluation(1000, 1000)
	notification := trigobj.NewNotification(cond, eval)

	readErrs := make(chan error, 2)
	go func() {
		for i := 0; i < 2; i++ {
			if _, err := client.ReadFrame(peer); err != nil {
				readErrs <- err
				return
			}
		}
		readErrs <- nil
	}()

	th.handleConsumedSizeNotification(context.Background(), notification)

	if err := <-readErrs; err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(rotator.calls) != 1 {
		t.Fatalf("expected one rotation call, got %v", rotator.calls)
	}
	if sess.ConsumedThresholdBytes != 1500 {
		t.Fatalf("expected threshold advanced to 1500, got %d", sess.ConsumedThresholdBytes)
	}
	if !sess.Pending {
		t.Fatal("expected session marked pending after edge-armed rotation")
	}
}

func TestHandleConsumedSizeNotification_RotationPendingIsBenign(t *testing.T) {
	rotator := &fakeRotator{err: ErrRotationPending}
	th, peer := newTestThread(t, rotator, &fakeRelay{})
	sess := &SessionState{ID: "sess1", ConsumedThresholdBytes: 1000, RotateSizeBytes: 500}
	th.sessions["sess1"] = sess
	go func() {
		client.ReadFrame(peer)
		client.ReadFrame(peer)
	}()

	cond := trigobj.NewSessionConsumedSizeCondition("sess1", 1000)
	eval := trigobj.NewBufferUsageEvaluation(1000, 1000)
	notification := trigobj.NewNotification(cond, eval)

	th.handleConsumedSizeNotification(context.Background(), notification)

	if sess.ConsumedThresholdBytes != 1500 {
		t.Fatalf("expected threshold still advanced despite benign pending error, got %d", sess.ConsumedThresholdBytes)
	}
}
