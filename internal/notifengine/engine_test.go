package notifengine

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/evaluate"
	"github.com/lttng/notifd/internal/trigobj"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(nil, nil, cmdqueue.New(), nil)
	return e
}

// newTestClient wires a net.Pipe-backed Client into e's state directly,
// bypassing acceptLoop/credentialsOf, and returns the peer end for the
// test to read notifications from.
func newTestClient(t *testing.T, e *Engine) (*Client, net.Conn) {
	t.Helper()
	server, peer := net.Pipe()
	c := newClient(server, 1000, 1000)
	e.st.clientsByConn[server] = c
	e.st.clientsByID[c.ID.String()] = c
	return c, peer
}

func bufCond(variant trigobj.BufferUsageVariant, thresholdBytes uint64, session, channel string, domain trigobj.Domain) *trigobj.Condition {
	return trigobj.NewBufferUsageCondition(variant, session, channel, domain, thresholdBytes)
}

func testTrigger(cond *trigobj.Condition) *trigobj.Trigger {
	return &trigobj.Trigger{
		Condition: cond,
		Action:    trigobj.NewNotifyAction(),
	}
}

func TestHandleAddChannel_AttachesMatchingTrigger(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 100, "sess", "chan", trigobj.DomainUser)
	tr := testTrigger(cond)
	if err := e.handleRegisterTrigger(tr, cmdqueue.Credentials{}); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}

	key := cmdqueue.ChannelKey{Key: 1, Domain: trigobj.DomainUser}
	e.handleAddChannel(cmdqueue.ChannelInfo{Key: key, SessionName: "sess", ChannelName: "chan", CapacityBytes: 1000})

	attached := e.st.channelTriggers[key]
	if len(attached) != 1 || attached[0] != tr {
		t.Fatalf("expected trigger attached to channel, got %+v", attached)
	}
}

func TestHandleRemoveChannel_UnknownReturnsError(t *testing.T) {
	e := newTestEngine(t)
	if err := e.handleRemoveChannel(cmdqueue.ChannelKey{Key: 99}); err != ErrChannelNotFound {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestHandleRegisterTrigger_DuplicateConditionRejected(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 100, "sess", "chan", trigobj.DomainUser)
	if err := e.handleRegisterTrigger(testTrigger(cond), cmdqueue.Credentials{}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := e.handleRegisterTrigger(testTrigger(bufCond(trigobj.BufferUsageHigh, 100, "sess", "chan", trigobj.DomainUser)), cmdqueue.Credentials{})
	if err != ErrTriggerExists {
		t.Fatalf("expected ErrTriggerExists, got %v", err)
	}
}

func TestHandleRegisterTrigger_AutoGeneratesName(t *testing.T) {
	e := newTestEngine(t)
	tr := testTrigger(bufCond(trigobj.BufferUsageHigh, 100, "sess", "chan", trigobj.DomainUser))
	if err := e.handleRegisterTrigger(tr, cmdqueue.Credentials{}); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}
	if tr.Name == "" {
		t.Fatal("expected an auto-generated name")
	}
}

func TestHandleListTriggers_OwnershipFilter(t *testing.T) {
	e := newTestEngine(t)
	owner := cmdqueue.Credentials{UID: 1000}
	other := cmdqueue.Credentials{UID: 2000}

	trOwner := testTrigger(bufCond(trigobj.BufferUsageHigh, 100, "s1", "c1", trigobj.DomainUser))
	trOther := testTrigger(bufCond(trigobj.BufferUsageHigh, 200, "s2", "c2", trigobj.DomainUser))
	if err := e.handleRegisterTrigger(trOwner, owner); err != nil {
		t.Fatalf("register owner trigger: %v", err)
	}
	if err := e.handleRegisterTrigger(trOther, other); err != nil {
		t.Fatalf("register other trigger: %v", err)
	}

	got := e.handleListTriggers(owner)
	if len(got) != 1 || got[0] != trOwner {
		t.Fatalf("non-root requester should only see own triggers, got %+v", got)
	}

	root := e.handleListTriggers(cmdqueue.Credentials{UID: 0})
	if len(root) != 2 {
		t.Fatalf("root requester should see all triggers, got %d", len(root))
	}
}

func TestHandleSubscribe_DispatchesOnSample(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser)
	tr := testTrigger(cond)
	if err := e.handleRegisterTrigger(tr, cmdqueue.Credentials{}); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}

	key := cmdqueue.ChannelKey{Key: 1, Domain: trigobj.DomainUser}
	e.handleAddChannel(cmdqueue.ChannelInfo{Key: key, SessionName: "sess", ChannelName: "chan", CapacityBytes: 1000})

	c, peer := newTestClient(t, e)
	defer peer.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f, err := client.ReadFrame(peer)
		if err != nil {
			t.Errorf("ReadFrame (subscribe ack): %v", err)
			return
		}
		if f.Type != client.MsgCommandReply || client.StatusCode(f.Payload[0]) != client.StatusOK {
			t.Errorf("expected OK ack, got %+v", f)
		}
	}()

	payload := cond.Serialize(nil)
	e.handleSubscribe(c, payload)
	<-done

	go e.handleChannelSample(SampleMsg{Key: key, Sample: evaluate.Sample{HighestUsage: 600}, Capacity: 1000})

	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame (notification): %v", err)
	}
	if f.Type != client.MsgNotification {
		t.Fatalf("expected notification frame, got type %v", f.Type)
	}
	n, err := trigobj.DeserializeNotification(f.Payload)
	if err != nil {
		t.Fatalf("DeserializeNotification: %v", err)
	}
	if !n.Condition.Equal(cond) {
		t.Errorf("notification condition mismatch: got %+v", n.Condition)
	}
}

func TestHandleSubscribe_AlreadySubscribedStatus(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser)
	c, peer := newTestClient(t, e)
	defer peer.Close()

	payload := cond.Serialize(nil)
	go func() { client.ReadFrame(peer) }()
	e.handleSubscribe(c, payload)

	go e.handleSubscribe(c, payload)
	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if client.StatusCode(f.Payload[0]) != client.StatusAlreadySubscribed {
		t.Fatalf("expected AlreadySubscribed, got %v", f.Payload)
	}
}

func TestHandleUnsubscribe_UnknownConditionStatus(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser)
	c, peer := newTestClient(t, e)
	defer peer.Close()

	go e.handleUnsubscribe(c, cond.Serialize(nil))
	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if client.StatusCode(f.Payload[0]) != client.StatusUnknownCondition {
		t.Fatalf("expected UnknownCondition, got %v", f.Payload)
	}
}

func TestHandleClientDisconnect_RemovesFromIndexes(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser)
	c, peer := newTestClient(t, e)
	defer peer.Close()

	go func() { client.ReadFrame(peer) }()
	e.handleSubscribe(c, cond.Serialize(nil))

	e.handleClientDisconnect(c)

	if _, ok := e.st.clientsByConn[c.Conn]; ok {
		t.Fatal("client should be removed from clientsByConn")
	}
	key := trigobj.HashCondition(cond)
	for _, entry := range e.st.notificationTriggerClients[key] {
		if entry == c {
			t.Fatal("disconnected client should be removed from notificationTriggerClients")
		}
	}
}

func TestHandleClientRegisterTrigger_SendsOKAndCredentialsBecomeOwner(t *testing.T) {
	e := newTestEngine(t)
	c, peer := newTestClient(t, e)
	defer peer.Close()
	c.UID = 1000

	tr := testTrigger(bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser))
	payload := tr.Serialize(nil)

	go func() {
		e.handleClientRegisterTrigger(c, payload)
	}()

	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != client.MsgCommandReply || client.StatusCode(f.Payload[0]) != client.StatusOK {
		t.Fatalf("expected OK, got %+v", f)
	}

	key := trigobj.HashCondition(tr.Condition)
	registered, ok := e.st.triggers[key]
	if !ok {
		t.Fatal("expected trigger to be registered")
	}
	if owner := e.st.triggerOwner[registered.Name]; owner.UID != 1000 {
		t.Errorf("expected owner uid 1000, got %+v", owner)
	}
}

func TestHandleClientRegisterTrigger_DuplicateReturnsTriggerExists(t *testing.T) {
	e := newTestEngine(t)
	cond := bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser)
	if err := e.handleRegisterTrigger(testTrigger(cond), cmdqueue.Credentials{}); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}

	c, peer := newTestClient(t, e)
	defer peer.Close()
	payload := testTrigger(bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser)).Serialize(nil)

	go func() { e.handleClientRegisterTrigger(c, payload) }()

	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if client.StatusCode(f.Payload[0]) != client.StatusTriggerExists {
		t.Fatalf("expected StatusTriggerExists, got %v", f.Payload)
	}
}

func TestHandleClientUnregisterTrigger_NonOwnerRejected(t *testing.T) {
	e := newTestEngine(t)
	owner := cmdqueue.Credentials{UID: 1000}
	tr := testTrigger(bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser))
	if err := e.handleRegisterTrigger(tr, owner); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}

	c, peer := newTestClient(t, e)
	defer peer.Close()
	c.UID = 2000

	go func() { e.handleClientUnregisterTrigger(c, []byte(tr.Name)) }()

	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if client.StatusCode(f.Payload[0]) != client.StatusNotFound {
		t.Fatalf("expected StatusNotFound for non-owner unregister, got %v", f.Payload)
	}
	if _, ok := e.st.triggersByName[tr.Name]; !ok {
		t.Fatal("trigger should not have been removed")
	}
}

func TestHandleClientListTriggers_SendsTriggerList(t *testing.T) {
	e := newTestEngine(t)
	tr := testTrigger(bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser))
	// Owned by the test client's uid (1000): non-root clients only see
	// their own triggers.
	if err := e.handleRegisterTrigger(tr, cmdqueue.Credentials{UID: 1000}); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}

	c, peer := newTestClient(t, e)
	defer peer.Close()

	go func() { e.handleClientListTriggers(c) }()

	f, err := client.ReadFrame(peer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Type != client.MsgTriggerList {
		t.Fatalf("expected MsgTriggerList, got %v", f.Type)
	}

	size := binary.LittleEndian.Uint32(f.Payload[:4])
	got, err := trigobj.DeserializeTrigger(f.Payload[4 : 4+size])
	if err != nil {
		t.Fatalf("DeserializeTrigger: %v", err)
	}
	if got.Name != tr.Name {
		t.Errorf("expected trigger %q in list, got %q", tr.Name, got.Name)
	}
}

func TestHandleQuit_ClearsAllState(t *testing.T) {
	e := newTestEngine(t)
	tr := testTrigger(bufCond(trigobj.BufferUsageHigh, 500, "sess", "chan", trigobj.DomainUser))
	if err := e.handleRegisterTrigger(tr, cmdqueue.Credentials{}); err != nil {
		t.Fatalf("handleRegisterTrigger: %v", err)
	}
	_, peer := newTestClient(t, e)
	defer peer.Close()

	e.handleQuit()

	if len(e.st.clientsByConn) != 0 || len(e.st.triggers) != 0 || len(e.st.triggerOwner) != 0 {
		t.Fatalf("expected all state cleared, got clients=%d triggers=%d owners=%d",
			len(e.st.clientsByConn), len(e.st.triggers), len(e.st.triggerOwner))
	}
}
