package cmdqueue

import (
	"errors"
	"testing"
	"time"
)

func TestEnqueue_DoesNotBlock(t *testing.T) {
	q := New()
	done := make(chan struct{})
	go func() {
		q.Enqueue(&Command{Kind: AddChannel})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked")
	}

	drained := q.Drain()
	if len(drained) != 1 || drained[0].Kind != AddChannel {
		t.Fatalf("Drain() = %+v, want one AddChannel command", drained)
	}
}

func TestSubmit_BlocksUntilRespond(t *testing.T) {
	q := New()
	resultCh := make(chan Reply, 1)

	go func() {
		resultCh <- q.Submit(&Command{Kind: GetTokens})
	}()

	<-q.Notify()
	cmds := q.Drain()
	if len(cmds) != 1 {
		t.Fatalf("Drain() = %d commands, want 1", len(cmds))
	}
	Respond(cmds[0], Reply{Tokens: []TokenEntry{{TriggerName: "t1", Token: 1}}})

	select {
	case r := <-resultCh:
		if len(r.Tokens) != 1 || r.Tokens[0].Token != 1 {
			t.Fatalf("unexpected reply: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after Respond")
	}
}

func TestSubmit_PropagatesError(t *testing.T) {
	q := New()
	resultCh := make(chan Reply, 1)
	go func() {
		resultCh <- q.Submit(&Command{Kind: RegisterTrigger})
	}()

	<-q.Notify()
	cmds := q.Drain()
	wantErr := errors.New("boom")
	Respond(cmds[0], Reply{Err: wantErr})

	r := <-resultCh
	if r.Err != wantErr {
		t.Fatalf("r.Err = %v, want %v", r.Err, wantErr)
	}
}

func TestDrain_FIFOOrder(t *testing.T) {
	q := New()
	q.Enqueue(&Command{Kind: AddChannel, SessionName: "a"})
	q.Enqueue(&Command{Kind: AddChannel, SessionName: "b"})
	q.Enqueue(&Command{Kind: AddChannel, SessionName: "c"})

	got := q.Drain()
	if len(got) != 3 {
		t.Fatalf("Drain() = %d commands, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].SessionName != want {
			t.Fatalf("Drain()[%d].SessionName = %q, want %q", i, got[i].SessionName, want)
		}
	}
}

func TestDrain_EmptyReturnsNil(t *testing.T) {
	q := New()
	if got := q.Drain(); got != nil {
		t.Fatalf("Drain() on empty queue = %v, want nil", got)
	}
}

func TestRespond_NoWaiterIsNoop(t *testing.T) {
	cmd := &Command{Kind: Quit}
	Respond(cmd, Reply{}) // must not panic or block
}
