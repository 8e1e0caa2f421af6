package webadmin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/events"
	"github.com/lttng/notifd/internal/trigobj"
)

func TestRenderTriggersMarkdown_Empty(t *testing.T) {
	md := renderTriggersMarkdown(nil)
	if !strings.Contains(md, "No triggers registered") {
		t.Errorf("expected empty-state message, got: %s", md)
	}
}

func TestRenderTriggersMarkdown_ListsTrigger(t *testing.T) {
	cond := trigobj.NewBufferUsageCondition(trigobj.BufferUsageHigh, "sess", "chan0", trigobj.DomainKernel, 4096)
	trig := &trigobj.Trigger{Condition: cond, Action: trigobj.NewNotifyAction(), Name: "high-water"}

	md := renderTriggersMarkdown([]*trigobj.Trigger{trig})
	if !strings.Contains(md, "high-water") {
		t.Errorf("expected trigger name in output, got: %s", md)
	}
	if !strings.Contains(md, "buffer-usage") {
		t.Errorf("expected condition kind in output, got: %s", md)
	}
	if !strings.Contains(md, "notify") {
		t.Errorf("expected action kind in output, got: %s", md)
	}
}

func TestHandleTriggers_RendersHTMLFromQueue(t *testing.T) {
	queue := cmdqueue.New()
	s := New(nil, "", queue, nil)

	go func() {
		<-queue.Notify()
		for _, cmd := range queue.Drain() {
			cmdqueue.Respond(cmd, cmdqueue.Reply{List: nil})
		}
	}()

	req := httptest.NewRequest(http.MethodGet, "/triggers", nil)
	rec := httptest.NewRecorder()
	s.handleTriggers(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "notifd triggers") {
		t.Errorf("expected rendered title, got: %s", rec.Body.String())
	}
}

func TestHandleStream_RelaysBusEventsAsJSON(t *testing.T) {
	bus := events.New()
	s := New(nil, "", cmdqueue.New(), bus)

	srv := httptest.NewServer(http.HandlerFunc(s.handleStream))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give handleStream a moment to register its subscription before
	// publishing — otherwise the event could be published before the
	// subscriber channel exists and get dropped by no one.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscriber registration")
		}
		time.Sleep(time.Millisecond)
	}

	bus.Publish(events.Event{Source: events.SourceNotifEngine, Kind: events.KindDispatch, Data: map[string]any{"trigger_name": "t0"}})

	var got events.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Kind != events.KindDispatch || got.Data["trigger_name"] != "t0" {
		t.Errorf("unexpected event: %+v", got)
	}
}
