// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from daemon components (the notification
// engine, the rotation thread, the MQTT bridge) to subscribers (the admin
// dashboard's WebSocket handler, future metrics collectors). The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op, so components do not
// need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which daemon component published an event.
const (
	// SourceNotifEngine identifies events from the notification thread.
	SourceNotifEngine = "notifengine"
	// SourceRotation identifies events from the rotation thread.
	SourceRotation = "rotation"
	// SourceMQTTBridge identifies events from the MQTT bridge.
	SourceMQTTBridge = "mqttbridge"
)

// Kind constants describe the type of event within a source.
const (
	// KindDispatch signals a notification was dispatched to subscribed
	// clients. Data: trigger_name, condition_kind, evaluation_kind,
	// client_count, and (for BufferUsage) used_bytes/capacity.
	KindDispatch = "dispatch"
	// KindTriggerRegistered signals a trigger was added to the registry.
	// Data: trigger_name, condition_kind.
	KindTriggerRegistered = "trigger_registered"
	// KindTriggerUnregistered signals a trigger was removed.
	// Data: trigger_name.
	KindTriggerUnregistered = "trigger_unregistered"
	// KindRotationStarted signals a session rotation job began executing.
	// Data: session_id.
	KindRotationStarted = "rotation_started"
	// KindRotationComplete signals a session rotation finished and its
	// archive location was confirmed. Data: session_id, archive_path.
	KindRotationComplete = "rotation_complete"
	// KindBridgePublish signals a notification was forwarded onto MQTT.
	// Data: trigger_name, topic.
	KindBridgePublish = "bridge_publish"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op), so engine code
// can hold a possibly-nil *Bus without branching on every dispatch.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
