package notifengine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lttng/notifd/internal/audit"
	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/cmdqueue"
	"github.com/lttng/notifd/internal/evaluate"
	"github.com/lttng/notifd/internal/events"
	"github.com/lttng/notifd/internal/trigobj"
)

// ErrTriggerExists is returned by RegisterTrigger when an equivalent
// condition is already registered (spec.md §4.3 event 3).
var ErrTriggerExists = errors.New("notifengine: trigger with equivalent condition already registered")

// ErrChannelNotFound is returned when a command references a channel
// key that is not present in the channels index.
var ErrChannelNotFound = errors.New("notifengine: channel not found")

// handleCommand dispatches one drained command to its handler and
// posts a reply if the command was submitted with a waiter.
func (e *Engine) handleCommand(cmd *cmdqueue.Command) {
	switch cmd.Kind {
	case cmdqueue.AddChannel:
		e.handleAddChannel(cmd.Channel)
		cmdqueue.Respond(cmd, cmdqueue.Reply{})

	case cmdqueue.RemoveChannel:
		err := e.handleRemoveChannel(cmd.ChannelID)
		cmdqueue.Respond(cmd, cmdqueue.Reply{Err: err})

	case cmdqueue.RegisterTrigger:
		err := e.handleRegisterTrigger(cmd.Trigger, cmd.Requester)
		cmdqueue.Respond(cmd, cmdqueue.Reply{Err: err})

	case cmdqueue.UnregisterTrigger:
		err := e.handleUnregisterTrigger(cmd.TriggerName)
		cmdqueue.Respond(cmd, cmdqueue.Reply{Err: err})

	case cmdqueue.SessionRotationOngoing:
		e.handleSessionRotationOngoing(cmd.SessionName, cmd.ChunkID, cmd.HasChunkID)
		cmdqueue.Respond(cmd, cmdqueue.Reply{})

	case cmdqueue.SessionRotationCompleted:
		e.handleSessionRotationCompleted(cmd.SessionName, cmd.ChunkID, cmd.HasChunkID, cmd.Location)
		cmdqueue.Respond(cmd, cmdqueue.Reply{})

	case cmdqueue.AddApplication, cmdqueue.RemoveApplication:
		// Application bookkeeping does not affect the trigger/channel
		// indexes; acknowledged so submitters are not left blocked.
		cmdqueue.Respond(cmd, cmdqueue.Reply{})

	case cmdqueue.GetTokens:
		cmdqueue.Respond(cmd, cmdqueue.Reply{Tokens: e.handleGetTokens()})

	case cmdqueue.ListTriggers:
		cmdqueue.Respond(cmd, cmdqueue.Reply{List: e.handleListTriggers(cmd.Requester)})

	default:
		cmdqueue.Respond(cmd, cmdqueue.Reply{Err: fmt.Errorf("notifengine: unhandled command kind %v", cmd.Kind)})
	}
}

// handleAddChannel is event 1: record the channel and attach every
// already-registered trigger whose condition applies to it.
func (e *Engine) handleAddChannel(info cmdqueue.ChannelInfo) {
	stored := info
	e.st.channels[info.Key] = &stored

	var attached []*trigobj.Trigger
	for _, t := range e.st.triggers {
		if applicableToChannel(t, info.SessionName, info.ChannelName, info.Key.Domain) {
			attached = append(attached, t)
		}
	}
	e.st.channelTriggers[info.Key] = attached
}

// handleRemoveChannel is event 2.
func (e *Engine) handleRemoveChannel(key cmdqueue.ChannelKey) error {
	if _, ok := e.st.channels[key]; !ok {
		return ErrChannelNotFound
	}
	delete(e.st.channelTriggers, key)
	delete(e.st.channelState, key)
	delete(e.st.channels, key)
	return nil
}

// handleRegisterTrigger is event 3.
func (e *Engine) handleRegisterTrigger(t *trigobj.Trigger, requester cmdqueue.Credentials) error {
	if t == nil {
		return fmt.Errorf("notifengine: nil trigger")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := t.Condition.Populate(e.captureSet); err != nil {
		return err
	}

	key := trigobj.HashCondition(t.Condition)
	if _, exists := e.st.triggers[key]; exists {
		return ErrTriggerExists
	}

	if t.Name == "" {
		t.Name = e.st.allocateTriggerName()
	}
	if t.Condition.Kind == trigobj.ConditionEventRuleHit {
		t.HasToken = true
		t.Token = e.st.allocateTriggerToken()
		e.st.triggerTokens[t.Token] = t
	}

	e.st.triggers[key] = t
	e.st.triggersByName[t.Name] = t
	e.st.triggerOwner[t.Name] = requester

	var subscribed []*Client
	for _, c := range e.st.clientsByConn {
		if c.hasCondition(t.Condition) {
			subscribed = append(subscribed, c)
		}
	}
	e.st.notificationTriggerClients[key] = subscribed

	for channelKey, chInfo := range e.st.channels {
		if applicableToChannel(t, chInfo.SessionName, chInfo.ChannelName, channelKey.Domain) {
			e.st.channelTriggers[channelKey] = append(e.st.channelTriggers[channelKey], t)
		}
	}

	e.events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceNotifEngine,
		Kind:      events.KindTriggerRegistered,
		Data:      map[string]any{"trigger_name": t.Name, "condition_kind": uint8(t.Condition.Kind)},
	})
	return nil
}

// handleUnregisterTrigger is event 4.
func (e *Engine) handleUnregisterTrigger(name string) error {
	t, ok := e.st.triggersByName[name]
	if !ok {
		return fmt.Errorf("notifengine: no trigger named %q", name)
	}
	key := trigobj.HashCondition(t.Condition)

	for channelKey, list := range e.st.channelTriggers {
		filtered := list[:0]
		for _, entry := range list {
			if entry != t {
				filtered = append(filtered, entry)
			}
		}
		e.st.channelTriggers[channelKey] = filtered
	}

	delete(e.st.triggers, key)
	delete(e.st.triggersByName, name)
	delete(e.st.notificationTriggerClients, key)
	delete(e.st.triggerOwner, name)
	if t.HasToken {
		delete(e.st.triggerTokens, t.Token)
	}

	e.events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceNotifEngine,
		Kind:      events.KindTriggerUnregistered,
		Data:      map[string]any{"trigger_name": name},
	})
	return nil
}

// handleSessionRotationOngoing is event 5.
func (e *Engine) handleSessionRotationOngoing(session string, chunkID uint64, hasChunkID bool) {
	cond := trigobj.NewSessionRotationCondition(trigobj.SessionRotationOngoing, session)
	eval := trigobj.NewSessionRotationEvaluation(chunkID, hasChunkID, nil)
	e.dispatchEvaluation(cond, eval)
}

// handleSessionRotationCompleted is event 6.
func (e *Engine) handleSessionRotationCompleted(session string, chunkID uint64, hasChunkID bool, location *trigobj.TraceArchiveLocation) {
	cond := trigobj.NewSessionRotationCondition(trigobj.SessionRotationCompleted, session)
	eval := trigobj.NewSessionRotationEvaluation(chunkID, hasChunkID, location)
	e.dispatchEvaluation(cond, eval)
}

// handleChannelSample is event 7 (spec.md §4.5).
func (e *Engine) handleChannelSample(msg SampleMsg) {
	if _, ok := e.st.channels[msg.Key]; !ok {
		return // remove-channel raced; drop silently
	}

	previous := e.st.channelState[msg.Key]
	latest := msg.Sample
	e.st.channelState[msg.Key] = &latest

	for _, t := range e.st.channelTriggers[msg.Key] {
		condKey := trigobj.HashCondition(t.Condition)
		clients := e.st.notificationTriggerClients[condKey]
		if len(clients) == 0 {
			continue
		}
		eval := evaluate.Evaluate(t.Condition, previous, latest, msg.Capacity)
		if eval == nil {
			continue
		}
		e.dispatchToClients(clients, t.Condition, eval, t.Name)
	}
}

// handleNewClient is event 8.
func (e *Engine) handleNewClient(ctx context.Context, conn net.Conn) {
	uid, gid := -1, -1
	if e.credentialsOf != nil {
		var err error
		uid, gid, err = e.credentialsOf(conn)
		if err != nil {
			e.logger.Warn("notifengine: rejecting client without credentials", "error", err)
			conn.Close()
			return
		}
	}
	c := newClient(conn, uid, gid)
	e.st.clientsByConn[conn] = c
	e.st.clientsByID[c.ID.String()] = c
	go e.clientReadLoop(ctx, c)
}

// handleClientFrame is event 9: Subscribe/Unsubscribe per spec.md §4.4.
func (e *Engine) handleClientFrame(c *Client, f client.Frame) {
	if client.RequiresNonEmptyPayload(f.Type) && len(f.Payload) == 0 {
		e.disconnectClient(c)
		return
	}

	switch f.Type {
	case client.MsgSubscribe:
		e.handleSubscribe(c, f.Payload)
	case client.MsgUnsubscribe:
		e.handleUnsubscribe(c, f.Payload)
	case client.MsgRegisterTrigger:
		e.handleClientRegisterTrigger(c, f.Payload)
	case client.MsgUnregisterTrigger:
		e.handleClientUnregisterTrigger(c, f.Payload)
	case client.MsgListTriggers:
		e.handleClientListTriggers(c)
	default:
		e.disconnectClient(c)
	}
}

// handleClientRegisterTrigger services a notifdctl register request
// directly, the same way Subscribe does: the client socket is not a
// separate control plane, just another event source multiplexed into
// the engine's own goroutine, so there is no queue round-trip to
// deadlock on.
func (e *Engine) handleClientRegisterTrigger(c *Client, payload []byte) {
	t, err := trigobj.DeserializeTrigger(payload)
	if err != nil {
		e.disconnectClient(c)
		return
	}
	requester := cmdqueue.Credentials{UID: c.UID, GID: c.GID}
	switch err := e.handleRegisterTrigger(t, requester); {
	case err == nil:
		e.sendStatus(c, client.StatusOK)
	case errors.Is(err, ErrTriggerExists):
		e.sendStatus(c, client.StatusTriggerExists)
	default:
		e.sendStatus(c, client.StatusInvalidArg)
	}
}

func (e *Engine) handleClientUnregisterTrigger(c *Client, payload []byte) {
	name := string(payload)
	requester := cmdqueue.Credentials{UID: c.UID, GID: c.GID}
	if owner, ok := e.st.triggerOwner[name]; ok && requester.UID != 0 && owner.UID != requester.UID {
		e.sendStatus(c, client.StatusNotFound)
		return
	}
	if err := e.handleUnregisterTrigger(name); err != nil {
		e.sendStatus(c, client.StatusNotFound)
		return
	}
	e.sendStatus(c, client.StatusOK)
}

func (e *Engine) handleClientListTriggers(c *Client) {
	requester := cmdqueue.Credentials{UID: c.UID, GID: c.GID}
	triggers := e.handleListTriggers(requester)

	var payload []byte
	for _, t := range triggers {
		entry := t.Serialize(nil)
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(entry)))
		payload = append(payload, lenBuf[:]...)
		payload = append(payload, entry...)
	}
	if err := client.WriteFrame(c.Conn, client.Frame{Type: client.MsgTriggerList, Payload: payload}); err != nil {
		e.logger.Warn("notifengine: send trigger list failed", "client", c.ID, "error", err)
	}
}

func (e *Engine) handleSubscribe(c *Client, payload []byte) {
	cond, err := trigobj.DeserializeCondition(payload)
	if err != nil {
		e.disconnectClient(c)
		return
	}
	if c.hasCondition(cond) {
		e.sendStatus(c, client.StatusAlreadySubscribed)
		return
	}
	c.addCondition(cond)
	key := trigobj.HashCondition(cond)
	if _, ok := e.st.notificationTriggerClients[key]; ok {
		e.st.notificationTriggerClients[key] = append(e.st.notificationTriggerClients[key], c)
	}
	e.sendStatus(c, client.StatusOK)
}

func (e *Engine) handleUnsubscribe(c *Client, payload []byte) {
	cond, err := trigobj.DeserializeCondition(payload)
	if err != nil {
		e.disconnectClient(c)
		return
	}
	if !c.removeCondition(cond) {
		e.sendStatus(c, client.StatusUnknownCondition)
		return
	}
	key := trigobj.HashCondition(cond)
	if list, ok := e.st.notificationTriggerClients[key]; ok {
		filtered := list[:0]
		for _, entry := range list {
			if entry != c {
				filtered = append(filtered, entry)
			}
		}
		e.st.notificationTriggerClients[key] = filtered
	}
	e.sendStatus(c, client.StatusOK)
}

func (e *Engine) sendStatus(c *Client, status client.StatusCode) {
	payload := []byte{byte(status)}
	if err := client.WriteFrame(c.Conn, client.Frame{Type: client.MsgCommandReply, Payload: payload}); err != nil {
		e.logger.Warn("notifengine: send status failed", "client", c.ID, "error", err)
	}
}

// handleClientDisconnect is event 10.
func (e *Engine) handleClientDisconnect(c *Client) {
	e.disconnectClient(c)
}

func (e *Engine) disconnectClient(c *Client) {
	for _, cond := range c.Subscriptions() {
		key := trigobj.HashCondition(cond)
		if list, ok := e.st.notificationTriggerClients[key]; ok {
			filtered := list[:0]
			for _, entry := range list {
				if entry != c {
					filtered = append(filtered, entry)
				}
			}
			e.st.notificationTriggerClients[key] = filtered
		}
	}
	delete(e.st.clientsByConn, c.Conn)
	delete(e.st.clientsByID, c.ID.String())
	c.Conn.Close()
}

// handleTriggerHit handles an event-rule-hit evaluation: token lookup
// upon a hit event, then dispatch (spec.md §3 applicability rule).
func (e *Engine) handleTriggerHit(hit TriggerHitMsg) {
	t, ok := e.st.triggerTokens[hit.Token]
	if !ok {
		return
	}
	key := trigobj.HashCondition(t.Condition)
	clients := e.st.notificationTriggerClients[key]
	if len(clients) == 0 {
		return
	}
	var captured *trigobj.EventFieldValue
	if hit.HasCaptured {
		captured = hit.CapturedValues
	}
	eval := trigobj.NewEventRuleHitEvaluation(t.Name, captured)
	e.dispatchToClients(clients, t.Condition, eval, t.Name)
}

// handleGetTokens is event 11: returns a snapshot of the trigger
// tokens index. The snapshot is a defensive copy rather than a
// lock-held live view, since Go's GC makes a copy cheaper to reason
// about than the source's scoped-lock discipline.
func (e *Engine) handleGetTokens() []cmdqueue.TokenEntry {
	out := make([]cmdqueue.TokenEntry, 0, len(e.st.triggerTokens))
	for token, t := range e.st.triggerTokens {
		out = append(out, cmdqueue.TokenEntry{TriggerName: t.Name, Token: token})
	}
	return out
}

// handleListTriggers is event 12, with the original-source ownership
// filter supplemented in: non-root requesters only see triggers they
// themselves registered.
func (e *Engine) handleListTriggers(requester cmdqueue.Credentials) []*trigobj.Trigger {
	out := make([]*trigobj.Trigger, 0, len(e.st.triggers))
	for _, t := range e.st.triggers {
		if requester.UID != 0 && e.st.triggerOwner[t.Name].UID != requester.UID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// handleQuit is event 13: close all clients, unregister all triggers.
func (e *Engine) handleQuit() {
	for _, c := range e.st.clientsByConn {
		c.Conn.Close()
	}
	e.st.clientsByConn = make(map[any]*Client)
	e.st.clientsByID = make(map[string]*Client)
	e.st.triggers = make(map[uint64]*trigobj.Trigger)
	e.st.triggersByName = make(map[string]*trigobj.Trigger)
	e.st.triggerTokens = make(map[uint64]*trigobj.Trigger)
	e.st.triggerOwner = make(map[string]cmdqueue.Credentials)
	e.st.notificationTriggerClients = make(map[uint64][]*Client)
}

// dispatchEvaluation builds a Notification from cond/eval and
// delivers it to every client subscribed to an equal condition.
func (e *Engine) dispatchEvaluation(cond *trigobj.Condition, eval *trigobj.Evaluation) {
	key := trigobj.HashCondition(cond)
	clients := e.st.notificationTriggerClients[key]
	if len(clients) == 0 {
		return
	}
	e.dispatchToClients(clients, cond, eval, "")
}

// dispatchToClients writes a Notification frame to every client in
// clients. Per-client send failures are logged but never abort the
// loop (spec.md §4.4 Dispatch). triggerName is recorded to the audit
// log when one is attached; it may be empty for dispatches not tied
// to a named trigger (e.g. session-rotation events).
func (e *Engine) dispatchToClients(clients []*Client, cond *trigobj.Condition, eval *trigobj.Evaluation, triggerName string) {
	n := trigobj.NewNotification(cond, eval)
	payload := n.Serialize(nil)
	for _, c := range clients {
		if err := client.WriteFrame(c.Conn, client.Frame{Type: client.MsgNotification, Payload: payload}); err != nil {
			e.logger.Warn("notifengine: notification send failed", "client", c.ID, "error", err)
		}
	}
	if e.audit != nil {
		entry := audit.Entry{
			Timestamp:     time.Now(),
			TriggerName:   triggerName,
			ConditionKind: uint8(cond.Kind),
			ClientCount:   len(clients),
		}
		if err := e.audit.Record(entry); err != nil {
			e.logger.Warn("notifengine: audit record failed", "error", err)
		}
	}
	data := map[string]any{
		"trigger_name":    triggerName,
		"condition_kind":  uint8(cond.Kind),
		"evaluation_kind": uint8(eval.Kind),
		"client_count":    len(clients),
	}
	if eval.Kind == trigobj.EvaluationBufferUsage {
		data["used_bytes"] = eval.UsedBytes
		data["capacity"] = eval.Capacity
	}
	e.events.Publish(events.Event{Timestamp: time.Now(), Source: events.SourceNotifEngine, Kind: events.KindDispatch, Data: data})
}
