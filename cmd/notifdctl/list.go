package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"

	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/trigobj"
)

func runListTriggers(logger *slog.Logger, sock string) error {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", sock, err)
	}
	defer conn.Close()

	if err := client.WriteFrame(conn, client.Frame{Type: client.MsgListTriggers}); err != nil {
		return fmt.Errorf("sending list-triggers: %w", err)
	}

	f, err := client.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("reading trigger list: %w", err)
	}
	if f.Type != client.MsgTriggerList {
		return fmt.Errorf("unexpected reply frame type %v", f.Type)
	}

	triggers, err := decodeTriggerList(f.Payload)
	if err != nil {
		return fmt.Errorf("decoding trigger list: %w", err)
	}

	if len(triggers) == 0 {
		fmt.Println("no triggers registered")
		return nil
	}
	for _, t := range triggers {
		fmt.Printf("%-20s %-24s -> %s\n", t.Name, conditionSummary(t.Condition), actionSummary(t.Action))
	}
	return nil
}

func decodeTriggerList(payload []byte) ([]*trigobj.Trigger, error) {
	var out []*trigobj.Trigger
	for len(payload) > 0 {
		if len(payload) < 4 {
			return nil, fmt.Errorf("truncated length prefix")
		}
		size := binary.LittleEndian.Uint32(payload[:4])
		payload = payload[4:]
		if uint32(len(payload)) < size {
			return nil, fmt.Errorf("truncated trigger entry")
		}
		t, err := trigobj.DeserializeTrigger(payload[:size])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		payload = payload[size:]
	}
	return out, nil
}

func conditionSummary(c *trigobj.Condition) string {
	switch c.Kind {
	case trigobj.ConditionBufferUsage:
		return fmt.Sprintf("buffer-usage(%s/%s)", c.SessionName, c.ChannelName)
	case trigobj.ConditionSessionConsumedSize:
		return fmt.Sprintf("session-consumed-size(%s)", c.SessionName)
	case trigobj.ConditionSessionRotation:
		return fmt.Sprintf("session-rotation(%s)", c.SessionName)
	case trigobj.ConditionEventRuleHit:
		return "event-rule-hit"
	default:
		return fmt.Sprintf("kind(%d)", c.Kind)
	}
}

func actionSummary(a *trigobj.Action) string {
	switch a.Kind {
	case trigobj.ActionNotify:
		return "notify"
	case trigobj.ActionStartSession:
		return fmt.Sprintf("start-session(%s)", a.SessionName)
	case trigobj.ActionStopSession:
		return fmt.Sprintf("stop-session(%s)", a.SessionName)
	case trigobj.ActionRotateSession:
		return fmt.Sprintf("rotate-session(%s)", a.SessionName)
	case trigobj.ActionSnapshotSession:
		return fmt.Sprintf("snapshot-session(%s)", a.SessionName)
	case trigobj.ActionGroup:
		return fmt.Sprintf("group(%d)", len(a.Actions))
	default:
		return fmt.Sprintf("kind(%d)", a.Kind)
	}
}
