package main

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/lttng/notifd/internal/client"
	"github.com/lttng/notifd/internal/trigobj"
)

// runSubscribe dials the notification socket, subscribes to the
// condition described by the given YAML file, and prints every
// notification received until the connection closes or is
// interrupted.
func runSubscribe(logger *slog.Logger, sock string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: notifdctl subscribe <condition.yaml>")
	}

	cond, err := loadConditionSpec(args[0])
	if err != nil {
		return err
	}
	if err := cond.Validate(); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", sock, err)
	}
	defer conn.Close()

	if err := client.WriteFrame(conn, client.Frame{Type: client.MsgSubscribe, Payload: cond.Serialize(nil)}); err != nil {
		return fmt.Errorf("sending subscribe: %w", err)
	}

	reply, err := client.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("reading subscribe reply: %w", err)
	}
	if status := client.StatusCode(int8(reply.Payload[0])); status != client.StatusOK {
		return fmt.Errorf("subscribe rejected: status %d", status)
	}

	fmt.Println("subscribed, waiting for notifications (Ctrl-C to stop)...")
	for {
		f, err := client.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("connection closed: %w", err)
		}
		if f.Type != client.MsgNotification {
			logger.Warn("notifdctl: unexpected frame type while subscribed", "type", f.Type)
			continue
		}
		n, err := trigobj.DeserializeNotification(f.Payload)
		if err != nil {
			logger.Warn("notifdctl: malformed notification", "error", err)
			continue
		}
		printNotification(n)
	}
}

func printNotification(n *trigobj.Notification) {
	switch n.Evaluation.Kind {
	case trigobj.EvaluationBufferUsage:
		fmt.Printf("buffer-usage session=%s channel=%s used=%d capacity=%d\n",
			n.Condition.SessionName, n.Condition.ChannelName, n.Evaluation.UsedBytes, n.Evaluation.Capacity)
	case trigobj.EvaluationSessionRotation:
		loc := "(pending)"
		if n.Evaluation.ArchiveLocation != nil {
			loc = n.Evaluation.ArchiveLocation.AbsolutePath
		}
		fmt.Printf("session-rotation session=%s archive=%s\n", n.Condition.SessionName, loc)
	case trigobj.EvaluationEventRuleHit:
		fmt.Printf("event-rule-hit trigger=%s\n", n.Evaluation.TriggerName)
	default:
		fmt.Printf("notification kind=%d\n", n.Evaluation.Kind)
	}
}
