package main

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/lttng/notifd/internal/client"
)

func runRegister(logger *slog.Logger, sock, specPath string) error {
	t, err := loadTriggerSpec(specPath)
	if err != nil {
		return err
	}

	conn, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", sock, err)
	}
	defer conn.Close()

	if err := client.WriteFrame(conn, client.Frame{Type: client.MsgRegisterTrigger, Payload: t.Serialize(nil)}); err != nil {
		return fmt.Errorf("sending register: %w", err)
	}

	reply, err := client.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("reading register reply: %w", err)
	}
	status := client.StatusCode(int8(reply.Payload[0]))
	if status != client.StatusOK {
		return fmt.Errorf("register rejected: status %d", status)
	}

	fmt.Printf("registered trigger %q\n", t.Name)
	return nil
}

func runUnregister(logger *slog.Logger, sock, name string) error {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", sock, err)
	}
	defer conn.Close()

	if err := client.WriteFrame(conn, client.Frame{Type: client.MsgUnregisterTrigger, Payload: []byte(name)}); err != nil {
		return fmt.Errorf("sending unregister: %w", err)
	}

	reply, err := client.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("reading unregister reply: %w", err)
	}
	status := client.StatusCode(int8(reply.Payload[0]))
	if status != client.StatusOK {
		return fmt.Errorf("unregister rejected: status %d", status)
	}

	fmt.Printf("unregistered trigger %q\n", name)
	return nil
}
