// Package client implements the notification socket's client protocol
// (spec.md §4.4/§6): length-delimited message framing over a
// Unix-domain stream socket, with SO_PEERCRED credential checks on
// every accepted connection.
package client

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType tags a client<->engine protocol message.
type MessageType uint8

const (
	MsgSubscribe MessageType = iota
	MsgUnsubscribe
	MsgCommandReply
	MsgNotification

	// MsgRegisterTrigger, MsgUnregisterTrigger and MsgListTriggers are
	// notifdctl's control-plane requests: a client serializes a
	// trigobj.Trigger (register), a trigger name (unregister), or
	// nothing (list) as the payload. Handled the same way Subscribe
	// and Unsubscribe are, directly in the engine's own goroutine, so
	// no separate control socket is needed.
	MsgRegisterTrigger
	MsgUnregisterTrigger
	MsgListTriggers

	// MsgTriggerList is the engine's response to MsgListTriggers: a
	// sequence of length-prefixed serialized triggers.
	MsgTriggerList
)

// StatusCode mirrors the status codes of spec.md §6.
type StatusCode int8

const (
	StatusOK                   StatusCode = 0
	StatusInvalidArg           StatusCode = -1
	StatusAlreadySubscribed    StatusCode = -2
	StatusUnknownCondition     StatusCode = -3
	StatusClosed               StatusCode = -4
	StatusNotificationsDropped StatusCode = -5
	StatusTriggerExists        StatusCode = -6
	StatusNotFound             StatusCode = -7
)

// maxFrameSize bounds a single frame's payload to guard against a
// malicious or corrupt peer claiming an enormous size field.
const maxFrameSize = 16 << 20

// Frame is one length-delimited protocol message: {u8 type, u32 size,
// size bytes payload} (spec.md §4.4).
type Frame struct {
	Type    MessageType
	Payload []byte
}

// WriteFrame writes f's header and payload to w in one logical
// message. The header and body are written with a single buffered
// write call by the caller's io.Writer when that writer buffers;
// this function itself issues two writes but never interleaves with
// another goroutine's frame because client sockets are owned
// exclusively by the notification thread (spec.md §5).
func WriteFrame(w io.Writer, f Frame) error {
	var hdr [5]byte
	hdr[0] = byte(f.Type)
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(f.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("client: write frame header: %w", err)
	}
	if len(f.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("client: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. Per spec.md §4.4, receive is
// length-driven: the fixed header is read first, then exactly size
// bytes of payload. A zero-byte payload on Subscribe/Unsubscribe is a
// protocol error the caller must treat as grounds for disconnection.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	msgType := MessageType(hdr[0])
	size := binary.LittleEndian.Uint32(hdr[1:])
	if size > maxFrameSize {
		return Frame{}, fmt.Errorf("client: frame size %d exceeds limit", size)
	}
	if size == 0 {
		return Frame{Type: msgType}, nil
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("client: short read of frame payload: %w", err)
	}
	return Frame{Type: msgType, Payload: payload}, nil
}

// RequiresNonEmptyPayload reports whether t is a message kind for
// which a zero-byte payload is a protocol error (Subscribe and
// Unsubscribe always carry a serialized Condition).
func RequiresNonEmptyPayload(t MessageType) bool {
	return t == MsgSubscribe || t == MsgUnsubscribe ||
		t == MsgRegisterTrigger || t == MsgUnregisterTrigger
}
