// Package trigobj implements the object model of spec.md §3/§4.1:
// Condition, EventRule, Action, Trigger, Evaluation, Notification and
// EventFieldValue, each following the same construct → populate →
// validate → serialize → equal contract, plus the self-describing,
// little-endian, length-prefixed binary codec they share.
package trigobj

import (
	"encoding/binary"
	"fmt"
	"math"
)

// encoder appends fields to a growable byte buffer using the wire
// format of spec.md §4.1: fixed-width integers for tags/lengths/
// thresholds, raw IEEE-754 bits for floats, and length-prefixed,
// NUL-terminated strings.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder {
	return &encoder{buf: make([]byte, 0, 64)}
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) i64(v int64) {
	e.u64(uint64(v))
}

func (e *encoder) f64(v float64) {
	e.u64(math.Float64bits(v))
}

// str appends a u32 length (including the terminating NUL) followed
// by the string bytes and a single NUL byte.
func (e *encoder) str(s string) {
	b := append([]byte(s), 0)
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// bytesField appends a u32 length followed by the raw bytes, with no
// NUL terminator — used for opaque payloads (capture bytecode,
// capture payloads) rather than text.
func (e *encoder) bytesField(b []byte) {
	e.u32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

// decoder reads fields off a byte slice in the same order an encoder
// wrote them, returning an error on truncation or malformed strings
// rather than panicking.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(b []byte) *decoder {
	return &decoder{buf: b}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) u8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, fmt.Errorf("trigobj: truncated u8 at offset %d", d.pos)
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("trigobj: truncated u32 at offset %d", d.pos)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("trigobj: truncated u64 at offset %d", d.pos)
	}
	v := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

func (d *decoder) f64() (float64, error) {
	v, err := d.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (d *decoder) bool() (bool, error) {
	v, err := d.u8()
	return v != 0, err
}

// str reads a u32 length followed by that many bytes, and requires
// the final byte to be a single terminating NUL that does not occur
// earlier in the string.
func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("trigobj: zero-length string field at offset %d", d.pos)
	}
	if uint32(d.remaining()) < n {
		return "", fmt.Errorf("trigobj: truncated string (want %d bytes, have %d)", n, d.remaining())
	}
	raw := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	if raw[len(raw)-1] != 0 {
		return "", fmt.Errorf("trigobj: string field not NUL-terminated")
	}
	body := raw[:len(raw)-1]
	for _, c := range body {
		if c == 0 {
			return "", fmt.Errorf("trigobj: string field contains embedded NUL")
		}
	}
	return string(body), nil
}

// bytesField reads a u32 length followed by that many raw bytes.
func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if uint32(d.remaining()) < n {
		return nil, fmt.Errorf("trigobj: truncated bytes field (want %d bytes, have %d)", n, d.remaining())
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

func (d *decoder) requireEOF() error {
	if d.remaining() != 0 {
		return fmt.Errorf("trigobj: %d trailing bytes after decode", d.remaining())
	}
	return nil
}
