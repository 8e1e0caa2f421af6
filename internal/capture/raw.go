// Package capture implements the capture-payload decoder of spec.md
// §4.8 (C8): it turns an opaque self-describing object graph into the
// tagged EventFieldValue tree trigobj defines.
package capture

// RawKind tags the shape of one node in the self-describing object
// graph the capture payload is transmitted as.
type RawKind uint8

const (
	RawNil RawKind = iota
	RawUnsigned
	RawSigned
	RawReal
	RawString
	RawArray
	RawMap
)

// RawValue is one node of the opaque object graph decoded from a
// capture payload, before it is interpreted against a condition's
// capture descriptors. Producers (the consumer-side bytecode
// interpreter, out of scope here) build these; this package only
// consumes them.
type RawValue struct {
	Kind RawKind

	Unsigned uint64
	Signed   int64
	Real     float64
	Str      []byte
	Elements []RawValue
	Map      map[string]RawValue
}

// NewRawNil constructs the Nil node (decodes to Unavailable).
func NewRawNil() RawValue { return RawValue{Kind: RawNil} }

// NewRawUnsigned constructs an unsigned integer node.
func NewRawUnsigned(v uint64) RawValue { return RawValue{Kind: RawUnsigned, Unsigned: v} }

// NewRawSigned constructs a signed integer node.
func NewRawSigned(v int64) RawValue { return RawValue{Kind: RawSigned, Signed: v} }

// NewRawReal constructs a floating-point node.
func NewRawReal(v float64) RawValue { return RawValue{Kind: RawReal, Real: v} }

// NewRawString constructs a string/byte node.
func NewRawString(v []byte) RawValue { return RawValue{Kind: RawString, Str: v} }

// NewRawArray constructs an array node.
func NewRawArray(elems []RawValue) RawValue { return RawValue{Kind: RawArray, Elements: elems} }

// NewRawMap constructs a map node (only the "enum" shape is a valid
// decode target; see decodeEnumMap).
func NewRawMap(m map[string]RawValue) RawValue { return RawValue{Kind: RawMap, Map: m} }
