package trigobj

import (
	"fmt"
	"math"
)

// FieldValueKind tags a decoded capture value (spec.md §4.8).
type FieldValueKind uint8

const (
	FieldUnsigned FieldValueKind = iota
	FieldSigned
	FieldReal
	FieldString
	FieldArray
	FieldEnum
	FieldUnavailable
)

// EventFieldValue is the tagged tree produced by decoding a captured
// event's self-describing object graph. Array entries may themselves
// be Unavailable; Enum carries either a signed or unsigned integer
// value plus an optional set of labels.
type EventFieldValue struct {
	Kind FieldValueKind

	Unsigned uint64
	Signed   int64
	Real     float64
	Str      []byte
	Elements []*EventFieldValue

	// Enum fields: EnumIsSigned selects which of EnumUnsigned/EnumSigned
	// is meaningful.
	EnumUnsigned uint64
	EnumSigned   int64
	EnumIsSigned bool
	EnumLabels   []string
}

// NewUnsignedValue constructs an Unsigned leaf.
func NewUnsignedValue(v uint64) *EventFieldValue { return &EventFieldValue{Kind: FieldUnsigned, Unsigned: v} }

// NewSignedValue constructs a Signed leaf.
func NewSignedValue(v int64) *EventFieldValue { return &EventFieldValue{Kind: FieldSigned, Signed: v} }

// NewRealValue constructs a Real leaf.
func NewRealValue(v float64) *EventFieldValue { return &EventFieldValue{Kind: FieldReal, Real: v} }

// NewStringValue constructs a String leaf.
func NewStringValue(v []byte) *EventFieldValue { return &EventFieldValue{Kind: FieldString, Str: v} }

// NewArrayValue constructs an Array node; entries may be Unavailable.
func NewArrayValue(elems []*EventFieldValue) *EventFieldValue {
	return &EventFieldValue{Kind: FieldArray, Elements: elems}
}

// NewUnavailableValue constructs the Unavailable leaf.
func NewUnavailableValue() *EventFieldValue { return &EventFieldValue{Kind: FieldUnavailable} }

// NewEnumValueUnsigned constructs an Enum leaf from an unsigned integer value.
func NewEnumValueUnsigned(v uint64, labels []string) *EventFieldValue {
	return &EventFieldValue{Kind: FieldEnum, EnumUnsigned: v, EnumIsSigned: false, EnumLabels: labels}
}

// NewEnumValueSigned constructs an Enum leaf from a signed integer value.
func NewEnumValueSigned(v int64, labels []string) *EventFieldValue {
	return &EventFieldValue{Kind: FieldEnum, EnumSigned: v, EnumIsSigned: true, EnumLabels: labels}
}

// Equal reports structural equality.
func (v *EventFieldValue) Equal(other *EventFieldValue) bool {
	if v == nil || other == nil {
		return v == other
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case FieldUnsigned:
		return v.Unsigned == other.Unsigned
	case FieldSigned:
		return v.Signed == other.Signed
	case FieldReal:
		return math.Float64bits(v.Real) == math.Float64bits(other.Real)
	case FieldString:
		return string(v.Str) == string(other.Str)
	case FieldArray:
		if len(v.Elements) != len(other.Elements) {
			return false
		}
		for i := range v.Elements {
			if !v.Elements[i].Equal(other.Elements[i]) {
				return false
			}
		}
		return true
	case FieldEnum:
		if v.EnumIsSigned != other.EnumIsSigned {
			return false
		}
		if v.EnumIsSigned {
			if v.EnumSigned != other.EnumSigned {
				return false
			}
		} else if v.EnumUnsigned != other.EnumUnsigned {
			return false
		}
		if len(v.EnumLabels) != len(other.EnumLabels) {
			return false
		}
		for i := range v.EnumLabels {
			if v.EnumLabels[i] != other.EnumLabels[i] {
				return false
			}
		}
		return true
	case FieldUnavailable:
		return true
	default:
		return false
	}
}

func (v *EventFieldValue) serialize(e *encoder) {
	e.u8(uint8(v.Kind))
	switch v.Kind {
	case FieldUnsigned:
		e.u64(v.Unsigned)
	case FieldSigned:
		e.u64(uint64(v.Signed))
	case FieldReal:
		e.u64(math.Float64bits(v.Real))
	case FieldString:
		e.bytesField(v.Str)
	case FieldArray:
		e.u32(uint32(len(v.Elements)))
		for _, el := range v.Elements {
			el.serialize(e)
		}
	case FieldEnum:
		e.bool(v.EnumIsSigned)
		if v.EnumIsSigned {
			e.u64(uint64(v.EnumSigned))
		} else {
			e.u64(v.EnumUnsigned)
		}
		e.u32(uint32(len(v.EnumLabels)))
		for _, l := range v.EnumLabels {
			e.str(l)
		}
	case FieldUnavailable:
	}
}

func decodeEventFieldValue(d *decoder) (*EventFieldValue, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	v := &EventFieldValue{Kind: FieldValueKind(kind)}
	switch v.Kind {
	case FieldUnsigned:
		if v.Unsigned, err = d.u64(); err != nil {
			return nil, err
		}
	case FieldSigned:
		u, err := d.u64()
		if err != nil {
			return nil, err
		}
		v.Signed = int64(u)
	case FieldReal:
		u, err := d.u64()
		if err != nil {
			return nil, err
		}
		v.Real = math.Float64frombits(u)
	case FieldString:
		if v.Str, err = d.bytesField(); err != nil {
			return nil, err
		}
	case FieldArray:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			el, err := decodeEventFieldValue(d)
			if err != nil {
				return nil, err
			}
			v.Elements = append(v.Elements, el)
		}
	case FieldEnum:
		if v.EnumIsSigned, err = d.bool(); err != nil {
			return nil, err
		}
		u, err := d.u64()
		if err != nil {
			return nil, err
		}
		if v.EnumIsSigned {
			v.EnumSigned = int64(u)
		} else {
			v.EnumUnsigned = u
		}
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			label, err := d.str()
			if err != nil {
				return nil, err
			}
			v.EnumLabels = append(v.EnumLabels, label)
		}
	case FieldUnavailable:
	default:
		return nil, fmt.Errorf("trigobj: unknown field value tag %d", kind)
	}
	return v, nil
}

// Serialize appends v's wire form to dst.
func (v *EventFieldValue) Serialize(dst []byte) []byte {
	e := newEncoder()
	v.serialize(e)
	return append(dst, e.buf...)
}

// DeserializeEventFieldValue decodes an EventFieldValue, requiring
// exact consumption.
func DeserializeEventFieldValue(b []byte) (*EventFieldValue, error) {
	d := newDecoder(b)
	v, err := decodeEventFieldValue(d)
	if err != nil {
		return nil, err
	}
	if err := d.requireEOF(); err != nil {
		return nil, err
	}
	return v, nil
}
