package capture

import (
	"fmt"

	"github.com/lttng/notifd/internal/trigobj"
)

// DecodePayload decodes root against an ordered list of capture
// descriptors, per spec.md §4.8: the root must be an array; for each
// descriptor at position i, element i of the root array is decoded
// recursively into an EventFieldValue.
func DecodePayload(root RawValue, descriptors []*trigobj.EventExpression) ([]*trigobj.EventFieldValue, error) {
	if root.Kind != RawArray {
		return nil, fmt.Errorf("capture: root object must be an array, got kind %d", root.Kind)
	}
	if len(root.Elements) < len(descriptors) {
		return nil, fmt.Errorf("capture: root array has %d elements, need %d for capture descriptors", len(root.Elements), len(descriptors))
	}
	out := make([]*trigobj.EventFieldValue, len(descriptors))
	for i := range descriptors {
		v, err := decodeValue(root.Elements[i])
		if err != nil {
			return nil, fmt.Errorf("capture: descriptor %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// decodeValue recursively decodes one RawValue node into an
// EventFieldValue, per the tag mapping of spec.md §4.8.
func decodeValue(v RawValue) (*trigobj.EventFieldValue, error) {
	switch v.Kind {
	case RawNil:
		return trigobj.NewUnavailableValue(), nil
	case RawUnsigned:
		return trigobj.NewUnsignedValue(v.Unsigned), nil
	case RawSigned:
		return trigobj.NewSignedValue(v.Signed), nil
	case RawReal:
		return trigobj.NewRealValue(v.Real), nil
	case RawString:
		return trigobj.NewStringValue(v.Str), nil
	case RawArray:
		elems := make([]*trigobj.EventFieldValue, len(v.Elements))
		for i, e := range v.Elements {
			decoded, err := decodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			elems[i] = decoded
		}
		return trigobj.NewArrayValue(elems), nil
	case RawMap:
		return decodeEnumMap(v.Map)
	default:
		return nil, fmt.Errorf("unknown raw value kind %d", v.Kind)
	}
}

// decodeEnumMap accepts exactly the "enum" map shape of spec.md §4.8:
// string key "type" equal to "enum", an integer "value" key (signed
// or unsigned), and an optional array of string "labels". Any other
// map shape is a decode error.
func decodeEnumMap(m map[string]RawValue) (*trigobj.EventFieldValue, error) {
	typeField, ok := m["type"]
	if !ok || typeField.Kind != RawString || string(typeField.Str) != "enum" {
		return nil, fmt.Errorf(`map object must have string field "type" == "enum"`)
	}

	valueField, ok := m["value"]
	if !ok {
		return nil, fmt.Errorf(`enum map missing "value" field`)
	}

	var labels []string
	if labelsField, ok := m["labels"]; ok {
		if labelsField.Kind != RawArray {
			return nil, fmt.Errorf(`enum map "labels" field must be an array`)
		}
		labels = make([]string, len(labelsField.Elements))
		for i, el := range labelsField.Elements {
			if el.Kind != RawString {
				return nil, fmt.Errorf(`enum map "labels" element %d must be a string`, i)
			}
			labels[i] = string(el.Str)
		}
	}

	switch valueField.Kind {
	case RawUnsigned:
		return trigobj.NewEnumValueUnsigned(valueField.Unsigned, labels), nil
	case RawSigned:
		return trigobj.NewEnumValueSigned(valueField.Signed, labels), nil
	default:
		return nil, fmt.Errorf(`enum map "value" field must be an integer, got kind %d`, valueField.Kind)
	}
}
