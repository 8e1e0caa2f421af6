package trigobj

import "fmt"

// EventExpressionKind tags the shape of an l-value event expression
// used as a capture descriptor (spec.md §3).
type EventExpressionKind uint8

const (
	ExprPayloadField EventExpressionKind = iota
	ExprChannelContextField
	ExprAppContextField
	ExprArrayFieldElement
)

// EventExpression is an l-value reference into an event's fields: a
// payload field, a channel context field, an app-specific context
// field keyed by (provider, type), or an element of an array-typed
// field.
type EventExpression struct {
	Kind EventExpressionKind

	// FieldName applies to ExprPayloadField and ExprChannelContextField.
	FieldName string

	// AppProvider and AppType apply to ExprAppContextField.
	AppProvider string
	AppType     string

	// Parent and Index apply to ExprArrayFieldElement.
	Parent *EventExpression
	Index  uint64
}

// Validate enforces that e is a well-formed l-value expression:
// the fields relevant to e.Kind are populated, and for array
// elements the parent expression is itself valid.
func (e *EventExpression) Validate() error {
	switch e.Kind {
	case ExprPayloadField, ExprChannelContextField:
		if e.FieldName == "" {
			return fmt.Errorf("trigobj: event expression field name must not be empty")
		}
	case ExprAppContextField:
		if e.AppProvider == "" || e.AppType == "" {
			return fmt.Errorf("trigobj: app-context expression requires provider and type")
		}
	case ExprArrayFieldElement:
		if e.Parent == nil {
			return fmt.Errorf("trigobj: array-field-element expression requires a parent")
		}
		return e.Parent.Validate()
	default:
		return fmt.Errorf("trigobj: unknown event expression kind %d", e.Kind)
	}
	return nil
}

// Equal reports structural equality.
func (e *EventExpression) Equal(other *EventExpression) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case ExprPayloadField, ExprChannelContextField:
		return e.FieldName == other.FieldName
	case ExprAppContextField:
		return e.AppProvider == other.AppProvider && e.AppType == other.AppType
	case ExprArrayFieldElement:
		return e.Index == other.Index && e.Parent.Equal(other.Parent)
	default:
		return false
	}
}

func (e *EventExpression) serialize(enc *encoder) {
	enc.u8(uint8(e.Kind))
	switch e.Kind {
	case ExprPayloadField, ExprChannelContextField:
		enc.str(e.FieldName)
	case ExprAppContextField:
		enc.str(e.AppProvider)
		enc.str(e.AppType)
	case ExprArrayFieldElement:
		enc.u64(e.Index)
		e.Parent.serialize(enc)
	}
}

func decodeEventExpression(d *decoder) (*EventExpression, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	e := &EventExpression{Kind: EventExpressionKind(kind)}
	switch e.Kind {
	case ExprPayloadField, ExprChannelContextField:
		if e.FieldName, err = d.str(); err != nil {
			return nil, err
		}
	case ExprAppContextField:
		if e.AppProvider, err = d.str(); err != nil {
			return nil, err
		}
		if e.AppType, err = d.str(); err != nil {
			return nil, err
		}
	case ExprArrayFieldElement:
		if e.Index, err = d.u64(); err != nil {
			return nil, err
		}
		parent, err := decodeEventExpression(d)
		if err != nil {
			return nil, err
		}
		e.Parent = parent
	default:
		return nil, fmt.Errorf("trigobj: unknown event expression tag %d", kind)
	}
	return e, nil
}
