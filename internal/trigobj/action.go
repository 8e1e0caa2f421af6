package trigobj

import "fmt"

// ActionKind tags the variant of an Action (spec.md §3).
type ActionKind uint8

const (
	ActionNotify ActionKind = iota
	ActionStartSession
	ActionStopSession
	ActionRotateSession
	ActionSnapshotSession
	ActionGroup
)

// SnapshotOutputKind tags how a SnapshotSession action's destination
// is specified.
type SnapshotOutputKind uint8

const (
	SnapshotOutputNone SnapshotOutputKind = iota
	SnapshotOutputURL
	SnapshotOutputCtrlData
)

// SnapshotOutput is the optional output destination of a
// SnapshotSession action.
type SnapshotOutput struct {
	Kind SnapshotOutputKind

	Name    string
	MaxSize uint64

	// URL applies to SnapshotOutputURL (a single path or net URL).
	URL string

	// CtrlURL/DataURL apply to SnapshotOutputCtrlData.
	CtrlURL string
	DataURL string
}

// Action is the tagged hierarchy of spec.md §3. Group is not
// nestable: a Group's Actions must not themselves be ActionGroup.
type Action struct {
	Kind ActionKind

	// SessionName applies to StartSession, StopSession,
	// RotateSession, SnapshotSession.
	SessionName string
	// SnapshotOutput applies to SnapshotSession only.
	SnapshotOutput *SnapshotOutput

	// Actions applies to Group only.
	Actions []*Action
}

// NewNotifyAction constructs a Notify action.
func NewNotifyAction() *Action {
	return &Action{Kind: ActionNotify}
}

// NewStartSessionAction constructs a StartSession action.
func NewStartSessionAction(name string) *Action {
	return &Action{Kind: ActionStartSession, SessionName: name}
}

// NewStopSessionAction constructs a StopSession action.
func NewStopSessionAction(name string) *Action {
	return &Action{Kind: ActionStopSession, SessionName: name}
}

// NewRotateSessionAction constructs a RotateSession action.
func NewRotateSessionAction(name string) *Action {
	return &Action{Kind: ActionRotateSession, SessionName: name}
}

// NewSnapshotSessionAction constructs a SnapshotSession action.
func NewSnapshotSessionAction(name string, output *SnapshotOutput) *Action {
	return &Action{Kind: ActionSnapshotSession, SessionName: name, SnapshotOutput: output}
}

// NewGroupAction constructs a Group action from a non-nested sequence
// of actions.
func NewGroupAction(actions []*Action) *Action {
	return &Action{Kind: ActionGroup, Actions: actions}
}

// Validate enforces the Action invariants of spec.md §3: a Group may
// not contain another Group, and a SnapshotSession's output carries
// either a single URL or a control/data URL pair, never both.
func (a *Action) Validate() error {
	switch a.Kind {
	case ActionNotify:
		return nil
	case ActionStartSession, ActionStopSession, ActionRotateSession:
		if a.SessionName == "" {
			return fmt.Errorf("trigobj: session action requires a non-empty session name")
		}
		return nil
	case ActionSnapshotSession:
		if a.SessionName == "" {
			return fmt.Errorf("trigobj: snapshot session action requires a non-empty session name")
		}
		if a.SnapshotOutput == nil {
			return nil
		}
		switch a.SnapshotOutput.Kind {
		case SnapshotOutputNone:
		case SnapshotOutputURL:
			if a.SnapshotOutput.URL == "" {
				return fmt.Errorf("trigobj: snapshot output URL must not be empty")
			}
		case SnapshotOutputCtrlData:
			if a.SnapshotOutput.CtrlURL == "" || a.SnapshotOutput.DataURL == "" {
				return fmt.Errorf("trigobj: snapshot output requires both control and data URLs")
			}
		default:
			return fmt.Errorf("trigobj: unknown snapshot output kind %d", a.SnapshotOutput.Kind)
		}
		return nil
	case ActionGroup:
		if len(a.Actions) == 0 {
			return fmt.Errorf("trigobj: group action requires at least one action")
		}
		for i, child := range a.Actions {
			if child.Kind == ActionGroup {
				return fmt.Errorf("trigobj: group action may not nest another group (index %d)", i)
			}
			if err := child.Validate(); err != nil {
				return fmt.Errorf("trigobj: group action index %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("trigobj: unknown action kind %d", a.Kind)
	}
}

// Equal reports structural equality.
func (a *Action) Equal(other *Action) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.Kind != other.Kind {
		return false
	}
	switch a.Kind {
	case ActionNotify:
		return true
	case ActionStartSession, ActionStopSession, ActionRotateSession:
		return a.SessionName == other.SessionName
	case ActionSnapshotSession:
		return a.SessionName == other.SessionName && equalSnapshotOutput(a.SnapshotOutput, other.SnapshotOutput)
	case ActionGroup:
		if len(a.Actions) != len(other.Actions) {
			return false
		}
		for i := range a.Actions {
			if !a.Actions[i].Equal(other.Actions[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalSnapshotOutput(a, b *SnapshotOutput) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (a *Action) serialize(e *encoder) {
	e.u8(uint8(a.Kind))
	switch a.Kind {
	case ActionNotify:
	case ActionStartSession, ActionStopSession, ActionRotateSession:
		e.str(a.SessionName)
	case ActionSnapshotSession:
		e.str(a.SessionName)
		e.bool(a.SnapshotOutput != nil)
		if a.SnapshotOutput != nil {
			o := a.SnapshotOutput
			e.u8(uint8(o.Kind))
			e.str(o.Name)
			e.u64(o.MaxSize)
			switch o.Kind {
			case SnapshotOutputURL:
				e.str(o.URL)
			case SnapshotOutputCtrlData:
				e.str(o.CtrlURL)
				e.str(o.DataURL)
			}
		}
	case ActionGroup:
		e.u32(uint32(len(a.Actions)))
		for _, child := range a.Actions {
			child.serialize(e)
		}
	}
}

func decodeAction(d *decoder) (*Action, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	a := &Action{Kind: ActionKind(kind)}
	switch a.Kind {
	case ActionNotify:
	case ActionStartSession, ActionStopSession, ActionRotateSession:
		if a.SessionName, err = d.str(); err != nil {
			return nil, err
		}
	case ActionSnapshotSession:
		if a.SessionName, err = d.str(); err != nil {
			return nil, err
		}
		hasOutput, err := d.bool()
		if err != nil {
			return nil, err
		}
		if hasOutput {
			o := &SnapshotOutput{}
			k, err := d.u8()
			if err != nil {
				return nil, err
			}
			o.Kind = SnapshotOutputKind(k)
			if o.Name, err = d.str(); err != nil {
				return nil, err
			}
			if o.MaxSize, err = d.u64(); err != nil {
				return nil, err
			}
			switch o.Kind {
			case SnapshotOutputURL:
				if o.URL, err = d.str(); err != nil {
					return nil, err
				}
			case SnapshotOutputCtrlData:
				if o.CtrlURL, err = d.str(); err != nil {
					return nil, err
				}
				if o.DataURL, err = d.str(); err != nil {
					return nil, err
				}
			}
			a.SnapshotOutput = o
		}
	case ActionGroup:
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			child, err := decodeAction(d)
			if err != nil {
				return nil, err
			}
			a.Actions = append(a.Actions, child)
		}
	default:
		return nil, fmt.Errorf("trigobj: unknown action tag %d", kind)
	}
	return a, nil
}

// Serialize appends a's wire form to dst.
func (a *Action) Serialize(dst []byte) []byte {
	e := newEncoder()
	a.serialize(e)
	return append(dst, e.buf...)
}

// DeserializeAction decodes an Action, requiring exact consumption.
func DeserializeAction(b []byte) (*Action, error) {
	d := newDecoder(b)
	a, err := decodeAction(d)
	if err != nil {
		return nil, err
	}
	if err := d.requireEOF(); err != nil {
		return nil, err
	}
	return a, nil
}
