package trigobj

import "fmt"

// Trigger is a (condition, action) pair registered with the engine,
// per spec.md §3. Name is assigned by the client or generated by the
// engine; Token is assigned by the engine only when Condition is an
// EventRuleHit that needs in-tracer identification.
type Trigger struct {
	Condition *Condition
	Action    *Action
	Name      string

	HasToken bool
	Token    uint64
}

// Validate enforces that both Condition and Action are present and
// individually valid. Name is not checked: an empty Name is the
// request for an auto-generated one, which the registry fills in.
func (t *Trigger) Validate() error {
	if t.Condition == nil {
		return fmt.Errorf("trigobj: trigger requires a condition")
	}
	if t.Action == nil {
		return fmt.Errorf("trigobj: trigger requires an action")
	}
	if err := t.Condition.Validate(); err != nil {
		return err
	}
	if err := t.Action.Validate(); err != nil {
		return err
	}
	return nil
}

// Equal reports structural equality: same condition, action, name,
// and token.
func (t *Trigger) Equal(other *Trigger) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Condition.Equal(other.Condition) &&
		t.Action.Equal(other.Action) &&
		t.Name == other.Name &&
		t.HasToken == other.HasToken &&
		t.Token == other.Token
}

// Serialize appends t's wire form to dst.
func (t *Trigger) Serialize(dst []byte) []byte {
	e := newEncoder()
	t.Condition.serialize(e)
	t.Action.serialize(e)
	e.str(t.Name)
	e.bool(t.HasToken)
	if t.HasToken {
		e.u64(t.Token)
	}
	return append(dst, e.buf...)
}

// DeserializeTrigger decodes a Trigger, requiring exact consumption.
func DeserializeTrigger(b []byte) (*Trigger, error) {
	d := newDecoder(b)
	t := &Trigger{}
	cond, err := decodeCondition(d)
	if err != nil {
		return nil, err
	}
	t.Condition = cond
	action, err := decodeAction(d)
	if err != nil {
		return nil, err
	}
	t.Action = action
	if t.Name, err = d.str(); err != nil {
		return nil, err
	}
	if t.HasToken, err = d.bool(); err != nil {
		return nil, err
	}
	if t.HasToken {
		if t.Token, err = d.u64(); err != nil {
			return nil, err
		}
	}
	if err := d.requireEOF(); err != nil {
		return nil, err
	}
	return t, nil
}
