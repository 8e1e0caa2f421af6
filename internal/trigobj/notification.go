package trigobj

import "fmt"

// Notification is the wire form delivered to a subscribed client
// (spec.md §3/§4.4): the condition that fired, paired with the
// evaluation that witnessed it.
type Notification struct {
	Condition  *Condition
	Evaluation *Evaluation
}

// NewNotification constructs a Notification from a condition and the
// evaluation that made it true. The two must be of matching kinds
// (enforced by Validate, not by the constructor, to allow staged
// construction mirroring the rest of this package).
func NewNotification(cond *Condition, eval *Evaluation) *Notification {
	return &Notification{Condition: cond, Evaluation: eval}
}

// evaluationMatchesCondition reports whether an EvaluationKind is a
// valid witness for a ConditionKind. BufferUsage evaluations witness
// both BufferUsage and SessionConsumedSize conditions (spec.md §3):
// the latter has no dedicated evaluation shape of its own, since both
// are a threshold crossing described by {used_bytes, capacity}.
func evaluationMatchesCondition(ek EvaluationKind, ck ConditionKind) bool {
	switch ek {
	case EvaluationBufferUsage:
		return ck == ConditionBufferUsage || ck == ConditionSessionConsumedSize
	case EvaluationSessionRotation:
		return ck == ConditionSessionRotation
	case EvaluationEventRuleHit:
		return ck == ConditionEventRuleHit
	default:
		return false
	}
}

// Validate enforces that Condition and Evaluation are present, each
// individually valid, and of matching kinds.
func (n *Notification) Validate() error {
	if n.Condition == nil {
		return fmt.Errorf("trigobj: notification requires a condition")
	}
	if n.Evaluation == nil {
		return fmt.Errorf("trigobj: notification requires an evaluation")
	}
	if err := n.Condition.Validate(); err != nil {
		return err
	}
	if !evaluationMatchesCondition(n.Evaluation.Kind, n.Condition.Kind) {
		return fmt.Errorf("trigobj: evaluation kind %d does not match condition kind %d", n.Evaluation.Kind, n.Condition.Kind)
	}
	return nil
}

// Equal reports structural equality.
func (n *Notification) Equal(other *Notification) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.Condition.Equal(other.Condition) && n.Evaluation.Equal(other.Evaluation)
}

// Serialize appends n's wire form to dst.
func (n *Notification) Serialize(dst []byte) []byte {
	e := newEncoder()
	n.Condition.serialize(e)
	n.Evaluation.serialize(e)
	return append(dst, e.buf...)
}

// DeserializeNotification decodes a Notification, requiring exact
// consumption.
func DeserializeNotification(b []byte) (*Notification, error) {
	d := newDecoder(b)
	cond, err := decodeCondition(d)
	if err != nil {
		return nil, err
	}
	eval, err := decodeEvaluation(d)
	if err != nil {
		return nil, err
	}
	if err := d.requireEOF(); err != nil {
		return nil, err
	}
	return &Notification{Condition: cond, Evaluation: eval}, nil
}
