package trigobj

import "fmt"

// ConditionKind tags the variant of a Condition (spec.md §3).
type ConditionKind uint8

const (
	ConditionBufferUsage ConditionKind = iota
	ConditionSessionConsumedSize
	ConditionSessionRotation
	ConditionEventRuleHit
)

// BufferUsageVariant distinguishes a low-watermark from a
// high-watermark buffer usage condition.
type BufferUsageVariant uint8

const (
	BufferUsageLow BufferUsageVariant = iota
	BufferUsageHigh
)

// ThresholdKind tags which of the two BufferUsage threshold forms is
// set: an absolute byte count or a ratio of channel capacity.
type ThresholdKind uint8

const (
	ThresholdBytes ThresholdKind = iota
	ThresholdRatio
)

// SessionRotationVariant distinguishes a rotation-started condition
// from a rotation-completed condition.
type SessionRotationVariant uint8

const (
	SessionRotationOngoing SessionRotationVariant = iota
	SessionRotationCompleted
)

// Condition is the tagged hierarchy of spec.md §3: BufferUsage,
// SessionConsumedSize, SessionRotation, or EventRuleHit.
type Condition struct {
	Kind ConditionKind

	// BufferUsage fields.
	BufferVariant  BufferUsageVariant
	ThresholdKind  ThresholdKind
	ThresholdBytes uint64
	ThresholdRatio float64

	// SessionName applies to BufferUsage, SessionConsumedSize, and
	// SessionRotation.
	SessionName string
	// ChannelName and Domain apply to BufferUsage only.
	ChannelName string
	Domain      Domain

	// SessionConsumedSize field.
	ConsumedThresholdBytes uint64

	// SessionRotation field.
	RotationVariant SessionRotationVariant

	// EventRuleHit fields.
	Rule                *EventRule
	CaptureDescriptors  []*EventExpression
	captureBytecodeKeys []string // populated by Populate, see capture_set.go
}

// NewBufferUsageCondition constructs a BufferUsage condition with a
// byte threshold.
func NewBufferUsageCondition(variant BufferUsageVariant, session, channel string, domain Domain, thresholdBytes uint64) *Condition {
	return &Condition{
		Kind:           ConditionBufferUsage,
		BufferVariant:  variant,
		SessionName:    session,
		ChannelName:    channel,
		Domain:         domain,
		ThresholdKind:  ThresholdBytes,
		ThresholdBytes: thresholdBytes,
	}
}

// NewBufferUsageRatioCondition constructs a BufferUsage condition with
// a ratio threshold.
func NewBufferUsageRatioCondition(variant BufferUsageVariant, session, channel string, domain Domain, ratio float64) *Condition {
	return &Condition{
		Kind:           ConditionBufferUsage,
		BufferVariant:  variant,
		SessionName:    session,
		ChannelName:    channel,
		Domain:         domain,
		ThresholdKind:  ThresholdRatio,
		ThresholdRatio: ratio,
	}
}

// NewSessionConsumedSizeCondition constructs a SessionConsumedSize condition.
func NewSessionConsumedSizeCondition(session string, thresholdBytes uint64) *Condition {
	return &Condition{
		Kind:                   ConditionSessionConsumedSize,
		SessionName:            session,
		ConsumedThresholdBytes: thresholdBytes,
	}
}

// NewSessionRotationCondition constructs a SessionRotation condition.
func NewSessionRotationCondition(variant SessionRotationVariant, session string) *Condition {
	return &Condition{
		Kind:            ConditionSessionRotation,
		SessionName:     session,
		RotationVariant: variant,
	}
}

// NewEventRuleHitCondition constructs an EventRuleHit condition.
func NewEventRuleHitCondition(rule *EventRule, captures []*EventExpression) *Condition {
	return &Condition{Kind: ConditionEventRuleHit, Rule: rule, CaptureDescriptors: captures}
}

// Validate enforces the Condition invariants of spec.md §3.
func (c *Condition) Validate() error {
	switch c.Kind {
	case ConditionBufferUsage:
		if c.SessionName == "" || c.ChannelName == "" {
			return fmt.Errorf("trigobj: buffer usage condition requires non-empty session and channel names")
		}
		switch c.ThresholdKind {
		case ThresholdBytes, ThresholdRatio:
		default:
			return fmt.Errorf("trigobj: buffer usage condition has unknown threshold kind %d", c.ThresholdKind)
		}
		if c.ThresholdKind == ThresholdRatio && (c.ThresholdRatio < 0 || c.ThresholdRatio > 1) {
			return fmt.Errorf("trigobj: buffer usage ratio threshold %v out of [0,1]", c.ThresholdRatio)
		}
	case ConditionSessionConsumedSize:
		if c.SessionName == "" {
			return fmt.Errorf("trigobj: session consumed size condition requires a non-empty session name")
		}
	case ConditionSessionRotation:
		if c.SessionName == "" {
			return fmt.Errorf("trigobj: session rotation condition requires a non-empty session name")
		}
	case ConditionEventRuleHit:
		if c.Rule == nil {
			return fmt.Errorf("trigobj: event rule hit condition requires a rule")
		}
		if err := c.Rule.Validate(); err != nil {
			return err
		}
		for i, d := range c.CaptureDescriptors {
			if err := d.Validate(); err != nil {
				return fmt.Errorf("trigobj: capture descriptor %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("trigobj: unknown condition kind %d", c.Kind)
	}
	return nil
}

// Populate prepares derived state: for EventRuleHit conditions, it
// populates the underlying event rule's compiled filter and
// registers each capture descriptor in the process-wide capture
// bytecode set (see capture_set.go), recording the assigned indices.
func (c *Condition) Populate(set *CaptureBytecodeSet) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Kind != ConditionEventRuleHit {
		return nil
	}
	if err := c.Rule.Populate(); err != nil {
		return err
	}
	c.captureBytecodeKeys = make([]string, len(c.CaptureDescriptors))
	for i, d := range c.CaptureDescriptors {
		idx := set.Intern(d)
		c.captureBytecodeKeys[i] = fmt.Sprintf("%d", idx)
	}
	return nil
}

// Equal reports whether c and other are structurally equal. Per
// spec.md §4.1, BufferUsage ratio and bytes forms are never equal
// even with matching numerical value, and EventRuleHit capture-
// descriptor lists must match in order and content.
func (c *Condition) Equal(other *Condition) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case ConditionBufferUsage:
		if c.BufferVariant != other.BufferVariant ||
			c.SessionName != other.SessionName ||
			c.ChannelName != other.ChannelName ||
			c.Domain != other.Domain ||
			c.ThresholdKind != other.ThresholdKind {
			return false
		}
		switch c.ThresholdKind {
		case ThresholdBytes:
			return c.ThresholdBytes == other.ThresholdBytes
		case ThresholdRatio:
			return c.ThresholdRatio == other.ThresholdRatio
		default:
			return false
		}
	case ConditionSessionConsumedSize:
		return c.SessionName == other.SessionName && c.ConsumedThresholdBytes == other.ConsumedThresholdBytes
	case ConditionSessionRotation:
		return c.SessionName == other.SessionName && c.RotationVariant == other.RotationVariant
	case ConditionEventRuleHit:
		if !c.Rule.Equal(other.Rule) {
			return false
		}
		if len(c.CaptureDescriptors) != len(other.CaptureDescriptors) {
			return false
		}
		for i := range c.CaptureDescriptors {
			if !c.CaptureDescriptors[i].Equal(other.CaptureDescriptors[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Serialize appends c's self-describing binary encoding to dst and
// returns the extended slice.
func (c *Condition) Serialize(dst []byte) []byte {
	e := newEncoder()
	c.serialize(e)
	return append(dst, e.buf...)
}

func (c *Condition) serialize(e *encoder) {
	e.u8(uint8(c.Kind))
	switch c.Kind {
	case ConditionBufferUsage:
		e.u8(uint8(c.BufferVariant))
		e.str(c.SessionName)
		e.str(c.ChannelName)
		e.u8(uint8(c.Domain))
		e.u8(uint8(c.ThresholdKind))
		switch c.ThresholdKind {
		case ThresholdBytes:
			e.u64(c.ThresholdBytes)
		case ThresholdRatio:
			e.f64(c.ThresholdRatio)
		}
	case ConditionSessionConsumedSize:
		e.str(c.SessionName)
		e.u64(c.ConsumedThresholdBytes)
	case ConditionSessionRotation:
		e.str(c.SessionName)
		e.u8(uint8(c.RotationVariant))
	case ConditionEventRuleHit:
		c.Rule.serialize(e)
		e.u32(uint32(len(c.CaptureDescriptors)))
		for _, d := range c.CaptureDescriptors {
			d.serialize(e)
		}
	}
}

// DeserializeCondition decodes a Condition from its wire form,
// requiring the buffer be consumed exactly.
func DeserializeCondition(b []byte) (*Condition, error) {
	d := newDecoder(b)
	c, err := decodeCondition(d)
	if err != nil {
		return nil, err
	}
	if err := d.requireEOF(); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeCondition(d *decoder) (*Condition, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	c := &Condition{Kind: ConditionKind(kind)}
	switch c.Kind {
	case ConditionBufferUsage:
		variant, err := d.u8()
		if err != nil {
			return nil, err
		}
		c.BufferVariant = BufferUsageVariant(variant)
		if c.SessionName, err = d.str(); err != nil {
			return nil, err
		}
		if c.ChannelName, err = d.str(); err != nil {
			return nil, err
		}
		dom, err := d.u8()
		if err != nil {
			return nil, err
		}
		c.Domain = Domain(dom)
		tk, err := d.u8()
		if err != nil {
			return nil, err
		}
		c.ThresholdKind = ThresholdKind(tk)
		switch c.ThresholdKind {
		case ThresholdBytes:
			if c.ThresholdBytes, err = d.u64(); err != nil {
				return nil, err
			}
		case ThresholdRatio:
			if c.ThresholdRatio, err = d.f64(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("trigobj: unknown threshold kind %d", tk)
		}
	case ConditionSessionConsumedSize:
		if c.SessionName, err = d.str(); err != nil {
			return nil, err
		}
		if c.ConsumedThresholdBytes, err = d.u64(); err != nil {
			return nil, err
		}
	case ConditionSessionRotation:
		if c.SessionName, err = d.str(); err != nil {
			return nil, err
		}
		variant, err := d.u8()
		if err != nil {
			return nil, err
		}
		c.RotationVariant = SessionRotationVariant(variant)
	case ConditionEventRuleHit:
		rule, err := decodeEventRule(d)
		if err != nil {
			return nil, err
		}
		c.Rule = rule
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			expr, err := decodeEventExpression(d)
			if err != nil {
				return nil, err
			}
			c.CaptureDescriptors = append(c.CaptureDescriptors, expr)
		}
	default:
		return nil, fmt.Errorf("trigobj: unknown condition tag %d", kind)
	}
	return c, nil
}

// AppliesToChannel reports whether a BufferUsage condition's
// (session, channel, domain) triple matches the given channel
// identity, per the applicability rule of spec.md §4.3.
func (c *Condition) AppliesToChannel(session, channel string, domain Domain) bool {
	return c.Kind == ConditionBufferUsage &&
		c.SessionName == session &&
		c.ChannelName == channel &&
		c.Domain == domain
}
