package trigobj

import "fmt"

// EvaluationKind mirrors ConditionKind but only the three variants
// that actually carry a witness value (spec.md §3: "Evaluation
// (tagged, paired with a Condition type)").
type EvaluationKind uint8

const (
	EvaluationBufferUsage EvaluationKind = iota
	EvaluationSessionRotation
	EvaluationEventRuleHit
)

// TraceArchiveLocationKind tags where a completed rotation's trace
// chunk landed.
type TraceArchiveLocationKind uint8

const (
	LocationLocal TraceArchiveLocationKind = iota
	LocationRelay
)

// TraceArchiveLocation describes where a rotated trace chunk now
// lives, either on the local filesystem or at a relay daemon.
type TraceArchiveLocation struct {
	Kind TraceArchiveLocationKind

	// AbsolutePath applies to LocationLocal.
	AbsolutePath string

	// Relay fields apply to LocationRelay.
	Protocol     string
	Host         string
	CtrlPort     uint16
	DataPort     uint16
	RelativePath string
}

// Evaluation is the concrete datum that witnessed a condition
// becoming true, per spec.md §3.
type Evaluation struct {
	Kind EvaluationKind

	// BufferUsage fields.
	UsedBytes uint64
	Capacity  uint64

	// SessionRotation fields.
	ChunkID         uint64
	HasChunkID      bool
	ArchiveLocation *TraceArchiveLocation // nil for an "ongoing" evaluation

	// EventRuleHit fields.
	TriggerName    string
	CapturedValues *EventFieldValue // nil if not decoded or unavailable
}

// NewBufferUsageEvaluation constructs a BufferUsage evaluation.
func NewBufferUsageEvaluation(used, capacity uint64) *Evaluation {
	return &Evaluation{Kind: EvaluationBufferUsage, UsedBytes: used, Capacity: capacity}
}

// NewSessionRotationEvaluation constructs a SessionRotation evaluation.
// chunkID is optional (anonymous chunks have none); location is nil
// for an "ongoing" rotation and set for a "completed" one.
func NewSessionRotationEvaluation(chunkID uint64, hasChunkID bool, location *TraceArchiveLocation) *Evaluation {
	return &Evaluation{Kind: EvaluationSessionRotation, ChunkID: chunkID, HasChunkID: hasChunkID, ArchiveLocation: location}
}

// NewEventRuleHitEvaluation constructs an EventRuleHit evaluation.
func NewEventRuleHitEvaluation(triggerName string, captured *EventFieldValue) *Evaluation {
	return &Evaluation{Kind: EvaluationEventRuleHit, TriggerName: triggerName, CapturedValues: captured}
}

func (ev *Evaluation) serialize(e *encoder) {
	e.u8(uint8(ev.Kind))
	switch ev.Kind {
	case EvaluationBufferUsage:
		e.u64(ev.UsedBytes)
		e.u64(ev.Capacity)
	case EvaluationSessionRotation:
		e.bool(ev.HasChunkID)
		if ev.HasChunkID {
			e.u64(ev.ChunkID)
		}
		e.bool(ev.ArchiveLocation != nil)
		if loc := ev.ArchiveLocation; loc != nil {
			e.u8(uint8(loc.Kind))
			switch loc.Kind {
			case LocationLocal:
				e.str(loc.AbsolutePath)
			case LocationRelay:
				e.str(loc.Protocol)
				e.str(loc.Host)
				e.u32(uint32(loc.CtrlPort))
				e.u32(uint32(loc.DataPort))
				e.str(loc.RelativePath)
			}
		}
	case EvaluationEventRuleHit:
		e.str(ev.TriggerName)
		e.bool(ev.CapturedValues != nil)
		if ev.CapturedValues != nil {
			ev.CapturedValues.serialize(e)
		}
	}
}

func decodeEvaluation(d *decoder) (*Evaluation, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	ev := &Evaluation{Kind: EvaluationKind(kind)}
	switch ev.Kind {
	case EvaluationBufferUsage:
		if ev.UsedBytes, err = d.u64(); err != nil {
			return nil, err
		}
		if ev.Capacity, err = d.u64(); err != nil {
			return nil, err
		}
	case EvaluationSessionRotation:
		if ev.HasChunkID, err = d.bool(); err != nil {
			return nil, err
		}
		if ev.HasChunkID {
			if ev.ChunkID, err = d.u64(); err != nil {
				return nil, err
			}
		}
		hasLoc, err := d.bool()
		if err != nil {
			return nil, err
		}
		if hasLoc {
			loc := &TraceArchiveLocation{}
			k, err := d.u8()
			if err != nil {
				return nil, err
			}
			loc.Kind = TraceArchiveLocationKind(k)
			switch loc.Kind {
			case LocationLocal:
				if loc.AbsolutePath, err = d.str(); err != nil {
					return nil, err
				}
			case LocationRelay:
				if loc.Protocol, err = d.str(); err != nil {
					return nil, err
				}
				if loc.Host, err = d.str(); err != nil {
					return nil, err
				}
				ctrl, err := d.u32()
				if err != nil {
					return nil, err
				}
				loc.CtrlPort = uint16(ctrl)
				data, err := d.u32()
				if err != nil {
					return nil, err
				}
				loc.DataPort = uint16(data)
				if loc.RelativePath, err = d.str(); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("trigobj: unknown archive location kind %d", k)
			}
			ev.ArchiveLocation = loc
		}
	case EvaluationEventRuleHit:
		if ev.TriggerName, err = d.str(); err != nil {
			return nil, err
		}
		hasCaptured, err := d.bool()
		if err != nil {
			return nil, err
		}
		if hasCaptured {
			v, err := decodeEventFieldValue(d)
			if err != nil {
				return nil, err
			}
			ev.CapturedValues = v
		}
	default:
		return nil, fmt.Errorf("trigobj: unknown evaluation tag %d", kind)
	}
	return ev, nil
}

// Equal reports structural equality.
func (ev *Evaluation) Equal(other *Evaluation) bool {
	if ev == nil || other == nil {
		return ev == other
	}
	if ev.Kind != other.Kind {
		return false
	}
	switch ev.Kind {
	case EvaluationBufferUsage:
		return ev.UsedBytes == other.UsedBytes && ev.Capacity == other.Capacity
	case EvaluationSessionRotation:
		if ev.HasChunkID != other.HasChunkID || (ev.HasChunkID && ev.ChunkID != other.ChunkID) {
			return false
		}
		return equalLocation(ev.ArchiveLocation, other.ArchiveLocation)
	case EvaluationEventRuleHit:
		return ev.TriggerName == other.TriggerName && ev.CapturedValues.Equal(other.CapturedValues)
	default:
		return false
	}
}

func equalLocation(a, b *TraceArchiveLocation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
