// Package evaluate implements the pure edge-triggered evaluation
// function of spec.md §4.5 (C6): evaluate(condition, previous, latest,
// capacity) -> Option<Evaluation>. It is deliberately side-effect
// free so property-based tests can drive it directly.
package evaluate

import (
	"math"

	"github.com/lttng/notifd/internal/trigobj"
)

// Sample is one channel-occupancy reading drained from a per-tracer
// pipe (spec.md §4.5): {channel_key, highest, lowest}, minus the key
// which the caller has already resolved to a channel and condition.
type Sample struct {
	HighestUsage uint64
	LowestUsage  uint64
}

// thresholdBytes resolves a BufferUsage condition's threshold to an absolute byte count against capacity,
// multiplying ratio thresholds by capacity in u64 space. Ratio 0.0 is
// handled by the caller as a named edge case rather than through this
// general conversion (spec.md §4.5).
func thresholdBytes(c *trigobj.Condition, capacity uint64) uint64 {
	if c.ThresholdKind == trigobj.ThresholdBytes {
		return c.ThresholdBytes
	}
	return uint64(math.Round(c.ThresholdRatio * float64(capacity)))
}

// satisfiesBufferUsage reports whether sample satisfies condition
// against capacity, per spec.md §4.5: Low is satisfied when
// highest_usage <= threshold; High when highest_usage >= threshold.
// A ratio of 0.0 is a named edge case: always satisfied for Low,
// never for High, regardless of the sample (overriding the general
// formula, which would otherwise depend on whether the buffer is
// literally empty).
func satisfiesBufferUsage(c *trigobj.Condition, sample Sample, capacity uint64) bool {
	if c.ThresholdKind == trigobj.ThresholdRatio && c.ThresholdRatio == 0 {
		return c.BufferVariant == trigobj.BufferUsageLow
	}
	threshold := thresholdBytes(c, capacity)
	if c.BufferVariant == trigobj.BufferUsageLow {
		return sample.HighestUsage <= threshold
	}
	return sample.HighestUsage >= threshold
}

// Evaluate is the pure function of spec.md §4.5. previous is nil if
// no prior sample exists for this channel. It returns a non-nil
// Evaluation only on the positive edge: latest satisfies the
// condition and previous did not (or did not exist).
func Evaluate(c *trigobj.Condition, previous *Sample, latest Sample, capacity uint64) *trigobj.Evaluation {
	if c.Kind != trigobj.ConditionBufferUsage {
		return nil
	}
	latestResult := satisfiesBufferUsage(c, latest, capacity)
	if !latestResult {
		return nil
	}
	previousResult := false
	if previous != nil {
		previousResult = satisfiesBufferUsage(c, *previous, capacity)
	}
	if previousResult {
		return nil
	}
	return trigobj.NewBufferUsageEvaluation(latest.HighestUsage, capacity)
}

// EvaluateSessionConsumedSize evaluates a SessionConsumedSize
// condition, which shares BufferUsage's threshold-crossing shape but
// is keyed by session rather than channel (spec.md §3). consumed is
// the session's total consumed byte count; there is no capacity
// ceiling, so the evaluation's Capacity field mirrors the threshold.
func EvaluateSessionConsumedSize(c *trigobj.Condition, previousConsumed *uint64, latestConsumed uint64) *trigobj.Evaluation {
	if c.Kind != trigobj.ConditionSessionConsumedSize {
		return nil
	}
	latestResult := latestConsumed >= c.ConsumedThresholdBytes
	if !latestResult {
		return nil
	}
	previousResult := false
	if previousConsumed != nil {
		previousResult = *previousConsumed >= c.ConsumedThresholdBytes
	}
	if previousResult {
		return nil
	}
	return trigobj.NewBufferUsageEvaluation(latestConsumed, c.ConsumedThresholdBytes)
}
