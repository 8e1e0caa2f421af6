package evaluate

import (
	"testing"

	"github.com/lttng/notifd/internal/trigobj"
)

func bufCond(variant trigobj.BufferUsageVariant, bytes uint64) *trigobj.Condition {
	return trigobj.NewBufferUsageCondition(variant, "sess", "chan0", trigobj.DomainKernel, bytes)
}

func ratioCond(variant trigobj.BufferUsageVariant, ratio float64) *trigobj.Condition {
	return trigobj.NewBufferUsageRatioCondition(variant, "sess", "chan0", trigobj.DomainKernel, ratio)
}

func TestEvaluate_PositiveEdgeOnly(t *testing.T) {
	c := bufCond(trigobj.BufferUsageHigh, 1000)

	// No previous sample, latest crosses threshold: fires.
	ev := Evaluate(c, nil, Sample{HighestUsage: 1000}, 2000)
	if ev == nil {
		t.Fatal("expected evaluation on first sample crossing threshold")
	}

	// Previous also satisfied: must not re-fire (no re-notify while steady).
	prev := Sample{HighestUsage: 1500}
	ev = Evaluate(c, &prev, Sample{HighestUsage: 1600}, 2000)
	if ev != nil {
		t.Fatal("expected no evaluation when previous sample already satisfied condition")
	}

	// Previous below threshold, latest crosses: fires again (new edge).
	prev = Sample{HighestUsage: 500}
	ev = Evaluate(c, &prev, Sample{HighestUsage: 1200}, 2000)
	if ev == nil {
		t.Fatal("expected evaluation on a fresh positive edge")
	}
}

func TestEvaluate_LowWatermark(t *testing.T) {
	c := bufCond(trigobj.BufferUsageLow, 100)

	ev := Evaluate(c, nil, Sample{HighestUsage: 50}, 2000)
	if ev == nil {
		t.Fatal("expected evaluation: highest below low threshold")
	}

	ev = Evaluate(c, nil, Sample{HighestUsage: 150}, 2000)
	if ev != nil {
		t.Fatal("expected no evaluation: highest above low threshold")
	}
}

func TestEvaluate_RatioZero(t *testing.T) {
	low := ratioCond(trigobj.BufferUsageLow, 0.0)
	high := ratioCond(trigobj.BufferUsageHigh, 0.0)

	// Always satisfied for Low regardless of the sample.
	if ev := Evaluate(low, nil, Sample{HighestUsage: 999999}, 1000); ev == nil {
		t.Fatal("ratio 0.0 must always satisfy Low")
	}
	// Never satisfied for High regardless of the sample.
	if ev := Evaluate(high, nil, Sample{HighestUsage: 0}, 1000); ev != nil {
		t.Fatal("ratio 0.0 must never satisfy High")
	}
}

func TestEvaluate_RatioOne(t *testing.T) {
	high := ratioCond(trigobj.BufferUsageHigh, 1.0)

	if ev := Evaluate(high, nil, Sample{HighestUsage: 999}, 1000); ev != nil {
		t.Fatal("ratio 1.0 High must only satisfy when the stream is completely full")
	}
	if ev := Evaluate(high, nil, Sample{HighestUsage: 1000}, 1000); ev == nil {
		t.Fatal("ratio 1.0 High must satisfy when the stream is completely full")
	}
}

func TestEvaluate_NonBufferUsageConditionReturnsNil(t *testing.T) {
	c := trigobj.NewSessionRotationCondition(trigobj.SessionRotationOngoing, "sess")
	if ev := Evaluate(c, nil, Sample{HighestUsage: 1}, 100); ev != nil {
		t.Fatal("Evaluate must only handle BufferUsage conditions")
	}
}

func TestEvaluateSessionConsumedSize_PositiveEdge(t *testing.T) {
	c := trigobj.NewSessionConsumedSizeCondition("sess", 1<<20)

	if ev := EvaluateSessionConsumedSize(c, nil, 1<<19); ev != nil {
		t.Fatal("expected no evaluation below threshold")
	}
	if ev := EvaluateSessionConsumedSize(c, nil, 1<<20); ev == nil {
		t.Fatal("expected evaluation at threshold")
	}

	prev := uint64(1 << 20)
	if ev := EvaluateSessionConsumedSize(c, &prev, 1<<21); ev != nil {
		t.Fatal("expected no re-notification while already satisfied")
	}
}
