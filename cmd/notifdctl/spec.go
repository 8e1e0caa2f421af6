package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lttng/notifd/internal/trigobj"
)

// triggerSpec is the on-disk YAML shape accepted by `notifdctl
// register`: a pragmatic subset of trigobj's Condition/Action
// hierarchy covering BufferUsage, SessionConsumedSize and
// SessionRotation conditions, paired with the simple session actions.
// EventRuleHit conditions (tracepoint matching, capture descriptors)
// are not expressible this way; registering one requires talking the
// wire protocol directly.
type triggerSpec struct {
	Name      string        `yaml:"name"`
	Condition conditionSpec `yaml:"condition"`
	Action    actionSpec    `yaml:"action"`
}

// conditionFile is the shape accepted by `notifdctl subscribe`: just
// the condition half of a triggerSpec.
type conditionFile struct {
	Condition conditionSpec `yaml:"condition"`
}

func loadConditionSpec(path string) (*trigobj.Condition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading condition spec: %w", err)
	}
	var spec conditionFile
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing condition spec: %w", err)
	}
	return spec.Condition.build()
}

type conditionSpec struct {
	Kind           string  `yaml:"kind"` // buffer-usage | session-consumed-size | session-rotation
	Variant        string  `yaml:"variant"`
	Session        string  `yaml:"session"`
	Channel        string  `yaml:"channel"`
	Domain         string  `yaml:"domain"`
	ThresholdBytes uint64  `yaml:"threshold_bytes"`
	ThresholdRatio float64 `yaml:"threshold_ratio"`
}

type actionSpec struct {
	Kind    string `yaml:"kind"` // notify | start-session | stop-session | rotate-session | snapshot-session
	Session string `yaml:"session"`
}

// loadTriggerSpec reads and parses a trigger description file into a
// *trigobj.Trigger ready to serialize and register.
func loadTriggerSpec(path string) (*trigobj.Trigger, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trigger spec: %w", err)
	}
	var spec triggerSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing trigger spec: %w", err)
	}

	cond, err := spec.Condition.build()
	if err != nil {
		return nil, err
	}
	action, err := spec.Action.build()
	if err != nil {
		return nil, err
	}

	t := &trigobj.Trigger{Condition: cond, Action: action, Name: spec.Name}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger: %w", err)
	}
	return t, nil
}

func (c conditionSpec) build() (*trigobj.Condition, error) {
	switch c.Kind {
	case "buffer-usage":
		variant, err := parseBufferVariant(c.Variant)
		if err != nil {
			return nil, err
		}
		domain, err := parseDomain(c.Domain)
		if err != nil {
			return nil, err
		}
		if c.ThresholdRatio > 0 {
			return trigobj.NewBufferUsageRatioCondition(variant, c.Session, c.Channel, domain, c.ThresholdRatio), nil
		}
		return trigobj.NewBufferUsageCondition(variant, c.Session, c.Channel, domain, c.ThresholdBytes), nil
	case "session-consumed-size":
		return trigobj.NewSessionConsumedSizeCondition(c.Session, c.ThresholdBytes), nil
	case "session-rotation":
		variant, err := parseRotationVariant(c.Variant)
		if err != nil {
			return nil, err
		}
		return trigobj.NewSessionRotationCondition(variant, c.Session), nil
	default:
		return nil, fmt.Errorf("unknown condition.kind %q", c.Kind)
	}
}

func (a actionSpec) build() (*trigobj.Action, error) {
	switch a.Kind {
	case "", "notify":
		return trigobj.NewNotifyAction(), nil
	case "start-session":
		return trigobj.NewStartSessionAction(a.Session), nil
	case "stop-session":
		return trigobj.NewStopSessionAction(a.Session), nil
	case "rotate-session":
		return trigobj.NewRotateSessionAction(a.Session), nil
	case "snapshot-session":
		return trigobj.NewSnapshotSessionAction(a.Session, nil), nil
	default:
		return nil, fmt.Errorf("unknown action.kind %q", a.Kind)
	}
}

func parseBufferVariant(s string) (trigobj.BufferUsageVariant, error) {
	switch s {
	case "low":
		return trigobj.BufferUsageLow, nil
	case "", "high":
		return trigobj.BufferUsageHigh, nil
	default:
		return 0, fmt.Errorf("unknown condition.variant %q for buffer-usage", s)
	}
}

func parseRotationVariant(s string) (trigobj.SessionRotationVariant, error) {
	switch s {
	case "", "completed":
		return trigobj.SessionRotationCompleted, nil
	case "ongoing":
		return trigobj.SessionRotationOngoing, nil
	default:
		return 0, fmt.Errorf("unknown condition.variant %q for session-rotation", s)
	}
}

func parseDomain(s string) (trigobj.Domain, error) {
	switch s {
	case "", "kernel":
		return trigobj.DomainKernel, nil
	case "user":
		return trigobj.DomainUser, nil
	case "jul":
		return trigobj.DomainJUL, nil
	case "log4j":
		return trigobj.DomainLog4j, nil
	case "python":
		return trigobj.DomainPython, nil
	default:
		return 0, fmt.Errorf("unknown condition.domain %q", s)
	}
}
