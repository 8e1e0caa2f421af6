package trigobj

import (
	"fmt"
	"strings"
)

// EventRuleKind tags the variant of an EventRule (spec.md §3).
type EventRuleKind uint8

const (
	EventRuleTracepoint EventRuleKind = iota
	EventRuleKprobe
	EventRuleUProbe
	EventRuleSyscall
)

// LogLevelOp is the comparison operator carried alongside a loglevel
// threshold. The distilled spec collapses this to a bare numeric
// range; src/common/event-rule-tracepoint.c in original_source carries
// an explicit operator (LTTNG_EVENT_LOGLEVEL_RANGE vs
// LTTNG_EVENT_LOGLEVEL_SINGLE), which this type preserves.
type LogLevelOp uint8

const (
	LogLevelAtLeastAsSevereAs LogLevelOp = iota
	LogLevelEqual
)

// LogLevelSpec constrains a tracepoint or agent-domain rule to events
// at or above (or exactly at) a given severity.
type LogLevelSpec struct {
	Op    LogLevelOp
	Level int32
}

// KprobeLocationKind tags how a Kprobe rule's attach point is given.
type KprobeLocationKind uint8

const (
	KprobeLocationSymbolOffset KprobeLocationKind = iota
	KprobeLocationAddress
)

// KprobeLocation is a kernel probe attach point: either a symbol name
// plus byte offset, or an absolute address.
type KprobeLocation struct {
	Kind    KprobeLocationKind
	Symbol  string
	Offset  uint64
	Address uint64
}

// UProbeLocationKind tags whether a UProbe attaches via an ELF symbol
// or a userspace static tracepoint (SDT) marker.
type UProbeLocationKind uint8

const (
	UProbeLocationELF UProbeLocationKind = iota
	UProbeLocationSDT
)

// UProbeLocation is a userspace probe attach point.
type UProbeLocation struct {
	Kind        UProbeLocationKind
	BinaryPath  string
	ELFFuncName string // set when Kind == UProbeLocationELF
	SDTProvider string // set when Kind == UProbeLocationSDT
	SDTName     string // set when Kind == UProbeLocationSDT
}

// EventRule is the tagged hierarchy of spec.md §3: Tracepoint, Kprobe,
// UProbe, or Syscall. Exactly the fields relevant to Kind are
// meaningful; Validate enforces this.
type EventRule struct {
	Kind EventRuleKind

	// Domain applies to Tracepoint and Syscall rules.
	Domain Domain
	// Pattern is the event-name glob for Tracepoint/Syscall rules.
	Pattern string
	// Filter is a raw filter expression. Rejected for kernel Kprobe
	// and UProbe rules (spec.md §3).
	Filter string
	// LogLevel constrains severity. Permitted only for Tracepoint
	// rules in an agent domain (JUL/Log4j/Python) or DomainUser.
	LogLevel *LogLevelSpec
	// Exclusions is a list of event-name globs to exclude. Permitted
	// only for Tracepoint rules in DomainUser.
	Exclusions []string

	// Name is the probe's identifying name, for Kprobe/UProbe rules.
	Name      string
	KprobeLoc KprobeLocation
	UProbeLoc UProbeLocation

	// compiledFilter and rewrittenFilter are populated by Populate,
	// not supplied by the caller.
	compiledFilter  []byte
	rewrittenFilter string
}

// NewTracepointRule constructs a Tracepoint event rule.
func NewTracepointRule(domain Domain, pattern string) *EventRule {
	return &EventRule{Kind: EventRuleTracepoint, Domain: domain, Pattern: pattern}
}

// NewKprobeRule constructs a Kprobe event rule.
func NewKprobeRule(name string, loc KprobeLocation) *EventRule {
	return &EventRule{Kind: EventRuleKprobe, Name: name, KprobeLoc: loc}
}

// NewUProbeRule constructs a UProbe event rule.
func NewUProbeRule(name string, loc UProbeLocation) *EventRule {
	return &EventRule{Kind: EventRuleUProbe, Name: name, UProbeLoc: loc}
}

// NewSyscallRule constructs a Syscall event rule.
func NewSyscallRule(pattern string) *EventRule {
	return &EventRule{Kind: EventRuleSyscall, Pattern: pattern}
}

// Validate enforces the EventRule invariants of spec.md §3:
// exclusions only for user-domain tracepoints, loglevel only for
// tracepoints in agent or user domains, and no filter on kernel
// kprobe/uprobe rules.
func (r *EventRule) Validate() error {
	switch r.Kind {
	case EventRuleTracepoint:
		if r.Pattern == "" {
			return fmt.Errorf("trigobj: tracepoint rule requires a non-empty pattern")
		}
		if len(r.Exclusions) > 0 && r.Domain != DomainUser {
			return fmt.Errorf("trigobj: exclusions are only permitted for user-tracepoint rules, domain is %s", r.Domain)
		}
		for _, ex := range r.Exclusions {
			if ex == "" {
				return fmt.Errorf("trigobj: exclusion pattern must not be empty")
			}
			if !strings.HasPrefix(ex, strings.TrimSuffix(r.Pattern, "*")) {
				return fmt.Errorf("trigobj: exclusion %q is not more specific than pattern %q", ex, r.Pattern)
			}
		}
		if r.LogLevel != nil && !(r.Domain.isAgentDomain() || r.Domain == DomainUser) {
			return fmt.Errorf("trigobj: loglevel range is only permitted for tracepoints in agent or user domains, domain is %s", r.Domain)
		}
	case EventRuleSyscall:
		if r.Pattern == "" {
			return fmt.Errorf("trigobj: syscall rule requires a non-empty pattern")
		}
		if len(r.Exclusions) > 0 {
			return fmt.Errorf("trigobj: exclusions are not permitted for syscall rules")
		}
		if r.LogLevel != nil {
			return fmt.Errorf("trigobj: loglevel range is not permitted for syscall rules")
		}
	case EventRuleKprobe:
		if r.Name == "" {
			return fmt.Errorf("trigobj: kprobe rule requires a non-empty name")
		}
		if r.Filter != "" {
			return fmt.Errorf("trigobj: filter expressions are rejected for kernel kprobe rules")
		}
		if r.KprobeLoc.Kind == KprobeLocationSymbolOffset && r.KprobeLoc.Symbol == "" {
			return fmt.Errorf("trigobj: kprobe symbol+offset location requires a symbol")
		}
		if len(r.Exclusions) > 0 || r.LogLevel != nil {
			return fmt.Errorf("trigobj: exclusions and loglevel ranges are not permitted for kprobe rules")
		}
	case EventRuleUProbe:
		if r.Name == "" {
			return fmt.Errorf("trigobj: uprobe rule requires a non-empty name")
		}
		if r.Filter != "" {
			return fmt.Errorf("trigobj: filter expressions are rejected for uprobe rules")
		}
		if r.UProbeLoc.BinaryPath == "" {
			return fmt.Errorf("trigobj: uprobe location requires a binary path")
		}
		if r.UProbeLoc.Kind == UProbeLocationSDT && (r.UProbeLoc.SDTProvider == "" || r.UProbeLoc.SDTName == "") {
			return fmt.Errorf("trigobj: uprobe SDT location requires provider and name")
		}
		if len(r.Exclusions) > 0 || r.LogLevel != nil {
			return fmt.Errorf("trigobj: exclusions and loglevel ranges are not permitted for uprobe rules")
		}
	default:
		return fmt.Errorf("trigobj: unknown event rule kind %d", r.Kind)
	}
	return nil
}

// Populate compiles the rule's filter (if any) into bytecode and, for
// agent-domain rules, rewrites the filter to join the user-supplied
// expression with a logger_name equality clause and the optional
// loglevel predicate (spec.md §3: "After construction an event rule
// is populated with a compiled filter bytecode and, for agent
// domains, a rewritten filter...").
func (r *EventRule) Populate() error {
	if err := r.Validate(); err != nil {
		return err
	}

	filter := r.Filter
	if r.Kind == EventRuleTracepoint && r.Domain.isAgentDomain() {
		filter = rewriteAgentFilter(filter, r.Pattern, r.LogLevel)
		r.rewrittenFilter = filter
	}

	if filter == "" {
		r.compiledFilter = nil
		return nil
	}
	r.compiledFilter = compileFilter(filter)
	return nil
}

// rewriteAgentFilter joins a user filter expression with
// `logger_name == pattern` and, if present, a loglevel predicate.
func rewriteAgentFilter(userFilter, pattern string, level *LogLevelSpec) string {
	var clauses []string
	if userFilter != "" {
		clauses = append(clauses, "("+userFilter+")")
	}
	clauses = append(clauses, fmt.Sprintf("logger_name == \"%s\"", pattern))
	if level != nil {
		op := ">="
		if level.Op == LogLevelEqual {
			op = "=="
		}
		clauses = append(clauses, fmt.Sprintf("loglevel %s %d", op, level.Level))
	}
	return strings.Join(clauses, " && ")
}

// compileFilter lowers a filter expression string to a placeholder
// bytecode representation. The real lttng filter compiler targets a
// stack machine; this rework only needs a stable, structurally
// comparable byte sequence since filters are never evaluated locally
// here (they run in the tracer), only serialized and round-tripped.
func compileFilter(expr string) []byte {
	return []byte(expr)
}

// CompiledFilter returns the bytecode produced by Populate, or nil if
// the rule has no filter.
func (r *EventRule) CompiledFilter() []byte {
	return r.compiledFilter
}

// RewrittenFilter returns the agent-domain rewritten filter produced
// by Populate, or the empty string for non-agent rules.
func (r *EventRule) RewrittenFilter() string {
	return r.rewrittenFilter
}

// Equal reports whether r and other are structurally equal, per
// spec.md §4.1.
func (r *EventRule) Equal(other *EventRule) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Kind != other.Kind {
		return false
	}
	switch r.Kind {
	case EventRuleTracepoint:
		return r.Domain == other.Domain &&
			r.Pattern == other.Pattern &&
			r.Filter == other.Filter &&
			equalLogLevel(r.LogLevel, other.LogLevel) &&
			equalStringSlice(r.Exclusions, other.Exclusions)
	case EventRuleSyscall:
		return r.Pattern == other.Pattern && r.Filter == other.Filter
	case EventRuleKprobe:
		return r.Name == other.Name && r.KprobeLoc == other.KprobeLoc
	case EventRuleUProbe:
		return r.Name == other.Name && r.UProbeLoc == other.UProbeLoc
	default:
		return false
	}
}

func equalLogLevel(a, b *LogLevelSpec) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStringSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Serialize appends r's wire representation to the encoder.
func (r *EventRule) serialize(e *encoder) {
	e.u8(uint8(r.Kind))
	switch r.Kind {
	case EventRuleTracepoint:
		e.u8(uint8(r.Domain))
		e.str(r.Pattern)
		e.bool(r.Filter != "")
		if r.Filter != "" {
			e.str(r.Filter)
		}
		e.bool(r.LogLevel != nil)
		if r.LogLevel != nil {
			e.u8(uint8(r.LogLevel.Op))
			e.i64(int64(r.LogLevel.Level))
		}
		e.u32(uint32(len(r.Exclusions)))
		for _, ex := range r.Exclusions {
			e.str(ex)
		}
	case EventRuleSyscall:
		e.str(r.Pattern)
		e.bool(r.Filter != "")
		if r.Filter != "" {
			e.str(r.Filter)
		}
	case EventRuleKprobe:
		e.str(r.Name)
		e.u8(uint8(r.KprobeLoc.Kind))
		switch r.KprobeLoc.Kind {
		case KprobeLocationSymbolOffset:
			e.str(r.KprobeLoc.Symbol)
			e.u64(r.KprobeLoc.Offset)
		case KprobeLocationAddress:
			e.u64(r.KprobeLoc.Address)
		}
	case EventRuleUProbe:
		e.str(r.Name)
		e.u8(uint8(r.UProbeLoc.Kind))
		e.str(r.UProbeLoc.BinaryPath)
		switch r.UProbeLoc.Kind {
		case UProbeLocationELF:
			e.str(r.UProbeLoc.ELFFuncName)
		case UProbeLocationSDT:
			e.str(r.UProbeLoc.SDTProvider)
			e.str(r.UProbeLoc.SDTName)
		}
	}
}

func decodeEventRule(d *decoder) (*EventRule, error) {
	kind, err := d.u8()
	if err != nil {
		return nil, err
	}
	r := &EventRule{Kind: EventRuleKind(kind)}
	switch r.Kind {
	case EventRuleTracepoint:
		dom, err := d.u8()
		if err != nil {
			return nil, err
		}
		r.Domain = Domain(dom)
		if r.Pattern, err = d.str(); err != nil {
			return nil, err
		}
		hasFilter, err := d.bool()
		if err != nil {
			return nil, err
		}
		if hasFilter {
			if r.Filter, err = d.str(); err != nil {
				return nil, err
			}
		}
		hasLevel, err := d.bool()
		if err != nil {
			return nil, err
		}
		if hasLevel {
			op, err := d.u8()
			if err != nil {
				return nil, err
			}
			level, err := d.i64()
			if err != nil {
				return nil, err
			}
			r.LogLevel = &LogLevelSpec{Op: LogLevelOp(op), Level: int32(level)}
		}
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			ex, err := d.str()
			if err != nil {
				return nil, err
			}
			r.Exclusions = append(r.Exclusions, ex)
		}
	case EventRuleSyscall:
		if r.Pattern, err = d.str(); err != nil {
			return nil, err
		}
		hasFilter, err := d.bool()
		if err != nil {
			return nil, err
		}
		if hasFilter {
			if r.Filter, err = d.str(); err != nil {
				return nil, err
			}
		}
	case EventRuleKprobe:
		if r.Name, err = d.str(); err != nil {
			return nil, err
		}
		kind, err := d.u8()
		if err != nil {
			return nil, err
		}
		r.KprobeLoc.Kind = KprobeLocationKind(kind)
		switch r.KprobeLoc.Kind {
		case KprobeLocationSymbolOffset:
			if r.KprobeLoc.Symbol, err = d.str(); err != nil {
				return nil, err
			}
			if r.KprobeLoc.Offset, err = d.u64(); err != nil {
				return nil, err
			}
		case KprobeLocationAddress:
			if r.KprobeLoc.Address, err = d.u64(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("trigobj: unknown kprobe location kind %d", kind)
		}
	case EventRuleUProbe:
		if r.Name, err = d.str(); err != nil {
			return nil, err
		}
		kind, err := d.u8()
		if err != nil {
			return nil, err
		}
		r.UProbeLoc.Kind = UProbeLocationKind(kind)
		if r.UProbeLoc.BinaryPath, err = d.str(); err != nil {
			return nil, err
		}
		switch r.UProbeLoc.Kind {
		case UProbeLocationELF:
			if r.UProbeLoc.ELFFuncName, err = d.str(); err != nil {
				return nil, err
			}
		case UProbeLocationSDT:
			if r.UProbeLoc.SDTProvider, err = d.str(); err != nil {
				return nil, err
			}
			if r.UProbeLoc.SDTName, err = d.str(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("trigobj: unknown uprobe location kind %d", kind)
		}
	default:
		return nil, fmt.Errorf("trigobj: unknown event rule tag %d", kind)
	}
	return r, nil
}
