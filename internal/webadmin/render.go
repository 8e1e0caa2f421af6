package webadmin

import (
	"fmt"
	"strings"
	"time"

	"github.com/lttng/notifd/internal/buildinfo"
	"github.com/lttng/notifd/internal/trigobj"
)

var conditionKindNames = map[trigobj.ConditionKind]string{
	trigobj.ConditionBufferUsage:         "buffer-usage",
	trigobj.ConditionSessionConsumedSize: "session-consumed-size",
	trigobj.ConditionSessionRotation:     "session-rotation",
	trigobj.ConditionEventRuleHit:        "event-rule-hit",
}

var actionKindNames = map[trigobj.ActionKind]string{
	trigobj.ActionNotify:          "notify",
	trigobj.ActionStartSession:    "start-session",
	trigobj.ActionStopSession:     "stop-session",
	trigobj.ActionRotateSession:   "rotate-session",
	trigobj.ActionSnapshotSession: "snapshot-session",
	trigobj.ActionGroup:           "group",
}

func conditionKindName(k trigobj.ConditionKind) string {
	if name, ok := conditionKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", k)
}

func actionKindName(a *trigobj.Action) string {
	if a == nil {
		return "none"
	}
	if name, ok := actionKindNames[a.Kind]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", a.Kind)
}

// renderTriggersMarkdown builds the Markdown source for the /triggers
// page from a ListTriggers snapshot.
func renderTriggersMarkdown(triggers []*trigobj.Trigger) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# notifd triggers\n\n_%s — %s_\n\n", time.Now().Format(time.RFC3339), buildinfo.String())

	if len(triggers) == 0 {
		b.WriteString("No triggers registered.\n")
		return b.String()
	}

	b.WriteString("| name | condition | action | token |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, t := range triggers {
		token := "-"
		if t.HasToken {
			token = fmt.Sprintf("%d", t.Token)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			t.Name, conditionKindName(t.Condition.Kind), actionKindName(t.Action), token)
	}
	return b.String()
}
