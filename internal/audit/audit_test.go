package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "audit_test.db")
	l, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecord_AndRecent(t *testing.T) {
	l := newTestLog(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e := Entry{
			Timestamp:     now.Add(time.Duration(i) * time.Minute),
			TriggerName:   "trig",
			ConditionKind: 0,
			ClientCount:   i + 1,
		}
		if err := l.Record(e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := l.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ClientCount != 3 {
		t.Errorf("expected newest-first ordering, got %+v", entries[0])
	}
}

func TestRecent_EmptyLog(t *testing.T) {
	l := newTestLog(t)
	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
