package rotation

import "testing"

func TestJobQueue_DuplicateDropped(t *testing.T) {
	q := NewJobQueue()
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s1"})
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s1"})

	if got := q.Len(); got != 1 {
		t.Fatalf("expected 1 queued job after duplicate enqueue, got %d", got)
	}
}

func TestJobQueue_DistinctKindsNotDeduped(t *testing.T) {
	q := NewJobQueue()
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s1"})
	q.Enqueue(Job{Kind: CheckPendingRotation, SessionID: "s1"})

	if got := q.Len(); got != 2 {
		t.Fatalf("expected 2 queued jobs for distinct kinds, got %d", got)
	}
}

func TestJobQueue_DrainClearsDedupSet(t *testing.T) {
	q := NewJobQueue()
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s1"})
	drained := q.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained job, got %d", len(drained))
	}

	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s1"})
	if got := q.Len(); got != 1 {
		t.Fatalf("expected re-enqueue after drain to succeed, got %d queued", got)
	}
}

func TestJobQueue_DrainEmptyReturnsNil(t *testing.T) {
	q := NewJobQueue()
	if got := q.Drain(); got != nil {
		t.Fatalf("expected nil from Drain on empty queue, got %v", got)
	}
}

func TestJobQueue_FIFOOrder(t *testing.T) {
	q := NewJobQueue()
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s1"})
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s2"})
	q.Enqueue(Job{Kind: ScheduledRotation, SessionID: "s3"})

	drained := q.Drain()
	want := []string{"s1", "s2", "s3"}
	for i, job := range drained {
		if job.SessionID != want[i] {
			t.Errorf("drained[%d].SessionID = %q, want %q", i, job.SessionID, want[i])
		}
	}
}
