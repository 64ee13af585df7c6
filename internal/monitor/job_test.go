package monitor

import (
	"testing"

	"emrun/internal/queue"
)

func intp(v int) *int { return &v }

func TestJobObserveTransitions(t *testing.T) {
	t.Parallel()

	j := NewJob("x", "/work/em_x.log")
	if j.State != StateSubmitted || j.ID != UnsubmittedID || j.Submitted() {
		t.Fatalf("unexpected new job %+v", j)
	}

	if j.Observe(queue.StatusRecord{SubmitTime: "10:00", PreExecExitStatus: intp(0)}) {
		t.Fatalf("record without exit status must not complete")
	}
	if j.State != StateRunning || j.SubmitTime != "10:00" || *j.PreExecExitStatus != 0 {
		t.Fatalf("unexpected running job %+v", j)
	}

	if !j.Observe(queue.StatusRecord{TimeInRunning: "00:30", ExitStatus: intp(2)}) {
		t.Fatalf("expected completion edge")
	}
	if !j.Completed() || j.Succeeded() || *j.ExitStatus != 2 || j.TimeInRunning != "00:30" {
		t.Fatalf("unexpected completed job %+v", j)
	}
}

func TestJobCompletionIsSticky(t *testing.T) {
	t.Parallel()

	j := NewJob("y", "")
	j.Observe(queue.StatusRecord{ExitStatus: intp(0)})

	// Inconsistent follow-up responses must not reopen or re-complete it.
	if j.Observe(queue.StatusRecord{TimeInRunning: "01:00"}) {
		t.Fatalf("completed job reported a second completion edge")
	}
	if j.Observe(queue.StatusRecord{ExitStatus: intp(9)}) {
		t.Fatalf("completed job reported a second completion edge")
	}
	if !j.Completed() || *j.ExitStatus != 0 || j.TimeInRunning != "" {
		t.Fatalf("completed job changed: %+v", j)
	}
}

func TestJobSubmittedToCompletedDirectly(t *testing.T) {
	t.Parallel()

	j := NewJob("x", "")
	j.ID = "42"
	if !j.Observe(queue.StatusRecord{ExitStatus: intp(0)}) {
		t.Fatalf("expected completion edge from submitted")
	}
	if !j.Succeeded() || j.Label() != "X" {
		t.Fatalf("unexpected job %+v", j)
	}
}
