package job

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/HexSleeves/turnbridge/internal/bus"
	"github.com/HexSleeves/turnbridge/internal/llm"
)

func TestNewJob(t *testing.T) {
	j := New(ModeAsync, "hello", "sys")
	if j.ID == "" {
		t.Fatal("expected an ID")
	}
	if j.Status != StatusPending {
		t.Errorf("expected pending, got %s", j.Status)
	}
	if j.Turn != NoTurn || j.Gated {
		t.Errorf("expected ungated job, got turn=%d gated=%v", j.Turn, j.Gated)
	}

	j.ForTurn(4)
	if j.Turn != 4 || !j.Gated {
		t.Errorf("expected turn 4 gated, got turn=%d gated=%v", j.Turn, j.Gated)
	}

	if other := New(ModeSync, "x", ""); other.ID == j.ID {
		t.Error("expected distinct IDs")
	}
}

func TestLifecycle(t *testing.T) {
	b := bus.New(100)
	var events []bus.MsgType
	b.SubscribeAll(func(msg bus.Message) { events = append(events, msg.Type) })

	tr := NewTracker(b, 10)
	j := New(ModeAsync, "p", "").ForTurn(2)
	tr.Add(j)

	if err := tr.Start(j.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, _ := tr.Get(j.ID); got.Status != StatusRunning || got.StartedAt == nil {
		t.Fatalf("expected running with start time, got %+v", got)
	}
	if running := tr.Running(); len(running) != 1 {
		t.Fatalf("expected 1 running job, got %d", len(running))
	}

	if err := tr.Complete(j.ID, llm.TextResponse("done")); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	select {
	case <-j.Done():
	default:
		t.Fatal("expected Done to be closed")
	}

	resp, err := j.Wait(context.Background())
	if err != nil || resp.String() != "done" {
		t.Fatalf("expected done, got %q (%v)", resp.String(), err)
	}

	got, _ := tr.Get(j.ID)
	if got.Status != StatusComplete || got.CompletedAt == nil {
		t.Errorf("expected complete with completion time, got %+v", got)
	}
	if got.Duration() < 0 {
		t.Errorf("expected non-negative duration, got %v", got.Duration())
	}

	want := []bus.MsgType{
		bus.MsgJobStatusChanged, // pending
		bus.MsgJobStatusChanged, // running
		bus.MsgQuerySent,
		bus.MsgJobStatusChanged, // complete
		bus.MsgQueryCompleted,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], events[i])
		}
	}
}

func TestInvalidTransitions(t *testing.T) {
	tr := NewTracker(nil, 10)

	if err := tr.Start("missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}

	j := New(ModeSync, "p", "")
	tr.Add(j)
	if err := tr.Reject(j.ID, llm.RateLimitResponse()); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if err := tr.Start(j.ID); err == nil {
		t.Error("expected error starting a rejected job")
	}
	if err := tr.Complete(j.ID, llm.TextResponse("late")); err == nil {
		t.Error("expected error completing a rejected job")
	}

	got, _ := tr.Get(j.ID)
	if got.Status != StatusRejected {
		t.Errorf("expected rejected, got %s", got.Status)
	}
	if got.StartedAt != nil {
		t.Error("rejected job should never have started")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	j := New(ModeAsync, "p", "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := j.Wait(ctx); err == nil {
		t.Fatal("expected context error while job is pending")
	}
}

func TestTrimKeepsUnfinished(t *testing.T) {
	tr := NewTracker(nil, 2)

	running := New(ModeAsync, "keep", "")
	tr.Add(running)
	if err := tr.Start(running.ID); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		j := New(ModeSync, "old", "")
		tr.Add(j)
		if err := tr.Complete(j.ID, llm.TextResponse("ok")); err != nil {
			t.Fatal(err)
		}
	}

	if _, ok := tr.Get(running.ID); !ok {
		t.Error("expected running job to survive trimming")
	}
	if n := len(tr.Recent(0)); n > 3 {
		t.Errorf("expected at most 3 retained jobs, got %d", n)
	}
}

func TestRecentOrder(t *testing.T) {
	tr := NewTracker(nil, 10)
	ids := make([]string, 3)
	for i := range ids {
		j := New(ModeSync, "p", "")
		ids[i] = j.ID
		tr.Add(j)
	}

	recent := tr.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(recent))
	}
	if recent[0].ID != ids[1] || recent[1].ID != ids[2] {
		t.Errorf("expected oldest-first order of the last two jobs")
	}
}
