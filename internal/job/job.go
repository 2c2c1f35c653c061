// Package job records queries as they move through the bridge:
// pending → running → complete, or straight to rejected when the turn gate
// refuses them.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HexSleeves/turnbridge/internal/bus"
	"github.com/HexSleeves/turnbridge/internal/llm"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusRejected Status = "rejected"
)

type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// NoTurn marks a job that did not go through the turn gate.
const NoTurn = -1

type Job struct {
	ID           string       `json:"id"`
	Mode         Mode         `json:"mode"`
	Turn         int          `json:"turn"`
	Gated        bool         `json:"gated"`
	Prompt       string       `json:"prompt"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Status       Status       `json:"status"`
	Response     llm.Response `json:"response"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`

	done chan struct{}
}

// New creates a pending job with a fresh ID.
func New(mode Mode, prompt, systemPrompt string) *Job {
	return &Job{
		ID:           uuid.NewString(),
		Mode:         mode,
		Turn:         NoTurn,
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Status:       StatusPending,
		CreatedAt:    time.Now(),
		done:         make(chan struct{}),
	}
}

// ForTurn marks j as issued through the turn gate for turn.
func (j *Job) ForTurn(turn int) *Job {
	j.Turn = turn
	j.Gated = true
	return j
}

// Done is closed once the job is complete or rejected.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job finishes and returns its response.
func (j *Job) Wait(ctx context.Context) (llm.Response, error) {
	select {
	case <-j.done:
		return j.Response, nil
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	}
}

// Finished reports whether the job reached a terminal status.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusRejected
}

// Duration is the time spent running, zero until complete.
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Tracker keeps the most recent jobs and announces their transitions.
type Tracker struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
	max   int
	bus   *bus.MessageBus
}

func NewTracker(b *bus.MessageBus, maxJobs int) *Tracker {
	if maxJobs <= 0 {
		maxJobs = 1000
	}
	return &Tracker{
		jobs: make(map[string]*Job),
		max:  maxJobs,
		bus:  b,
	}
}

func (tr *Tracker) Add(j *Job) {
	tr.mu.Lock()
	tr.jobs[j.ID] = j
	tr.order = append(tr.order, j.ID)
	tr.trimLocked()
	snap := *j
	tr.mu.Unlock()

	tr.publish(bus.MsgJobStatusChanged, snap, map[string]Status{"old": "", "new": snap.Status})
}

// Start moves a pending job to running.
func (tr *Tracker) Start(id string) error {
	tr.mu.Lock()
	j, ok := tr.jobs[id]
	if !ok {
		tr.mu.Unlock()
		return fmt.Errorf("job %s not found", id)
	}
	if j.Status != StatusPending {
		old := j.Status
		tr.mu.Unlock()
		return fmt.Errorf("job %s: cannot start from %s", id, old)
	}
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
	snap := *j
	tr.mu.Unlock()

	tr.publish(bus.MsgJobStatusChanged, snap, map[string]Status{"old": StatusPending, "new": StatusRunning})
	tr.publish(bus.MsgQuerySent, snap, snap)
	return nil
}

// Complete stores resp on a running or pending job and releases waiters.
func (tr *Tracker) Complete(id string, resp llm.Response) error {
	return tr.finish(id, StatusComplete, resp, bus.MsgQueryCompleted)
}

// Reject finishes a job that never ran, refused by the turn gate or
// cancelled while waiting for a worker.
func (tr *Tracker) Reject(id string, resp llm.Response) error {
	return tr.finish(id, StatusRejected, resp, bus.MsgQueryRejected)
}

func (tr *Tracker) finish(id string, status Status, resp llm.Response, event bus.MsgType) error {
	tr.mu.Lock()
	j, ok := tr.jobs[id]
	if !ok {
		tr.mu.Unlock()
		return fmt.Errorf("job %s not found", id)
	}
	if j.Status.Finished() {
		old := j.Status
		tr.mu.Unlock()
		return fmt.Errorf("job %s: already %s", id, old)
	}
	old := j.Status
	now := time.Now()
	if j.StartedAt == nil && status == StatusComplete {
		j.StartedAt = &now
	}
	j.Status = status
	j.Response = resp
	j.CompletedAt = &now
	close(j.done)
	snap := *j
	tr.mu.Unlock()

	tr.publish(bus.MsgJobStatusChanged, snap, map[string]Status{"old": old, "new": status})
	tr.publish(event, snap, snap)
	return nil
}

func (tr *Tracker) Get(id string) (Job, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	j, ok := tr.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Recent returns up to n jobs, oldest first. n <= 0 returns all.
func (tr *Tracker) Recent(n int) []Job {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if n <= 0 || n > len(tr.order) {
		n = len(tr.order)
	}
	out := make([]Job, 0, n)
	for _, id := range tr.order[len(tr.order)-n:] {
		out = append(out, *tr.jobs[id])
	}
	return out
}

// Running returns jobs currently in flight.
func (tr *Tracker) Running() []Job {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	var running []Job
	for _, id := range tr.order {
		if j := tr.jobs[id]; j.Status == StatusRunning {
			running = append(running, *j)
		}
	}
	return running
}

// trimLocked drops the oldest finished jobs beyond the retention limit.
func (tr *Tracker) trimLocked() {
	if len(tr.order) <= tr.max {
		return
	}
	excess := len(tr.order) - tr.max
	kept := make([]string, 0, tr.max)
	for _, id := range tr.order {
		if excess > 0 && tr.jobs[id].Status.Finished() {
			delete(tr.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	tr.order = kept
}

func (tr *Tracker) publish(t bus.MsgType, snap Job, payload interface{}) {
	if tr.bus == nil {
		return
	}
	msg := bus.Message{
		Type:    t,
		JobID:   snap.ID,
		Payload: payload,
		Time:    time.Now(),
	}
	if snap.Gated {
		turn := snap.Turn
		msg.Turn = &turn
	}
	tr.bus.Publish(msg)
}
