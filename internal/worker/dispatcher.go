// Package worker runs queries in the background, one at a time, and hands
// their results to the response queue.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"

	"github.com/HexSleeves/turnbridge/internal/bus"
	"github.com/HexSleeves/turnbridge/internal/job"
	"github.com/HexSleeves/turnbridge/internal/llm"
	"github.com/HexSleeves/turnbridge/internal/logging"
	"github.com/HexSleeves/turnbridge/internal/queue"
)

// Func performs one query to completion.
type Func func(ctx context.Context) llm.Response

// Dispatcher owns a single worker slot. A submit while a worker is in flight
// waits for that worker to finish first.
type Dispatcher struct {
	slot    chan struct{}
	pending atomic.Bool
	results *queue.Queue[llm.Response]
	jobs    *job.Tracker
	bus     *bus.MessageBus
	logger  *pterm.Logger
}

func NewDispatcher(results *queue.Queue[llm.Response], jobs *job.Tracker, b *bus.MessageBus, logger *pterm.Logger) *Dispatcher {
	if jobs == nil {
		jobs = job.NewTracker(b, 0)
	}
	return &Dispatcher{
		slot:    make(chan struct{}, 1),
		results: results,
		jobs:    jobs,
		bus:     b,
		logger:  logging.OrDiscard(logger),
	}
}

// Submit blocks until no worker is running, then starts fn for j on a new
// goroutine. j must already be known to the dispatcher's tracker. The
// worker ignores ctx cancellation once started.
func (d *Dispatcher) Submit(ctx context.Context, j *job.Job, fn Func) error {
	select {
	case d.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := d.jobs.Start(j.ID); err != nil {
		<-d.slot
		return err
	}
	d.pending.Store(true)

	d.logger.Debug("[Worker] started", d.logger.Args("job", j.ID, "turn", j.Turn))
	go d.run(context.WithoutCancel(ctx), j, fn)
	return nil
}

func (d *Dispatcher) run(ctx context.Context, j *job.Job, fn Func) {
	defer func() { <-d.slot }()

	resp := fn(ctx)

	d.results.Push(resp)
	if d.bus != nil {
		d.bus.Publish(bus.Message{
			Type:    bus.MsgResponseEnqueued,
			JobID:   j.ID,
			Payload: resp,
			Time:    time.Now(),
		})
	}
	d.pending.Store(false)

	if err := d.jobs.Complete(j.ID, resp); err != nil {
		d.logger.Warn("[Worker] could not complete job", d.logger.Args("job", j.ID, "error", err))
	}
	d.logger.Debug("[Worker] finished", d.logger.Args("job", j.ID, "error", resp.IsError()))
}

// Pending reports whether a worker is running.
func (d *Dispatcher) Pending() bool { return d.pending.Load() }

// Wait blocks until the in-flight worker, if any, has enqueued its result.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case d.slot <- struct{}{}:
		<-d.slot
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the tracker used for submitted jobs.
func (d *Dispatcher) Jobs() *job.Tracker { return d.jobs }
