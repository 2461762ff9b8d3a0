package core

import (
	"context"
	"errors"

	"LendLedger/internal/event"
)

// ErrRunnerStopped is returned to submitters once the runner has exited.
var ErrRunnerStopped = errors.New("core: runner stopped")

type request struct {
	evt  event.Event
	view func(*DeterministicCore)
	done chan response
}

type response struct {
	res *Result
	err error
}

// Runner owns the core goroutine. Commands and reads from any goroutine are
// serialized through one channel, so the core itself needs no locking.
type Runner struct {
	core    *DeterministicCore
	reqs    chan request
	stopped chan struct{}
}

func NewRunner(core *DeterministicCore, queueSize int) *Runner {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Runner{
		core:    core,
		reqs:    make(chan request, queueSize),
		stopped: make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-r.reqs:
			if req.view != nil {
				req.view(r.core)
				req.done <- response{}
				continue
			}
			res, err := r.core.ProcessEvent(req.evt)
			req.done <- response{res: res, err: err}
		}
	}
}

// Submit hands evt to the core and waits for its result.
func (r *Runner) Submit(ctx context.Context, evt event.Event) (*Result, error) {
	resp, err := r.do(ctx, request{evt: evt, done: make(chan response, 1)})
	if err != nil {
		return nil, err
	}
	return resp.res, resp.err
}

// View runs fn on the core goroutine between commands. fn must not retain
// or mutate what it reads beyond returning committed records.
func (r *Runner) View(ctx context.Context, fn func(c *DeterministicCore)) error {
	_, err := r.do(ctx, request{view: fn, done: make(chan response, 1)})
	return err
}

// Snapshot captures the core between commands.
func (r *Runner) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := r.View(ctx, func(c *DeterministicCore) { snap = c.Snapshot() })
	return snap, err
}

func (r *Runner) do(ctx context.Context, req request) (response, error) {
	select {
	case r.reqs <- req:
	case <-r.stopped:
		return response{}, ErrRunnerStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
	select {
	case resp := <-req.done:
		return resp, nil
	case <-r.stopped:
		// The request may have been accepted just before shutdown.
		select {
		case resp := <-req.done:
			return resp, nil
		default:
			return response{}, ErrRunnerStopped
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}
