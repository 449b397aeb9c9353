// Package worker implements the local worker pool: a fixed-size set of
// agents consuming ready tasks from a closable intake and publishing results
// to a shared sink, one subprocess in flight per worker at a time.
package worker

import (
	"context"

	"github.com/cristim/octobuild"
	"golang.org/x/sync/errgroup"
)

// Task is a unit of dispatch: a graph node id paired with the BuildTask it
// carries.
type Task struct {
	NodeID int64
	Task   octobuild.BuildTask
}

// Result is what a worker publishes after running a Task: the originating
// node id, the task (for logging), the worker's id, and the outcome.
type Result struct {
	NodeID int64
	Task   octobuild.BuildTask
	Worker int
	Output octobuild.OutputInfo
	Err    error
}

// Executor runs a single BuildTask to completion. Compile-class tasks are
// expected to dispatch through the preprocess/compile split (package
// compiler); everything else is executed directly.
type Executor interface {
	Execute(ctx context.Context, task octobuild.BuildTask) (octobuild.OutputInfo, error)
}

// Pool is a fixed-size set of worker agents sharing one task intake and one
// result sink.
type Pool struct {
	intake  chan Task
	results chan Result
	exec    Executor
	n       int
}

// New returns a pool of n workers that will run tasks via exec. intakeCap
// buffers the task intake so a caller can enqueue every currently-ready
// node without blocking on a free worker; callers should pass the total
// node count, the maximum number of sends ever outstanding at once. Matches
// batch.go's make(chan *node, numNodes) sizing for the same reason: an
// unbuffered channel deadlocks once more nodes are ready than there are
// workers to receive them.
func New(n, intakeCap int, exec Executor) *Pool {
	if n < 1 {
		n = 1
	}
	if intakeCap < 1 {
		intakeCap = 1
	}
	return &Pool{
		intake:  make(chan Task, intakeCap),
		results: make(chan Result),
		exec:    exec,
		n:       n,
	}
}

// Intake returns the channel tasks are sent on. Closing it signals workers
// to drain and exit.
func (p *Pool) Intake() chan<- Task { return p.intake }

// Results returns the channel results are published on.
func (p *Pool) Results() <-chan Result { return p.results }

// Run starts all workers and blocks until the intake channel is closed and
// drained. It closes the results channel before returning. Run is meant to
// be called from its own goroutine; the caller dispatches on Intake() and
// receives on Results() concurrently.
func (p *Pool) Run(ctx context.Context) error {
	var eg errgroup.Group
	for i := 0; i < p.n; i++ {
		workerID := i + 1 // 1-based, matches the "#<worker>" progress label
		eg.Go(func() error {
			for {
				select {
				case t, ok := <-p.intake:
					if !ok {
						return nil
					}
					out, err := p.exec.Execute(ctx, t.Task)
					select {
					case p.results <- Result{NodeID: t.NodeID, Task: t.Task, Worker: workerID, Output: out, Err: err}:
					case <-ctx.Done():
						return ctx.Err()
					}
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}
	err := eg.Wait()
	close(p.results)
	return err
}
