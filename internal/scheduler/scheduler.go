// Package scheduler implements the graph scheduler: readiness
// tracking, dispatch, early-abort on first failure, and orderly drain of
// in-flight work. Grounded on internal/batch/batch.go's scheduler.run
// (channels + errgroup) and original_source/src/bin/xgConsole.rs's
// execute_until_failed/execute_graph (stable dispatch order, drain
// discipline, progress line format).
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cristim/octobuild/internal/graph"
	"github.com/cristim/octobuild/internal/worker"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// isTerminal reports whether stdout is a TTY, decided once at process
// startup exactly like batch.go's package-level probe.
var isTerminal = func() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}()

// Execute runs every task in g to completion, respecting the dependency
// relation, using pool to run individual tasks. It returns:
//   - (0, nil) if every task succeeded
//   - (code, nil) where code is the first failing task's exit code
//   - (0, err) for a GraphCycle or other fatal input error, before any
//     subprocess is launched
//
// Progress lines ("#<worker> <done>/<total>: <title>") go to logger;
// captured task stdout/stderr are written verbatim to stdout/stderr.
func Execute(ctx context.Context, g *graph.Graph, pool *worker.Pool, logger *log.Logger, stdout, stderr io.Writer) (int, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}

	n := g.NumNodes()
	if n == 0 {
		return 0, nil
	}

	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx) }()

	completed := make([]bool, n)
	intakeClosed := false
	closeIntake := func() {
		if !intakeClosed {
			close(pool.Intake())
			intakeClosed = true
		}
	}

	send := func(id int64) {
		select {
		case pool.Intake() <- worker.Task{NodeID: id, Task: g.Task(id).Clone()}:
		case <-ctx.Done():
		}
	}

	for _, id := range g.Leaves() {
		send(id)
	}

	doneCount := 0
	aborted := false
	exitCode := 0

	for result := range pool.Results() {
		if completed[result.NodeID] {
			return 0, xerrors.Errorf("octobuild: scheduler invariant violated: node %d completed twice", result.NodeID)
		}
		doneCount++
		printProgress(logger, result.Worker, doneCount, n, result.Task.Title)
		stdout.Write(result.Output.Stdout)
		stderr.Write(result.Output.Stderr)

		failed := result.Err != nil || !result.Output.Success()
		if failed {
			if !aborted {
				aborted = true
				exitCode = result.Output.IntExitCode()
				closeIntake()
			}
			continue
		}

		completed[result.NodeID] = true

		if !aborted {
			for _, consumer := range g.DependedOnBy(result.NodeID) {
				if isReady(g, consumer, completed) {
					send(consumer)
				}
			}
		}

		if doneCount == n {
			closeIntake()
		}
	}

	if isTerminal {
		fmt.Fprintln(logger.Writer())
	}

	if err := <-poolDone; err != nil && !xerrors.Is(err, context.Canceled) {
		return 0, err
	}

	return exitCode, nil
}

// printProgress writes one task-completion line. On a TTY it overwrites the
// previous line in place (carriage return + clear-to-end-of-line), the same
// overwrite trick batch.go's refreshStatus uses; redirected to a file or
// pipe it falls back to one line per task.
func printProgress(logger *log.Logger, worker, done, total int, title string) {
	line := fmt.Sprintf("#%d %d/%d: %s", worker, done, total, title)
	if isTerminal {
		fmt.Fprintf(logger.Writer(), "\r\033[K%s", line)
		return
	}
	fmt.Fprintln(logger.Writer(), line)
}

// isReady reports whether every dependency of candidate has completed.
func isReady(g *graph.Graph, candidate int64, completed []bool) bool {
	for _, dep := range g.DependsOn(candidate) {
		if !completed[dep] {
			return false
		}
	}
	return true
}
