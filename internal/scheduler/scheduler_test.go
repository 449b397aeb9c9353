package scheduler

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"

	"github.com/cristim/octobuild"
	"github.com/cristim/octobuild/internal/graph"
	"github.com/cristim/octobuild/internal/worker"
)

// recordingExecutor runs tasks instantly, recording execution order and
// optionally failing a named task.
type recordingExecutor struct {
	mu      sync.Mutex
	order   []string
	failing map[string]int
}

func (e *recordingExecutor) Execute(ctx context.Context, task octobuild.BuildTask) (octobuild.OutputInfo, error) {
	e.mu.Lock()
	e.order = append(e.order, task.Title)
	e.mu.Unlock()
	if code, ok := e.failing[task.Title]; ok {
		return octobuild.OutputInfo{ExitCode: &code}, nil
	}
	zero := 0
	return octobuild.OutputInfo{ExitCode: &zero}, nil
}

func newExecutor() *recordingExecutor { return &recordingExecutor{} }

func run(t *testing.T, g *graph.Graph, jobs int, exec *recordingExecutor) int {
	t.Helper()
	pool := worker.New(jobs, g.NumNodes(), exec)
	var stdout, stderr bytes.Buffer
	logger := log.New(&stdout, "", 0)
	code, err := Execute(context.Background(), g, pool, logger, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	return code
}

func TestExecuteSingleNode(t *testing.T) {
	g := graph.New()
	g.AddTask(octobuild.BuildTask{Title: "only"})
	exec := newExecutor()
	if code := run(t, g, 1, exec); code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
	if len(exec.order) != 1 {
		t.Errorf("executed %d tasks, want 1", len(exec.order))
	}
}

func TestExecuteFanOut(t *testing.T) {
	g := graph.New()
	root := g.AddTask(octobuild.BuildTask{Title: "root"})
	for i := 0; i < 4; i++ {
		leaf := g.AddTask(octobuild.BuildTask{Title: "leaf"})
		g.AddEdge(root, leaf)
	}
	exec := newExecutor()
	if code := run(t, g, 4, exec); code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
	if len(exec.order) != 5 {
		t.Fatalf("executed %d tasks, want 5", len(exec.order))
	}
	// root depends on all 4 leaves: it must run last.
	if exec.order[len(exec.order)-1] != "root" {
		t.Errorf("order = %v, root did not run last", exec.order)
	}
}

func TestExecuteSerializedOrderRespectsEdges(t *testing.T) {
	g := graph.New()
	a := g.AddTask(octobuild.BuildTask{Title: "A"})
	b := g.AddTask(octobuild.BuildTask{Title: "B"})
	c := g.AddTask(octobuild.BuildTask{Title: "C"})
	g.AddEdge(a, b) // A depends on B
	g.AddEdge(b, c) // B depends on C
	exec := newExecutor()
	if code := run(t, g, 1, exec); code != 0 {
		t.Errorf("code = %d, want 0", code)
	}
	want := []string{"C", "B", "A"}
	if len(exec.order) != len(want) {
		t.Fatalf("order = %v, want %v", exec.order, want)
	}
	for i := range want {
		if exec.order[i] != want[i] {
			t.Errorf("order = %v, want %v", exec.order, want)
			break
		}
	}
}

func TestExecuteAbortsOnFailure(t *testing.T) {
	g := graph.New()
	a := g.AddTask(octobuild.BuildTask{Title: "A"})
	b := g.AddTask(octobuild.BuildTask{Title: "B"})
	c := g.AddTask(octobuild.BuildTask{Title: "C"})
	g.AddEdge(a, b) // A depends on B
	g.AddEdge(b, c) // B depends on C
	exec := newExecutor()
	exec.failing = map[string]int{"B": 2}
	code := run(t, g, 1, exec)
	if code != 2 {
		t.Errorf("code = %d, want 2", code)
	}
	for _, title := range exec.order {
		if title == "A" {
			t.Errorf("A was dispatched even though its dependency B failed")
		}
	}
}

func TestExecuteCycle(t *testing.T) {
	g := graph.New()
	a := g.AddTask(octobuild.BuildTask{Title: "A"})
	b := g.AddTask(octobuild.BuildTask{Title: "B"})
	g.AddEdge(a, b)
	g.AddEdge(b, a)
	exec := newExecutor()
	pool := worker.New(1, g.NumNodes(), exec)
	var stdout, stderr bytes.Buffer
	logger := log.New(&stdout, "", 0)
	_, err := Execute(context.Background(), g, pool, logger, &stdout, &stderr)
	if err != octobuild.ErrGraphCycle {
		t.Fatalf("Execute() error = %v, want ErrGraphCycle", err)
	}
	if len(exec.order) != 0 {
		t.Errorf("subprocess launched despite cycle: %v", exec.order)
	}
}
