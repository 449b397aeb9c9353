package graph

import (
	"testing"

	"github.com/cristim/octobuild"
)

func TestValidateAcyclic(t *testing.T) {
	g := New()
	a := g.AddTask(octobuild.BuildTask{Title: "a"})
	b := g.AddTask(octobuild.BuildTask{Title: "b"})
	c := g.AddTask(octobuild.BuildTask{Title: "c"})
	g.AddEdge(a, b) // a depends on b
	g.AddEdge(b, c) // b depends on c
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateCycle(t *testing.T) {
	g := New()
	a := g.AddTask(octobuild.BuildTask{Title: "a"})
	b := g.AddTask(octobuild.BuildTask{Title: "b"})
	g.AddEdge(a, b)
	g.AddEdge(b, a)
	if err := g.Validate(); err != octobuild.ErrGraphCycle {
		t.Fatalf("Validate() = %v, want ErrGraphCycle", err)
	}
}

func TestLeavesSingleNode(t *testing.T) {
	g := New()
	g.AddTask(octobuild.BuildTask{Title: "only"})
	leaves := g.Leaves()
	if len(leaves) != 1 || leaves[0] != 0 {
		t.Errorf("Leaves() = %v, want [0]", leaves)
	}
}

func TestLeavesFanOut(t *testing.T) {
	g := New()
	root := g.AddTask(octobuild.BuildTask{Title: "root"})
	for i := 0; i < 3; i++ {
		leaf := g.AddTask(octobuild.BuildTask{Title: "leaf"})
		g.AddEdge(root, leaf)
	}
	leaves := g.Leaves()
	if len(leaves) != 3 {
		t.Fatalf("Leaves() = %v, want 3 leaves", leaves)
	}
	for i, id := range leaves {
		if id != int64(i+1) {
			t.Errorf("Leaves()[%d] = %d, want %d (insertion order)", i, id, i+1)
		}
	}
}

func TestDependedOnBy(t *testing.T) {
	g := New()
	a := g.AddTask(octobuild.BuildTask{Title: "a"})
	b := g.AddTask(octobuild.BuildTask{Title: "b"})
	g.AddEdge(a, b)
	consumers := g.DependedOnBy(b)
	if len(consumers) != 1 || consumers[0] != a {
		t.Errorf("DependedOnBy(b) = %v, want [a]", consumers)
	}
}
