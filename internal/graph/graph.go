// Package graph implements the build dependency DAG: nodes carrying
// octobuild.BuildTask payloads, directed edges meaning "u depends on v" (v
// must complete before u starts).
package graph

import (
	"github.com/cristim/octobuild"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Validate checks the graph is acyclic via a reverse-frontier sweep: nodes
// whose dependencies are all already marked reachable become reachable
// themselves; this repeats to a fixed point. If fewer than all nodes become
// reachable, the graph has a cycle. Grounded on
// original_source/src/bin/xgConsole.rs's validate_graph.
func (gr *Graph) Validate() error {
	n := len(gr.nodes)
	if n == 0 {
		return nil
	}
	completed := make([]bool, n)
	queue := make([]int64, n)
	for i := range queue {
		queue[i] = int64(i)
	}
	count := 0
	for i := 0; i < len(queue); i++ {
		id := queue[i]
		if completed[id] {
			continue
		}
		if !gr.isReady(id, completed) {
			continue
		}
		completed[id] = true
		count++
		if count == n {
			return nil
		}
		queue = append(queue, gr.DependedOnBy(id)...)
	}
	return octobuild.ErrGraphCycle
}

func (gr *Graph) isReady(id int64, completed []bool) bool {
	for from := gr.g.From(id); from.Next(); {
		if !completed[from.Node().ID()] {
			return false
		}
	}
	return true
}

// node adapts a BuildTask into a gonum graph.Node.
type node struct {
	id   int64
	task octobuild.BuildTask
}

func (n *node) ID() int64 { return n.id }

// Graph is a directed, possibly disconnected dependency graph. An edge u->v
// means "u depends on v".
type Graph struct {
	g     *simple.DirectedGraph
	nodes []*node // indexed by insertion order == node id
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{g: simple.NewDirectedGraph()}
}

// AddTask adds a node carrying task and returns its node index. Node indices
// are assigned in insertion order starting at 0 and are the tie-break order
// for dispatch within a ready batch.
func (gr *Graph) AddTask(task octobuild.BuildTask) int64 {
	id := int64(len(gr.nodes))
	n := &node{id: id, task: task}
	gr.nodes = append(gr.nodes, n)
	gr.g.AddNode(n)
	return id
}

// AddEdge records that the task at index u depends on the task at index v:
// v must complete before u starts.
func (gr *Graph) AddEdge(u, v int64) {
	gr.g.SetEdge(gr.g.NewEdge(gr.nodes[u], gr.nodes[v]))
}

// NumNodes returns the number of nodes in the graph.
func (gr *Graph) NumNodes() int { return len(gr.nodes) }

// Task returns the BuildTask stored at node index id.
func (gr *Graph) Task(id int64) octobuild.BuildTask { return gr.nodes[id].task }

// Leaves returns the node indices with no outgoing edges: the tasks nothing
// else needs to finish first. Returned in node-index order.
func (gr *Graph) Leaves() []int64 {
	var out []int64
	for _, n := range gr.nodes {
		if gr.g.From(n.id).Len() == 0 {
			out = append(out, n.id)
		}
	}
	return out
}

// DependsOn returns the node indices that id depends on (its outgoing
// neighbours), in node-index order.
func (gr *Graph) DependsOn(id int64) []int64 {
	return sortedIDs(gr.g.From(id))
}

// DependedOnBy returns the node indices that depend on id (its incoming
// neighbours, i.e. consumers), in node-index order.
func (gr *Graph) DependedOnBy(id int64) []int64 {
	return sortedIDs(gr.g.To(id))
}

// sortedIDs drains a graph.Nodes iterator into a numerically sorted slice of
// IDs. Node ids are assigned in insertion order, so sorting them numerically
// gives a stable, deterministic order for dispatch tie-breaks.
func sortedIDs(nodes graph.Nodes) []int64 {
	var ids []int64
	for nodes.Next() {
		ids = append(ids, nodes.Node().ID())
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
