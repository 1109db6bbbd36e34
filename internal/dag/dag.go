// Package dag provides directed acyclic graph operations for module re-export chains.
// It supports cycle detection, topological sorting and change propagation.
package dag

import (
	"sort"
	"sync"

	"github.com/leapstack-labs/barrel/pkg/core"
)

// Node represents a module in the graph.
type Node struct {
	// ID is the unique identifier (resolved module path or manifest name)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph is a directed graph where an edge dependency -> dependent means
// "dependent re-exports from dependency". Safe for concurrent use.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	dependents map[string][]string // module -> modules re-exporting it
	deps       map[string][]string // module -> modules it re-exports
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		dependents: make(map[string][]string),
		deps:       make(map[string][]string),
	}
}

// AddNode adds a node, or replaces the data of an existing one.
func (g *Graph) AddNode(id string, data any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(id, data)
}

func (g *Graph) addNodeLocked(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
}

// AddEdge records that dependent re-exports from dependency.
// Missing nodes are created. Self-edges are cycles and are rejected.
func (g *Graph) AddEdge(dependency, dependent string) error {
	if dependency == dependent {
		return &core.CycleError{Path: []string{dependent, dependency}}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[dependency]; !ok {
		g.addNodeLocked(dependency, nil)
	}
	if _, ok := g.nodes[dependent]; !ok {
		g.addNodeLocked(dependent, nil)
	}

	g.dependents[dependency] = appendUnique(g.dependents[dependency], dependent)
	g.deps[dependent] = appendUnique(g.deps[dependent], dependency)
	return nil
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, dep := range g.deps[id] {
		g.dependents[dep] = without(g.dependents[dep], id)
	}
	for _, child := range g.dependents[id] {
		g.deps[child] = without(g.deps[child], id)
	}
	delete(g.nodes, id)
	delete(g.deps, id)
	delete(g.dependents, id)
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Dependencies returns the modules id re-exports from, in insertion order.
func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the modules re-exporting id, in insertion order.
func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[id]...)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	count := 0
	for _, children := range g.dependents {
		count += len(children)
	}
	return count
}

// Cycle returns one cycle as a closed path (first == last), or nil.
// The search starts from sorted node IDs so the reported cycle is deterministic.
func (g *Graph) Cycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cycleLocked()
}

func (g *Graph) cycleLocked() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var found []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, next := range g.dependents[id] {
			switch color[next] {
			case grey:
				for i, s := range stack {
					if s == next {
						found = append(append([]string(nil), stack[i:]...), next)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range g.sortedIDsLocked() {
		if color[id] == white && visit(id) {
			return found
		}
	}
	return nil
}

// Sort returns nodes with dependencies before dependents.
// Ties are broken by ID, so the order is deterministic.
// A cycle is reported as *core.CycleError.
func (g *Graph) Sort() ([]*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.cycleLocked(); cycle != nil {
		return nil, &core.CycleError{Path: cycle}
	}

	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.deps[id])
	}

	var ready []string
	for id, d := range inDegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	result := make([]*Node, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		result = append(result, g.nodes[id])

		var unlocked []string
		for _, child := range g.dependents[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				unlocked = append(unlocked, child)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	return result, nil
}

// Levels groups node IDs by depth. Level 0 holds modules that re-export
// nothing; a barrel sits one level above the deepest module it re-exports.
func (g *Graph) Levels() ([][]string, error) {
	nodes, err := g.Sort()
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	level := make(map[string]int, len(nodes))
	maxLevel := -1
	for _, n := range nodes {
		l := 0
		for _, dep := range g.deps[n.ID] {
			if level[dep]+1 > l {
				l = level[dep] + 1
			}
		}
		level[n.ID] = l
		if l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, n := range nodes {
		levels[level[n.ID]] = append(levels[level[n.ID]], n.ID)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Affected returns the given nodes plus everything that transitively
// re-exports them, sorted. Unknown IDs are ignored.
func (g *Graph) Affected(changed []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	queue := make([]string, 0, len(changed))
	for _, id := range changed {
		if _, ok := g.nodes[id]; ok && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range g.dependents[id] {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}

	return sortedKeys(seen)
}

// Upstream returns every module id transitively re-exports from, sorted.
func (g *Graph) Upstream(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, dep := range g.deps[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	return sortedKeys(seen)
}

// Roots returns nodes nothing re-exports, sorted. For a manifest graph
// these are the entry points.
func (g *Graph) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var roots []string
	for id := range g.nodes {
		if len(g.dependents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

func (g *Graph) sortedIDsLocked() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func appendUnique(slice []string, s string) []string {
	for _, v := range slice {
		if v == s {
			return slice
		}
	}
	return append(slice, s)
}

func without(slice []string, s string) []string {
	out := slice[:0]
	for _, v := range slice {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
