package graph

import (
	"fmt"
	"sort"

	"github.com/roach88/texgraph/internal/node"
)

// adjacency returns producer -> consumers, each list ascending and distinct.
func adjacency(g *Graph) map[node.ID][]node.ID {
	adj := make(map[node.ID][]node.ID, len(g.consumers))
	for id, cs := range g.consumers {
		adj[id] = sortedKeys(cs)
	}
	return adj
}

// reachable reports whether to can be reached from from by following edges
// forward.
func reachable(g *Graph, from, to node.ID) bool {
	seen := map[node.ID]struct{}{from: {}}
	queue := []node.ID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for next := range g.consumers[cur] {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return false
}

// AffectedDownstream returns id plus every node transitively consuming its
// output. A missing id yields an empty set.
func AffectedDownstream(g *Graph, id node.ID) map[node.ID]struct{} {
	out := make(map[node.ID]struct{})
	if !g.HasNode(id) {
		return out
	}
	out[id] = struct{}{}
	queue := []node.ID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.consumers[cur] {
			if _, ok := out[next]; !ok {
				out[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return out
}

// Ancestors returns the targets plus every node reachable by following edges
// backwards from them. Unknown targets are skipped.
func Ancestors(g *Graph, targets []node.ID) map[node.ID]struct{} {
	out := make(map[node.ID]struct{})
	var queue []node.ID
	for _, id := range targets {
		if !g.HasNode(id) {
			continue
		}
		if _, ok := out[id]; !ok {
			out[id] = struct{}{}
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for p := range g.producers[cur] {
			if _, ok := out[p]; !ok {
				out[p] = struct{}{}
				queue = append(queue, p)
			}
		}
	}
	return out
}

// TopoOrder returns all nodes with producers before consumers. Ties are
// broken by ascending id so the order is deterministic.
func TopoOrder(g *Graph) ([]node.ID, error) {
	adj := adjacency(g)
	indeg := make(map[node.ID]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = 0
	}
	for _, consumers := range adj {
		for _, c := range consumers {
			indeg[c]++
		}
	}

	var ready []node.ID
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	order := make([]node.ID, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, c := range adj[cur] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("%w: %d of %d nodes ordered", ErrWouldCreateCycle, len(order), len(g.nodes))
	}
	return order, nil
}

// Depths returns the longest path length from any source to each node.
// Sources have depth 0.
func Depths(g *Graph) map[node.ID]int {
	order, err := TopoOrder(g)
	if err != nil {
		return nil
	}
	adj := adjacency(g)
	depth := make(map[node.ID]int, len(order))
	for _, id := range order {
		for _, c := range adj[id] {
			if d := depth[id] + 1; d > depth[c] {
				depth[c] = d
			}
		}
	}
	for _, id := range order {
		if _, ok := depth[id]; !ok {
			depth[id] = 0
		}
	}
	return depth
}
