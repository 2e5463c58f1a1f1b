package report

import (
	"fmt"
	"sort"
)

// TopologicalOrder derives a single global metric ordering from each
// run's own total order over its metric names. Each run contributes
// an edge a->b for every adjacent pair (a, b) in its ordering; the
// global order is any linearisation of the union of those edges. A
// cycle is reported as an error rather than silently tie-broken.
func TopologicalOrder(perRunOrders map[string][]string) ([]string, error) {
	edges := make(map[string]map[string]bool)
	indegree := make(map[string]int)
	nodeSet := make(map[string]bool)

	ensure := func(n string) {
		if !nodeSet[n] {
			nodeSet[n] = true
			edges[n] = make(map[string]bool)
			indegree[n] = 0
		}
	}

	for _, order := range perRunOrders {
		for _, n := range order {
			ensure(n)
		}
		for i := 0; i+1 < len(order); i++ {
			a, b := order[i], order[i+1]
			if a == b {
				continue
			}
			if !edges[a][b] {
				edges[a][b] = true
				indegree[b]++
			}
		}
	}

	// Deterministic node iteration: sort names so ties resolve the same
	// way on every run.
	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var queue []string
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var result []string
	for len(queue) > 0 {
		sort.Strings(queue)
		n := queue[0]
		queue = queue[1:]
		result = append(result, n)

		var successors []string
		for s := range edges[n] {
			successors = append(successors, s)
		}
		sort.Strings(successors)
		for _, s := range successors {
			indegree[s]--
			if indegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}

	if len(result) != len(nodes) {
		return nil, fmt.Errorf("report: cycle detected among metric orderings (resolved %d of %d names)", len(result), len(nodes))
	}
	return result, nil
}
