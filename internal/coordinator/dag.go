package coordinator

import (
	"fmt"
	"strings"

	"github.com/Aladin147/FlowCode-sub002/internal/agent"
)

// validateStepDAG checks that step dependencies form an acyclic graph and
// reference known step ids. Kahn's algorithm; when a cycle is present a
// DFS reconstructs the cycle path for the error message.
func validateStepDAG(steps []agent.Step) error {
	if len(steps) == 0 {
		return nil
	}

	known := make(map[string]bool, len(steps))
	for i := range steps {
		known[steps[i].ID] = true
	}

	inDegree := make(map[string]int, len(steps))
	forward := make(map[string][]string) // dependency -> dependents
	edges := make(map[string][]string)   // step -> dependencies
	for i := range steps {
		id := steps[i].ID
		inDegree[id] = 0
	}
	for i := range steps {
		id := steps[i].ID
		for _, dep := range steps[i].Dependencies {
			if !known[dep] {
				return fmt.Errorf("step %s depends on unknown step %s", id, dep)
			}
			inDegree[id]++
			forward[dep] = append(forward[dep], id)
			edges[id] = append(edges[id], dep)
		}
	}

	var queue []string
	for i := range steps {
		if inDegree[steps[i].ID] == 0 {
			queue = append(queue, steps[i].ID)
		}
	}

	sorted := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted++
		for _, dependent := range forward[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if sorted == len(steps) {
		return nil
	}

	cycle := findCyclePath(steps, edges)
	return fmt.Errorf("circular step dependency: %s", strings.Join(cycle, " -> "))
}

// findCyclePath locates one cycle among the remaining nodes via DFS.
func findCyclePath(steps []agent.Step, edges map[string][]string) []string {
	const (
		white = iota // unvisited
		gray         // on current path
		black        // finished
	)

	color := make(map[string]int)
	parent := make(map[string]string)
	var cycle []string

	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range edges[node] {
			if color[dep] == gray {
				cycle = []string{dep}
				for cur := node; cur != dep; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, dep)
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for i := range steps {
		id := steps[i].ID
		if color[id] == white && dfs(id) {
			break
		}
	}
	return cycle
}

// transitiveDependents collects every step that directly or transitively
// depends on the given step id.
func transitiveDependents(steps []agent.Step, id string) map[string]bool {
	forward := make(map[string][]string)
	for i := range steps {
		for _, dep := range steps[i].Dependencies {
			forward[dep] = append(forward[dep], steps[i].ID)
		}
	}

	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dependent := range forward[cur] {
			if !seen[dependent] {
				seen[dependent] = true
				stack = append(stack, dependent)
			}
		}
	}
	return seen
}
