package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/rulescript/internal/ir"
)

// CycleWarning represents a potential cycle between rules.
//
// Cycles are warnings, not errors, because they may be intentional:
//   - Counters that stop at a bound tested in the pattern
//   - Recursive graph walks that end when the graph does
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on rules.
//
// It builds a dependency graph from what each rule's action inserts and
// what each rule matches, and reports strongly connected components. At
// run time a real cycle ends only at the depth or step bound, so every
// warning is a potential non-termination.
//
// The algorithm:
//  1. Scan each action for the record types it inserts
//  2. Add an edge A → B when A inserts a type some pattern of B matches
//  3. Use Tarjan's algorithm to find strongly connected components
//  4. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// Warnings are deterministic for a given rule order. A DAG returns an
// empty list.
func AnalyzeCycles(rs ir.Ruleset) []CycleWarning {
	if len(rs.Rules) == 0 {
		return []CycleWarning{}
	}

	graph, order := buildDependencyGraph(rs)
	sccs := tarjanSCC(graph, order)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps rule_id → list of rule_ids that could be triggered.
type dependencyGraph map[string][]string

var (
	// insertCall matches insert("Type" and create("Type".
	insertCall = regexp.MustCompile(`\b(?:insert|create)\(\s*["']([A-Za-z_][A-Za-z0-9_]*)["']`)
	// updateCall matches update(name, which re-inserts the fact bound to name.
	updateCall = regexp.MustCompile(`\bupdate\(\s*([A-Za-z_$][A-Za-z0-9_$]*)\s*,`)
)

// InsertedTypes returns the record types a rule's action may insert, in
// first-seen order.
func InsertedTypes(r ir.RuleSpec) []string {
	var out []string
	seen := map[string]bool{}
	addType := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, m := range insertCall.FindAllStringSubmatch(r.Then, -1) {
		addType(m[1])
	}
	for _, m := range updateCall.FindAllStringSubmatch(r.Then, -1) {
		for _, p := range r.When {
			if p.Bind == m[1] {
				addType(p.Type)
			}
		}
	}
	return out
}

// buildDependencyGraph constructs the rule dependency graph. A rule
// matching type T is triggered by inserts of T or any type extending T.
func buildDependencyGraph(rs ir.Ruleset) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	order := make([]string, 0, len(rs.Rules))

	parent := make(map[string]string, len(rs.Records))
	for _, rt := range rs.Records {
		parent[rt.Name] = rt.Extends
	}
	isA := func(name, want string) bool {
		seen := map[string]bool{}
		for name != "" && !seen[name] {
			if name == want {
				return true
			}
			seen[name] = true
			name = parent[name]
		}
		return false
	}

	for _, r := range rs.Rules {
		order = append(order, r.ID)
		graph[r.ID] = []string{}
	}
	for _, r := range rs.Rules {
		for _, t := range InsertedTypes(r) {
			for _, other := range rs.Rules {
				for _, p := range other.When {
					if isA(t, p.Type) {
						graph[r.ID] = appendUnique(graph[r.ID], other.ID)
						break
					}
				}
			}
		}
	}
	return graph, order
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of rule IDs. Nodes are
// visited in order so the result is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes
	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [rule-id, rule-id].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		ruleID := scc[0]
		return CycleWarning{
			Path:    []string{ruleID, ruleID},
			Message: fmt.Sprintf("Self-triggering rule detected: %s → %s", ruleID, ruleID),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
