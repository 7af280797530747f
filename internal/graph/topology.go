package graph

import (
	"fmt"
	"sort"

	"github.com/Meesho/BharatMLStack/choreographer/internal/data/models"
)

// Topology is the dependency view of a validated definition. It is
// immutable once built.
type Topology struct {
	Start string
	// States is in topological order; ties break by name.
	States      []string
	Terminal    []string
	Deps        map[string]models.Deps
	Unreachable []string
	Fingerprint string
}

// Warnings are non-fatal findings, such as unreachable states.
func (t *Topology) Warnings() []string {
	out := make([]string, 0, len(t.Unreachable))
	for _, name := range t.Unreachable {
		out = append(out, fmt.Sprintf("state %q is unreachable from %q", name, t.Start))
	}
	return out
}

// Roots returns the states with no upstream dependency.
func (t *Topology) Roots() []string {
	return Roots(t.Deps)
}

// Build validates def and derives the upstream/downstream sets of every
// state. All problems are reported together in a *ValidationError.
func Build(def Definition) (*Topology, error) {
	var problems []string
	if len(def.States) == 0 {
		problems = append(problems, "definition declares no states")
	}
	if def.StartAt == "" {
		problems = append(problems, "StartAt is required")
	} else if _, ok := def.States[def.StartAt]; !ok {
		problems = append(problems, fmt.Sprintf("StartAt %q is not a declared state", def.StartAt))
	}

	names := make([]string, 0, len(def.States))
	for name := range def.States {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]models.Deps, len(names))
	for _, name := range names {
		deps[name] = models.Deps{Upstream: []string{}, Downstream: []string{}}
	}
	var terminal []string
	for _, name := range names {
		state := def.States[name]
		if name == "" {
			problems = append(problems, "state names must be non-empty")
			continue
		}
		targets := state.Targets()
		switch {
		case state.Type == TypeChoice && state.End:
			problems = append(problems, fmt.Sprintf("choice state %q cannot be End", name))
		case state.Terminal() && len(targets) > 0:
			problems = append(problems, fmt.Sprintf("terminal state %q must not declare transitions", name))
		case !state.Terminal() && len(targets) == 0:
			problems = append(problems, fmt.Sprintf("state %q has no transition and is not terminal", name))
		}
		if state.Terminal() {
			terminal = append(terminal, name)
		}
		for _, target := range targets {
			if _, ok := def.States[target]; !ok {
				problems = append(problems, fmt.Sprintf("state %q transitions to unknown state %q", name, target))
				continue
			}
			if target == name {
				problems = append(problems, fmt.Sprintf("state %q transitions to itself", name))
				continue
			}
			d := deps[name]
			d.Downstream = append(d.Downstream, target)
			deps[name] = d
			t := deps[target]
			t.Upstream = append(t.Upstream, name)
			deps[target] = t
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	for name, d := range deps {
		sort.Strings(d.Upstream)
		sort.Strings(d.Downstream)
		deps[name] = d
	}

	order, cyclic := topologicalOrder(names, deps)
	if len(cyclic) > 0 {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("graph has a cycle through %v", cyclic)}}
	}

	reachable := reachableFrom(def.StartAt, deps)
	reachesTerminal := false
	for _, name := range terminal {
		if reachable[name] {
			reachesTerminal = true
			break
		}
	}
	if !reachesTerminal {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("no terminal state is reachable from %q", def.StartAt)}}
	}
	var unreachable []string
	for _, name := range names {
		if !reachable[name] {
			unreachable = append(unreachable, name)
		}
	}

	return &Topology{
		Start:       def.StartAt,
		States:      order,
		Terminal:    terminal,
		Deps:        deps,
		Unreachable: unreachable,
		Fingerprint: Fingerprint(def.StartAt, deps),
	}, nil
}

// Roots returns the states of deps with an empty upstream set, sorted.
func Roots(deps map[string]models.Deps) []string {
	var out []string
	for name, d := range deps {
		if len(d.Upstream) == 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// topologicalOrder runs Kahn's algorithm. States left with a non-zero
// in-degree sit on or behind a cycle and are returned as the second value.
func topologicalOrder(names []string, deps map[string]models.Deps) ([]string, []string) {
	inDegree := make(map[string]int, len(names))
	for _, name := range names {
		inDegree[name] = len(deps[name].Upstream)
	}
	var queue []string
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	order := make([]string, 0, len(names))
	for len(queue) > 0 {
		sort.Strings(queue)
		next := queue[0]
		queue = queue[1:]
		order = append(order, next)
		for _, child := range deps[next].Downstream {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if len(order) == len(names) {
		return order, nil
	}
	var cyclic []string
	for _, name := range names {
		if inDegree[name] > 0 {
			cyclic = append(cyclic, name)
		}
	}
	return order, cyclic
}

func reachableFrom(start string, deps map[string]models.Deps) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range deps[cur].Downstream {
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}
	return seen
}
