package manifest

import "sort"

// Weights assigns every module an install priority. A module weighs more
// than each module depending on it, so sorting by descending weight installs
// dependencies first. Within a cycle the order is arbitrary but stable.
// Dependencies absent from deps are ignored.
func Weights(deps map[string][]string) map[string]int {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(names))
	finished := make([]string, 0, len(names))

	var visit func(string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range deps[name] {
			if _, known := deps[dep]; known {
				visit(dep)
			}
		}
		finished = append(finished, name)
	}
	for _, name := range names {
		visit(name)
	}

	weights := make(map[string]int, len(finished))
	for i, name := range finished {
		weights[name] = len(finished) - i
	}
	return weights
}

// Dependents inverts deps: it maps every module to the modules requiring it
// directly, sorted.
func Dependents(deps map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for name, ds := range deps {
		for _, dep := range ds {
			out[dep] = append(out[dep], name)
		}
	}
	for _, list := range out {
		sort.Strings(list)
	}
	return out
}
