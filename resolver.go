package siteinstaller

import (
	"slices"
	"sort"
)

// MetadataLookup returns what the filesystem knows about a module.
type MetadataLookup func(name string) (ModuleRecord, bool)

// LookupFromMap adapts a catalog map to a MetadataLookup.
func LookupFromMap(catalog map[string]ModuleRecord) MetadataLookup {
	return func(name string) (ModuleRecord, bool) {
		rec, ok := catalog[name]
		return rec, ok
	}
}

// ModuleGraphResolver turns a requested module list into an install plan.
//
// Ordering is a priority-weighted stable sort over the transitive closure of
// the request: each module weighs its own Sort, ties keep discovery order.
// The host computes Sort so that dependencies outweigh their dependents, which
// makes the order correct for acyclic graphs. Cycles are not detected; a
// cyclic graph still yields a plan, with some edge left unsatisfied.
type ModuleGraphResolver struct {
	implicit []string
	logger   Logger
}

// NewModuleGraphResolver creates a resolver forcing ImplicitModules in.
func NewModuleGraphResolver(logger Logger) *ModuleGraphResolver {
	if logger == nil {
		logger = NopLogger{}
	}
	return &ModuleGraphResolver{
		implicit: ImplicitModules(),
		logger:   logger,
	}
}

// Resolve computes the install plan for requested.
func (r *ModuleGraphResolver) Resolve(requested []string, lookup MetadataLookup) (InstallPlan, error) {
	working := slices.Clone(requested)
	for _, name := range r.implicit {
		if !slices.Contains(working, name) {
			working = slices.Insert(working, 0, name)
		}
	}

	order, weights, err := r.closure(working, lookup)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(order, func(i, j int) bool {
		return weights[order[i]] > weights[order[j]]
	})

	r.logger.Debug("Resolved install plan", "plan", order)
	return InstallPlan(order), nil
}

// closure walks the working set in discovery order, appending every
// dependency not seen yet, and records each module's weight.
func (r *ModuleGraphResolver) closure(working []string, lookup MetadataLookup) ([]string, map[string]int, error) {
	order := make([]string, 0, len(working))
	weights := make(map[string]int, len(working))
	for _, name := range working {
		if _, seen := weights[name]; seen {
			continue
		}
		order = append(order, name)
		weights[name] = 0
	}

	for i := 0; i < len(order); i++ {
		name := order[i]
		rec, ok := lookup(name)
		if !ok {
			return nil, nil, &MissingModuleError{Name: name}
		}
		weights[name] = rec.Sort
		for _, dep := range rec.Dependencies {
			if _, seen := weights[dep]; !seen {
				order = append(order, dep)
				weights[dep] = 0
			}
		}
	}
	return order, weights, nil
}
