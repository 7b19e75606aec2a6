package registry

// TopoSort runs Kahn's algorithm on a dependency graph expressed as
// edges[node] = set of nodes it depends on (must complete first).
// It returns level-sets: level 0 has no remaining dependencies, level k
// depends only on nodes in levels < k. If the graph has a cycle, ok is
// false and remaining holds the residual edge set that could not be
// resolved, per spec.md §9 ("return the residual edge-set on failure").
//
// The original Python topological_sort (original_source's shelver/
// util.py) has a latent bug: it catches ValueError while removing a
// resolved node from a dependent's remaining-dependency set, but
// set.remove on a missing element raises KeyError, not ValueError, so the
// catch never fires. This port implements the discard semantics the
// original clearly intended (ignore an edge to an already-resolved node)
// rather than reproducing the dead except clause.
func TopoSort(edges map[string]map[string]struct{}) (levels [][]string, remaining map[string]map[string]struct{}, ok bool) {
	remaining = make(map[string]map[string]struct{}, len(edges))
	for node, deps := range edges {
		cp := make(map[string]struct{}, len(deps))
		for d := range deps {
			cp[d] = struct{}{}
		}
		remaining[node] = cp
	}

	var resolved []string
	for len(remaining) > 0 {
		var level []string
		for node, deps := range remaining {
			if len(deps) == 0 {
				level = append(level, node)
			}
		}
		if len(level) == 0 {
			return levels, remaining, false
		}

		for _, node := range level {
			delete(remaining, node)
			resolved = append(resolved, node)
		}
		for _, deps := range remaining {
			for _, node := range level {
				delete(deps, node) // discard: no-op if absent
			}
		}
		levels = append(levels, level)
	}

	return levels, nil, true
}
