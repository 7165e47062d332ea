// Package resolver expands a requested set of packages into a
// topologically ordered build plan (§4.3): it merges build-only and
// runtime dependencies, applies the implicit auto/auto-batch
// injection, resolves third-party namespaces through the source
// index, and detects cycles.
package resolver

import (
	"sort"

	"github.com/ongardie/cubicle/internal/cubicleerr"
	"github.com/ongardie/cubicle/internal/index"
	"github.com/ongardie/cubicle/internal/model"
)

// Resolver expands package references against a fixed source index.
type Resolver struct {
	index *index.Index
}

// New constructs a Resolver over the given source index.
func New(ix *index.Index) *Resolver {
	return &Resolver{index: ix}
}

// Plan is the result of resolving a requested set of packages: the
// full build order (topologically sorted, union of transitive
// depends and build_depends) and the subset whose provides_tar must
// actually be unpacked into the target environment (transitive
// depends only, from the requested set plus any implicit auto/
// auto-batch).
type Plan struct {
	BuildOrder []string // identities, dependency-then-dependent order
	Runtime    []string // subsequence of BuildOrder
}

// Resolve implements §4.3's algorithm end to end.
func (r *Resolver) Resolve(requested []model.PackageRef, mode model.Mode) ([]model.PackageRef, *Plan, error) {
	seeds := append([]model.PackageRef(nil), requested...)

	implicit := model.AutoInteractive
	if mode == model.ModeBuilder {
		implicit = model.AutoBatch
	}

	if def, ok := r.index.Get(implicit); ok {
		ancestors, _, err := r.closure([]model.PackageRef{model.ParseRef(def.Name)}, true)
		if err != nil {
			return nil, nil, err
		}
		delete(ancestors, def.Name) // don't compare auto against itself
		shortCircuit := false
		for _, req := range requested {
			if _, isAncestor := ancestors[req.Identity()]; isAncestor {
				shortCircuit = true
				break
			}
		}
		if !shortCircuit {
			seeds = append(seeds, model.ParseRef(implicit))
		}
	}
	// If the implicit package isn't defined at all, it's simply
	// omitted: not every cubicle installation defines auto/auto-batch.

	buildDefs, buildEdges, err := r.buildGraph(seeds, true)
	if err != nil {
		return nil, nil, err
	}

	buildOrder, err := topoSort(buildDefs, buildEdges)
	if err != nil {
		return nil, nil, err
	}

	runtimeSet, _, err := r.closure(seeds, false)
	if err != nil {
		return nil, nil, err
	}

	runtime := make([]string, 0, len(runtimeSet))
	for _, id := range buildOrder {
		if _, ok := runtimeSet[id]; ok {
			runtime = append(runtime, id)
		}
	}

	return seeds, &Plan{BuildOrder: buildOrder, Runtime: runtime}, nil
}

// BuilderSeed returns, for one package, every identity whose
// provides_tar must be unpacked into that package's builder
// environment before build.sh runs, in dependency order (§4.5 step
// 1): the transitive union of its depends and build_depends. Runtime
// reports which of those identities also belong to the package's
// depends-only closure, i.e. which ones its own downstream consumers
// need again later (for seeding a clean test environment, §4.5 step
// 6). The package itself is not included in order.
func (r *Resolver) BuilderSeed(ref model.PackageRef) (order []string, runtime map[string]bool, err error) {
	def, err := r.resolveOrErr(ref, "")
	if err != nil {
		return nil, nil, err
	}

	runtimeSet, _, err := r.closure(def.Manifest.DependsRefs(), false)
	if err != nil {
		return nil, nil, err
	}
	_, fullDefs, err := r.closure(append(append([]model.PackageRef(nil), def.Manifest.DependsRefs()...), def.Manifest.BuildDependsRefs()...), true)
	if err != nil {
		return nil, nil, err
	}

	full, err := topoSort(fullDefs, edgesFromDefs(fullDefs, true))
	if err != nil {
		return nil, nil, err
	}

	runtime = make(map[string]bool, len(runtimeSet))
	for _, id := range full {
		if id == ref.Identity() {
			continue
		}
		order = append(order, id)
		if _, ok := runtimeSet[id]; ok {
			runtime[id] = true
		}
	}
	return order, runtime, nil
}

// resolveOrErr resolves a single reference, wrapping index misses in
// cubicleerr.NoSuchPackage.
func (r *Resolver) resolveOrErr(ref model.PackageRef, neededBy string) (model.Definition, error) {
	def, err := r.index.Resolve(ref)
	if err != nil {
		return model.Definition{}, &cubicleerr.NoSuchPackage{Ref: ref.String(), NeededBy: neededBy}
	}
	return def, nil
}

// closure computes the transitive set of identities reachable from
// seeds by following depends edges (and, if includeBuildDepends,
// build_depends edges too). It also returns the resolved definitions
// keyed by identity. Cycle detection is performed by buildGraph/
// topoSort, not here; closure alone never errors except on a missing
// definition.
func (r *Resolver) closure(seeds []model.PackageRef, includeBuildDepends bool) (map[string]struct{}, map[string]model.Definition, error) {
	visited := map[string]struct{}{}
	defs := map[string]model.Definition{}

	var visit func(ref model.PackageRef, neededBy string) error
	visit = func(ref model.PackageRef, neededBy string) error {
		id := ref.Identity()
		if _, ok := visited[id]; ok {
			return nil
		}
		visited[id] = struct{}{}

		def, err := r.resolveOrErr(ref, neededBy)
		if err != nil {
			return err
		}
		defs[id] = def

		for _, dep := range def.Manifest.DependsRefs() {
			if err := visit(dep, id); err != nil {
				return err
			}
		}
		if includeBuildDepends {
			for _, dep := range def.Manifest.BuildDependsRefs() {
				if err := visit(dep, id); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, seed := range seeds {
		if err := visit(seed, ""); err != nil {
			return nil, nil, err
		}
	}
	return visited, defs, nil
}

// buildGraph resolves seeds into the full set of definitions needed
// for the build plan (transitive depends + build_depends) and the
// dependency edges among them.
func (r *Resolver) buildGraph(seeds []model.PackageRef, includeBuildDepends bool) (map[string]model.Definition, map[string][]string, error) {
	_, defs, err := r.closure(seeds, includeBuildDepends)
	if err != nil {
		return nil, nil, err
	}
	return defs, edgesFromDefs(defs, includeBuildDepends), nil
}

// edgesFromDefs turns a resolved definition set into a dependency ->
// dependent adjacency list restricted to members of defs (references
// to packages outside the set, e.g. because they weren't reachable
// via the requested traversal, are dropped defensively; in practice
// every reference reachable from defs was itself visited into defs).
func edgesFromDefs(defs map[string]model.Definition, includeBuildDepends bool) map[string][]string {
	edges := make(map[string][]string, len(defs))
	for id := range defs {
		edges[id] = nil
	}
	for id, def := range defs {
		deps := def.Manifest.DependsRefs()
		if includeBuildDepends {
			deps = append(append([]model.PackageRef(nil), deps...), def.Manifest.BuildDependsRefs()...)
		}
		for _, dep := range deps {
			depID := dep.Identity()
			if _, ok := defs[depID]; ok {
				edges[depID] = append(edges[depID], id)
			}
		}
	}
	return edges
}

// topoSort runs Kahn's algorithm over the dependency->dependent
// adjacency list, breaking ties among ready nodes by name to keep
// output deterministic (§4.3 step 6, §8 property 1). On a cycle it
// returns cubicleerr.CyclicDependency naming the cycle.
func topoSort(defs map[string]model.Definition, edges map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(defs))
	for id := range defs {
		indegree[id] = 0
	}
	for _, dependents := range edges {
		for _, d := range dependents {
			indegree[d]++
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(defs))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range edges[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(defs) {
		return nil, &cubicleerr.CyclicDependency{Path: findCycle(defs, edges)}
	}
	return order, nil
}

// findCycle locates one cycle for diagnostics once topoSort has
// determined a cycle exists (indegree never reached zero for some
// nodes).
func findCycle(defs map[string]model.Definition, edges map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(defs))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, dependent := range edges[id] {
			switch color[dependent] {
			case white:
				if visit(dependent) {
					return true
				}
			case gray:
				// Found the back edge; extract the cycle from the stack.
				for i := len(stack) - 1; i >= 0; i-- {
					cycle = append(cycle, stack[i])
					if stack[i] == dependent {
						break
					}
				}
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(defs))
	for id := range defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				break
			}
		}
	}
	return cycle
}
