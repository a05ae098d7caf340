// Package graph builds the declaration dependency graph and computes PageRank.
package graph

import (
	"math"
	"slices"
	"sort"

	"github.com/phobologic/railscope/internal/model"
	"github.com/phobologic/railscope/internal/registry"
	"github.com/phobologic/railscope/internal/resolve"
)

// Edge kinds.
const (
	Inherits = "inherits"
	Includes = "includes"
)

// Build creates inherit and include edges between registered declarations.
// References to unknown names produce no edge.
func Build(reg *registry.Registry) []model.Dependency {
	type edgeKey struct{ src, tgt, kind string }
	seen := make(map[edgeKey]struct{})

	var deps []model.Dependency
	add := func(src, tgt, kind string) {
		key := edgeKey{src, tgt, kind}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		deps = append(deps, model.Dependency{Source: src, Target: tgt, Kind: kind})
	}

	for _, ctrl := range reg.Controllers() {
		name := ctrl.QualifiedName()
		if parent, ok := resolve.Parent(reg, ctrl); ok {
			add(name, parent.QualifiedName(), Inherits)
		}
		for _, inc := range ctrl.Includes {
			if mixin, ok := resolve.Mixin(reg, inc, ctrl.Module); ok {
				add(name, mixin.QualifiedName(), Includes)
			}
		}
	}

	// Sort for deterministic output
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Source != deps[j].Source {
			return deps[i].Source < deps[j].Source
		}
		if deps[i].Target != deps[j].Target {
			return deps[i].Target < deps[j].Target
		}
		return deps[i].Kind < deps[j].Kind
	})

	return deps
}

// Nodes lists every registered declaration, unranked.
func Nodes(reg *registry.Registry) []model.DeclarationInfo {
	decls := reg.Declarations()
	nodes := make([]model.DeclarationInfo, 0, len(decls))
	for _, d := range decls {
		nodes = append(nodes, model.DeclarationInfo{
			Name:    d.QualifiedName(),
			Kind:    d.Kind(),
			Methods: len(d.MethodList()),
		})
	}
	return nodes
}

// Cycles returns every inheritance cycle in deps. Each cycle starts at its
// lexically smallest member; cycles are sorted.
func Cycles(deps []model.Dependency) [][]string {
	parent := make(map[string]string)
	for _, d := range deps {
		if d.Kind == Inherits {
			parent[d.Source] = d.Target
		}
	}

	starts := make([]string, 0, len(parent))
	for name := range parent {
		starts = append(starts, name)
	}
	sort.Strings(starts)

	done := make(map[string]bool)
	var cycles [][]string
	for _, start := range starts {
		var path []string
		onPath := make(map[string]int)
		node := start
		for {
			if done[node] {
				break
			}
			if i, ok := onPath[node]; ok {
				cycles = append(cycles, rotate(path[i:]))
				break
			}
			onPath[node] = len(path)
			path = append(path, node)
			next, ok := parent[node]
			if !ok {
				break
			}
			node = next
		}
		for _, n := range path {
			done[n] = true
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return slices.Compare(cycles[i], cycles[j]) < 0
	})
	return cycles
}

// rotate returns cycle starting at its smallest element.
func rotate(cycle []string) []string {
	lo := 0
	for i := range cycle {
		if cycle[i] < cycle[lo] {
			lo = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[lo:]...)
	return append(out, cycle[:lo]...)
}

// Rank applies PageRank to nodes and sorts them by rank descending, then
// by name. An edge points from the dependent declaration to the one it
// uses, so base controllers and shared concerns rank highest.
func Rank(nodes []model.DeclarationInfo, deps []model.Dependency) {
	if len(nodes) == 0 {
		return
	}

	if len(deps) == 0 {
		uniform := 1.0 / float64(len(nodes))
		for i := range nodes {
			nodes[i].Rank = uniform
		}
		sortByRank(nodes)
		return
	}

	outEdges := make(map[string][]string)
	outDegree := make(map[string]int)
	set := make(map[string]struct{}, len(nodes))

	for i := range nodes {
		set[nodes[i].Name] = struct{}{}
	}

	for _, d := range deps {
		_, srcOK := set[d.Source]
		_, tgtOK := set[d.Target]
		if !srcOK || !tgtOK {
			continue
		}
		outEdges[d.Source] = append(outEdges[d.Source], d.Target)
		outDegree[d.Source]++
	}

	ranks := pageRank(set, outEdges, outDegree, 0.85, 100, 1e-6)

	for i := range nodes {
		nodes[i].Rank = ranks[nodes[i].Name]
	}
	sortByRank(nodes)
}

func sortByRank(nodes []model.DeclarationInfo) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Rank != nodes[j].Rank {
			return nodes[i].Rank > nodes[j].Rank
		}
		return nodes[i].Name < nodes[j].Name
	})
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for node := range nodes {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling node contribution (nodes with no outgoing edges)
		var danglingSum float64
		for node := range nodes {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for node := range nodes {
			newRank[node] = teleport + danglingContrib
		}

		for src, targets := range outEdges {
			contrib := alpha * rank[src] / float64(outDegree[src])
			for _, tgt := range targets {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for node := range nodes {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}
