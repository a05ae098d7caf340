// Package ranking narrows an application map to what the reader asked for.
package ranking

import (
	"strings"

	"github.com/phobologic/railscope/internal/model"
)

// SelectDeclarations returns a new AppMap with only the top-ranked
// declarations and the edges between them. Declarations must already be
// sorted by rank. If maxDecls is <= 0 or >= len(declarations), am is
// returned unchanged.
func SelectDeclarations(am *model.AppMap, maxDecls int) *model.AppMap {
	if maxDecls <= 0 || maxDecls >= len(am.Declarations) {
		return am
	}

	selected := am.Declarations[:maxDecls]
	names := make(map[string]struct{}, maxDecls)
	for i := range selected {
		names[selected[i].Name] = struct{}{}
	}

	var deps []model.Dependency
	for i := range am.Dependencies {
		d := &am.Dependencies[i]
		_, srcOK := names[d.Source]
		_, tgtOK := names[d.Target]
		if srcOK && tgtOK {
			deps = append(deps, *d)
		}
	}

	out := *am
	out.Declarations = selected
	out.Dependencies = deps
	return &out
}

// FilterEndpoints returns a new AppMap containing only endpoints whose
// controller name contains substr (case-insensitive), the declarations
// those controllers match, and every edge touching them.
func FilterEndpoints(am *model.AppMap, substr string) *model.AppMap {
	lower := strings.ToLower(substr)
	matches := func(name string) bool {
		return strings.Contains(strings.ToLower(name), lower)
	}

	var endpoints []model.EndpointReport
	for i := range am.Endpoints {
		if matches(am.Endpoints[i].Controller) {
			endpoints = append(endpoints, am.Endpoints[i])
		}
	}

	matched := make(map[string]struct{})
	for i := range am.Declarations {
		d := &am.Declarations[i]
		if d.Kind == model.ControllerKind && matches(d.Name) {
			matched[d.Name] = struct{}{}
		}
	}

	var deps []model.Dependency
	related := make(map[string]struct{})
	for i := range am.Dependencies {
		d := &am.Dependencies[i]
		_, srcOK := matched[d.Source]
		_, tgtOK := matched[d.Target]
		if srcOK || tgtOK {
			deps = append(deps, *d)
			related[d.Source] = struct{}{}
			related[d.Target] = struct{}{}
		}
	}

	var decls []model.DeclarationInfo
	for i := range am.Declarations {
		name := am.Declarations[i].Name
		_, isMatched := matched[name]
		_, isRelated := related[name]
		if isMatched || isRelated {
			decls = append(decls, am.Declarations[i])
		}
	}

	out := *am
	out.Endpoints = endpoints
	out.Declarations = decls
	out.Dependencies = deps
	return &out
}
