// Package registry holds every declaration of an analyzed application,
// keyed by qualified name.
package registry

import (
	"sort"

	"github.com/phobologic/railscope/internal/model"
)

// Registry maps qualified names to declarations, one map per kind.
// Inserting a name that is already present replaces the earlier
// declaration. A Registry is not safe for concurrent writes; once
// populated it may be read from many goroutines.
type Registry struct {
	controllers map[string]*model.Controller
	concerns    map[string]*model.Concern
	helpers     map[string]*model.HelperModule
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		controllers: make(map[string]*model.Controller),
		concerns:    make(map[string]*model.Concern),
		helpers:     make(map[string]*model.HelperModule),
	}
}

// InsertController stores a controller under its qualified name; the last insert wins.
func (r *Registry) InsertController(c *model.Controller) {
	r.controllers[c.QualifiedName()] = c
}

// InsertConcern stores a concern under its qualified name; the last insert wins.
func (r *Registry) InsertConcern(c *model.Concern) {
	r.concerns[c.QualifiedName()] = c
}

// InsertHelper stores a helper module under its qualified name; the last insert wins.
func (r *Registry) InsertHelper(h *model.HelperModule) {
	r.helpers[h.QualifiedName()] = h
}

// Add inserts decl into the map matching its kind.
func (r *Registry) Add(decl model.Declaration) {
	switch d := decl.(type) {
	case *model.Controller:
		r.InsertController(d)
	case *model.Concern:
		r.InsertConcern(d)
	case *model.HelperModule:
		r.InsertHelper(d)
	}
}

// Merge adds decls in order.
func (r *Registry) Merge(decls []model.Declaration) {
	for _, d := range decls {
		r.Add(d)
	}
}

// Controller returns the controller with the given qualified name.
func (r *Registry) Controller(name string) (*model.Controller, bool) {
	c, ok := r.controllers[name]
	return c, ok
}

// Concern returns the concern with the given qualified name.
func (r *Registry) Concern(name string) (*model.Concern, bool) {
	c, ok := r.concerns[name]
	return c, ok
}

// Helper returns the helper module with the given qualified name.
func (r *Registry) Helper(name string) (*model.HelperModule, bool) {
	h, ok := r.helpers[name]
	return h, ok
}

// Controllers returns all controllers sorted by qualified name.
func (r *Registry) Controllers() []*model.Controller {
	return sortedValues(r.controllers)
}

// Concerns returns all concerns sorted by qualified name.
func (r *Registry) Concerns() []*model.Concern {
	return sortedValues(r.concerns)
}

// Helpers returns all helper modules sorted by qualified name.
func (r *Registry) Helpers() []*model.HelperModule {
	return sortedValues(r.helpers)
}

// Declarations returns every declaration: controllers, then concerns,
// then helpers, each group sorted by name.
func (r *Registry) Declarations() []model.Declaration {
	out := make([]model.Declaration, 0, r.Len())
	for _, c := range r.Controllers() {
		out = append(out, c)
	}
	for _, c := range r.Concerns() {
		out = append(out, c)
	}
	for _, h := range r.Helpers() {
		out = append(out, h)
	}
	return out
}

// Len returns the total number of declarations.
func (r *Registry) Len() int {
	return len(r.controllers) + len(r.concerns) + len(r.helpers)
}

func sortedValues[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
