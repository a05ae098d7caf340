// Package resolve computes the effective methods of a controller across
// inheritance and mixins, and the request parameters an endpoint reaches
// through its call graph and action hooks.
package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/phobologic/railscope/internal/model"
	"github.com/phobologic/railscope/internal/registry"
)

var (
	// ErrNotFound is wrapped by every *Error.
	ErrNotFound = errors.New("not found")
	// ErrCyclicAncestry reports a controller that is its own ancestor.
	ErrCyclicAncestry = errors.New("cyclic ancestry")
)

// Error reports an action or hook target missing from a controller's
// effective method set.
type Error struct {
	// Hook is empty when the action itself is missing.
	Hook       model.ActionKind
	Name       string
	Controller string
	Request    string
}

func (e *Error) Error() string {
	what := "action"
	if e.Hook != "" {
		what = string(e.Hook) + " target"
	}
	return fmt.Sprintf("%s %s not found in controller %s for request %s", what, e.Name, e.Controller, e.Request)
}

func (e *Error) Unwrap() error { return ErrNotFound }

// Warning records an include that names no known concern or helper.
type Warning struct {
	Declaration string
	Include     string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: included module %s not found", w.Declaration, w.Include)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for warnings and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// Resolver answers method and parameter queries for one controller. It
// only reads the registry, so several resolvers may run concurrently once
// the registry is fully populated.
type Resolver struct {
	reg    *registry.Registry
	ctrl   *model.Controller
	logger *slog.Logger

	inherited []model.MethodProfile
	included  []model.MethodProfile
	all       []model.MethodProfile
	hooks     []model.ActionHook
	warnings  []Warning
}

// New resolves the ancestry and mixins of ctrl against reg. It fails with
// ErrCyclicAncestry if ctrl's ancestor chain revisits a controller.
func New(reg *registry.Registry, ctrl *model.Controller, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		reg:    reg,
		ctrl:   ctrl,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}

	set, err := r.collect(ctrl, nil)
	if err != nil {
		return nil, err
	}
	r.inherited = set.inherited
	r.included = set.included
	r.all = set.all()
	r.hooks = set.hooks
	return r, nil
}

// methodSet is the resolved view of one controller.
type methodSet struct {
	own       []model.MethodProfile
	inherited []model.MethodProfile
	included  []model.MethodProfile
	hooks     []model.ActionHook
}

func (s *methodSet) all() []model.MethodProfile {
	out := make([]model.MethodProfile, 0, len(s.own)+len(s.inherited)+len(s.included))
	out = append(out, s.own...)
	out = append(out, s.inherited...)
	return append(out, s.included...)
}

// collect resolves ctrl recursively. path holds the qualified names of the
// descendants currently being resolved.
func (r *Resolver) collect(ctrl *model.Controller, path []string) (*methodSet, error) {
	name := ctrl.QualifiedName()
	if slices.Contains(path, name) {
		return nil, fmt.Errorf("%w: %s", ErrCyclicAncestry, strings.Join(append(path, name), " < "))
	}
	path = append(path, name)

	set := &methodSet{own: ctrl.Methods}
	set.hooks = append(set.hooks, ctrl.ActionHooks...)

	if parent, ok := r.parentOf(ctrl); ok {
		ps, err := r.collect(parent, path)
		if err != nil {
			return nil, err
		}
		set.inherited = ps.all()
		set.hooks = append(set.hooks, ps.hooks...)
	}

	for _, inc := range ctrl.Includes {
		methods, hooks, ok := r.mixin(inc, ctrl.Module)
		if !ok {
			w := Warning{Declaration: name, Include: inc}
			r.warnings = append(r.warnings, w)
			r.logger.Warn("included module not found", "controller", name, "include", inc)
			continue
		}
		set.included = append(set.included, methods...)
		set.hooks = append(set.hooks, hooks...)
	}
	return set, nil
}

func (r *Resolver) parentOf(ctrl *model.Controller) (*model.Controller, bool) {
	return Parent(r.reg, ctrl)
}

// mixin looks an include up as a concern, then as a helper.
func (r *Resolver) mixin(name, module string) ([]model.MethodProfile, []model.ActionHook, bool) {
	decl, _ := Mixin(r.reg, name, module)
	switch d := decl.(type) {
	case *model.Concern:
		return d.Methods, d.ActionHooks, true
	case *model.HelperModule:
		return d.Methods, nil, true
	}
	return nil, nil, false
}

// Parent finds the registered superclass of ctrl. A class never resolves
// to itself, so "class Foo < Foo" written inside a module reaches the outer
// Foo.
func Parent(reg *registry.Registry, ctrl *model.Controller) (*model.Controller, bool) {
	if ctrl.Parent == "" {
		return nil, false
	}
	self := ctrl.QualifiedName()
	for _, candidate := range Candidates(ctrl.Parent, ctrl.Module) {
		if candidate == self {
			continue
		}
		if parent, ok := reg.Controller(candidate); ok {
			return parent, true
		}
	}
	return nil, false
}

// Mixin finds the concern or helper an include written inside module
// refers to. At each scope a concern wins over a helper of the same name.
func Mixin(reg *registry.Registry, name, module string) (model.Declaration, bool) {
	for _, candidate := range Candidates(name, module) {
		if c, ok := reg.Concern(candidate); ok {
			return c, true
		}
		if h, ok := reg.Helper(candidate); ok {
			return h, true
		}
	}
	return nil, false
}

// Candidates lists the qualified names a constant reference may denote when
// written inside module, innermost first. A leading "::" pins the name to
// the top level.
func Candidates(name, module string) []string {
	if strings.HasPrefix(name, "::") {
		return []string{strings.TrimPrefix(name, "::")}
	}
	var out []string
	for module != "" {
		out = append(out, module+"::"+name)
		i := strings.LastIndex(module, "::")
		if i < 0 {
			break
		}
		module = module[:i]
	}
	return append(out, name)
}

// Controller returns the controller being resolved.
func (r *Resolver) Controller() *model.Controller { return r.ctrl }

// OwnMethods returns the methods the controller declares itself.
func (r *Resolver) OwnMethods() []model.MethodProfile { return r.ctrl.Methods }

// InheritedMethods returns the full method set of the ancestor, or nil when
// the parent is not a known controller.
func (r *Resolver) InheritedMethods() []model.MethodProfile { return r.inherited }

// IncludedMethods returns the methods of every resolvable include, in
// include order.
func (r *Resolver) IncludedMethods() []model.MethodProfile { return r.included }

// AllMethods returns own, inherited and included methods in that order.
// Names are not deduplicated.
func (r *Resolver) AllMethods() []model.MethodProfile { return r.all }

// Hooks returns the effective action hooks: the controller's own, its
// ancestors', and those of included concerns.
func (r *Resolver) Hooks() []model.ActionHook { return r.hooks }

// Warnings returns the includes that could not be resolved.
func (r *Resolver) Warnings() []Warning { return r.warnings }

// MethodByName returns the first method named name in AllMethods order.
func (r *Resolver) MethodByName(name string) (*model.MethodProfile, bool) {
	for i := range r.all {
		if r.all[i].Name == name {
			return &r.all[i], true
		}
	}
	return nil, false
}

// ParamsFor returns the parameters read by method and by every method it
// reaches through calls that resolve on this controller. guard holds the
// methods already expanded and may be nil.
//
// A callee is not followed when its call list equals the caller's while its
// declared arguments differ. This stops accessor pairs that delegate to each
// other under different signatures.
func (r *Resolver) ParamsFor(method *model.MethodProfile, guard model.StringSet) model.StringSet {
	params := model.StringSet{}
	r.walk(method, guard, func(m *model.MethodProfile) {
		params.Union(m.Params)
	})
	return params
}

func (r *Resolver) walk(method *model.MethodProfile, guard model.StringSet, visit func(*model.MethodProfile)) {
	if guard == nil {
		guard = model.StringSet{}
	}
	guard.Add(method.Name)
	visit(method)

	for _, call := range method.MethodCalls {
		if guard.Has(call.Name) {
			continue
		}
		callee, ok := r.MethodByName(call.Name)
		if !ok {
			r.logger.Debug("call does not resolve on controller",
				"controller", r.ctrl.QualifiedName(), "method", method.Name, "callee", call.Name)
			continue
		}
		if sameCalls(callee.MethodCalls, method.MethodCalls) && !slices.Equal(callee.Args, method.Args) {
			continue
		}
		r.walk(callee, guard, visit)
	}
}

func sameCalls(a, b []model.MethodCall) bool {
	return slices.EqualFunc(a, b, func(x, y model.MethodCall) bool {
		return x.Name == y.Name && slices.Equal(x.Args, y.Args)
	})
}

// Endpoint is everything an action reaches, hooks included.
type Endpoint struct {
	Controller        string
	Action            string
	Params            model.StringSet
	Headers           []model.Header
	InstanceVariables model.StringSet
}

// EndpointParams returns the parameters of action and of every effective
// hook target. requestID names the originating request in errors.
func (r *Resolver) EndpointParams(action, requestID string) (model.StringSet, error) {
	ep, err := r.Endpoint(action, requestID)
	if err != nil {
		return nil, err
	}
	return ep.Params, nil
}

// Endpoint resolves action like EndpointParams and additionally collects
// the headers and instance variables the same methods touch. Headers keep
// first-seen order and are deduplicated.
func (r *Resolver) Endpoint(action, requestID string) (*Endpoint, error) {
	name := r.ctrl.QualifiedName()
	method, ok := r.MethodByName(action)
	if !ok {
		return nil, &Error{Name: action, Controller: name, Request: requestID}
	}

	roots := []*model.MethodProfile{method}
	for _, hook := range r.hooks {
		target, ok := r.MethodByName(hook.Target)
		if !ok {
			return nil, &Error{Hook: hook.Kind, Name: hook.Target, Controller: name, Request: requestID}
		}
		roots = append(roots, target)
	}

	ep := &Endpoint{
		Controller:        name,
		Action:            action,
		Params:            model.StringSet{},
		InstanceVariables: model.StringSet{},
	}
	seenHeaders := make(map[model.Header]bool)
	visit := func(m *model.MethodProfile) {
		ep.Params.Union(m.Params)
		ep.InstanceVariables.Union(m.InstanceVariables)
		for _, h := range m.Headers {
			if !seenHeaders[h] {
				seenHeaders[h] = true
				ep.Headers = append(ep.Headers, h)
			}
		}
	}

	guard := model.StringSet{}
	for _, root := range roots {
		if guard.Has(root.Name) {
			continue
		}
		r.walk(root, guard, visit)
	}
	return ep, nil
}
