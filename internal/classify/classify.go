// Package classify turns a parsed Ruby file into Controller, Concern and
// HelperModule declarations.
package classify

import (
	"fmt"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/analyze"
	"github.com/phobologic/railscope/internal/lang"
	"github.com/phobologic/railscope/internal/model"
)

// TopLevelName names the helper that collects methods defined outside any
// module. Ruby makes such methods private instance methods of Object.
const TopLevelName = "Object"

// Options controls which Rails idioms the classifier recognises.
type Options struct {
	ParamSources    []string
	HeaderSources   []string
	ExceptionBases  []string
	ConcernMarker   string
	Hooks           []string
	CustomHooks     []string
	IgnoredMacros   []string
	IgnoredIncludes []string
}

// DefaultOptions returns the options matching a stock Rails application.
func DefaultOptions() Options {
	return Options{
		ParamSources:   analyze.DefaultParamSources,
		HeaderSources:  analyze.DefaultHeaderSources,
		ExceptionBases: []string{"StandardError", "Exception"},
		ConcernMarker:  "ActiveSupport::Concern",
		Hooks: []string{
			string(model.BeforeAction),
			string(model.AroundAction),
			string(model.RescueFrom),
		},
		CustomHooks: []string{"after_action", "prepend_before_action", "append_before_action"},
		IgnoredMacros: []string{
			"skip_before_action",
			"skip_around_action",
			"skip_after_action",
			"skip_auth_methods",
		},
		IgnoredIncludes: []string{
			"ActionController::MimeResponds",
			"Rails.application.routes.url_helpers",
		},
	}
}

var (
	visibilityCalls = model.NewStringSet("private", "protected", "public", "module_function", "private_class_method")
	requireCalls    = model.NewStringSet("require", "require_relative", "require_dependency")
)

// Classifier is safe for concurrent use.
type Classifier struct {
	opts            Options
	exceptionBases  model.StringSet
	hooks           model.StringSet
	customHooks     model.StringSet
	ignoredMacros   model.StringSet
	ignoredIncludes model.StringSet
}

// New creates a Classifier.
func New(opts Options) *Classifier {
	return &Classifier{
		opts:            opts,
		exceptionBases:  model.NewStringSet(opts.ExceptionBases...),
		hooks:           model.NewStringSet(opts.Hooks...),
		customHooks:     model.NewStringSet(opts.CustomHooks...),
		ignoredMacros:   model.NewStringSet(opts.IgnoredMacros...),
		ignoredIncludes: model.NewStringSet(opts.IgnoredIncludes...),
	}
}

// unit is a pending statement list together with its enclosing module path.
type unit struct {
	stmts  []*sitter.Node
	prefix string
}

type fileClassifier struct {
	*Classifier
	source   []byte
	analyzer *analyze.Analyzer
	decls    []model.Declaration
}

// Classify walks the tree rooted at root breadth-first and returns the
// declarations it defines. An empty file yields no declarations. The
// returned error is a *Error.
func (c *Classifier) Classify(root *sitter.Node, source []byte) ([]model.Declaration, error) {
	if root == nil {
		return nil, nil
	}
	if root.HasError() {
		return nil, newError(UnknownSyntax, firstError(root), source)
	}

	fc := &fileClassifier{
		Classifier: c,
		source:     source,
		analyzer: analyze.New(source,
			analyze.WithParamSources(c.opts.ParamSources...),
			analyze.WithHeaderSources(c.opts.HeaderSources...),
		),
	}

	queue := []unit{{stmts: lang.Statements(root)}}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		next, err := fc.classifyUnit(u)
		if err != nil {
			return nil, err
		}
		queue = append(queue, next...)
	}
	return fc.decls, nil
}

// classifyUnit handles one module body (or the file itself) and returns the
// nested module bodies still to visit.
func (fc *fileClassifier) classifyUnit(u unit) ([]unit, error) {
	concern, err := fc.isConcern(u.stmts)
	if err != nil {
		return nil, err
	}

	var (
		next    []unit
		methods []model.MethodProfile
		hooks   []model.ActionHook
	)
	for _, stmt := range u.stmts {
		switch stmt.Type() {
		case "module":
			name := lang.RubyClassName(stmt, fc.source)
			next = append(next, unit{
				stmts:  lang.Statements(lang.RubyBody(stmt)),
				prefix: model.Qualify(u.prefix, name),
			})
		case "class":
			decls, err := fc.classifyClass(stmt, u.prefix)
			if err != nil {
				return nil, err
			}
			fc.decls = append(fc.decls, decls...)
		case "method", "singleton_method":
			methods = append(methods, fc.profile(stmt))
		case "assignment":
			if !isConstantAssignment(stmt) {
				return nil, newError(UnknownSyntax, stmt, fc.source)
			}
		case "identifier":
			if !fc.bareMacro(lang.NodeText(stmt, fc.source)) {
				return nil, newError(UnknownSyntax, stmt, fc.source)
			}
		case "call":
			call := lang.RubyCall(stmt, fc.source)
			switch {
			case call.Receiver != nil:
				return nil, newError(UnknownSyntax, stmt, fc.source)
			case call.Method == "extend":
				// validated by isConcern
			case call.Method == "included" && call.Block != nil:
				if concern {
					hooks = append(hooks, fc.blockHooks(call.Block)...)
				}
			case visibilityCalls.Has(call.Method):
				methods = append(methods, fc.visibilityDefs(call)...)
			case call.Method == "include",
				requireCalls.Has(call.Method),
				fc.ignoredMacros.Has(call.Method):
			default:
				return nil, newError(UnknownSyntax, stmt, fc.source)
			}
		default:
			return nil, newError(UnknownSyntax, stmt, fc.source)
		}
	}

	switch {
	case concern:
		fc.decls = append(fc.decls, &model.Concern{
			Name:        u.prefix,
			Methods:     methods,
			ActionHooks: hooks,
		})
	case len(methods) > 0:
		name := u.prefix
		if name == "" {
			name = TopLevelName
		}
		fc.decls = append(fc.decls, &model.HelperModule{Name: name, Methods: methods})
	}
	return next, nil
}

// isConcern looks for `extend <ConcernMarker>` anywhere in the statement
// list, so defs before the marker still belong to the concern.
func (fc *fileClassifier) isConcern(stmts []*sitter.Node) (bool, error) {
	concern := false
	for _, stmt := range stmts {
		if stmt.Type() != "call" {
			continue
		}
		call := lang.RubyCall(stmt, fc.source)
		if call.Receiver != nil || call.Method != "extend" {
			continue
		}
		for _, arg := range call.Arguments {
			if analyze.Render(arg, fc.source) != fc.opts.ConcernMarker {
				return false, newError(UnsupportedExtend, stmt, fc.source)
			}
			concern = true
		}
	}
	return concern, nil
}

// bareMacro reports whether an argument-less identifier statement is a
// visibility keyword or a configured ignorable macro.
func (fc *fileClassifier) bareMacro(name string) bool {
	return visibilityCalls.Has(name) || fc.ignoredMacros.Has(name)
}

func (fc *fileClassifier) classifyClass(node *sitter.Node, prefix string) ([]model.Declaration, error) {
	name := lang.RubyClassName(node, fc.source)
	parent := strings.TrimPrefix(lang.RubySuperclass(node, fc.source), "::")
	if parent == "" {
		return nil, newError(NoAncestor, node, fc.source)
	}
	if fc.exceptionBases.Has(parent) {
		return nil, nil
	}

	ctrl := &model.Controller{Name: name, Parent: parent, Module: prefix}
	decls := []model.Declaration{ctrl}
	for _, stmt := range lang.Statements(lang.RubyBody(node)) {
		switch stmt.Type() {
		case "method", "singleton_method":
			ctrl.Methods = append(ctrl.Methods, fc.profile(stmt))
		case "assignment":
			if !isConstantAssignment(stmt) {
				return nil, newError(Unexpected, stmt, fc.source)
			}
		case "identifier":
			if !fc.bareMacro(lang.NodeText(stmt, fc.source)) {
				return nil, newError(Unexpected, stmt, fc.source)
			}
		case "class":
			nested, err := fc.classifyClass(stmt, ctrl.QualifiedName())
			if err != nil {
				return nil, err
			}
			decls = append(decls, nested...)
		case "call":
			call := lang.RubyCall(stmt, fc.source)
			switch {
			case call.Receiver != nil:
				return nil, newError(Unexpected, stmt, fc.source)
			case fc.hooks.Has(call.Method), fc.customHooks.Has(call.Method):
				ctrl.ActionHooks = append(ctrl.ActionHooks, fc.hookTargets(call)...)
			case call.Method == "include":
				ctrl.Includes = append(ctrl.Includes, fc.includes(call)...)
			case visibilityCalls.Has(call.Method):
				ctrl.Methods = append(ctrl.Methods, fc.visibilityDefs(call)...)
			case requireCalls.Has(call.Method), fc.ignoredMacros.Has(call.Method):
			default:
				return nil, newError(Unexpected, stmt, fc.source)
			}
		default:
			return nil, newError(Unexpected, stmt, fc.source)
		}
	}
	return decls, nil
}

func (fc *fileClassifier) profile(def *sitter.Node) model.MethodProfile {
	return *fc.analyzer.Analyze(
		lang.RubyBody(def),
		lang.RubyMethodName(def, fc.source),
		lang.RubyMethodArgs(def, fc.source),
	)
}

// visibilityDefs profiles `private def foo ... end`.
func (fc *fileClassifier) visibilityDefs(call lang.Call) []model.MethodProfile {
	var out []model.MethodProfile
	for _, arg := range call.Arguments {
		if arg.Type() == "method" || arg.Type() == "singleton_method" {
			out = append(out, fc.profile(arg))
		}
	}
	return out
}

// hookTargets returns one hook per symbol argument. rescue_from names its
// handler through the with: option instead.
func (fc *fileClassifier) hookTargets(call lang.Call) []model.ActionHook {
	kind := model.Custom(call.Method)
	var hooks []model.ActionHook
	for _, arg := range call.Arguments {
		switch arg.Type() {
		case "simple_symbol", "string":
			if kind == model.RescueFrom {
				continue
			}
			if target := analyze.Render(arg, fc.source); target != analyze.Unknown {
				hooks = append(hooks, model.ActionHook{Kind: kind, Target: target})
			}
		case "pair":
			if kind != model.RescueFrom {
				continue
			}
			key := analyze.Render(arg.ChildByFieldName("key"), fc.source)
			value := arg.ChildByFieldName("value")
			if key != "with" || value == nil || value.Type() != "simple_symbol" {
				continue
			}
			hooks = append(hooks, model.ActionHook{Kind: kind, Target: analyze.Render(value, fc.source)})
		}
	}
	return hooks
}

// blockHooks collects the hook registrations inside an `included do` block.
func (fc *fileClassifier) blockHooks(block *sitter.Node) []model.ActionHook {
	var hooks []model.ActionHook
	for _, stmt := range lang.Statements(block) {
		if stmt.Type() != "call" {
			continue
		}
		call := lang.RubyCall(stmt, fc.source)
		if call.Receiver == nil && (fc.hooks.Has(call.Method) || fc.customHooks.Has(call.Method)) {
			hooks = append(hooks, fc.hookTargets(call)...)
		}
	}
	return hooks
}

func (fc *fileClassifier) includes(call lang.Call) []string {
	var names []string
	for _, arg := range call.Arguments {
		name := lang.CollapseWhitespace(lang.NodeText(arg, fc.source))
		if fc.ignoredIncludes.Has(name) {
			continue
		}
		names = append(names, strings.TrimPrefix(name, "::"))
	}
	return names
}

func isConstantAssignment(n *sitter.Node) bool {
	left := n.ChildByFieldName("left")
	return left != nil && slices.Contains([]string{"constant", "scope_resolution"}, left.Type())
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstError(child)
		}
	}
	return n
}

// Reason classifies a classification failure.
type Reason string

const (
	NoAncestor        Reason = "class has no superclass"
	Unexpected        Reason = "unexpected construct in class body"
	UnsupportedExtend Reason = "unsupported mixin extension"
	UnknownSyntax     Reason = "unknown syntax"
)

const maxFragment = 80

// Error reports why a file could not be classified.
type Error struct {
	File     string
	Line     int
	Reason   Reason
	Fragment string
}

func newError(reason Reason, node *sitter.Node, source []byte) *Error {
	fragment := lang.CollapseWhitespace(lang.NodeText(node, source))
	if runes := []rune(fragment); len(runes) > maxFragment {
		fragment = string(runes[:maxFragment]) + "..."
	}
	return &Error{Line: lang.Line(node), Reason: reason, Fragment: fragment}
}

func (e *Error) Error() string {
	loc := e.File
	if loc == "" {
		loc = "<source>"
	}
	return fmt.Sprintf("%s:%d: %s: %s", loc, e.Line, e.Reason, e.Fragment)
}
