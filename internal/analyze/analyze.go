// Package analyze profiles a single Ruby method body: the request parameters,
// headers, instance variables, local variable reads and outgoing calls it
// touches. It never executes code and never fails; unrecognised shapes are
// skipped.
package analyze

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/lang"
	"github.com/phobologic/railscope/internal/model"
)

// Default receiver names for the parameter and header bags.
var (
	DefaultParamSources  = []string{"params"}
	DefaultHeaderSources = []string{"headers"}
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithParamSources overrides the names recognised as the parameter bag.
func WithParamSources(names ...string) Option {
	return func(a *Analyzer) {
		if len(names) > 0 {
			a.paramSources = model.NewStringSet(names...)
		}
	}
}

// WithHeaderSources overrides the names recognised as the headers bag.
func WithHeaderSources(names ...string) Option {
	return func(a *Analyzer) {
		if len(names) > 0 {
			a.headerSources = model.NewStringSet(names...)
		}
	}
}

// Analyzer profiles method bodies of one source file.
// It holds no per-method state and is safe for concurrent use.
type Analyzer struct {
	source        []byte
	paramSources  model.StringSet
	headerSources model.StringSet
}

// New creates an Analyzer over source, the bytes the syntax tree was parsed from.
func New(source []byte, opts ...Option) *Analyzer {
	a := &Analyzer{
		source:        source,
		paramSources:  model.NewStringSet(DefaultParamSources...),
		headerSources: model.NewStringSet(DefaultHeaderSources...),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze walks body (a method's body_statement; nil for an empty method)
// and returns its profile.
func (a *Analyzer) Analyze(body *sitter.Node, name string, args []string) *model.MethodProfile {
	w := &walk{
		Analyzer: a,
		profile:  model.NewMethodProfile(name, args),
		scope:    newScope(body, a.source, args),
	}
	if body != nil {
		w.push(body)
	}
	w.run()
	return w.profile
}

// walk is the state of one Analyze call. The queue holds node handles into
// the immutable tree; nothing is copied.
type walk struct {
	*Analyzer
	profile *model.MethodProfile
	scope   *scope
	queue   []*sitter.Node
}

type rule func(w *walk, n *sitter.Node)

// rules names, per node kind, what to record and which children to enqueue.
// Kinds without a rule are leaves or deliberately ignored.
var rules = map[string]rule{
	// containers: every named child is analyzed
	"program":                  enqueueChildren,
	"body_statement":           enqueueChildren,
	"block_body":               enqueueChildren,
	"begin":                    enqueueChildren,
	"parenthesized_statements": enqueueChildren,
	"then":                     enqueueChildren,
	"else":                     enqueueChildren,
	"elsif":                    enqueueChildren,
	"if":                       enqueueChildren,
	"unless":                   enqueueChildren,
	"if_modifier":              enqueueChildren,
	"unless_modifier":          enqueueChildren,
	"conditional":              enqueueChildren,
	"while":                    enqueueChildren,
	"until":                    enqueueChildren,
	"while_modifier":           enqueueChildren,
	"until_modifier":           enqueueChildren,
	"do":                       enqueueChildren,
	"case":                     enqueueChildren,
	"case_match":               enqueueChildren,
	"when":                     enqueueChildren,
	"in_clause":                enqueueChildren,
	"pattern":                  enqueueChildren,
	"if_guard":                 enqueueChildren,
	"unless_guard":             enqueueChildren,
	"binary":                   enqueueChildren,
	"unary":                    enqueueChildren,
	"array":                    enqueueChildren,
	"hash":                     enqueueChildren,
	"argument_list":            enqueueChildren,
	"splat_argument":           enqueueChildren,
	"hash_splat_argument":      enqueueChildren,
	"block_argument":           enqueueChildren,
	"string":                   enqueueChildren,
	"interpolation":            enqueueChildren,
	"delimited_symbol":         enqueueChildren,
	"regex":                    enqueueChildren,
	"subshell":                 enqueueChildren,
	"heredoc_body":             enqueueChildren,
	"chained_string":           enqueueChildren,
	"rescue":                   enqueueChildren,
	"rescue_modifier":          enqueueChildren,
	"ensure":                   enqueueChildren,
	"exceptions":               enqueueChildren,
	"block":                    enqueueChildren,
	"do_block":                 enqueueChildren,
	"lambda":                   enqueueChildren,
	"return":                   enqueueChildren,
	"yield":                    enqueueChildren,
	"next":                     enqueueChildren,
	"break":                    enqueueChildren,
	"range":                    enqueueChildren,
	"right_assignment_list":    enqueueChildren,
	"array_pattern":            enqueueChildren,
	"hash_pattern":             enqueueChildren,
	"find_pattern":             enqueueChildren,
	"alternative_pattern":      enqueueChildren,

	// pairs: keys may be computed expressions, values often are
	"pair": visitPair,

	// loops bind their variable before evaluating the body
	"for": visitFor,
	"in":  enqueueChildren,

	// declarations: only default values are evaluated
	"method_parameters":   visitParameters,
	"block_parameters":    visitParameters,
	"lambda_parameters":   visitParameters,
	"optional_parameter":  visitDefault,
	"keyword_parameter":   visitDefault,
	"exception_variable":  visitExceptionVariable,
	"scope_resolution":    visitScope,
	"identifier":          visitIdentifier,
	"assignment":          visitAssignment,
	"operator_assignment": visitAssignment,
	"element_reference":   visitElementReference,
	"call":                visitCall,
}

func (w *walk) push(nodes ...*sitter.Node) {
	for _, n := range nodes {
		if n != nil {
			w.queue = append(w.queue, n)
		}
	}
}

func (w *walk) run() {
	for len(w.queue) > 0 {
		n := w.queue[0]
		w.queue = w.queue[1:]
		if r, ok := rules[n.Type()]; ok {
			r(w, n)
		}
	}
}

func enqueueChildren(w *walk, n *sitter.Node) {
	w.push(namedChildren(n)...)
}

func visitPair(w *walk, n *sitter.Node) {
	if key := n.ChildByFieldName("key"); key != nil && !isKeyLiteral(key) {
		w.push(key)
	}
	w.push(n.ChildByFieldName("value"))
}

func visitFor(w *walk, n *sitter.Node) {
	w.assignTarget(n.ChildByFieldName("pattern"))
	w.push(n.ChildByFieldName("value"), n.ChildByFieldName("body"))
}

func visitParameters(w *walk, n *sitter.Node) {
	for _, child := range namedChildren(n) {
		switch child.Type() {
		case "optional_parameter", "keyword_parameter":
			w.push(child)
		}
	}
}

func visitDefault(w *walk, n *sitter.Node) {
	w.push(n.ChildByFieldName("value"))
}

func visitExceptionVariable(w *walk, n *sitter.Node) {
	for _, child := range namedChildren(n) {
		w.assignTarget(child)
	}
}

func visitScope(w *walk, n *sitter.Node) {
	w.push(n.ChildByFieldName("scope"))
}

// visitIdentifier handles a bare name: a read of a known local, or a
// receiverless zero-argument call.
func visitIdentifier(w *walk, n *sitter.Node) {
	name := lang.NodeText(n, w.source)
	if w.scope.isLocal(name, n.StartByte()) {
		// Only re-reads of locals that already have an entry are counted.
		if count, ok := w.profile.LocalVariableReads[name]; ok {
			w.profile.LocalVariableReads[name] = count + 1
		}
		return
	}
	w.profile.MethodCalls = append(w.profile.MethodCalls, model.MethodCall{Name: name})
}

func visitAssignment(w *walk, n *sitter.Node) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")

	if left != nil && left.Type() == "element_reference" {
		obj, keys := elementParts(left)
		if w.isHeaderSource(obj) {
			value := ""
			if n.Type() == "assignment" {
				value = Render(right, w.source)
			}
			w.recordHeaders(keys, value)
			w.push(right)
			return
		}
		// ||= and += read the key before writing it.
		if n.Type() == "operator_assignment" && w.rootedAtParams(left) {
			w.push(left, right)
			return
		}
		w.push(obj)
		w.push(keys...)
		w.push(right)
		return
	}

	w.assignTarget(left)
	w.push(right)
}

// assignTarget records the effect of binding a value to target.
func (w *walk) assignTarget(target *sitter.Node) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		name := lang.NodeText(target, w.source)
		if _, ok := w.profile.LocalVariableReads[name]; !ok {
			w.profile.LocalVariableReads[name] = 0
		}
	case "instance_variable":
		w.profile.InstanceVariables.Add(lang.NodeText(target, w.source))
	case "left_assignment_list", "destructured_left_assignment", "rest_assignment":
		for _, child := range namedChildren(target) {
			w.assignTarget(child)
		}
	case "call":
		// obj.attr = value is a call to attr=.
		call := lang.RubyCall(target, w.source)
		if call.Method != "" {
			w.profile.MethodCalls = append(w.profile.MethodCalls, model.MethodCall{Name: call.Method + "="})
		}
		w.push(call.Receiver)
	case "element_reference":
		obj, keys := elementParts(target)
		w.push(obj)
		w.push(keys...)
	}
}

func (w *walk) recordHeaders(keys []*sitter.Node, value string) {
	for _, key := range keys {
		if !isKeyLiteral(key) {
			w.push(key)
			continue
		}
		k := Render(key, w.source)
		if k == Unknown {
			continue
		}
		w.profile.Headers = append(w.profile.Headers, model.Header{Key: k, Value: value})
	}
}

func visitCall(w *walk, n *sitter.Node) {
	if w.resolvePermitChain(n) {
		return
	}
	call := lang.RubyCall(n, w.source)
	name := call.Method
	if name == "" {
		// recv.() is shorthand for recv.call()
		name = "call"
	}
	w.profile.MethodCalls = append(w.profile.MethodCalls, model.MethodCall{
		Name: name,
		Args: RenderArgs(call.Arguments, w.source),
	})
	w.push(call.Receiver)
	w.push(call.Arguments...)
	w.push(call.Block)
}
