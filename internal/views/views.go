// Package views extracts response fields from jbuilder templates.
package views

import (
	"path"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/analyze"
	"github.com/phobologic/railscope/internal/lang"
	"github.com/phobologic/railscope/internal/model"
)

// OptionalMark prefixes fields that are only rendered conditionally.
const OptionalMark = "?"

// View is the response shape of one controller action.
type View struct {
	Controller string // controller path, e.g. "admin/users"
	Action     string
	Path       string
	Fields     []string
}

// Index maps controller path and action to a view.
type Index map[string]map[string]*View

// Add stores v, replacing any view for the same action.
func (ix Index) Add(v *View) {
	byAction, ok := ix[v.Controller]
	if !ok {
		byAction = make(map[string]*View)
		ix[v.Controller] = byAction
	}
	byAction[v.Action] = v
}

// Lookup returns the view rendered by controller#action.
func (ix Index) Lookup(controller, action string) (*View, bool) {
	v, ok := ix[controller][action]
	return v, ok
}

// Len returns the number of views.
func (ix Index) Len() int {
	n := 0
	for _, byAction := range ix {
		n += len(byAction)
	}
	return n
}

// Key derives the controller path and action a template renders for.
// rel is the template path and dir the views root, both relative to the
// application root: app/views/admin/users/show.json.jbuilder under
// app/views gives ("admin/users", "show"). Partials have no key.
func Key(dir, rel string) (controller, action string, ok bool) {
	r, err := filepath.Rel(dir, rel)
	if err != nil {
		return "", "", false
	}
	r = filepath.ToSlash(r)
	if strings.HasPrefix(r, "../") {
		return "", "", false
	}
	controller, base := path.Split(r)
	controller = strings.TrimSuffix(controller, "/")
	if controller == "" || strings.HasPrefix(base, "_") {
		return "", "", false
	}
	action = strings.TrimSuffix(base, path.Ext(base))
	action = strings.TrimSuffix(action, path.Ext(action))
	if action == "" {
		return "", "", false
	}
	return controller, action, true
}

// Fields returns the sorted response fields a jbuilder template renders.
// Nested objects are joined with dots and fields under a condition carry
// the OptionalMark.
func Fields(root *sitter.Node, source []byte) []string {
	e := &extractor{source: source, fields: model.NewStringSet()}
	e.walk(root, "", false)
	return e.fields.Sorted()
}

type extractor struct {
	source []byte
	fields model.StringSet
}

func (e *extractor) add(prefix, name string, optional bool) {
	if optional {
		name = OptionalMark + name
	}
	e.fields.Add(prefix + name)
}

func (e *extractor) walk(n *sitter.Node, prefix string, optional bool) {
	switch n.Type() {
	case "comment":
		return
	case "call":
		if e.jsonCall(n, prefix, optional) {
			return
		}
	case "if", "unless", "if_modifier", "unless_modifier", "conditional":
		cond := n.ChildByFieldName("condition")
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if cond != nil && child.StartByte() == cond.StartByte() && child.EndByte() == cond.EndByte() {
				continue
			}
			e.walk(child, prefix, true)
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.walk(n.NamedChild(i), prefix, optional)
	}
}

// jsonCall handles a call on the json builder and reports whether n was one.
func (e *extractor) jsonCall(n *sitter.Node, prefix string, optional bool) bool {
	call := lang.RubyCall(n, e.source)
	if call.Receiver == nil || call.Receiver.Type() != "identifier" || lang.NodeText(call.Receiver, e.source) != "json" {
		return false
	}

	switch call.Method {
	case "", "extract!":
		// json.(obj, :a, :b) and json.extract! obj, :a, :b
		e.keys(call.Arguments, 1, prefix, optional)
	case "set!":
		if len(call.Arguments) > 0 {
			if name, ok := e.key(call.Arguments[0]); ok {
				e.member(name, call, 2, prefix, optional)
			}
		}
	case "array!":
		e.keys(call.Arguments, 1, prefix, optional)
		e.block(call.Block, prefix, optional)
	default:
		if strings.HasSuffix(call.Method, "!") {
			// partial!, merge!, cache!, child! and friends add no key of
			// their own.
			e.block(call.Block, prefix, optional)
			return true
		}
		e.member(call.Method, call, 1, prefix, optional)
	}
	return true
}

// member records name, or its nested fields when it has a block or an
// attribute list.
func (e *extractor) member(name string, call lang.Call, attrsFrom int, prefix string, optional bool) {
	before := len(e.fields)
	nested := prefix + name + "."
	e.keys(call.Arguments, attrsFrom, nested, optional)
	e.block(call.Block, nested, optional)
	if len(e.fields) == before {
		e.add(prefix, name, optional)
	}
}

func (e *extractor) keys(args []*sitter.Node, from int, prefix string, optional bool) {
	for i := from; i < len(args); i++ {
		if name, ok := e.key(args[i]); ok {
			e.add(prefix, name, optional)
		}
	}
}

func (e *extractor) block(block *sitter.Node, prefix string, optional bool) {
	if block == nil {
		return
	}
	for _, stmt := range lang.Statements(block) {
		e.walk(stmt, prefix, optional)
	}
}

func (e *extractor) key(n *sitter.Node) (string, bool) {
	switch n.Type() {
	case "simple_symbol", "string", "delimited_symbol":
		if s := analyze.Render(n, e.source); s != analyze.Unknown && s != "" {
			return s, true
		}
	}
	return "", false
}
