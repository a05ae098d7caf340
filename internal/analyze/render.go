package analyze

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/lang"
)

// Unknown is the rendering of any node without a stable literal form.
const Unknown = "unknown"

// Render canonicalises a literal-like node to the textual form used for
// parameter keys, header values and call argument snapshots.
func Render(node *sitter.Node, source []byte) string {
	if node == nil {
		return Unknown
	}
	switch node.Type() {
	case "identifier", "constant", "instance_variable", "integer", "float",
		"hash_key_symbol", "class_variable", "global_variable":
		return lang.NodeText(node, source)
	case "simple_symbol":
		return strings.TrimPrefix(lang.NodeText(node, source), ":")
	case "string", "delimited_symbol":
		if s, ok := stringValue(node, source); ok {
			return s
		}
		return Unknown
	case "true", "false", "nil":
		return node.Type()
	case "scope_resolution":
		name := node.ChildByFieldName("name")
		if name == nil {
			return Unknown
		}
		scope := node.ChildByFieldName("scope")
		if scope == nil {
			return "::" + lang.NodeText(name, source)
		}
		return Render(scope, source) + "::" + lang.NodeText(name, source)
	case "call":
		call := lang.RubyCall(node, source)
		if call.Receiver == nil && len(call.Arguments) == 0 && call.Method != "" {
			return call.Method
		}
		return Unknown
	case "array":
		return "[" + renderList(namedChildren(node), source) + "]"
	case "hash":
		return "{" + renderList(namedChildren(node), source) + "}"
	case "pair":
		return Render(node.ChildByFieldName("key"), source) + "=>" + Render(node.ChildByFieldName("value"), source)
	case "argument_list":
		return renderList(namedChildren(node), source)
	case "binary":
		op := node.ChildByFieldName("operator")
		if op == nil || (op.Type() != "||" && op.Type() != "or") {
			return Unknown
		}
		return Render(node.ChildByFieldName("left"), source) + " or " + Render(node.ChildByFieldName("right"), source)
	case "element_reference":
		obj, keys := elementParts(node)
		return Render(obj, source) + "[" + renderList(keys, source) + "]"
	}
	return Unknown
}

// RenderArgs renders each argument of a call.
func RenderArgs(args []*sitter.Node, source []byte) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = Render(arg, source)
	}
	return out
}

func renderList(nodes []*sitter.Node, source []byte) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = Render(n, source)
	}
	return strings.Join(parts, ",")
}

// stringValue returns the literal content of a string or delimited symbol.
// Interpolated strings have no literal value.
func stringValue(node *sitter.Node, source []byte) (string, bool) {
	var b strings.Builder
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "string_content", "escape_sequence":
			b.WriteString(lang.NodeText(child, source))
		default:
			return "", false
		}
	}
	return b.String(), true
}

// isKeyLiteral reports whether node is a string or symbol whose rendering
// can serve as a header or permit key.
func isKeyLiteral(node *sitter.Node) bool {
	switch node.Type() {
	case "simple_symbol", "string", "delimited_symbol", "hash_key_symbol":
		return true
	}
	return false
}

func namedChildren(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child.Type() != "comment" {
			out = append(out, child)
		}
	}
	return out
}

// elementParts splits an element_reference into its object and index keys.
func elementParts(node *sitter.Node) (*sitter.Node, []*sitter.Node) {
	children := namedChildren(node)
	if len(children) == 0 {
		return nil, nil
	}
	return children[0], children[1:]
}
