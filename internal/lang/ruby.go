package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

func init() {
	Languages["ruby"] = &Language{
		Name:       "ruby",
		Extensions: []string{".rb"},
		lang:       ruby.GetLanguage(),
	}
	// Jbuilder templates are plain Ruby.
	Languages["jbuilder"] = &Language{
		Name:       "jbuilder",
		Extensions: []string{".jbuilder"},
		lang:       ruby.GetLanguage(),
	}
}

// Statements returns the statement nodes directly under a program, module or
// class body, do/brace block or begin block. Nested body_statement wrappers
// are flattened; comments and block parameters are dropped.
func Statements(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "comment", "empty_statement", "block_parameters", "heredoc_body":
			continue
		case "body_statement", "block_body":
			out = append(out, Statements(child)...)
		default:
			out = append(out, child)
		}
	}
	return out
}

// RubyBody returns the body_statement of a class, module or method node, or
// nil when the body is empty.
func RubyBody(node *sitter.Node) *sitter.Node {
	if body := node.ChildByFieldName("body"); body != nil {
		return body
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "body_statement" {
			return child
		}
	}
	return nil
}

// RubyClassName extracts the name from a class or module node.
func RubyClassName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return NodeText(name, source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "constant" || child.Type() == "scope_resolution" {
			return NodeText(child, source)
		}
	}
	return ""
}

// RubySuperclass returns the superclass expression of a class node as
// written, or "" when the class has none.
func RubySuperclass(node *sitter.Node, source []byte) string {
	sc := node.ChildByFieldName("superclass")
	if sc == nil {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if child := node.NamedChild(i); child.Type() == "superclass" {
				sc = child
				break
			}
		}
	}
	if sc == nil || sc.NamedChildCount() == 0 {
		return ""
	}
	return CollapseWhitespace(NodeText(sc.NamedChild(0), source))
}

// RubyMethodName returns the name of a method or singleton_method node
// (for def self.foo, "foo").
func RubyMethodName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return NodeText(name, source)
	}
	var methodName string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "identifier" {
			methodName = NodeText(child, source)
		}
	}
	return methodName
}

// RubyMethodArgs returns the declared parameter names of a method node in
// declaration order.
func RubyMethodArgs(node *sitter.Node, source []byte) []string {
	params := node.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	return ParameterNames(params, source)
}

// ParameterNames lists the names bound by a method_parameters,
// block_parameters or lambda_parameters node.
func ParameterNames(params *sitter.Node, source []byte) []string {
	var args []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		switch child.Type() {
		case "identifier":
			args = append(args, NodeText(child, source))
		case "comment":
		case "destructured_parameter":
			args = append(args, ParameterNames(child, source)...)
		default:
			if name := child.ChildByFieldName("name"); name != nil {
				args = append(args, NodeText(name, source))
			} else {
				args = append(args, NodeText(child, source))
			}
		}
	}
	return args
}

// Call holds the parts of a tree-sitter call node. Any part may be nil.
type Call struct {
	Receiver  *sitter.Node
	Method    string
	Arguments []*sitter.Node
	Block     *sitter.Node
}

// RubyCall splits a call node into receiver, method name, argument nodes
// and block.
func RubyCall(node *sitter.Node, source []byte) Call {
	c := Call{
		Receiver: node.ChildByFieldName("receiver"),
		Block:    node.ChildByFieldName("block"),
	}
	if m := node.ChildByFieldName("method"); m != nil {
		c.Method = NodeText(m, source)
	}
	if args := node.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			if arg := args.NamedChild(i); arg.Type() != "comment" {
				c.Arguments = append(c.Arguments, arg)
			}
		}
	}
	return c
}
