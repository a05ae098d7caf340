package analyze

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/lang"
)

// scope answers whether a bare identifier names a local variable. Ruby
// decides this lexically: a name is local if it is a parameter, or if an
// assignment to it appears earlier in the source.
type scope struct {
	declared    map[string]struct{}
	firstAssign map[string]uint32
}

func newScope(body *sitter.Node, source []byte, args []string) *scope {
	s := &scope{
		declared:    make(map[string]struct{}, len(args)),
		firstAssign: make(map[string]uint32),
	}
	for _, arg := range args {
		s.declared[arg] = struct{}{}
	}
	if body == nil {
		return s
	}

	stack := []*sitter.Node{body}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch n.Type() {
		case "method", "singleton_method", "class", "module":
			// new scope; its locals are not ours
			continue
		case "block_parameters", "lambda_parameters":
			for _, name := range lang.ParameterNames(n, source) {
				s.declared[name] = struct{}{}
			}
		case "assignment", "operator_assignment":
			s.bind(n.ChildByFieldName("left"), source)
		case "for":
			s.bind(n.ChildByFieldName("pattern"), source)
		case "exception_variable":
			for _, child := range namedChildren(n) {
				s.bind(child, source)
			}
		}

		for i := int(n.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.NamedChild(i))
		}
	}
	return s
}

func (s *scope) bind(target *sitter.Node, source []byte) {
	if target == nil {
		return
	}
	switch target.Type() {
	case "identifier":
		name := lang.NodeText(target, source)
		if pos, ok := s.firstAssign[name]; !ok || target.StartByte() < pos {
			s.firstAssign[name] = target.StartByte()
		}
	case "left_assignment_list", "destructured_left_assignment", "rest_assignment":
		for _, child := range namedChildren(target) {
			s.bind(child, source)
		}
	}
}

func (s *scope) isLocal(name string, at uint32) bool {
	if _, ok := s.declared[name]; ok {
		return true
	}
	pos, ok := s.firstAssign[name]
	return ok && pos < at
}
