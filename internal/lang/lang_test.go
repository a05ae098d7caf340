package lang

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
)

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".rb", "ruby"},
		{".jbuilder", "jbuilder"},
		{".py", ""},
		{".erb", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			got := ForExtension(tt.ext)
			if got != tt.want {
				t.Errorf("ForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"ruby", "jbuilder"} {
		l, ok := Languages[name]
		if !ok {
			t.Fatalf("%s language not registered", name)
		}
		if l.GetLanguage() == nil {
			t.Errorf("%s language is nil", name)
		}
		if p := l.NewParser(); p == nil {
			t.Errorf("%s: NewParser returned nil", name)
		}
	}
}

func parseRuby(t *testing.T, src string) (*sitter.Node, []byte) {
	t.Helper()
	source := []byte(src)
	tree, err := Languages["ruby"].NewParser().ParseCtx(context.Background(), nil, source)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree.RootNode(), source
}

func TestClassHelpers(t *testing.T) {
	t.Parallel()

	root, source := parseRuby(t, `# users
class UsersController < Admin::BaseController
  # comment
  def show(id, format = :json, *rest, key:, &blk)
    id
  end

  def self.build; end
end
`)
	stmts := Statements(root)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	class := stmts[0]
	if got := RubyClassName(class, source); got != "UsersController" {
		t.Errorf("class name = %q", got)
	}
	if got := RubySuperclass(class, source); got != "Admin::BaseController" {
		t.Errorf("superclass = %q", got)
	}
	if got := Line(class); got != 2 {
		t.Errorf("line = %d, want 2", got)
	}

	body := Statements(RubyBody(class))
	if len(body) != 2 {
		t.Fatalf("expected 2 body statements, got %d", len(body))
	}
	if got := RubyMethodName(body[0], source); got != "show" {
		t.Errorf("method name = %q", got)
	}
	args := RubyMethodArgs(body[0], source)
	want := []string{"id", "format", "rest", "key", "blk"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
	if got := RubyMethodName(body[1], source); got != "build" {
		t.Errorf("singleton method name = %q, want build", got)
	}
}

func TestRubySuperclassMissing(t *testing.T) {
	t.Parallel()

	root, source := parseRuby(t, "class Plain\nend\n")
	if got := RubySuperclass(Statements(root)[0], source); got != "" {
		t.Errorf("superclass = %q, want empty", got)
	}
}

func TestRubyCall(t *testing.T) {
	t.Parallel()

	root, source := parseRuby(t, "items.each_slice(2, 3) do |a|\nend\n")
	call := RubyCall(Statements(root)[0], source)
	if call.Method != "each_slice" {
		t.Errorf("method = %q", call.Method)
	}
	if call.Receiver == nil || NodeText(call.Receiver, source) != "items" {
		t.Error("receiver should be items")
	}
	if len(call.Arguments) != 2 {
		t.Errorf("expected 2 arguments, got %d", len(call.Arguments))
	}
	if call.Block == nil || call.Block.Type() != "do_block" {
		t.Error("expected do_block")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	t.Parallel()

	if got := CollapseWhitespace("  a\n\t b  "); got != "a b" {
		t.Errorf("CollapseWhitespace = %q", got)
	}
}
