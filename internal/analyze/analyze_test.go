package analyze

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/railscope/internal/lang"
	"github.com/phobologic/railscope/internal/model"
)

// analyzeSource parses src, finds its first method definition and profiles it.
func analyzeSource(t *testing.T, src string, opts ...Option) *model.MethodProfile {
	t.Helper()
	source := []byte(src)
	parser := lang.Languages["ruby"].NewParser()
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	require.NoError(t, err)
	t.Cleanup(tree.Close)

	method := firstMethod(tree.RootNode())
	require.NotNil(t, method, "no method in %q", src)
	return New(source, opts...).Analyze(
		lang.RubyBody(method),
		lang.RubyMethodName(method, source),
		lang.RubyMethodArgs(method, source),
	)
}

// analyzeBody profiles body as the body of `def action`.
func analyzeBody(t *testing.T, body string, opts ...Option) *model.MethodProfile {
	t.Helper()
	return analyzeSource(t, "def action\n"+body+"\nend\n", opts...)
}

func firstMethod(n *sitter.Node) *sitter.Node {
	if n.Type() == "method" || n.Type() == "singleton_method" {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if m := firstMethod(n.NamedChild(i)); m != nil {
			return m
		}
	}
	return nil
}

func callNames(p *model.MethodProfile) []string {
	var names []string
	for _, c := range p.MethodCalls {
		names = append(names, c.Name)
	}
	return names
}

func TestParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{"symbol key", "params[:id]", []string{"id"}},
		{"string key", "params['dogs']", []string{"dogs"}},
		{"multiple keys", "params['dogs', 'pizza']", []string{"dogs", "pizza"}},
		{"nested", "params['cat']['dogs']", []string{"cat:dogs"}},
		{"nested three levels", "params[:a][:b][:c]", []string{"a:b:c"}},
		{"require", "params.require(:k)", []string{"k"}},
		{"permit", "params.permit(:k)", []string{"k"}},
		{"require then permit", "params.require(:a).permit(:b)", []string{"a", "b"}},
		{"permit then require", "params.permit(:a).require(:b)", nil},
		{"permit array value", "params.permit(:a => [])", []string{"a[]"}},
		{"permit hash value", "params.permit(:a => {})", []string{"a{}"}},
		{"permit mixed", "params.permit(:c, :a => [], :b => {})", []string{"a[]", "b{}", "c"}},
		{"permit keyword style", "params.permit(tags: [], meta: {})", []string{"meta{}", "tags[]"}},
		{"permit array literal", "params.permit([:x, :y])", []string{"x", "y"}},
		{"receiver params", "self.params[:id]", []string{"id"}},
		{"in call argument", "User.find(params[:id])", []string{"id"}},
		{"in condition", "if params[:q]\n  search\nend", []string{"q"}},
		{"in assignment", "@user = User.new(params.require(:user).permit(:name))", []string{"name", "user"}},
		{"in block", "items.each do |i|\n  i.update(params[:value])\nend", []string{"value"}},
		{"in hash value", "redirect_to root_path(page: params[:page])", []string{"page"}},
		{"no access", "render json: {}", nil},
		{"computed key", "params[prefix + 'id']", nil},
		{"interpolated key", `params["#{field}_id"]`, nil},
		{"computed nested key", "params[:a][k + 1]", nil},
		{"nested multiple keys", "params['a', 'b']['c']", []string{"a:c", "b:c"}},
		{"or assign", "params[:a] ||= 1", []string{"a"}},
		{"op assign", "params[:a] += 1", []string{"a"}},
		{"or assign nested", "params[:a][:b] ||= {}", []string{"a:b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := analyzeBody(t, tt.body)
			assert.ElementsMatch(t, tt.want, p.Params.Sorted())
		})
	}
}

func TestParamsCompoundAssignmentRecordsNoBagCall(t *testing.T) {
	t.Parallel()
	p := analyzeBody(t, "params[:page] ||= 1\nparams[:count] -= 1")
	assert.Equal(t, []string{"count", "page"}, p.Params.Sorted())
	assert.NotContains(t, callNames(p), "params")
}

func TestParamsCustomSource(t *testing.T) {
	t.Parallel()
	p := analyzeBody(t, "query[:term]\nparams[:ignored]", WithParamSources("query"))
	assert.Equal(t, []string{"term"}, p.Params.Sorted())
}

func TestInvalidChainRecordsNoCalls(t *testing.T) {
	t.Parallel()
	p := analyzeBody(t, "params.permit(:a).require(:b)")
	assert.Empty(t, p.Params)
	assert.Empty(t, p.MethodCalls)
}

func TestDynamicKeyIsAnalyzed(t *testing.T) {
	t.Parallel()
	p := analyzeBody(t, "params[current_key + '_id']")
	assert.Empty(t, p.Params)
	assert.Contains(t, callNames(p), "current_key")
}

func TestHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []model.Header
	}{
		{
			name: "read",
			body: "headers['X-Token']",
			want: []model.Header{{Key: "X-Token"}},
		},
		{
			name: "request headers",
			body: "request.headers['Authorization']",
			want: []model.Header{{Key: "Authorization"}},
		},
		{
			name: "assign integer",
			body: "headers['Retry-After'] = 20",
			want: []model.Header{{Key: "Retry-After", Value: "20"}},
		},
		{
			name: "assign string",
			body: "response.headers['Cache-Control'] = 'no-store'",
			want: []model.Header{{Key: "Cache-Control", Value: "no-store"}},
		},
		{
			name: "symbol key",
			body: "headers[:accept]",
			want: []model.Header{{Key: "accept"}},
		},
		{
			name: "ordered",
			body: "headers['A']\nheaders['B'] = 'x'",
			want: []model.Header{{Key: "A"}, {Key: "B", Value: "x"}},
		},
		{
			name: "operator assignment",
			body: "headers['Vary'] ||= 'Accept'",
			want: []model.Header{{Key: "Vary"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := analyzeBody(t, tt.body, WithHeaderSources("headers"))
			assert.Equal(t, tt.want, p.Headers)
		})
	}
}

func TestHeaderAssignmentValueIsAnalyzed(t *testing.T) {
	t.Parallel()
	p := analyzeBody(t, "headers['X-Id'] = params[:id]")
	require.Len(t, p.Headers, 1)
	assert.Equal(t, "X-Id", p.Headers[0].Key)
	assert.Equal(t, "params[id]", p.Headers[0].Value)
	assert.Equal(t, []string{"id"}, p.Params.Sorted())
}

func TestInstanceVariables(t *testing.T) {
	t.Parallel()
	p := analyzeBody(t, "@user = User.find(1)\n@count ||= 0\n@user.save")
	assert.ElementsMatch(t, []string{"@count", "@user"}, p.InstanceVariables.Sorted())
}

func TestLocalVariableReads(t *testing.T) {
	t.Parallel()

	p := analyzeBody(t, "a = 1\nb\nc = 2\nputs c")
	assert.Equal(t, map[string]int{"a": 0, "c": 1}, p.LocalVariableReads)
	assert.NotContains(t, p.LocalVariableReads, "b")
}

func TestLocalVariableReadsCountEachUse(t *testing.T) {
	t.Parallel()

	p := analyzeBody(t, "total = 0\ntotal += 1\nlog(total, total)")
	assert.Equal(t, 2, p.LocalVariableReads["total"])
}

func TestMethodArgsAreNotCalls(t *testing.T) {
	t.Parallel()

	p := analyzeSource(t, "def show(id)\n  find(id)\nend\n")
	assert.Equal(t, "show", p.Name)
	assert.Equal(t, []string{"id"}, p.Args)
	assert.Equal(t, []string{"find"}, callNames(p))
}

func TestBlockParamsAreNotCalls(t *testing.T) {
	t.Parallel()

	p := analyzeBody(t, "list.map { |x| x.name }")
	assert.NotContains(t, callNames(p), "x")
	assert.Contains(t, callNames(p), "name")
	assert.Contains(t, callNames(p), "list")
}

func TestMethodCalls(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want model.MethodCall
	}{
		{"command with identifier", "process_jwt cookie", model.MethodCall{Name: "process_jwt", Args: []string{"cookie"}}},
		{"symbol argument", "authorize! :read", model.MethodCall{Name: "authorize!", Args: []string{"read"}}},
		{"keyword argument", "render json: @user", model.MethodCall{Name: "render", Args: []string{"json=>@user"}}},
		{"bare identifier", "authenticate", model.MethodCall{Name: "authenticate"}},
		{"scoped receiver", "Rails.logger.info 'x'", model.MethodCall{Name: "info", Args: []string{"x"}}},
		{"interpolated string", `notify "hi #{name}"`, model.MethodCall{Name: "notify", Args: []string{Unknown}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := analyzeBody(t, tt.body)
			require.NotEmpty(t, p.MethodCalls)
			assert.Equal(t, tt.want, p.MethodCalls[0])
		})
	}
}

func TestCallArgumentsAreAnalyzed(t *testing.T) {
	t.Parallel()

	p := analyzeBody(t, "process_jwt cookie")
	assert.Equal(t, []string{"process_jwt", "cookie"}, callNames(p))
}

func TestAttributeAssignmentIsACall(t *testing.T) {
	t.Parallel()

	p := analyzeBody(t, "current_user.name = 'x'")
	assert.Contains(t, callNames(p), "name=")
	assert.Contains(t, callNames(p), "current_user")
}

func TestEmptyBody(t *testing.T) {
	t.Parallel()

	p := New(nil).Analyze(nil, "noop", nil)
	assert.Equal(t, "noop", p.Name)
	assert.Empty(t, p.Params)
	assert.Empty(t, p.MethodCalls)
	assert.Empty(t, p.LocalVariableReads)
}

func TestReadBeforeAssignmentIsACall(t *testing.T) {
	t.Parallel()

	p := analyzeBody(t, "x\nx = 1")
	assert.Equal(t, []string{"x"}, callNames(p))
	assert.Equal(t, map[string]int{"x": 0}, p.LocalVariableReads)
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want string
	}{
		{":sym", "sym"},
		{"'str'", "str"},
		{"42", "42"},
		{"1.5", "1.5"},
		{"true", "true"},
		{"nil", "nil"},
		{"Foo", "Foo"},
		{"Foo::Bar", "Foo::Bar"},
		{"[1, :a]", "[1,a]"},
		{"[]", "[]"},
		{"{ a: 1 }", "{a=>1}"},
		{"{}", "{}"},
		{"a || 'b'", "a or b"},
		{"x + 1", Unknown},
		{`"#{x}"`, Unknown},
		{"obj[:k]", "obj[k]"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			source := []byte(tt.expr)
			parser := lang.Languages["ruby"].NewParser()
			tree, err := parser.ParseCtx(context.Background(), nil, source)
			require.NoError(t, err)
			defer tree.Close()

			stmts := lang.Statements(tree.RootNode())
			require.Len(t, stmts, 1)
			assert.Equal(t, tt.want, Render(stmts[0], source))
		})
	}
}
