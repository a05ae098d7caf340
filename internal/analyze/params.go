package analyze

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/lang"
)

// isParamSource reports whether n evaluates to the parameter bag: a bare
// `params`, or a zero-argument call named params on any receiver.
func (w *walk) isParamSource(n *sitter.Node) bool {
	return w.isBag(n, w.paramSources)
}

// isHeaderSource reports whether n evaluates to a headers bag such as
// `headers` or `request.headers`.
func (w *walk) isHeaderSource(n *sitter.Node) bool {
	return w.isBag(n, w.headerSources)
}

func (w *walk) isBag(n *sitter.Node, names map[string]struct{}) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "identifier":
		_, ok := names[lang.NodeText(n, w.source)]
		return ok
	case "call":
		call := lang.RubyCall(n, w.source)
		if len(call.Arguments) > 0 || call.Block != nil {
			return false
		}
		_, ok := names[call.Method]
		return ok
	}
	return false
}

func visitElementReference(w *walk, n *sitter.Node) {
	obj, keys := elementParts(n)

	switch {
	case w.isParamSource(obj):
		for _, key := range keys {
			w.recordParamKey(key)
		}
		return
	case w.isHeaderSource(obj):
		w.recordHeaders(keys, "")
		return
	case obj != nil && obj.Type() == "element_reference":
		if w.recordNestedParam(n) {
			return
		}
	}

	w.push(obj)
	w.push(keys...)
}

// recordParamKey records a single-level key, or analyzes the key expression
// when it has no literal form.
func (w *walk) recordParamKey(key *sitter.Node) {
	k := Render(key, w.source)
	if k == Unknown {
		w.push(key)
		return
	}
	w.profile.Params.Add(k)
}

// recordNestedParam handles params['a']['b']: keys are collected from the
// outermost index inward, then reversed and joined with ":" so the canonical
// key reads innermost first ("a:b"). A level with several keys yields one
// path per combination. It reports false when the chain is not rooted at the
// parameter bag.
func (w *walk) recordNestedParam(n *sitter.Node) bool {
	var levels [][]string
	var dynamic []*sitter.Node
	cur := n
	for cur != nil && cur.Type() == "element_reference" {
		obj, keys := elementParts(cur)
		if len(keys) == 0 {
			return false
		}
		level := make([]string, 0, len(keys))
		for _, key := range keys {
			k := Render(key, w.source)
			if k == Unknown {
				dynamic = append(dynamic, key)
				continue
			}
			level = append(level, k)
		}
		levels = append(levels, level)
		cur = obj
	}
	if !w.isParamSource(cur) {
		return false
	}
	slices.Reverse(levels)
	if len(dynamic) == 0 {
		for _, path := range keyPaths(levels) {
			w.profile.Params.Add(path)
		}
	}
	w.push(dynamic...)
	return true
}

// keyPaths joins one key from each level, for every combination.
func keyPaths(levels [][]string) []string {
	paths := []string{""}
	for i, level := range levels {
		next := make([]string, 0, len(paths)*len(level))
		for _, p := range paths {
			for _, k := range level {
				if i > 0 {
					k = p + ":" + k
				}
				next = append(next, k)
			}
		}
		paths = next
	}
	return paths
}

// rootedAtParams reports whether an index chain such as params[:a][:b]
// starts at the parameter bag.
func (w *walk) rootedAtParams(n *sitter.Node) bool {
	for n != nil && n.Type() == "element_reference" {
		n, _ = elementParts(n)
	}
	return w.isParamSource(n)
}

// resolvePermitChain recognises params.require(...), params.permit(...) and
// params.require(...).permit(...). It reports true when n is such a chain,
// whether or not it was valid; an invalid chain (require applied to the
// result of permit) contributes nothing.
func (w *walk) resolvePermitChain(n *sitter.Node) bool {
	var links []lang.Call // outermost first
	cur := n
	for cur != nil && cur.Type() == "call" {
		call := lang.RubyCall(cur, w.source)
		if call.Method != "require" && call.Method != "permit" {
			break
		}
		links = append(links, call)
		cur = call.Receiver
	}
	if len(links) == 0 || !w.isParamSource(cur) {
		return false
	}

	// Walking inward, a permit found after (inside) a require means the
	// require was applied to a permitted hash.
	sawRequire := false
	for _, link := range links {
		switch link.Method {
		case "require":
			sawRequire = true
		case "permit":
			if sawRequire {
				return true
			}
		}
	}

	for _, link := range links {
		for _, arg := range link.Arguments {
			if link.Method == "require" {
				w.requireKeys(arg)
			} else {
				w.permitKeys(arg)
			}
		}
	}
	return true
}

func (w *walk) requireKeys(arg *sitter.Node) {
	switch {
	case isKeyLiteral(arg):
		if k := Render(arg, w.source); k != Unknown {
			w.profile.Params.Add(k)
		}
	case arg.Type() == "array":
		for _, el := range namedChildren(arg) {
			w.requireKeys(el)
		}
	}
}

// permitKeys records the names a permit argument allows: `:a` → a,
// `a: []` → a[], `a: {}` → a{}, arrays flattened.
func (w *walk) permitKeys(arg *sitter.Node) {
	switch arg.Type() {
	case "simple_symbol", "string", "delimited_symbol":
		if k := Render(arg, w.source); k != Unknown {
			w.profile.Params.Add(k)
		}
	case "array", "hash":
		for _, el := range namedChildren(arg) {
			w.permitKeys(el)
		}
	case "pair":
		key := arg.ChildByFieldName("key")
		if key == nil || !isKeyLiteral(key) {
			return
		}
		k := Render(key, w.source)
		if k == Unknown {
			return
		}
		value := arg.ChildByFieldName("value")
		switch {
		case value != nil && value.Type() == "array" && len(namedChildren(value)) == 0:
			k += "[]"
		case value != nil && value.Type() == "hash" && len(namedChildren(value)) == 0:
			k += "{}"
		}
		w.profile.Params.Add(k)
	}
}
