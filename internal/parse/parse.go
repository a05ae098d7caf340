// Package parse turns Ruby source files into declarations using tree-sitter.
package parse

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/railscope/internal/classify"
	"github.com/phobologic/railscope/internal/lang"
	"github.com/phobologic/railscope/internal/model"
)

// Parser parses and classifies files of one language.
// Each goroutine must use its own Parser (tree-sitter parsers are not thread-safe).
type Parser struct {
	lang       *lang.Language
	parser     *sitter.Parser
	classifier *classify.Classifier
}

// New creates a Parser for l. The classifier may be shared.
func New(l *lang.Language, classifier *classify.Classifier) *Parser {
	return &Parser{lang: l, parser: l.NewParser(), classifier: classifier}
}

// Language returns the language this parser was created for.
func (p *Parser) Language() *lang.Language { return p.lang }

// Tree parses source. The caller must Close the returned tree.
func (p *Parser) Tree(ctx context.Context, source []byte) (*sitter.Tree, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s source: %w", p.lang.Name, err)
	}
	return tree, nil
}

// File parses and classifies one file. filePath is used only for error
// reporting and should be the repo-relative path. An empty file yields no
// declarations and no error.
func (p *Parser) File(ctx context.Context, filePath string, source []byte) ([]model.Declaration, error) {
	if len(source) == 0 {
		return nil, nil
	}

	tree, err := p.Tree(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	defer tree.Close()

	decls, err := p.classifier.Classify(tree.RootNode(), source)
	if err != nil {
		var cerr *classify.Error
		if errors.As(err, &cerr) {
			cerr.File = filePath
			return nil, cerr
		}
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return decls, nil
}
