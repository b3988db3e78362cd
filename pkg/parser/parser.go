package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser wraps tree-sitter for Python parsing.
// A Parser is not safe for concurrent use; create one per worker.
type Parser struct {
	parser *sitter.Parser
}

// ParseResult contains the parsed tree and the exact source it was built from.
type ParseResult struct {
	Tree   *sitter.Tree
	Source []byte
	Lines  *LineIndex
}

// New creates a new parser instance.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Parse parses UTF-8 source. A syntactically invalid file yields a *ParseError
// carrying the position of the first error node.
func (p *Parser) Parse(ctx context.Context, source []byte) (*ParseResult, error) {
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	result := &ParseResult{
		Tree:   tree,
		Source: source,
		Lines:  NewLineIndex(source),
	}

	if root := tree.RootNode(); root.HasError() {
		node := firstError(root)
		if node == nil {
			node = root
		}
		msg := "invalid syntax"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %q", node.Type())
		} else if text := NodeText(node, source); text != "" {
			msg = fmt.Sprintf("invalid syntax near %q", truncate(text, 20))
		}
		return nil, &ParseError{
			Pos: result.Lines.Position(int(node.StartByte())),
			Msg: msg,
		}
	}

	return result, nil
}

// Root returns the module node.
func (r *ParseResult) Root() *sitter.Node {
	return r.Tree.RootNode()
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}

// firstError returns the first ERROR or missing node in document order.
func firstError(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := range int(node.ChildCount()) {
		if found := firstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// IsPythonFile reports whether path names a Python source file.
func IsPythonFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyi", ".pyw":
		return true
	default:
		return false
	}
}

// TypedNodeVisitor visits tree nodes with pre-cached node type to avoid CGO overhead.
type TypedNodeVisitor func(node *sitter.Node, nodeType string, source []byte) bool

// WalkTyped traverses the tree with cached node types to reduce CGO overhead.
func WalkTyped(node *sitter.Node, source []byte, visitor TypedNodeVisitor) {
	if node == nil {
		return
	}

	nodeType := node.Type()
	if !visitor(node, nodeType, source) {
		return
	}

	for i := range int(node.ChildCount()) {
		WalkTyped(node.Child(i), source, visitor)
	}
}

// NamedChildren returns the named children of node, comments included.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	children := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := range int(node.NamedChildCount()) {
		children = append(children, node.NamedChild(i))
	}
	return children
}

// NodeText extracts the source text for a node.
// Returns empty string if node is nil or byte offsets are out of bounds.
func NodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

func truncate(s string, maxLen int) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
