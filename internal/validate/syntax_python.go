package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SilverTarget is the variable a silver artifact must assign.
const SilverTarget = "transform_sql_query_dict"

// Span is a half-open byte range in PythonModule.Source.
type Span struct {
	Start int
	End   int
}

// StatementKind classifies a top-level statement.
type StatementKind string

const (
	StatementComment    StatementKind = "comment"
	StatementAssignment StatementKind = "assignment"
	StatementExpression StatementKind = "expression"
	StatementOther      StatementKind = "other"
)

// Statement is one top-level statement of a module.
type Statement struct {
	Kind StatementKind
	// Target is the assigned identifier for assignments.
	Target string
	// Line is 1-based.
	Line int
	Span Span
	// CallsTempView is set when the statement contains a
	// createOrReplaceTempView call.
	CallsTempView bool
	// StringOnly is set for a bare string literal statement.
	StringOnly bool
}

// Call is a call site whose callee is an attribute, e.g. df.select(...).
type Call struct {
	Attribute string
	Line      int
	Span      Span
}

// PythonModule holds facts copied out of a tree-sitter parse. It keeps no
// reference to the tree.
type PythonModule struct {
	Source     string
	Statements []Statement
	Calls      []Call
	Strings    []Span
	Comments   []Span

	// Silver only: the dictionary literal and every string key within it.
	Dict     Span
	DictKeys []string
}

// Text returns the source covered by s.
func (m *PythonModule) Text(s Span) string {
	return m.Source[s.Start:s.End]
}

// FirstLine returns the first line of the statement source.
func (m *PythonModule) FirstLine(st Statement) string {
	text := m.Text(st.Span)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// parsePython parses src with a fresh parser; sitter parsers are not safe
// for concurrent use.
func parsePython(ctx context.Context, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())
	return parser.ParseCtx(ctx, nil, src)
}

// CheckPythonModule parses text as a whole Python module. Any ERROR or
// MISSING node fails the check.
func CheckPythonModule(ctx context.Context, text string) (*Artifact, error) {
	src := []byte(text)
	tree, err := parsePython(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, syntaxErrorf(0, 0, "python parser failed: %v", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if strings.TrimSpace(text) == "" {
		return nil, syntaxErrorf(1, 1, "empty output")
	}
	if root.HasError() {
		return nil, pythonError(text, src, root, 0, 0)
	}

	mod := &PythonModule{Source: text}
	collectFacts(mod, root, src, 0)
	collectStatements(mod, root, src)
	return &Artifact{Text: text, Value: mod}, nil
}

var silverStart = regexp.MustCompile(SilverTarget + `\s*=\s*\{`)

// CheckSilverDict locates `transform_sql_query_dict = {...}` in text.
// Surrounding prose is tolerated; the assignment itself must parse cleanly.
func CheckSilverDict(ctx context.Context, text string) (*Artifact, error) {
	src := []byte(text)
	tree, err := parsePython(ctx, src)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, syntaxErrorf(0, 0, "python parser failed: %v", err)
	}
	assign := findSilverAssignment(tree.RootNode(), src)
	if assign != nil && !assign.HasError() {
		art := silverArtifact(assign, src)
		tree.Close()
		return art, nil
	}
	tree.Close()

	// The module as a whole did not yield a clean assignment, so cut the
	// candidate out and parse it alone for a precise error.
	loc := silverStart.FindStringIndex(text)
	if loc == nil {
		return nil, syntaxErrorf(0, 0, "missing %s = {...} assignment", SilverTarget)
	}
	end := strings.LastIndex(text, "}")
	if end < loc[1]-1 {
		end = len(text) - 1
	}
	snippet := text[loc[0] : end+1]
	line0, col0 := position(text, loc[0])

	snipSrc := []byte(snippet)
	snipTree, err := parsePython(ctx, snipSrc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, syntaxErrorf(0, 0, "python parser failed: %v", err)
	}
	defer snipTree.Close()

	assign = findSilverAssignment(snipTree.RootNode(), snipSrc)
	if assign == nil {
		return nil, pythonError(text, snipSrc, snipTree.RootNode(), line0-1, col0-1)
	}
	if assign.HasError() {
		return nil, pythonError(text, snipSrc, assign, line0-1, col0-1)
	}
	return silverArtifact(assign, snipSrc), nil
}

// findSilverAssignment returns the first assignment of a dictionary to the
// silver target anywhere in the tree.
func findSilverAssignment(root *sitter.Node, src []byte) *sitter.Node {
	var found *sitter.Node
	walk(root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		if n.Type() != "assignment" {
			return true
		}
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if left != nil && right != nil &&
			left.Type() == "identifier" && left.Content(src) == SilverTarget &&
			right.Type() == "dictionary" {
			found = n
			return false
		}
		return true
	})
	return found
}

func silverArtifact(assign *sitter.Node, src []byte) *Artifact {
	dict := assign.ChildByFieldName("right")
	dictText := dict.Content(src)
	prefix := SilverTarget + " = "
	normalized := prefix + dictText

	mod := &PythonModule{
		Source: normalized,
		Dict:   Span{Start: len(prefix), End: len(normalized)},
	}
	offset := len(prefix) - int(dict.StartByte())
	collectFacts(mod, dict, src, offset)

	walk(dict, func(n *sitter.Node) bool {
		if n.Type() == "pair" {
			if key := n.ChildByFieldName("key"); key != nil && key.Type() == "string" {
				mod.DictKeys = append(mod.DictKeys, unquote(key.Content(src)))
			}
		}
		return true
	})

	mod.Statements = []Statement{{
		Kind:   StatementAssignment,
		Target: SilverTarget,
		Line:   1,
		Span:   Span{Start: 0, End: len(normalized)},
	}}
	return &Artifact{Text: normalized, Value: mod}
}

// collectFacts records call sites, strings and comments below n. offset
// shifts byte positions from src into mod.Source.
func collectFacts(mod *PythonModule, n *sitter.Node, src []byte, offset int) {
	walk(n, func(node *sitter.Node) bool {
		span := Span{Start: int(node.StartByte()) + offset, End: int(node.EndByte()) + offset}
		switch node.Type() {
		case "call":
			fn := node.ChildByFieldName("function")
			if fn != nil && fn.Type() == "attribute" {
				if attr := fn.ChildByFieldName("attribute"); attr != nil {
					mod.Calls = append(mod.Calls, Call{
						Attribute: attr.Content(src),
						Line:      int(attr.StartPoint().Row) + 1,
						Span:      span,
					})
				}
			}
		case "string":
			mod.Strings = append(mod.Strings, span)
		case "comment":
			mod.Comments = append(mod.Comments, span)
		}
		return true
	})
}

func collectStatements(mod *PythonModule, root *sitter.Node, src []byte) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		st := Statement{
			Kind: StatementOther,
			Line: int(child.StartPoint().Row) + 1,
			Span: Span{Start: int(child.StartByte()), End: int(child.EndByte())},
		}
		switch child.Type() {
		case "comment":
			st.Kind = StatementComment
		case "expression_statement":
			st.Kind = StatementExpression
			if child.NamedChildCount() == 1 {
				inner := child.NamedChild(0)
				switch inner.Type() {
				case "assignment":
					st.Kind = StatementAssignment
					if left := inner.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
						st.Target = left.Content(src)
					}
				case "string", "concatenated_string":
					st.StringOnly = true
				}
			}
			walk(child, func(n *sitter.Node) bool {
				if n.Type() == "call" {
					if fn := n.ChildByFieldName("function"); fn != nil && fn.Type() == "attribute" {
						if attr := fn.ChildByFieldName("attribute"); attr != nil &&
							attr.Content(src) == "createOrReplaceTempView" {
							st.CallsTempView = true
							return false
						}
					}
				}
				return true
			})
		}
		mod.Statements = append(mod.Statements, st)
	}
}

// pythonError reports the first ERROR or MISSING node below n. Positions in
// src are shifted by lineShift/colShift (the latter applies to the first
// line only) so that they point into text.
func pythonError(text string, src []byte, n *sitter.Node, lineShift, colShift int) *SyntaxError {
	var bad *sitter.Node
	walk(n, func(node *sitter.Node) bool {
		if bad != nil {
			return false
		}
		if node.IsMissing() || node.Type() == "ERROR" {
			bad = node
			return false
		}
		return node.HasError()
	})
	if bad == nil {
		bad = n
	}

	pt := bad.StartPoint()
	line := int(pt.Row) + 1 + lineShift
	col := int(pt.Column) + 1
	if pt.Row == 0 {
		col += colShift
	}

	offending := lineAt(text, line)
	if bad.IsMissing() {
		return syntaxErrorf(line, col, "invalid Python at line %d, column %d: missing %q in `%s`",
			line, col, bad.Type(), offending)
	}
	return syntaxErrorf(line, col, "invalid Python at line %d, column %d: `%s`", line, col, offending)
}

// walk visits n and its descendants depth-first. fn returns false to skip
// the children of a node.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || n.IsNull() {
		return
	}
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}

// unquote strips a Python string prefix and its quotes.
func unquote(s string) string {
	if i := strings.IndexAny(s, `"'`); i > 0 && i <= 2 && strings.Trim(s[:i], "rRbBuUfF") == "" {
		s = s[i:]
	}
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}
