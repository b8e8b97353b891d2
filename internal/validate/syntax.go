package validate

import (
	"fmt"
	"strings"
)

// SyntaxError is a positioned parse failure. Line and Column are 1-based;
// zero means unknown.
type SyntaxError struct {
	Line   int
	Column int
	Detail string
}

func (e *SyntaxError) Error() string {
	return e.Detail
}

// Issue converts the error into the strict issue recorded for an attempt.
func (e *SyntaxError) Issue() Issue {
	return Strict(KindSyntax, "", "syntax error: %s", e.Detail)
}

// position converts a byte offset in text to a 1-based line and column.
func position(text string, offset int) (line, col int) {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	before := text[:offset]
	line = strings.Count(before, "\n") + 1
	col = offset - strings.LastIndex(before, "\n")
	return line, col
}

// lineAt returns the 1-based line of text, trimmed.
func lineAt(text string, line int) string {
	lines := strings.Split(text, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[line-1])
}

func syntaxErrorf(line, col int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Line: line, Column: col, Detail: fmt.Sprintf(format, args...)}
}
