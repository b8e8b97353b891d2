package validate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// CheckJSONObject parses text as exactly one JSON object. Numbers are kept
// as json.Number so that re-serialization is lossless.
func CheckJSONObject(ctx context.Context, text string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, syntaxErrorf(1, 1, "JSON syntax error at line 1, column 1: empty output")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, jsonError(text, err)
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return nil, syntaxErrorf(1, 1, "expected a JSON object at the top level, got %s", jsonTypeName(value))
	}

	if _, err := dec.Token(); err != io.EOF {
		line, col := position(text, int(dec.InputOffset()))
		return nil, syntaxErrorf(line, col,
			"JSON syntax error at line %d, column %d: unexpected data after the top-level object", line, col)
	}

	return &Artifact{Text: text, Value: obj}, nil
}

func jsonError(text string, err error) *SyntaxError {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		offset := int(syn.Offset) - 1
		line, col := position(text, offset)
		return syntaxErrorf(line, col, "JSON syntax error at line %d, column %d: %s", line, col, syn.Error())
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		line, col := position(text, len(text))
		return syntaxErrorf(line, col, "JSON syntax error at line %d, column %d: unexpected end of input", line, col)
	}
	return syntaxErrorf(0, 0, "JSON syntax error: %v", err)
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "value"
	}
}
