package validate

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// MappingOptions tune the STTM mapping rule set.
type MappingOptions struct {
	// StrictCoverage makes a missing target column block acceptance.
	StrictCoverage bool
	// UnresolvedReferenceSeverity applies to column sources that name an
	// undeclared source table.
	UnresolvedReferenceSeverity Severity
}

const (
	maxTransformationLength = 1000
	maxMappedColumns        = 500
	maxSharedTransformation = 10
)

// MappingRules returns the deterministic rules for STTM mapping documents.
func MappingRules(opts MappingOptions) []Rule {
	if opts.UnresolvedReferenceSeverity == "" {
		opts.UnresolvedReferenceSeverity = SeverityStrict
	}
	return []Rule{
		mappingStructure,
		mappingCoverage(opts.StrictCoverage),
		mappingReferences(opts.UnresolvedReferenceSeverity),
		mappingTransformationLength,
		mappingBusinessRules,
		mappingDescriptions,
	}
}

func mappingDoc(in RuleInput) map[string]any {
	if in.Artifact == nil {
		return nil
	}
	doc, _ := in.Artifact.Value.(map[string]any)
	return doc
}

func columnMapping(doc map[string]any) map[string]any {
	cm, _ := doc["column_mapping"].(map[string]any)
	return cm
}

// sortedKeys gives rules a stable iteration order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// columnSources returns column_mapping[col].sources when it is an object.
func columnSources(def any) map[string]any {
	colDef, ok := def.(map[string]any)
	if !ok {
		return nil
	}
	sources, _ := colDef["sources"].(map[string]any)
	return sources
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func mappingStructure(_ context.Context, in RuleInput) []Issue {
	doc := mappingDoc(in)
	if doc == nil {
		return []Issue{Strict(KindStructural, "", "mapping document is not a JSON object")}
	}

	var issues []Issue
	for _, key := range []string{"target_table", "source_tables", "column_mapping"} {
		if _, ok := doc[key]; !ok {
			issues = append(issues, Strict(KindStructural, key, "missing required key: '%s'", key))
		}
	}

	if stringField(doc, "target_table") == "" {
		issues = append(issues, Strict(KindStructural, "target_table", "target_table is empty or missing"))
	}

	if raw, ok := doc["source_tables"]; ok {
		tables, isList := raw.([]any)
		if !isList {
			issues = append(issues, Strict(KindStructural, "source_tables", "source_tables must be a list"))
		}
		for idx, t := range tables {
			table, isObj := t.(map[string]any)
			switch {
			case !isObj:
				issues = append(issues, Strict(KindStructural, "source_tables", "source_tables[%d] must be an object", idx))
			case stringField(table, "name") == "":
				issues = append(issues, Strict(KindStructural, "source_tables", "source_tables[%d] missing 'name' field", idx))
			}
		}
	}

	if raw, ok := doc["column_mapping"]; ok {
		cm, isObj := raw.(map[string]any)
		switch {
		case !isObj:
			issues = append(issues, Strict(KindStructural, "column_mapping", "column_mapping must be an object"))
		case len(cm) == 0:
			issues = append(issues, Strict(KindStructural, "column_mapping", "column_mapping is empty"))
		}
	}
	return issues
}

func mappingCoverage(strict bool) Rule {
	severity := SeverityNonStrict
	if strict {
		severity = SeverityStrict
	}
	return func(_ context.Context, in RuleInput) []Issue {
		cm := columnMapping(mappingDoc(in))
		var issues []Issue
		seen := make(map[string]bool, len(in.Required))
		for _, col := range in.Required {
			if seen[col] {
				continue
			}
			seen[col] = true
			if _, ok := cm[col]; !ok {
				issues = append(issues, Issue{
					Kind:     KindMissingItem,
					Severity: severity,
					Subject:  col,
					Message:  "missing item: " + col,
				})
			}
		}
		return issues
	}
}

// SourceTableNames returns the declared source_tables[].name values.
func SourceTableNames(doc map[string]any) map[string]bool {
	names := map[string]bool{}
	tables, _ := doc["source_tables"].([]any)
	for _, t := range tables {
		if table, ok := t.(map[string]any); ok {
			if name := stringField(table, "name"); name != "" {
				names[name] = true
			}
		}
	}
	return names
}

func mappingReferences(severity Severity) Rule {
	return func(_ context.Context, in RuleInput) []Issue {
		doc := mappingDoc(in)
		cm := columnMapping(doc)
		if cm == nil {
			return nil
		}
		declared := SourceTableNames(doc)

		var issues []Issue
		for _, col := range sortedKeys(cm) {
			src := stringField(columnSources(cm[col]), "source_table")
			if src != "" && !declared[src] {
				issues = append(issues, Issue{
					Kind:     KindUnresolvedReference,
					Severity: severity,
					Subject:  src,
					Message:  "column '" + col + "' references undefined source table '" + src + "'",
				})
			}
		}
		return issues
	}
}

func mappingTransformationLength(_ context.Context, in RuleInput) []Issue {
	cm := columnMapping(mappingDoc(in))
	var issues []Issue
	for _, col := range sortedKeys(cm) {
		if len(stringField(columnSources(cm[col]), "transformation")) > maxTransformationLength {
			issues = append(issues, Strict(KindOther, col, "column '%s' has unusually long transformation", col))
		}
	}
	return issues
}

func mappingBusinessRules(_ context.Context, in RuleInput) []Issue {
	cm := columnMapping(mappingDoc(in))
	var issues []Issue
	if len(cm) > maxMappedColumns {
		issues = append(issues, NonStrict(KindOther, "", "unusually high number of columns: %d", len(cm)))
	}

	users := map[string]int{}
	var order []string
	for _, col := range sortedKeys(cm) {
		t := stringField(columnSources(cm[col]), "transformation")
		if t == "" {
			continue
		}
		if users[t] == 0 {
			order = append(order, t)
		}
		users[t]++
	}
	for _, t := range order {
		if n := users[t]; n > maxSharedTransformation {
			issues = append(issues, NonStrict(KindOther, "", "transformation '%s...' used in %d columns", truncate(t, 50), n))
		}
	}
	return issues
}

func mappingDescriptions(_ context.Context, in RuleInput) []Issue {
	cm := columnMapping(mappingDoc(in))
	var issues []Issue
	for _, col := range sortedKeys(cm) {
		def, ok := cm[col].(map[string]any)
		if !ok {
			continue
		}
		if firstField(def, "target_desc", "description") == "" {
			issues = append(issues, NonStrict(KindOther, col, "column '%s' is missing a description", col))
		}
		if firstField(def, "target_datatype", "datatype", "data_type") == "" {
			issues = append(issues, NonStrict(KindOther, col, "column '%s' is missing a datatype", col))
		}
	}
	return issues
}

func firstField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringField(m, k); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var simpleTransformations = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Direct\s*(\(|$)`),
	regexp.MustCompile(`(?i)^Default\s+Value:\s*\d+`),
	regexp.MustCompile(`(?i)^Uppercase\s*(\(|$)`),
	regexp.MustCompile(`(?i)^Lowercase\s*(\(|$)`),
	regexp.MustCompile(`(?i)^Trim\s*(\(|$)`),
	regexp.MustCompile(`(?i)^Concatenate\s*\(`),
	regexp.MustCompile(`(?i)^Substring\s*\(`),
	regexp.MustCompile(`(?i)^DateFormatting\s*\(`),
}

// IsSimpleTransformation reports whether t matches a standard coded term.
func IsSimpleTransformation(t string) bool {
	for _, re := range simpleTransformations {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// Transformation is one column's non-empty transformation expression.
type Transformation struct {
	Column     string
	Expression string
}

// ComplexTransformations returns the complex transformations of a mapping
// document and the total count of non-empty ones.
func ComplexTransformations(doc map[string]any) (complex []Transformation, total int) {
	cm := columnMapping(doc)
	for _, col := range sortedKeys(cm) {
		t := stringField(columnSources(cm[col]), "transformation")
		if t == "" {
			continue
		}
		total++
		if !IsSimpleTransformation(t) {
			complex = append(complex, Transformation{Column: col, Expression: t})
		}
	}
	return complex, total
}
