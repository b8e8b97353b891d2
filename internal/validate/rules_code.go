package validate

import (
	"context"
	"regexp"
	"strings"
)

// DefaultMinLines is the minimum newline count for generated code.
const DefaultMinLines = 5

const tooFewLines = "output has too few lines and is not properly formatted"

func pythonModule(in RuleInput) *PythonModule {
	if in.Artifact == nil {
		return nil
	}
	mod, _ := in.Artifact.Value.(*PythonModule)
	return mod
}

// SilverRules returns the rules for silver transform dictionaries.
func SilverRules(minLines int) []Rule {
	if minLines <= 0 {
		minLines = DefaultMinLines
	}
	return []Rule{
		silverKeys,
		silverLines(minLines),
	}
}

func silverKeys(_ context.Context, in RuleInput) []Issue {
	mod := pythonModule(in)
	if mod == nil {
		return []Issue{Strict(KindStructural, "", "missing %s = {...} assignment", SilverTarget)}
	}
	present := map[string]bool{}
	for _, k := range mod.DictKeys {
		present[k] = true
	}
	var issues []Issue
	for _, key := range []string{"sql", "merge_key"} {
		if !present[key] {
			issues = append(issues, Strict(KindMissingItem, key, "missing required key '%s' in %s", key, SilverTarget))
		}
	}
	return issues
}

func silverLines(minLines int) Rule {
	return func(_ context.Context, in RuleInput) []Issue {
		mod := pythonModule(in)
		if mod == nil {
			return nil
		}
		if strings.Count(mod.Text(mod.Dict), "\n") < minLines {
			return []Issue{Strict(KindStructural, "", tooFewLines)}
		}
		return nil
	}
}

// DisallowedCalls are DataFrame API methods that gold code must express as
// SparkSQL instead.
var DisallowedCalls = []string{
	"select", "selectExpr", "filter", "withColumn", "drop", "join",
	"groupBy", "agg", "alias", "orderBy", "distinct",
}

var (
	dfTarget      = regexp.MustCompile(`^\w+_df$`)
	allowedTarget = regexp.MustCompile(`^\w+_(df|temp_vw)$`)
)

// GoldFinalTarget is the assignment every gold artifact ends in.
const GoldFinalTarget = "gold_final_df"

// GoldRules returns the rules for gold SparkSQL modules.
func GoldRules(minLines int) []Rule {
	if minLines <= 0 {
		minLines = DefaultMinLines
	}
	return []Rule{
		goldAssignments,
		goldLines(minLines),
		goldDisallowedCalls,
		goldForeignComments,
		goldStatementShape,
	}
}

func goldAssignments(_ context.Context, in RuleInput) []Issue {
	mod := pythonModule(in)
	if mod == nil {
		return []Issue{Strict(KindStructural, "", "output is not a Python module")}
	}
	var sawDF, sawFinal bool
	for _, st := range mod.Statements {
		if st.Kind != StatementAssignment {
			continue
		}
		if dfTarget.MatchString(st.Target) {
			sawDF = true
		}
		if st.Target == GoldFinalTarget {
			sawFinal = true
		}
	}
	var issues []Issue
	if !sawDF {
		issues = append(issues, Strict(KindStructural, "", "no `<name>_df = spark.sql(...)` assignments found"))
	}
	if !sawFinal {
		issues = append(issues, Strict(KindMissingItem, GoldFinalTarget, "missing %s assignment", GoldFinalTarget))
	}
	return issues
}

func goldLines(minLines int) Rule {
	return func(_ context.Context, in RuleInput) []Issue {
		if in.Artifact == nil || strings.Count(in.Artifact.Text, "\n") < minLines {
			return []Issue{Strict(KindStructural, "", tooFewLines)}
		}
		return nil
	}
}

func goldDisallowedCalls(_ context.Context, in RuleInput) []Issue {
	mod := pythonModule(in)
	if mod == nil {
		return nil
	}
	banned := make(map[string]bool, len(DisallowedCalls))
	for _, name := range DisallowedCalls {
		banned[name] = true
	}
	var issues []Issue
	reported := map[string]bool{}
	for _, call := range mod.Calls {
		if !banned[call.Attribute] || reported[call.Attribute] {
			continue
		}
		reported[call.Attribute] = true
		issues = append(issues, Strict(KindDialect, call.Attribute,
			"disallowed PySpark API syntax `.%s(` found - only SparkSQL is allowed", call.Attribute))
	}
	return issues
}

// MaskedSource returns the module source with every string literal and
// comment blanked out. Newlines are kept so positions still line up.
func (m *PythonModule) MaskedSource() string {
	buf := []byte(m.Source)
	mask := func(s Span) {
		for i := s.Start; i < s.End && i < len(buf); i++ {
			if buf[i] != '\n' {
				buf[i] = ' '
			}
		}
	}
	for _, s := range m.Strings {
		mask(s)
	}
	for _, s := range m.Comments {
		mask(s)
	}
	return string(buf)
}

func goldForeignComments(_ context.Context, in RuleInput) []Issue {
	mod := pythonModule(in)
	if mod == nil {
		return nil
	}
	masked := mod.MaskedSource()
	var issues []Issue
	if strings.Contains(masked, "--") {
		issues = append(issues, Strict(KindDialect, "--", "SQL-style -- comment outside SQL strings"))
	}
	if strings.Contains(masked, "/*") || strings.Contains(masked, "*/") {
		issues = append(issues, Strict(KindDialect, "/*", "/* */ block comment outside SQL strings"))
	}
	return issues
}

func goldStatementShape(_ context.Context, in RuleInput) []Issue {
	mod := pythonModule(in)
	if mod == nil {
		return nil
	}
	var issues []Issue
	seen := map[string]bool{}
	for _, st := range mod.Statements {
		switch {
		case st.Kind == StatementComment:
			continue
		case st.Kind == StatementAssignment && allowedTarget.MatchString(st.Target):
			continue
		case st.Kind == StatementExpression && (st.CallsTempView || st.StringOnly):
			continue
		}
		line := mod.FirstLine(st)
		if seen[line] {
			continue
		}
		seen[line] = true
		issues = append(issues, Strict(KindDialect, line, "unexpected statement outside SQL strings: `%s`", line))
	}
	return issues
}
