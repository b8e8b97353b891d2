package validate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mappingArtifact(t *testing.T, text string) *Artifact {
	t.Helper()
	art, err := CheckJSONObject(context.Background(), text)
	require.NoError(t, err)
	return art
}

func mappingJSON(columns ...string) string {
	var cols []string
	for _, c := range columns {
		cols = append(cols, fmt.Sprintf(`%q: {
			"target_datatype": "string",
			"target_desc": "column %s",
			"sources": {"source_table": "st1", "source_field": "%s", "transformation": "Direct"}
		}`, c, c, c))
	}
	return `{
		"target_table": "dim_customer",
		"source_tables": [{"name": "st1", "desc": "source one"}],
		"column_mapping": {` + strings.Join(cols, ",") + `}
	}`
}

func TestMappingRules_ScenarioA(t *testing.T) {
	rules := MappingRules(MappingOptions{StrictCoverage: true})

	partial := RunRules(context.Background(), rules, RuleInput{
		Artifact: mappingArtifact(t, mappingJSON("a", "b")),
		Required: []string{"a", "b", "c"},
	})
	assert.False(t, partial.IsValid())
	assert.Equal(t, []string{"missing item: c"}, partial.StrictMessages())
	assert.Equal(t, KindMissingItem, partial.StrictIssues[0].Kind)
	assert.Equal(t, "c", partial.StrictIssues[0].Subject)

	full := RunRules(context.Background(), rules, RuleInput{
		Artifact: mappingArtifact(t, mappingJSON("a", "b", "c")),
		Required: []string{"a", "b", "c"},
	})
	assert.True(t, full.IsValid())
	assert.Empty(t, full.NonStrictIssues)
}

func TestMappingRules_LenientCoverage(t *testing.T) {
	rules := MappingRules(MappingOptions{StrictCoverage: false})
	r := RunRules(context.Background(), rules, RuleInput{
		Artifact: mappingArtifact(t, mappingJSON("a")),
		Required: []string{"a", "b"},
	})
	assert.True(t, r.IsValid())
	assert.Equal(t, []string{"missing item: b"}, r.NonStrictMessages())
}

func TestMappingRules_ScenarioD(t *testing.T) {
	doc := `{
		"target_table": "t",
		"source_tables": [{"name": "st1"}],
		"column_mapping": {"a": {"sources": {"source_table": "st1", "transformation": "Direct"}}}
	}`
	r := RunRules(context.Background(), MappingRules(MappingOptions{StrictCoverage: true}), RuleInput{
		Artifact: mappingArtifact(t, doc),
		Required: []string{"a"},
	})
	assert.True(t, r.IsValid(), "non-strict issues never block")
	assert.Equal(t, []string{
		"column 'a' is missing a description",
		"column 'a' is missing a datatype",
	}, r.NonStrictMessages())
}

func TestMappingRules_Structure(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "missing keys",
			doc:  `{}`,
			want: []string{
				"missing required key: 'target_table'",
				"missing required key: 'source_tables'",
				"missing required key: 'column_mapping'",
				"target_table is empty or missing",
			},
		},
		{
			name: "wrong shapes",
			doc:  `{"target_table": "t", "source_tables": {"name": "x"}, "column_mapping": []}`,
			want: []string{"source_tables must be a list", "column_mapping must be an object"},
		},
		{
			name: "bad source entries and empty mapping",
			doc:  `{"target_table": "t", "source_tables": ["x", {"desc": "d"}], "column_mapping": {}}`,
			want: []string{
				"source_tables[0] must be an object",
				"source_tables[1] missing 'name' field",
				"column_mapping is empty",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := mappingStructure(context.Background(), RuleInput{Artifact: mappingArtifact(t, tt.doc)})
			r := NewReport(issues...)
			assert.Equal(t, tt.want, r.StrictMessages())
			for _, i := range issues {
				assert.Equal(t, KindStructural, i.Kind)
			}
		})
	}
}

func TestMappingRules_References(t *testing.T) {
	doc := `{
		"target_table": "t",
		"source_tables": [{"name": "st1"}],
		"column_mapping": {
			"a": {"target_desc": "d", "target_datatype": "int", "sources": {"source_table": "st2"}},
			"b": {"target_desc": "d", "target_datatype": "int", "sources": {"source_table": ""}}
		}
	}`
	art := mappingArtifact(t, doc)

	strict := RunRules(context.Background(), MappingRules(MappingOptions{}), RuleInput{Artifact: art})
	require.Len(t, strict.StrictIssues, 1)
	assert.Equal(t, KindUnresolvedReference, strict.StrictIssues[0].Kind)
	assert.Equal(t, "st2", strict.StrictIssues[0].Subject)
	assert.Equal(t, "column 'a' references undefined source table 'st2'", strict.StrictIssues[0].Message)

	lenient := RunRules(context.Background(), MappingRules(MappingOptions{
		UnresolvedReferenceSeverity: SeverityNonStrict,
	}), RuleInput{Artifact: art})
	assert.True(t, lenient.IsValid())
	assert.Len(t, lenient.NonStrictIssues, 1)
}

func TestMappingRules_TransformationChecks(t *testing.T) {
	cols := map[string]string{}
	var parts []string
	for i := 0; i < 11; i++ {
		name := fmt.Sprintf("c%02d", i)
		cols[name] = "CASE WHEN x THEN 1 ELSE 0 END"
		parts = append(parts, fmt.Sprintf(`%q: {"target_desc": "d", "target_datatype": "int",
			"sources": {"source_table": "st1", "transformation": %q}}`, name, cols[name]))
	}
	long := strings.Repeat("x", 1001)
	parts = append(parts, fmt.Sprintf(`"long": {"target_desc": "d", "target_datatype": "int",
		"sources": {"source_table": "st1", "transformation": %q}}`, long))

	doc := `{"target_table": "t", "source_tables": [{"name": "st1"}], "column_mapping": {` +
		strings.Join(parts, ",") + `}}`
	r := RunRules(context.Background(), MappingRules(MappingOptions{}), RuleInput{Artifact: mappingArtifact(t, doc)})

	assert.Equal(t, []string{"column 'long' has unusually long transformation"}, r.StrictMessages())
	assert.Equal(t, []string{"transformation 'CASE WHEN x THEN 1 ELSE 0 END...' used in 11 columns"}, r.NonStrictMessages())
}

func TestComplexTransformations(t *testing.T) {
	doc := map[string]any{
		"column_mapping": map[string]any{
			"a": map[string]any{"sources": map[string]any{"transformation": "Direct Pull"}},
			"b": map[string]any{"sources": map[string]any{"transformation": "direct"}},
			"c": map[string]any{"sources": map[string]any{"transformation": "Default Value: 0"}},
			"d": map[string]any{"sources": map[string]any{"transformation": "CASE WHEN a > 1 THEN 'Y' END"}},
			"e": map[string]any{"sources": map[string]any{"transformation": "Concatenate(first, last)"}},
			"f": map[string]any{"sources": map[string]any{"transformation": ""}},
		},
	}

	complex, total := ComplexTransformations(doc)
	assert.Equal(t, 5, total)
	assert.Equal(t, []Transformation{
		{Column: "a", Expression: "Direct Pull"},
		{Column: "d", Expression: "CASE WHEN a > 1 THEN 'Y' END"},
	}, complex)
}

func TestSilverRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "valid", text: validSilver},
		{
			name: "missing merge_key and too short",
			text: `transform_sql_query_dict = {"customer": {"sql": "SELECT 1"}}`,
			want: []string{
				"missing required key 'merge_key' in transform_sql_query_dict",
				"output has too few lines and is not properly formatted",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := CheckSilverDict(context.Background(), tt.text)
			require.NoError(t, err)
			r := RunRules(context.Background(), SilverRules(0), RuleInput{Artifact: art})
			if tt.want == nil {
				assert.True(t, r.IsValid(), r.StrictMessages())
				return
			}
			assert.Equal(t, tt.want, r.StrictMessages())
		})
	}
}

func TestGoldRules(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "valid", text: validGold},
		{
			name: "disallowed call outside strings",
			text: validGold + "bad_df = customer_df.select(\"id\")\n",
			want: []string{"disallowed PySpark API syntax `.select(` found - only SparkSQL is allowed"},
		},
		{
			name: "disallowed call text inside a string",
			text: validGold + "note_df = spark.sql(\"\"\"SELECT 'df.select(x)' AS s\"\"\")\n",
		},
		{
			name: "sql comment outside strings",
			text: validGold + "-- stray\n",
			want: []string{
				"SQL-style -- comment outside SQL strings",
				"unexpected statement outside SQL strings: `-- stray`",
			},
		},
		{
			name: "unexpected statement",
			text: validGold + "print(\"done\")\n",
			want: []string{"unexpected statement outside SQL strings: `print(\"done\")`"},
		},
		{
			name: "missing final assignment",
			text: "# a\n# b\n# c\nx_df = spark.sql(\"\"\"\nSELECT 1\n\"\"\")\n",
			want: []string{"missing gold_final_df assignment"},
		},
		{
			name: "too short",
			text: "gold_final_df = spark.sql(\"SELECT 1\")\n",
			want: []string{"output has too few lines and is not properly formatted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := CheckPythonModule(context.Background(), tt.text)
			require.NoError(t, err)
			r := RunRules(context.Background(), GoldRules(0), RuleInput{Artifact: art})
			if tt.want == nil {
				assert.True(t, r.IsValid(), r.StrictMessages())
				return
			}
			assert.Equal(t, tt.want, r.StrictMessages())
		})
	}
}

func TestRules_Idempotent(t *testing.T) {
	in := RuleInput{
		Artifact: mappingArtifact(t, mappingJSON("a", "b")),
		Required: []string{"a", "b", "c", "d"},
	}
	rules := MappingRules(MappingOptions{StrictCoverage: true})

	first := RunRules(context.Background(), rules, in)
	second := RunRules(context.Background(), rules, in)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rules are not idempotent (-first +second):\n%s", diff)
	}
}
