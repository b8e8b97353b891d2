package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validGold = `# Gold layer for customer
customer_df = spark.sql("""
SELECT id, name -- kept inside the SQL string
FROM silver.customer
""")
customer_df.createOrReplaceTempView("customer_temp_vw")
gold_final_df = spark.sql("""
SELECT * FROM customer_temp_vw
""")
`

const validSilver = `transform_sql_query_dict = {
    "customer": {
        "sql": """
            SELECT id, name FROM bronze.customer
        """,
        "merge_key": ["id"],
    },
}`

func TestCheckPythonModule_Facts(t *testing.T) {
	art, err := CheckPythonModule(context.Background(), validGold)
	require.NoError(t, err)

	mod, ok := art.Value.(*PythonModule)
	require.True(t, ok)
	assert.Equal(t, validGold, mod.Source)

	require.Len(t, mod.Statements, 4)
	assert.Equal(t, StatementComment, mod.Statements[0].Kind)
	assert.Equal(t, StatementAssignment, mod.Statements[1].Kind)
	assert.Equal(t, "customer_df", mod.Statements[1].Target)
	assert.Equal(t, 2, mod.Statements[1].Line)
	assert.Equal(t, StatementExpression, mod.Statements[2].Kind)
	assert.True(t, mod.Statements[2].CallsTempView)
	assert.Equal(t, "gold_final_df", mod.Statements[3].Target)

	var attrs []string
	for _, c := range mod.Calls {
		attrs = append(attrs, c.Attribute)
	}
	assert.ElementsMatch(t, []string{"sql", "createOrReplaceTempView", "sql"}, attrs)
	assert.Len(t, mod.Comments, 1)
	assert.NotEmpty(t, mod.Strings)
	assert.NotContains(t, mod.MaskedSource(), "--")
}

func TestCheckPythonModule_SyntaxError(t *testing.T) {
	src := "a_df = spark.sql(\"\"\"SELECT 1\"\"\"\nb_df = 2\n"
	_, err := CheckPythonModule(context.Background(), src)
	require.Error(t, err)

	var syn *SyntaxError
	require.True(t, errors.As(err, &syn))
	assert.Contains(t, syn.Detail, "invalid Python at line")
	assert.Greater(t, syn.Line, 0)
}

func TestCheckPythonModule_Empty(t *testing.T) {
	_, err := CheckPythonModule(context.Background(), "\n\n")
	var syn *SyntaxError
	require.True(t, errors.As(err, &syn))
	assert.Equal(t, "empty output", syn.Detail)
}

func TestCheckPythonModule_Idempotent(t *testing.T) {
	a, err := CheckPythonModule(context.Background(), validGold)
	require.NoError(t, err)
	b, err := CheckPythonModule(context.Background(), validGold)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("parse is not deterministic (-first +second):\n%s", diff)
	}
}

func TestCheckSilverDict(t *testing.T) {
	art, err := CheckSilverDict(context.Background(), validSilver)
	require.NoError(t, err)

	mod := art.Value.(*PythonModule)
	assert.Equal(t, validSilver, art.Text)
	assert.ElementsMatch(t, []string{"customer", "sql", "merge_key"}, mod.DictKeys)
	assert.Equal(t, "{", mod.Text(mod.Dict)[:1])
}

func TestCheckSilverDict_ToleratesProse(t *testing.T) {
	text := "Here is the dictionary you asked for:\n\n" + validSilver + "\n\nLet me know if you need changes."

	art, err := CheckSilverDict(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, validSilver, art.Text)
	assert.Contains(t, art.Value.(*PythonModule).DictKeys, "merge_key")
}

func TestCheckSilverDict_Missing(t *testing.T) {
	_, err := CheckSilverDict(context.Background(), "result = {'sql': 'x'}")
	require.Error(t, err)
	assert.Equal(t, "missing transform_sql_query_dict = {...} assignment", err.Error())
}

func TestCheckSilverDict_Malformed(t *testing.T) {
	text := "transform_sql_query_dict = {\n    \"sql\": \"SELECT 1\",\n    \"merge_key\": ,\n}"
	_, err := CheckSilverDict(context.Background(), text)
	require.Error(t, err)

	var syn *SyntaxError
	require.True(t, errors.As(err, &syn))
	assert.Contains(t, syn.Detail, "invalid Python at line")
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"sql"`:       "sql",
		`'merge_key'`: "merge_key",
		`r"raw"`:      "raw",
		`"""doc"""`:   "doc",
		`bare`:        "bare",
		`rb'bytes'`:   "bytes",
		`f"{x}"`:      "{x}",
		`fuzz"`:       `fuzz"`,
		`buffer`:      "buffer",
	}
	for in, want := range tests {
		assert.Equal(t, want, unquote(in), in)
	}
}
