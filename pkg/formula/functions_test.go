package formula

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormulaEngine_Functions(t *testing.T) {
	engine := newTestEngine()
	ctx := record(map[string]interface{}{
		"name":       "  Acme Corp  ",
		"close_date": "2024-03-20",
		"amount":     1234.5678,
		"empty":      "",
		"missing":    nil,
	})

	tests := []struct {
		formula  string
		expected interface{}
	}{
		{"TODAY()", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)},
		{"NOW()", fixedClock()},
		{"DATE(2024, 2, 29)", time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{"YEAR(close_date)", 2024},
		{"MONTH(close_date)", 3},
		{"DAY(close_date)", 20},
		{"ADDDAYS(close_date, 12)", time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{"DATE_ADD(close_date, 1)", time.Date(2024, time.March, 21, 0, 0, 0, 0, time.UTC)},
		{"DATEDIFF(close_date, TODAY())", 5},
		{"close_date > TODAY()", true},
		{"LEN(TRIM(name))", 9},
		{"LEN(missing)", 0},
		{"UPPER(TRIM(name))", "ACME CORP"},
		{"LOWER('ABC')", "abc"},
		{"CONTAINS(name, 'Corp')", true},
		{"CONTAINS(missing, 'Corp')", false},
		{"BEGINS(TRIM(name), 'Acme')", true},
		{"LEFT(TRIM(name), 4)", "Acme"},
		{"RIGHT(TRIM(name), 4)", "Corp"},
		{"LEFT(TRIM(name), 40)", "Acme Corp"},
		{"SUBSTITUTE(TRIM(name), 'Corp', 'Inc')", "Acme Inc"},
		{"TEXT(42)", "42"},
		{"TEXT(missing)", ""},
		{"VALUE('12.5') * 2", 25.0},
		{"ROUND(amount, 2)", 1234.57},
		{"ROUND(amount)", 1235.0},
		{"ROUND(-2.5, 0)", -3.0},
		{"ABS(-4.5)", 4.5},
		{"CEILING(1.2)", 2.0},
		{"FLOOR(1.8)", 1.0},
		{"MAX(1, 7, 3)", 7},
		{"MIN(4, missing, 2)", 2},
		{"MOD(10, 4)", 2},
		{"IF(amount > 1000, 'large', 'small')", "large"},
		{"IF(missing, 'yes', 'no')", "no"},
		{"ISBLANK(empty)", true},
		{"ISBLANK(name)", false},
		{"ISNULL(missing)", true},
		{"ISNULL(empty)", false},
		{"BLANKVALUE(empty, 'n/a')", "n/a"},
		{"BLANKVALUE(TRIM(name), 'n/a')", "Acme Corp"},
		{"UPPER(missing)", nil},
		{"ROUND(missing, 2)", nil},
		{"isblank(missing)", true},
		{"IF(TRUE, 1, 2)", 1},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			result, err := engine.Evaluate(tt.formula, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormulaEngine_FunctionArity(t *testing.T) {
	engine := newTestEngine()

	for _, formula := range []string{"LEN()", "LEFT('abc')", "IF(true)", "TODAY(1)", "ISNEW(1)", "ISCHANGED('x')"} {
		t.Run(formula, func(t *testing.T) {
			_, err := engine.Evaluate(formula, &Context{})
			assert.Error(t, err)
		})
	}
}

func TestGetFunctionDefinitions(t *testing.T) {
	engine := newTestEngine()
	defs := engine.GetFunctionDefinitions()

	names := make(map[string]bool, len(defs))
	for _, d := range defs {
		names[d.Name] = true
		assert.NotEmpty(t, d.Usage, d.Name)
	}
	for _, want := range []string{"NOW", "TODAY", "DATEDIFF", "SUBSTITUTE", "BLANKVALUE", "ISCHANGED", "ISNEW"} {
		assert.True(t, names[want], want)
	}
}
