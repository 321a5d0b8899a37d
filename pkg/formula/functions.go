package formula

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Function is a formula library function. Arguments may be nil.
type Function func(params ...interface{}) (interface{}, error)

// FunctionDefinition describes a library function for API consumers
type FunctionDefinition struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
}

var definitions = []FunctionDefinition{
	{Name: "NOW", Category: "Date", Description: "Current date and time", Usage: "NOW()"},
	{Name: "TODAY", Category: "Date", Description: "Current date", Usage: "TODAY()"},
	{Name: "DATE", Category: "Date", Description: "Builds a date", Usage: "DATE(year, month, day)"},
	{Name: "YEAR", Category: "Date", Description: "Year of a date", Usage: "YEAR(date)"},
	{Name: "MONTH", Category: "Date", Description: "Month of a date", Usage: "MONTH(date)"},
	{Name: "DAY", Category: "Date", Description: "Day of month of a date", Usage: "DAY(date)"},
	{Name: "ADDDAYS", Category: "Date", Description: "Adds days to a date", Usage: "ADDDAYS(date, days)"},
	{Name: "DATEDIFF", Category: "Date", Description: "Whole days from start to end", Usage: "DATEDIFF(end, start)"},
	{Name: "LEN", Category: "Text", Description: "Length of text", Usage: "LEN(text)"},
	{Name: "UPPER", Category: "Text", Description: "Converts to uppercase", Usage: "UPPER(text)"},
	{Name: "LOWER", Category: "Text", Description: "Converts to lowercase", Usage: "LOWER(text)"},
	{Name: "TRIM", Category: "Text", Description: "Removes surrounding whitespace", Usage: "TRIM(text)"},
	{Name: "CONTAINS", Category: "Text", Description: "Whether text contains a substring", Usage: "CONTAINS(text, search)"},
	{Name: "BEGINS", Category: "Text", Description: "Whether text starts with a prefix", Usage: "BEGINS(text, prefix)"},
	{Name: "LEFT", Category: "Text", Description: "Leftmost characters", Usage: "LEFT(text, n)"},
	{Name: "RIGHT", Category: "Text", Description: "Rightmost characters", Usage: "RIGHT(text, n)"},
	{Name: "SUBSTITUTE", Category: "Text", Description: "Replaces all occurrences", Usage: "SUBSTITUTE(text, old, new)"},
	{Name: "TEXT", Category: "Text", Description: "Converts a value to text", Usage: "TEXT(value)"},
	{Name: "VALUE", Category: "Math", Description: "Converts text to a number", Usage: "VALUE(text)"},
	{Name: "ROUND", Category: "Math", Description: "Rounds to a number of decimals", Usage: "ROUND(number, digits)"},
	{Name: "ABS", Category: "Math", Description: "Absolute value", Usage: "ABS(number)"},
	{Name: "CEILING", Category: "Math", Description: "Rounds up", Usage: "CEILING(number)"},
	{Name: "FLOOR", Category: "Math", Description: "Rounds down", Usage: "FLOOR(number)"},
	{Name: "MAX", Category: "Math", Description: "Largest argument", Usage: "MAX(a, b, ...)"},
	{Name: "MIN", Category: "Math", Description: "Smallest argument", Usage: "MIN(a, b, ...)"},
	{Name: "MOD", Category: "Math", Description: "Remainder of a division", Usage: "MOD(number, divisor)"},
	{Name: "IF", Category: "Logic", Description: "Conditional logic", Usage: "IF(condition, true_val, false_val)"},
	{Name: "AND", Category: "Logic", Description: "True when every argument is true", Usage: "AND(a, b, ...)"},
	{Name: "OR", Category: "Logic", Description: "True when any argument is true", Usage: "OR(a, b, ...)"},
	{Name: "NOT", Category: "Logic", Description: "Negates a condition", Usage: "NOT(condition)"},
	{Name: "ISBLANK", Category: "Logic", Description: "True for null or empty text", Usage: "ISBLANK(value)"},
	{Name: "ISNULL", Category: "Logic", Description: "True for null", Usage: "ISNULL(value)"},
	{Name: "BLANKVALUE", Category: "Logic", Description: "Substitute for a blank value", Usage: "BLANKVALUE(value, substitute)"},
	{Name: "ISCHANGED", Category: "Logic", Description: "Whether a field changed in this update", Usage: "ISCHANGED(field)"},
	{Name: "ISNEW", Category: "Logic", Description: "Whether the record is being created", Usage: "ISNEW()"},
	{Name: "PRIORVALUE", Category: "Logic", Description: "Value of a field before this update", Usage: "PRIORVALUE(field)"},
}

// aliases map alternative spellings to library names.
var aliases = map[string]string{
	"DATE_ADD":    "ADDDAYS",
	"STARTS_WITH": "BEGINS",
	"CEIL":        "CEILING",
}

func arity(name string, params []interface{}, min, max int) error {
	if len(params) < min || (max >= 0 && len(params) > max) {
		switch {
		case min == max:
			return fmt.Errorf("%s requires %d argument(s)", name, min)
		case max < 0:
			return fmt.Errorf("%s requires at least %d argument(s)", name, min)
		}
		return fmt.Errorf("%s requires %d to %d arguments", name, min, max)
	}
	return nil
}

func number(name string, v interface{}) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s expects a number, got %T", name, v)
	}
	return f, nil
}

func date(name string, v interface{}) (time.Time, error) {
	t, ok := toTime(v)
	if !ok {
		return time.Time{}, fmt.Errorf("%s expects a date, got %v", name, v)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// library builds the function table. now supplies the clock for NOW/TODAY.
func library(now func() time.Time) map[string]Function {
	fns := map[string]Function{
		"NOW": func(params ...interface{}) (interface{}, error) {
			if err := arity("NOW", params, 0, 0); err != nil {
				return nil, err
			}
			return now(), nil
		},
		"TODAY": func(params ...interface{}) (interface{}, error) {
			if err := arity("TODAY", params, 0, 0); err != nil {
				return nil, err
			}
			return truncateDay(now()), nil
		},
		"DATE": func(params ...interface{}) (interface{}, error) {
			if err := arity("DATE", params, 3, 3); err != nil {
				return nil, err
			}
			if params[0] == nil || params[1] == nil || params[2] == nil {
				return nil, nil
			}
			parts := make([]int, 3)
			for i, p := range params {
				f, err := number("DATE", p)
				if err != nil {
					return nil, err
				}
				parts[i] = int(f)
			}
			return time.Date(parts[0], time.Month(parts[1]), parts[2], 0, 0, 0, 0, time.UTC), nil
		},
		"YEAR":  datePart("YEAR", func(t time.Time) int { return t.Year() }),
		"MONTH": datePart("MONTH", func(t time.Time) int { return int(t.Month()) }),
		"DAY":   datePart("DAY", func(t time.Time) int { return t.Day() }),
		"ADDDAYS": func(params ...interface{}) (interface{}, error) {
			if err := arity("ADDDAYS", params, 2, 2); err != nil {
				return nil, err
			}
			if params[0] == nil || params[1] == nil {
				return nil, nil
			}
			t, err := date("ADDDAYS", params[0])
			if err != nil {
				return nil, err
			}
			days, err := number("ADDDAYS", params[1])
			if err != nil {
				return nil, err
			}
			return t.AddDate(0, 0, int(days)), nil
		},
		"DATEDIFF": func(params ...interface{}) (interface{}, error) {
			if err := arity("DATEDIFF", params, 2, 2); err != nil {
				return nil, err
			}
			if params[0] == nil || params[1] == nil {
				return nil, nil
			}
			end, err := date("DATEDIFF", params[0])
			if err != nil {
				return nil, err
			}
			start, err := date("DATEDIFF", params[1])
			if err != nil {
				return nil, err
			}
			return int(math.Round(truncateDay(end).Sub(truncateDay(start)).Hours() / 24)), nil
		},
		"LEN": func(params ...interface{}) (interface{}, error) {
			if err := arity("LEN", params, 1, 1); err != nil {
				return nil, err
			}
			if params[0] == nil {
				return 0, nil
			}
			return utf8.RuneCountInString(toText(params[0])), nil
		},
		"UPPER": textFn("UPPER", strings.ToUpper),
		"LOWER": textFn("LOWER", strings.ToLower),
		"TRIM":  textFn("TRIM", strings.TrimSpace),
		"CONTAINS": func(params ...interface{}) (interface{}, error) {
			if err := arity("CONTAINS", params, 2, 2); err != nil {
				return nil, err
			}
			if params[0] == nil || params[1] == nil {
				return false, nil
			}
			return strings.Contains(toText(params[0]), toText(params[1])), nil
		},
		"BEGINS": func(params ...interface{}) (interface{}, error) {
			if err := arity("BEGINS", params, 2, 2); err != nil {
				return nil, err
			}
			if params[0] == nil || params[1] == nil {
				return false, nil
			}
			return strings.HasPrefix(toText(params[0]), toText(params[1])), nil
		},
		"LEFT": func(params ...interface{}) (interface{}, error) {
			return slice("LEFT", params, func(r []rune, n int) []rune { return r[:n] })
		},
		"RIGHT": func(params ...interface{}) (interface{}, error) {
			return slice("RIGHT", params, func(r []rune, n int) []rune { return r[len(r)-n:] })
		},
		"SUBSTITUTE": func(params ...interface{}) (interface{}, error) {
			if err := arity("SUBSTITUTE", params, 3, 3); err != nil {
				return nil, err
			}
			if params[0] == nil {
				return nil, nil
			}
			old := toText(params[1])
			if old == "" {
				return toText(params[0]), nil
			}
			return strings.ReplaceAll(toText(params[0]), old, toText(params[2])), nil
		},
		"TEXT": func(params ...interface{}) (interface{}, error) {
			if err := arity("TEXT", params, 1, 1); err != nil {
				return nil, err
			}
			return toText(params[0]), nil
		},
		"VALUE": func(params ...interface{}) (interface{}, error) {
			if err := arity("VALUE", params, 1, 1); err != nil {
				return nil, err
			}
			if isBlank(params[0]) {
				return nil, nil
			}
			f, err := number("VALUE", params[0])
			if err != nil {
				return nil, err
			}
			return normalizeNumber(f), nil
		},
		"ROUND": func(params ...interface{}) (interface{}, error) {
			if err := arity("ROUND", params, 1, 2); err != nil {
				return nil, err
			}
			if params[0] == nil {
				return nil, nil
			}
			val, err := number("ROUND", params[0])
			if err != nil {
				return nil, err
			}
			digits := 0.0
			if len(params) == 2 && params[1] != nil {
				if digits, err = number("ROUND", params[1]); err != nil {
					return nil, err
				}
			}
			mult := math.Pow(10, math.Trunc(digits))
			return round10(math.Round(val*mult) / mult), nil
		},
		"ABS":     mathFn("ABS", math.Abs),
		"CEILING": mathFn("CEILING", math.Ceil),
		"FLOOR":   mathFn("FLOOR", math.Floor),
		"MAX":     extreme("MAX", 1),
		"MIN":     extreme("MIN", -1),
		"MOD": func(params ...interface{}) (interface{}, error) {
			if err := arity("MOD", params, 2, 2); err != nil {
				return nil, err
			}
			return arith("%", params[0], params[1])
		},
		"IF": func(params ...interface{}) (interface{}, error) {
			if err := arity("IF", params, 2, 3); err != nil {
				return nil, err
			}
			cond, err := truthy(params[0])
			if err != nil {
				return nil, fmt.Errorf("IF condition: %w", err)
			}
			if cond {
				return params[1], nil
			}
			if len(params) == 3 {
				return params[2], nil
			}
			return nil, nil
		},
		"AND": func(params ...interface{}) (interface{}, error) {
			if err := arity("AND", params, 1, -1); err != nil {
				return nil, err
			}
			for _, p := range params {
				b, err := truthy(p)
				if err != nil {
					return nil, err
				}
				if !b {
					return false, nil
				}
			}
			return true, nil
		},
		"OR": func(params ...interface{}) (interface{}, error) {
			if err := arity("OR", params, 1, -1); err != nil {
				return nil, err
			}
			for _, p := range params {
				b, err := truthy(p)
				if err != nil {
					return nil, err
				}
				if b {
					return true, nil
				}
			}
			return false, nil
		},
		"NOT": not,
		"ISBLANK": func(params ...interface{}) (interface{}, error) {
			if err := arity("ISBLANK", params, 1, 1); err != nil {
				return nil, err
			}
			return isBlank(params[0]), nil
		},
		"ISNULL": func(params ...interface{}) (interface{}, error) {
			if err := arity("ISNULL", params, 1, 1); err != nil {
				return nil, err
			}
			return params[0] == nil, nil
		},
		"BLANKVALUE": func(params ...interface{}) (interface{}, error) {
			if err := arity("BLANKVALUE", params, 2, 2); err != nil {
				return nil, err
			}
			if isBlank(params[0]) {
				return params[1], nil
			}
			return params[0], nil
		},
	}

	fns[fnArith] = arith
	fns[fnCompare] = compare
	fns[fnBool] = boolOf
	fns[fnNot] = not
	fns[fnNeg] = negate
	fns[fnChanged] = changed
	fns[fnPrior] = priorValue
	return fns
}

func datePart(name string, part func(time.Time) int) Function {
	return func(params ...interface{}) (interface{}, error) {
		if err := arity(name, params, 1, 1); err != nil {
			return nil, err
		}
		if params[0] == nil {
			return nil, nil
		}
		t, err := date(name, params[0])
		if err != nil {
			return nil, err
		}
		return part(t), nil
	}
}

func textFn(name string, fn func(string) string) Function {
	return func(params ...interface{}) (interface{}, error) {
		if err := arity(name, params, 1, 1); err != nil {
			return nil, err
		}
		if params[0] == nil {
			return nil, nil
		}
		return fn(toText(params[0])), nil
	}
}

func mathFn(name string, fn func(float64) float64) Function {
	return func(params ...interface{}) (interface{}, error) {
		if err := arity(name, params, 1, 1); err != nil {
			return nil, err
		}
		if params[0] == nil {
			return nil, nil
		}
		f, err := number(name, params[0])
		if err != nil {
			return nil, err
		}
		return normalizeNumber(round10(fn(f))), nil
	}
}

func slice(name string, params []interface{}, cut func([]rune, int) []rune) (interface{}, error) {
	if err := arity(name, params, 2, 2); err != nil {
		return nil, err
	}
	if params[0] == nil {
		return nil, nil
	}
	f, err := number(name, params[1])
	if err != nil {
		return nil, err
	}
	runes := []rune(toText(params[0]))
	n := int(f)
	if n < 0 {
		n = 0
	}
	if n > len(runes) {
		n = len(runes)
	}
	return string(cut(runes, n)), nil
}

// extreme implements MAX (dir 1) and MIN (dir -1). Nil arguments are ignored.
func extreme(name string, dir int) Function {
	return func(params ...interface{}) (interface{}, error) {
		if err := arity(name, params, 1, -1); err != nil {
			return nil, err
		}
		var best interface{}
		for _, p := range params {
			if p == nil {
				continue
			}
			if best == nil {
				best = p
				continue
			}
			cmp, err := order(p, best)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if cmp*dir > 0 {
				best = p
			}
		}
		if isNumber(best) {
			return normalizeNumber(best), nil
		}
		return best, nil
	}
}
