package formula

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Internal helpers the patcher rewrites operators into. Their names start
// with an underscore so they cannot collide with the public function library.
const (
	fnArith     = "_arith"
	fnCompare   = "_cmp"
	fnBool      = "_bool"
	fnNot       = "_not"
	fnNeg       = "_neg"
	fnChanged   = "_changed"
	fnPrior     = "_prior"
	varPrior    = "__prior"
	varIsNew    = "__isnew"
	scopeRecord = "record"
	scopePrior  = "prior"
	scopeUser   = "user"
)

func arith(params ...interface{}) (interface{}, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("arithmetic requires 2 operands")
	}
	op, _ := params[0].(string)
	l, r := params[1], params[2]

	if op == "+" && (isString(l) || isString(r)) && !(isNumber(l) || isNumber(r)) {
		if l == nil && r == nil {
			return nil, nil
		}
		return toText(l) + toText(r), nil
	}
	if l == nil || r == nil {
		return nil, nil
	}
	if op == "+" && (isString(l) || isString(r)) {
		return toText(l) + toText(r), nil
	}

	if lt, ok := l.(time.Time); ok && (op == "+" || op == "-") {
		if days, ok := toFloat(r); ok && isNumber(r) {
			if op == "-" {
				days = -days
			}
			return lt.Add(time.Duration(days * float64(24*time.Hour))), nil
		}
		if rt, ok := r.(time.Time); ok && op == "-" {
			return round10(lt.Sub(rt).Hours() / 24), nil
		}
	}

	if isInteger(l) && isInteger(r) {
		a, _ := toInt64(l)
		b, _ := toInt64(r)
		switch op {
		case "+":
			return int(a + b), nil
		case "-":
			return int(a - b), nil
		case "*":
			return int(a * b), nil
		case "%":
			if b == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return int(a % b), nil
		}
	}

	a, okA := toFloat(l)
	b, okB := toFloat(r)
	if !okA || !okB {
		return nil, fmt.Errorf("invalid operation: %T %s %T", l, op, r)
	}
	switch op {
	case "+":
		return round10(a + b), nil
	case "-":
		return round10(a - b), nil
	case "*":
		return round10(a * b), nil
	case "/":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return round10(a / b), nil
	case "%":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return round10(math.Mod(a, b)), nil
	case "**", "^":
		return round10(math.Pow(a, b)), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

func compare(params ...interface{}) (interface{}, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("comparison requires 2 operands")
	}
	op, _ := params[0].(string)
	l, r := params[1], params[2]
	if l == nil || r == nil {
		return false, nil
	}

	switch op {
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	}

	cmp, err := order(l, r)
	if err != nil {
		return nil, err
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

// order returns -1, 0 or 1. Numbers compare numerically, dates by instant and
// strings lexically.
func order(l, r interface{}) (int, error) {
	if isNumber(l) || isNumber(r) {
		a, okA := toFloat(l)
		b, okB := toFloat(r)
		if okA && okB {
			return sign(round10(a) - round10(b)), nil
		}
	}
	_, lIsTime := l.(time.Time)
	_, rIsTime := r.(time.Time)
	if lIsTime || rIsTime {
		a, okA := toTime(l)
		b, okB := toTime(r)
		if okA && okB {
			switch {
			case a.Before(b):
				return -1, nil
			case a.After(b):
				return 1, nil
			}
			return 0, nil
		}
	}
	if isString(l) && isString(r) {
		return strings.Compare(toText(l), toText(r)), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", l, r)
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	}
	return 0
}

func boolOf(params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("condition requires 1 operand")
	}
	return truthy(params[0])
}

func not(params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("NOT requires 1 argument")
	}
	if params[0] == nil {
		return nil, nil
	}
	b, err := truthy(params[0])
	if err != nil {
		return nil, err
	}
	return !b, nil
}

func negate(params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("negation requires 1 operand")
	}
	v := params[0]
	if v == nil {
		return nil, nil
	}
	if isInteger(v) {
		i, _ := toInt64(v)
		return int(-i), nil
	}
	if f, ok := toFloat(v); ok && isNumber(v) {
		return round10(-f), nil
	}
	return nil, fmt.Errorf("cannot negate %T", v)
}

// changed reports whether a field differs from its prior value. Without a
// prior record (inserts) nothing has changed.
func changed(params ...interface{}) (interface{}, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("ISCHANGED requires 1 field argument")
	}
	prior, ok := params[1].(map[string]interface{})
	if !ok || prior == nil {
		return false, nil
	}
	field, _ := params[2].(string)
	return !equalValues(params[0], prior[field]), nil
}

func priorValue(params ...interface{}) (interface{}, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("PRIORVALUE requires 1 field argument")
	}
	prior, ok := params[0].(map[string]interface{})
	if !ok || prior == nil {
		return nil, nil
	}
	field, _ := params[1].(string)
	return prior[field], nil
}
