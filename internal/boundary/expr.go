package boundary

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// condition is a parsed compound-boundary guard: one or more comparisons
// joined by "&&", e.g. `weather == rain && altitude > 120`.
type condition struct {
	terms []term
}

type term struct {
	param string
	op    string
	num   float64
	isNum bool
	text  string
}

// operators are matched longest first so "<=" is not read as "<".
var operators = []string{"==", "!=", "<=", ">=", "<", ">"}

func parseCondition(expr string) (*condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("condition_expr is required")
	}
	var c condition
	for _, part := range strings.Split(expr, "&&") {
		t, err := parseTerm(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		c.terms = append(c.terms, t)
	}
	return &c, nil
}

func parseTerm(s string) (term, error) {
	if s == "" {
		return term{}, errors.New("condition_expr has an empty clause")
	}
	for _, op := range operators {
		idx := strings.Index(s, op)
		if idx <= 0 {
			continue
		}
		param := strings.TrimSpace(s[:idx])
		lit := strings.TrimSpace(s[idx+len(op):])
		if param == "" || lit == "" || strings.ContainsAny(param, " \t") {
			return term{}, fmt.Errorf("malformed clause %q", s)
		}
		t := term{param: param, op: op}
		if unq, ok := unquote(lit); ok {
			t.text = unq
		} else if f, err := strconv.ParseFloat(lit, 64); err == nil {
			t.num, t.isNum = f, true
		} else {
			t.text = lit
		}
		if !t.isNum && op != "==" && op != "!=" {
			return term{}, fmt.Errorf("operator %s needs a numeric literal in %q", op, s)
		}
		return t, nil
	}
	return term{}, fmt.Errorf("no comparison operator in %q", s)
}

func unquote(lit string) (string, bool) {
	if len(lit) >= 2 {
		first, last := lit[0], lit[len(lit)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return lit[1 : len(lit)-1], true
		}
	}
	return "", false
}

// holds reports whether every clause is satisfied. A clause over a parameter
// the sample does not carry is false.
func (c *condition) holds(s Sample) bool {
	for _, t := range c.terms {
		if !t.holds(s) {
			return false
		}
	}
	return true
}

func (t term) holds(s Sample) bool {
	if t.isNum {
		v, present, err := s.Number(t.param)
		if !present || err != nil {
			return false
		}
		switch t.op {
		case "==":
			return v == t.num
		case "!=":
			return v != t.num
		case "<":
			return v < t.num
		case "<=":
			return v <= t.num
		case ">":
			return v > t.num
		case ">=":
			return v >= t.num
		}
		return false
	}
	v, ok := s.Text(t.param)
	if !ok {
		return false
	}
	if t.op == "!=" {
		return v != t.text
	}
	return v == t.text
}
