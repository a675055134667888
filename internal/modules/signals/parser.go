// Package signals evaluates external signal rules against cached readings.
// Conditions follow a deliberately small grammar: `value OP number`, where
// OP is one of <, <=, >, >=, ==, !=. There are no variables besides `value`
// and no boolean connectives.
package signals

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison operator in a parsed condition
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// ParsedCondition is the structured form of a condition string
type ParsedCondition struct {
	Operator  Operator
	Threshold float64
}

// ParseCondition parses a condition string like "value < 25".
// Whitespace around tokens is ignored; anything outside the grammar is an error.
func ParseCondition(s string) (ParsedCondition, error) {
	rest := strings.TrimSpace(s)
	if rest == "" {
		return ParsedCondition{}, fmt.Errorf("empty condition")
	}

	if !strings.HasPrefix(rest, "value") {
		return ParsedCondition{}, fmt.Errorf("condition %q must start with the keyword \"value\"", s)
	}
	rest = strings.TrimSpace(rest[len("value"):])

	op, rest, err := readOperator(rest)
	if err != nil {
		return ParsedCondition{}, fmt.Errorf("condition %q: %w", s, err)
	}

	rest = strings.TrimSpace(rest)
	threshold, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return ParsedCondition{}, fmt.Errorf("condition %q: invalid threshold %q", s, rest)
	}

	return ParsedCondition{Operator: op, Threshold: threshold}, nil
}

// readOperator consumes a comparison operator from the front of s
func readOperator(s string) (Operator, string, error) {
	switch {
	case strings.HasPrefix(s, "<="):
		return OpLessEqual, s[2:], nil
	case strings.HasPrefix(s, ">="):
		return OpGreaterEqual, s[2:], nil
	case strings.HasPrefix(s, "=="):
		return OpEqual, s[2:], nil
	case strings.HasPrefix(s, "!="):
		return OpNotEqual, s[2:], nil
	case strings.HasPrefix(s, "<"):
		return OpLess, s[1:], nil
	case strings.HasPrefix(s, ">"):
		return OpGreater, s[1:], nil
	case s == "":
		return "", "", fmt.Errorf("missing operator")
	default:
		return "", "", fmt.Errorf("unknown operator")
	}
}

// Matches applies the condition to a signal value
func (c ParsedCondition) Matches(value float64) bool {
	switch c.Operator {
	case OpLess:
		return value < c.Threshold
	case OpLessEqual:
		return value <= c.Threshold
	case OpGreater:
		return value > c.Threshold
	case OpGreaterEqual:
		return value >= c.Threshold
	case OpEqual:
		return value == c.Threshold
	case OpNotEqual:
		return value != c.Threshold
	default:
		return false
	}
}
