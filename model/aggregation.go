package model

import (
	"strings"
)

type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggCount AggFunc = "count"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// ParseAggFunc is case-insensitive.
func ParseAggFunc(name string) (AggFunc, error) {
	switch f := AggFunc(strings.ToLower(name)); f {
	case AggSum, AggAvg, AggCount, AggMin, AggMax:
		return f, nil
	}
	return "", NewCompileErr("unsupported aggregation function", map[string]any{"function": name})
}

type Aggregation struct {
	Column   string  `json:"column"`
	Function AggFunc `json:"function"`
}

func (a Aggregation) Validate() error {
	if a.Column == "" {
		return NewCompileErr("aggregation without column", nil)
	}
	if _, err := ParseAggFunc(string(a.Function)); err != nil {
		return err
	}
	if a.Column == "*" && AggFunc(strings.ToLower(string(a.Function))) != AggCount {
		return NewCompileErr("only count accepts *", map[string]any{"function": a.Function})
	}
	return nil
}

// Expr renders the aggregate expression, e.g. AVG(temp) or COUNT(*).
func (a Aggregation) Expr() string {
	col := "*"
	if a.Column != "*" {
		col = QuoteIdent(a.Column)
	}
	return strings.ToUpper(string(a.Function)) + "(" + col + ")"
}

// Alias is a plain identifier usable without quoting: avg_temp, count_all.
func (a Aggregation) Alias() string {
	col := "all"
	if a.Column != "*" {
		col = a.Column
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(string(a.Function)))
	b.WriteByte('_')
	for _, r := range col {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
