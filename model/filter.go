package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NoopPredicate is what a filter renders to when it does not restrict anything.
const NoopPredicate = "1=1"

type FieldType string

const (
	FieldInt      FieldType = "int"
	FieldDouble   FieldType = "double"
	FieldDatetime FieldType = "datetime"
	FieldString   FieldType = "string"
	FieldBoolean  FieldType = "boolean"
)

// Filter is a closed set: RangeFilter and EqualsFilter are the only implementations.
type Filter interface {
	ToSQL() string
	Validate() error
	GetColumn() string
	filter()
}

type RangeFilter struct {
	Column string    `json:"column"`
	Min    any       `json:"min,omitempty"`
	Max    any       `json:"max,omitempty"`
	Type   FieldType `json:"type"`
}

func (*RangeFilter) filter() {}

func (f *RangeFilter) GetColumn() string { return f.Column }

func (f *RangeFilter) Validate() error {
	if f.Column == "" {
		return NewCompileErr("range filter without column", nil)
	}
	switch f.Type {
	case FieldInt, FieldDouble, FieldDatetime:
	default:
		return NewCompileErr("unsupported range filter type",
			map[string]any{"column": f.Column, "type": f.Type})
	}
	for _, v := range []any{f.Min, f.Max} {
		if v == nil {
			continue
		}
		if _, err := renderLiteral(f.Type, v); err != nil {
			return NewCompileErr("invalid range bound",
				map[string]any{"column": f.Column, "error": err.Error()})
		}
	}
	return nil
}

// ToSQL expects a validated filter. A filter with no bounds renders NoopPredicate.
func (f *RangeFilter) ToSQL() string {
	col := QuoteIdent(f.Column)
	switch {
	case f.Min != nil && f.Max != nil:
		return fmt.Sprintf("(%s >= %s AND %s <= %s)",
			col, mustLiteral(f.Type, f.Min), col, mustLiteral(f.Type, f.Max))
	case f.Min != nil:
		return fmt.Sprintf("%s >= %s", col, mustLiteral(f.Type, f.Min))
	case f.Max != nil:
		return fmt.Sprintf("%s <= %s", col, mustLiteral(f.Type, f.Max))
	}
	return NoopPredicate
}

type EqualsFilter struct {
	Column string    `json:"column"`
	Value  any       `json:"value"`
	Type   FieldType `json:"type"`
}

func (*EqualsFilter) filter() {}

func (f *EqualsFilter) GetColumn() string { return f.Column }

func (f *EqualsFilter) Validate() error {
	if f.Column == "" {
		return NewCompileErr("equals filter without column", nil)
	}
	switch f.Type {
	case FieldInt, FieldDouble, FieldDatetime, FieldString, FieldBoolean:
	default:
		return NewCompileErr("unsupported equals filter type",
			map[string]any{"column": f.Column, "type": f.Type})
	}
	if f.Value == nil {
		return nil
	}
	if _, err := renderLiteral(f.Type, f.Value); err != nil {
		return NewCompileErr("invalid equals value",
			map[string]any{"column": f.Column, "error": err.Error()})
	}
	return nil
}

func (f *EqualsFilter) ToSQL() string {
	if f.Value == nil {
		return QuoteIdent(f.Column) + " IS NULL"
	}
	return QuoteIdent(f.Column) + " = " + mustLiteral(f.Type, f.Value)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdent is the only place identifiers are written into SQL text. Plain
// identifiers are left as is, anything else is double-quoted with embedded
// quotes doubled.
func QuoteIdent(name string) string {
	if identRe.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func mustLiteral(tp FieldType, v any) string {
	res, err := renderLiteral(tp, v)
	if err != nil {
		return "NULL"
	}
	return res
}

var datetimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func renderLiteral(tp FieldType, v any) (string, error) {
	switch tp {
	case FieldInt:
		i, err := toInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(i, 10), nil
	case FieldDouble:
		f, err := toFloat64(v)
		if err != nil {
			return "", err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("non-finite value %v", f)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case FieldDatetime:
		t, err := toTime(v)
		if err != nil {
			return "", err
		}
		return "TIMESTAMP '" + t.UTC().Format("2006-01-02 15:04:05.999999") + "'", nil
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected string, got %T", v)
		}
		return QuoteString(s), nil
	case FieldBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("expected boolean, got %T", v)
		}
		if b {
			return "TRUE", nil
		}
		return "FALSE", nil
	}
	return "", fmt.Errorf("unsupported type %q", tp)
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toFloat64(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	return float64(i), nil
}

func toTime(v any) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable datetime %q", v)
	}
	// integers are epoch milliseconds
	ms, err := toInt64(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected datetime, got %T", v)
	}
	return time.UnixMilli(ms), nil
}
