package query

import (
	"strconv"
	"strings"

	"github.com/gigapi/gigaview/model"
)

// Query is the pair of statements run for one tabular request.
type Query struct {
	SQL      string
	CountSQL string
}

// Build compiles the paginated statement and its row count statement.
func Build(req *model.DataRequest, filePath string, fileType FileType) (Query, error) {
	base, err := compileBase(req, filePath, fileType)
	if err != nil {
		return Query{}, err
	}
	return Query{
		SQL:      paginate(base, req.Limit, req.Offset),
		CountSQL: countOf(base),
	}, nil
}

// Compile renders req as a single statement, LIMIT/OFFSET included.
func Compile(req *model.DataRequest, filePath string, fileType FileType) (string, error) {
	base, err := compileBase(req, filePath, fileType)
	if err != nil {
		return "", err
	}
	return paginate(base, req.Limit, req.Offset), nil
}

// CompileCount counts the rows of req before pagination.
func CompileCount(req *model.DataRequest, filePath string, fileType FileType) (string, error) {
	base, err := compileBase(req, filePath, fileType)
	if err != nil {
		return "", err
	}
	return countOf(base), nil
}

func countOf(base string) string {
	return "SELECT COUNT(*) FROM (" + base + ") AS t"
}

func compileBase(req *model.DataRequest, filePath string, fileType FileType) (string, error) {
	scan, err := scanExpr(fileType, filePath)
	if err != nil {
		return "", err
	}
	for _, a := range req.Aggregations {
		if err := a.Validate(); err != nil {
			return "", err
		}
	}
	where := whereClause(req.Filters)
	groupBy := quoteAll(req.GroupBy)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if req.IsAggregate() {
		// aggregate straight off the scan, no subquery
		exprs := make([]string, 0, len(groupBy)+len(req.Aggregations))
		exprs = append(exprs, groupBy...)
		for _, a := range req.Aggregations {
			exprs = append(exprs, a.Expr()+" AS "+a.Alias())
		}
		sb.WriteString(strings.Join(exprs, ", "))
	} else if len(req.Columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(quoteAll(req.Columns), ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(scan)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if len(groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groupBy, ", "))
	}
	return sb.String(), nil
}

// whereClause joins the filter predicates, skipping the ones that do not
// restrict anything. Returns "" when nothing is left.
func whereClause(filters []model.Filter) string {
	var preds []string
	for _, f := range filters {
		if f == nil {
			continue
		}
		sql := f.ToSQL()
		if sql == model.NoopPredicate || sql == "" {
			continue
		}
		preds = append(preds, sql)
	}
	return strings.Join(preds, " AND ")
}

// paginate appends LIMIT and OFFSET. OFFSET is honored without LIMIT as well.
func paginate(sql string, limit, offset *int) string {
	if limit != nil {
		sql += " LIMIT " + strconv.Itoa(*limit)
	}
	if offset != nil {
		sql += " OFFSET " + strconv.Itoa(*offset)
	}
	return sql
}

func quoteAll(names []string) []string {
	res := make([]string, len(names))
	for i, n := range names {
		res[i] = model.QuoteIdent(n)
	}
	return res
}
