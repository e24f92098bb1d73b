package executor

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/gigapi/gigaview/model"
)

// columnType maps a DuckDB type name onto the response type set.
func columnType(dbType string) model.ColumnType {
	dbType = strings.ToUpper(dbType)
	switch {
	case strings.HasPrefix(dbType, "DECIMAL"):
		return model.TypeDecimal
	case strings.HasPrefix(dbType, "TIMESTAMP"):
		return model.TypeTimestamp
	case strings.HasPrefix(dbType, "TIME"):
		return model.TypeTime
	}
	switch dbType {
	case "VARCHAR", "TEXT", "STRING", "UUID", "ENUM":
		return model.TypeString
	case "TINYINT", "SMALLINT", "INTEGER", "UTINYINT", "USMALLINT":
		return model.TypeInteger
	case "BIGINT", "UINTEGER", "UBIGINT", "HUGEINT", "UHUGEINT":
		return model.TypeBigint
	case "FLOAT", "DOUBLE", "REAL":
		return model.TypeDouble
	case "BOOLEAN":
		return model.TypeBoolean
	case "DATE":
		return model.TypeDate
	}
	return model.TypeUnknown
}

type float64er interface {
	Float64() float64
}

// normalize turns driver values into plain JSON friendly ones.
func normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case *big.Int:
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case time.Time:
		return val
	case float64er:
		return val.Float64()
	case fmt.Stringer:
		return val.String()
	}
	return v
}

func convertRows(rows *sql.Rows) (*model.TabularResponse, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	columns := make([]model.Column, len(names))
	for i, name := range names {
		columns[i] = model.Column{Name: name, Type: columnType(types[i].DatabaseTypeName())}
	}

	data := []model.Row{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = normalize(values[i])
		}
		data = append(data, model.NewRow(names, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &model.TabularResponse{
		Data:      data,
		Columns:   columns,
		QuerySize: len(data),
	}, nil
}
