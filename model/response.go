package model

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ColumnType string

const (
	TypeString    ColumnType = "STRING"
	TypeInteger   ColumnType = "INTEGER"
	TypeBigint    ColumnType = "BIGINT"
	TypeDouble    ColumnType = "DOUBLE"
	TypeDecimal   ColumnType = "DECIMAL"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeDate      ColumnType = "DATE"
	TypeTimestamp ColumnType = "TIMESTAMP"
	TypeTime      ColumnType = "TIME"
	TypeUnknown   ColumnType = "UNKNOWN"
)

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Row is an ordered column -> value mapping. Rows of one response share the
// column slice.
type Row struct {
	columns []string
	values  []any
}

func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

func (r Row) Columns() []string { return r.columns }

func (r Row) Values() []any { return r.values }

func (r Row) Len() int { return len(r.values) }

func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes the row as an object keeping column order.
func (r Row) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)
	stream.WriteObjectStart()
	for i, c := range r.columns {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(c)
		stream.WriteVal(r.values[i])
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

type TabularResponse struct {
	Data       []Row    `json:"data"`
	Columns    []Column `json:"columns"`
	TotalItems int64    `json:"totalItems"`
	QuerySize  int      `json:"querySize"`
}

type ClusterPoint struct {
	Geohash    string              `json:"geohash"`
	Lat        float64             `json:"lat"`
	Lon        float64             `json:"lon"`
	Count      int                 `json:"count"`
	ID         any                 `json:"id"`
	Measures   map[string]*float64 `json:"measures,omitempty"`
	Dimensions map[string][]string `json:"dimensions,omitempty"`
}

type GroupedStats struct {
	Group []string `json:"group"`
	Value float64  `json:"value"`
}

type AxisStats struct {
	Column   string  `json:"column"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"stddev"`
}

// RectStats describes the paired measures over the requested rectangle.
// Derived fields are nil when Count is 0; Correlation is nil when undefined.
type RectStats struct {
	Count       int64      `json:"count"`
	X           *AxisStats `json:"x,omitempty"`
	Y           *AxisStats `json:"y,omitempty"`
	Covariance  *float64   `json:"covariance,omitempty"`
	Correlation *float64   `json:"correlation,omitempty"`
}

type MapCounts struct {
	Rows     int64 `json:"rows"`
	Skipped  int64 `json:"skipped"`
	Buckets  int   `json:"buckets"`
	Clusters int   `json:"clusters"`
}

type MapResponse struct {
	Points    []ClusterPoint            `json:"points"`
	Facets    map[string]map[string]int `json:"facets"`
	Series    []GroupedStats            `json:"series"`
	RectStats RectStats                 `json:"rectStats"`
	Counts    MapCounts                 `json:"counts"`
}
