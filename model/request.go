package model

import "fmt"

type SourceType string

const (
	SourceLocal  SourceType = "local"
	SourceRemote SourceType = "remote"
)

// DataSource identifies where the bytes of a dataset live and how to read them.
type DataSource struct {
	Source     string     `json:"source" yaml:"source"`
	SourceType SourceType `json:"sourceType" yaml:"type"`
	Format     string     `json:"format" yaml:"format"`
}

func (d *DataSource) Validate() error {
	if d == nil {
		return NewCompileErr("data source is required", nil)
	}
	if d.Source == "" {
		return NewCompileErr("data source is empty", nil)
	}
	switch d.SourceType {
	case SourceLocal, SourceRemote:
		return nil
	}
	return NewCompileErr("unknown source type", map[string]any{"type": d.SourceType})
}

type DataRequest struct {
	DataSource   *DataSource   `json:"dataSource,omitempty"`
	Dataset      string        `json:"dataset,omitempty"`
	Columns      []string      `json:"columns,omitempty"`
	Filters      []Filter      `json:"filters,omitempty"`
	GroupBy      []string      `json:"groupBy,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	Limit        *int          `json:"limit,omitempty"`
	Offset       *int          `json:"offset,omitempty"`
}

// Validate checks the request shape. Column existence is checked by the engine.
func (r *DataRequest) Validate() error {
	if r.DataSource == nil && r.Dataset == "" {
		return NewCompileErr("either dataSource or dataset is required", nil)
	}
	if r.DataSource != nil {
		if err := r.DataSource.Validate(); err != nil {
			return err
		}
	}
	for i, f := range r.Filters {
		if f == nil {
			return NewCompileErr("nil filter", map[string]any{"index": i})
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, a := range r.Aggregations {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	if r.Limit != nil && *r.Limit < 0 {
		return NewCompileErr(fmt.Sprintf("negative limit %d", *r.Limit), nil)
	}
	if r.Offset != nil && *r.Offset < 0 {
		return NewCompileErr(fmt.Sprintf("negative offset %d", *r.Offset), nil)
	}
	return nil
}

// IsAggregate is true whenever aggregations are present, with or without GroupBy.
func (r *DataRequest) IsAggregate() bool {
	return len(r.Aggregations) > 0
}
