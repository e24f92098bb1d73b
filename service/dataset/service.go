package dataset

import (
	"context"

	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/service/executor"
	"github.com/gigapi/gigaview/service/geo"
	"github.com/gigapi/gigaview/service/query"
)

// Locator turns a data source into a readable local path.
type Locator interface {
	Resolve(ctx context.Context, src model.DataSource) (string, error)
}

// Catalog resolves dataset names.
type Catalog interface {
	Lookup(name string) (*model.DataSource, bool)
}

// Service answers tabular and map requests over file datasets.
type Service struct {
	Locator    Locator
	Executor   *executor.Executor
	Catalog    Catalog
	Aggregator geo.Aggregator
}

// source prefers an inline data source over a catalog name.
func (s *Service) source(req *model.DataRequest) (*model.DataSource, error) {
	if req.DataSource != nil {
		return req.DataSource, nil
	}
	if s.Catalog != nil {
		if src, ok := s.Catalog.Lookup(req.Dataset); ok {
			return src, nil
		}
	}
	return nil, model.NewCompileErr("unknown dataset", map[string]any{"dataset": req.Dataset})
}

func (s *Service) locate(ctx context.Context, req *model.DataRequest) (string, query.FileType, error) {
	src, err := s.source(req)
	if err != nil {
		return "", "", err
	}
	filePath, err := s.Locator.Resolve(ctx, *src)
	if err != nil {
		return "", "", err
	}
	fileType, err := query.ParseFileType(src.Format, filePath)
	if err != nil {
		return "", "", err
	}
	return filePath, fileType, nil
}

func (s *Service) Query(ctx context.Context, req *model.DataRequest) (*model.TabularResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filePath, fileType, err := s.locate(ctx, req)
	if err != nil {
		return nil, err
	}
	q, err := query.Build(req, filePath, fileType)
	if err != nil {
		return nil, err
	}
	return s.Executor.Execute(ctx, q).GetContext(ctx)
}

// Map reads the rows inside the rectangle once and bins them. Only the
// columns the aggregator reads are selected; grouping happens in the
// aggregator, not in SQL.
func (s *Service) Map(ctx context.Context, req *model.MapRequest) (*model.MapResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filePath, fileType, err := s.locate(ctx, &req.DataRequest)
	if err != nil {
		return nil, err
	}
	scan := model.DataRequest{
		Columns: req.ProjectedColumns(),
		Filters: append([]model.Filter{}, req.Filters...),
	}
	if req.Rect != nil {
		scan.Filters = append(scan.Filters, req.Rect.Filters(req.Lat, req.Lon)...)
	}
	stmt, err := query.Compile(&scan, filePath, fileType)
	if err != nil {
		return nil, err
	}
	return executor.Stream(s.Executor, ctx, stmt, func(rows model.RowScanner) (*model.MapResponse, error) {
		return s.Aggregator.Aggregate(rows, req)
	}).GetContext(ctx)
}
