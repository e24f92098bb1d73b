package stdin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gigapi/gigaview/model"
	"github.com/gigapi/gigaview/utils"
)

// Querier runs one tabular request.
type Querier interface {
	Query(ctx context.Context, req *model.DataRequest) (*model.TabularResponse, error)
}

// Run reads one request from in, executes it and prints the result to out in
// the given output format.
func Run(ctx context.Context, q Querier, in io.Reader, out io.Writer, format string) error {
	content, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("error reading from stdin: %w", err)
	}
	req, err := model.DecodeDataRequest(content)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := q.Query(ctx, req)
	if err != nil {
		return err
	}
	result, err := utils.FormatTabular(res, format, time.Since(start))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, result)
	return err
}
