package utils

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/gigapi/gigaview/model"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type compactOutput struct {
	Meta       []model.Column `json:"meta"`
	Data       [][]any        `json:"data"`
	Rows       int            `json:"rows"`
	TotalItems int64          `json:"rows_before_limit_at_least"`
	Statistics struct {
		Elapsed float64 `json:"elapsed"`
	} `json:"statistics"`
}

// FormatTabular renders a response in one of the output formats.
func FormatTabular(res *model.TabularResponse, format string, elapsed time.Duration) (string, error) {
	switch format {
	case "", "JSON":
		data, err := json.Marshal(res)
		return string(data), err
	case "JSONCompact":
		out := compactOutput{
			Meta:       res.Columns,
			Data:       make([][]any, len(res.Data)),
			Rows:       res.QuerySize,
			TotalItems: res.TotalItems,
		}
		for i, row := range res.Data {
			out.Data[i] = row.Values()
		}
		out.Statistics.Elapsed = elapsed.Seconds()
		data, err := json.Marshal(out)
		return string(data), err
	case "CSV", "CSVWithNames":
		return delimited(res, ',', format == "CSVWithNames")
	case "TSV", "TabSeparated", "TSVWithNames", "TabSeparatedWithNames":
		return delimited(res, '\t', strings.HasSuffix(format, "WithNames"))
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

func delimited(res *model.TabularResponse, sep rune, names bool) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = sep
	if names {
		header := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			header[i] = c.Name
		}
		if err := w.Write(header); err != nil {
			return "", err
		}
	}
	for _, row := range res.Data {
		line := make([]string, row.Len())
		for i, v := range row.Values() {
			line[i] = formatValue(v)
		}
		if err := w.Write(line); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}
