package query

import (
	"path"
	"strings"

	"github.com/gigapi/gigaview/model"
)

type FileType string

const (
	CSV     FileType = "csv"
	Parquet FileType = "parquet"
	JSON    FileType = "json"
)

var extensions = map[string]FileType{
	".csv":     CSV,
	".tsv":     CSV,
	".txt":     CSV,
	".parquet": Parquet,
	".pq":      Parquet,
	".json":    JSON,
	".jsonl":   JSON,
	".ndjson":  JSON,
}

// ParseFileType picks the scan function for a dataset. An explicit format wins
// over the file extension; compression suffixes are ignored.
func ParseFileType(format string, filePath string) (FileType, error) {
	if format != "" {
		switch tp := FileType(strings.ToLower(format)); tp {
		case CSV, Parquet, JSON:
			return tp, nil
		}
		return "", model.NewCompileErr("unsupported file format", map[string]any{"format": format})
	}
	name := strings.ToLower(path.Base(filePath))
	for _, suffix := range []string{".gz", ".zst"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if tp, ok := extensions[path.Ext(name)]; ok {
		return tp, nil
	}
	return "", model.NewCompileErr("cannot infer file format", map[string]any{"path": filePath})
}

// scanExpr is the table function reading filePath.
func scanExpr(fileType FileType, filePath string) (string, error) {
	lit := model.QuoteString(filePath)
	switch fileType {
	case CSV:
		return "read_csv_auto(" + lit + ")", nil
	case Parquet:
		return "read_parquet(" + lit + ")", nil
	case JSON:
		return "read_json_auto(" + lit + ")", nil
	}
	return "", model.NewCompileErr("unknown file type", map[string]any{"type": fileType})
}
