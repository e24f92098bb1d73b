package model

// RowScanner is the part of *sql.Rows the streaming consumers need.
type RowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}
