package model

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CompileErr marks a request the compiler cannot turn into SQL. Never retried.
	CompileErr = "CompileErr"
	// OverloadErr marks a permit timeout or a full worker queue. Safe to retry later.
	OverloadErr = "OverloadErr"
	// EngineErr marks a failure reported by the embedded engine.
	EngineErr = "EngineErr"
	// CacheErr marks a failed download or an asset that does not fit the cache.
	CacheErr = "CacheErr"
)

type Err struct {
	Code  string
	Title string
	Data  map[string]any
	Err   error
}

func (e *Err) Error() string {
	fields := []string{
		e.Code + ": " + e.Title,
	}
	for k, v := range e.Data {
		fields = append(fields, fmt.Sprintf("%s = %+v", k, v))
	}
	if e.Err != nil {
		fields = append(fields, e.Err.Error())
	}
	return strings.Join(fields, "; ")
}

func (e *Err) Unwrap() error {
	return e.Err
}

// ErrIs reports whether any error in err's chain is an *Err with the given code.
func ErrIs(err error, code string) bool {
	var e *Err
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// ErrCode returns the code of the first *Err in the chain or "".
func ErrCode(err error) string {
	var e *Err
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

func NewCompileErr(title string, data map[string]any) error {
	return &Err{Code: CompileErr, Title: title, Data: data}
}

func NewOverloadErr(title string, err error) error {
	return &Err{Code: OverloadErr, Title: title, Err: err}
}

func NewEngineErr(title string, err error) error {
	return &Err{Code: EngineErr, Title: title, Err: err}
}

func NewCacheErr(title string, data map[string]any, err error) error {
	return &Err{Code: CacheErr, Title: title, Data: data, Err: err}
}
