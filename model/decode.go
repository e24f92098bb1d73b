package model

import (
	"fmt"
	"strings"

	"github.com/go-faster/jx"
)

// DecodeDataRequest parses a JSON request body.
func DecodeDataRequest(body []byte) (*DataRequest, error) {
	req := &DataRequest{}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		ok, err := decodeDataRequestField(d, key, req)
		if err != nil || ok {
			return err
		}
		return d.Skip()
	})
	if err != nil {
		return nil, NewCompileErr("malformed request body", map[string]any{"error": err.Error()})
	}
	return req, nil
}

// DecodeMapRequest parses a JSON map request body. Data request fields sit at
// the top level next to the map specific ones.
func DecodeMapRequest(body []byte) (*MapRequest, error) {
	req := &MapRequest{}
	err := jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		ok, err := decodeDataRequestField(d, key, &req.DataRequest)
		if err != nil || ok {
			return err
		}
		switch key {
		case "rect":
			req.Rect = &Rectangle{}
			return decodeRect(d, req.Rect)
		case "lat":
			req.Lat, err = d.Str()
		case "lon":
			req.Lon, err = d.Str()
		case "id":
			req.ID, err = d.Str()
		case "measures":
			req.Measures, err = decodeStrings(d)
		case "measure":
			req.Measure, err = d.Str()
		case "aggregation":
			req.Aggregation, err = d.Str()
		case "paired":
			req.Paired, err = decodeStrings(d)
		case "dimensions":
			req.Dimensions, err = decodeStrings(d)
		case "precision":
			var p int
			p, err = d.Int()
			if err == nil && p < 0 {
				err = fmt.Errorf("negative precision %d", p)
			}
			req.Precision = uint(p)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, NewCompileErr("malformed request body", map[string]any{"error": err.Error()})
	}
	return req, nil
}

func decodeDataRequestField(d *jx.Decoder, key string, req *DataRequest) (bool, error) {
	var err error
	switch key {
	case "dataSource":
		if d.Next() == jx.Null {
			return true, d.Null()
		}
		req.DataSource = &DataSource{}
		err = decodeDataSource(d, req.DataSource)
	case "dataset":
		req.Dataset, err = d.Str()
	case "columns":
		req.Columns, err = decodeStrings(d)
	case "groupBy":
		req.GroupBy, err = decodeStrings(d)
	case "filters":
		err = d.Arr(func(d *jx.Decoder) error {
			f, err := decodeFilter(d)
			if err != nil {
				return err
			}
			req.Filters = append(req.Filters, f)
			return nil
		})
	case "aggregations":
		err = d.Arr(func(d *jx.Decoder) error {
			var a Aggregation
			err := d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "column":
					col, err := d.Str()
					a.Column = col
					return err
				case "function":
					fn, err := d.Str()
					a.Function = AggFunc(strings.ToLower(fn))
					return err
				}
				return d.Skip()
			})
			req.Aggregations = append(req.Aggregations, a)
			return err
		})
	case "limit":
		req.Limit, err = decodeOptInt(d)
	case "offset":
		req.Offset, err = decodeOptInt(d)
	default:
		return false, nil
	}
	return true, err
}

func decodeDataSource(d *jx.Decoder, src *DataSource) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "source":
			src.Source, err = d.Str()
		case "sourceType", "type":
			var tp string
			tp, err = d.Str()
			src.SourceType = SourceType(strings.ToLower(tp))
		case "format":
			var f string
			f, err = d.Str()
			src.Format = strings.ToLower(f)
		default:
			return d.Skip()
		}
		return err
	})
}

func decodeRect(d *jx.Decoder, r *Rectangle) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "minLat":
			r.MinLat, err = d.Float64()
		case "minLon":
			r.MinLon, err = d.Float64()
		case "maxLat":
			r.MaxLat, err = d.Float64()
		case "maxLon":
			r.MaxLon, err = d.Float64()
		default:
			return d.Skip()
		}
		return err
	})
}

// decodeFilter reads {"filterType":"range"|"equals", "column", "type", ...}.
// Without filterType a filter carrying "value" is an equality, otherwise a range.
// Literal values are kept raw until the field type is known.
func decodeFilter(d *jx.Decoder) (Filter, error) {
	var (
		kind, column string
		tp           FieldType
		raw          = map[string]jx.Raw{}
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "filterType", "kind":
			kind, err = d.Str()
			kind = strings.ToLower(kind)
		case "column":
			column, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			tp = FieldType(strings.ToLower(s))
		case "min", "max", "value":
			raw[key], err = d.Raw()
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if kind == "" {
		kind = "range"
		if _, ok := raw["value"]; ok {
			kind = "equals"
		}
	}
	literal := func(key string) (any, error) {
		r, ok := raw[key]
		if !ok {
			return nil, nil
		}
		return decodeLiteral(r, tp)
	}
	switch kind {
	case "range":
		f := &RangeFilter{Column: column, Type: tp}
		if f.Min, err = literal("min"); err != nil {
			return nil, err
		}
		if f.Max, err = literal("max"); err != nil {
			return nil, err
		}
		return f, nil
	case "equals":
		f := &EqualsFilter{Column: column, Type: tp}
		if f.Value, err = literal("value"); err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown filter kind %q", kind)
}

func decodeLiteral(raw jx.Raw, tp FieldType) (any, error) {
	d := jx.DecodeBytes(raw)
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		return d.Str()
	case jx.Bool:
		return d.Bool()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		if tp == FieldInt || tp == FieldDatetime || (tp != FieldDouble && n.IsInt()) {
			return n.Int64()
		}
		return n.Float64()
	}
	return nil, fmt.Errorf("unsupported literal %s", raw.String())
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	res := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		res = append(res, s)
		return err
	})
	return res, err
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}
