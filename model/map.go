package model

import "fmt"

const DefaultGeohashPrecision uint = 9

// Rectangle is the visible map area.
type Rectangle struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

func (r *Rectangle) Validate() error {
	if r.MinLat > r.MaxLat || r.MinLon > r.MaxLon {
		return NewCompileErr("inverted rectangle", map[string]any{"rect": *r})
	}
	if r.MinLat < -90 || r.MaxLat > 90 || r.MinLon < -180 || r.MaxLon > 180 {
		return NewCompileErr("rectangle out of bounds", map[string]any{"rect": *r})
	}
	return nil
}

// Filters expresses the rectangle as two inclusive range filters.
func (r *Rectangle) Filters(lat, lon string) []Filter {
	return []Filter{
		&RangeFilter{Column: lat, Min: r.MinLat, Max: r.MaxLat, Type: FieldDouble},
		&RangeFilter{Column: lon, Min: r.MinLon, Max: r.MaxLon, Type: FieldDouble},
	}
}

type MapRequest struct {
	DataRequest
	Rect *Rectangle `json:"rect,omitempty"`
	Lat  string     `json:"lat"`
	Lon  string     `json:"lon"`
	ID   string     `json:"id,omitempty"`
	// Measures are averaged inside clusters.
	Measures []string `json:"measures,omitempty"`
	// Measure feeds the per-group series, aggregated with Aggregation.
	Measure     string   `json:"measure,omitempty"`
	Aggregation string   `json:"aggregation,omitempty"`
	Paired      []string `json:"paired,omitempty"`
	Dimensions  []string `json:"dimensions,omitempty"`
	Precision   uint     `json:"precision,omitempty"`
}

func (r *MapRequest) Validate() error {
	if r.Lat == "" || r.Lon == "" {
		return NewCompileErr("lat and lon columns are required", nil)
	}
	if len(r.Paired) != 0 && len(r.Paired) != 2 {
		return NewCompileErr(fmt.Sprintf("paired measures need exactly 2 columns, got %d", len(r.Paired)), nil)
	}
	if r.Measure != "" {
		if _, err := ParseAggFunc(r.Aggregation); err != nil {
			return err
		}
	}
	if r.Precision > 12 {
		return NewCompileErr("geohash precision above 12", map[string]any{"precision": r.Precision})
	}
	if r.Rect != nil {
		if err := r.Rect.Validate(); err != nil {
			return err
		}
	}
	return r.DataRequest.Validate()
}

// ProjectedColumns lists every column the aggregator reads, without duplicates.
func (r *MapRequest) ProjectedColumns() []string {
	var res []string
	seen := make(map[string]bool)
	add := func(cols ...string) {
		for _, c := range cols {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			res = append(res, c)
		}
	}
	add(r.Lat, r.Lon, r.ID)
	add(r.Measures...)
	add(r.Measure)
	add(r.GroupBy...)
	add(r.Paired...)
	add(r.Dimensions...)
	return res
}
