package geo

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/gigapi/gigaview/model"
	"github.com/mmcloughlin/geohash"
)

// groupSep joins group-by values into one map key.
const groupSep = "\x1f"

type point struct {
	lat, lon float64
	id       any
	measures []*float64
	dims     []*string
}

type bucket struct {
	hash  string
	first point
	count int
	sums  []float64
	seen  []int
	dims  []map[string]struct{}
}

func newBucket(hash string, nMeasures, nDims int) *bucket {
	b := &bucket{
		hash: hash,
		sums: make([]float64, nMeasures),
		seen: make([]int, nMeasures),
		dims: make([]map[string]struct{}, nDims),
	}
	for i := range b.dims {
		b.dims[i] = map[string]struct{}{}
	}
	return b
}

func (b *bucket) add(p point) {
	if b.count == 0 {
		b.first = p
	}
	b.count++
	for i, m := range p.measures {
		if m != nil {
			b.sums[i] += *m
			b.seen[i]++
		}
	}
	for i, d := range p.dims {
		if d != nil {
			b.dims[i][*d] = struct{}{}
		}
	}
}

type group struct {
	values []string
	acc    Accumulator
}

// columnIndex resolves the positions of the requested columns in the result.
type columnIndex map[string]int

func (c columnIndex) lookup(name string) (int, error) {
	i, ok := c[name]
	if !ok {
		return 0, model.NewCompileErr("column missing from result", map[string]any{"column": name})
	}
	return i, nil
}

func (c columnIndex) lookupAll(names []string) ([]int, error) {
	res := make([]int, len(names))
	for j, n := range names {
		i, err := c.lookup(n)
		if err != nil {
			return nil, err
		}
		res[j] = i
	}
	return res, nil
}

// Aggregator bins result rows into geohash cells in one streaming pass.
type Aggregator struct {
	// Precision is used when the request does not set one.
	Precision uint
}

// Aggregate uses the default geohash precision.
func Aggregate(rows model.RowScanner, req *model.MapRequest) (*model.MapResponse, error) {
	return Aggregator{}.Aggregate(rows, req)
}

func (a Aggregator) Aggregate(rows model.RowScanner, req *model.MapRequest) (*model.MapResponse, error) {
	var aggFn model.AggFunc
	if req.Measure != "" {
		fn, err := model.ParseAggFunc(req.Aggregation)
		if err != nil {
			return nil, err
		}
		aggFn = fn
	}
	precision := req.Precision
	if precision == 0 {
		precision = a.Precision
	}
	if precision == 0 {
		precision = model.DefaultGeohashPrecision
	}

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	idx := columnIndex{}
	for i, n := range names {
		idx[n] = i
	}
	latIdx, err := idx.lookup(req.Lat)
	if err != nil {
		return nil, err
	}
	lonIdx, err := idx.lookup(req.Lon)
	if err != nil {
		return nil, err
	}
	idIdx := -1
	if req.ID != "" {
		if idIdx, err = idx.lookup(req.ID); err != nil {
			return nil, err
		}
	}
	measureIdx, err := idx.lookupAll(req.Measures)
	if err != nil {
		return nil, err
	}
	groupIdx, err := idx.lookupAll(req.GroupBy)
	if err != nil {
		return nil, err
	}
	dimIdx, err := idx.lookupAll(req.Dimensions)
	if err != nil {
		return nil, err
	}
	valueIdx := -1
	if req.Measure != "" {
		if valueIdx, err = idx.lookup(req.Measure); err != nil {
			return nil, err
		}
	}
	var pairIdx []int
	if len(req.Paired) == 2 {
		if pairIdx, err = idx.lookupAll(req.Paired); err != nil {
			return nil, err
		}
	}

	var (
		counts  model.MapCounts
		buckets = map[string]*bucket{}
		groups  = map[string]*group{}
		facets  = map[string]map[string]int{}
		paired  PairedAccumulator
		values  = make([]any, len(names))
		ptrs    = make([]any, len(names))
	)
	for i := range values {
		ptrs[i] = &values[i]
	}
	for _, d := range req.Dimensions {
		facets[d] = map[string]int{}
	}

	for rows.Next() {
		for i := range values {
			values[i] = nil
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		counts.Rows++

		lat, okLat := toFloat(values[latIdx])
		lon, okLon := toFloat(values[lonIdx])
		if !okLat || !okLon || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			counts.Skipped++
			continue
		}

		p := point{lat: lat, lon: lon}
		if idIdx >= 0 {
			p.id = plain(values[idIdx])
		}
		p.measures = make([]*float64, len(measureIdx))
		for j, i := range measureIdx {
			if v, ok := toFloat(values[i]); ok {
				p.measures[j] = &v
			}
		}
		p.dims = make([]*string, len(dimIdx))
		for j, i := range dimIdx {
			if s, ok := toString(values[i]); ok {
				p.dims[j] = &s
				facets[req.Dimensions[j]][s]++
			}
		}

		hash := geohash.EncodeWithPrecision(lat, lon, precision)
		b, ok := buckets[hash]
		if !ok {
			b = newBucket(hash, len(measureIdx), len(dimIdx))
			buckets[hash] = b
		}
		b.add(p)

		if valueIdx >= 0 {
			if v, ok := toFloat(values[valueIdx]); ok {
				key := make([]string, len(groupIdx))
				for j, i := range groupIdx {
					key[j], _ = toString(values[i])
				}
				k := strings.Join(key, groupSep)
				g, ok := groups[k]
				if !ok {
					g = &group{values: key}
					groups[k] = g
				}
				g.acc.Add(v)
			}
		}

		if pairIdx != nil {
			x, okX := toFloat(values[pairIdx[0]])
			y, okY := toFloat(values[pairIdx[1]])
			if okX && okY {
				paired.Add(x, y)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	res := &model.MapResponse{
		Points: make([]model.ClusterPoint, 0, len(buckets)),
		Facets: facets,
		Series: make([]model.GroupedStats, 0, len(groups)),
	}
	for _, b := range buckets {
		if b.count > 1 {
			counts.Clusters++
		}
		res.Points = append(res.Points, b.render(req))
	}
	sort.Slice(res.Points, func(i, j int) bool {
		return res.Points[i].Geohash < res.Points[j].Geohash
	})
	counts.Buckets = len(buckets)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		g := groups[k]
		v, err := g.acc.Value(aggFn)
		if err != nil {
			return nil, err
		}
		res.Series = append(res.Series, model.GroupedStats{Group: g.values, Value: v})
	}

	if len(req.Paired) == 2 {
		res.RectStats = paired.Stats(req.Paired[0], req.Paired[1])
	}
	res.Counts = counts
	return res, nil
}

// render emits a lone point unchanged and a cluster at its cell center.
func (b *bucket) render(req *model.MapRequest) model.ClusterPoint {
	cp := model.ClusterPoint{Geohash: b.hash, Count: b.count}
	if len(req.Measures) > 0 {
		cp.Measures = make(map[string]*float64, len(req.Measures))
	}
	if len(req.Dimensions) > 0 {
		cp.Dimensions = make(map[string][]string, len(req.Dimensions))
	}
	if b.count == 1 {
		cp.Lat, cp.Lon, cp.ID = b.first.lat, b.first.lon, b.first.id
		for i, m := range req.Measures {
			cp.Measures[m] = b.first.measures[i]
		}
		for i, d := range req.Dimensions {
			vals := []string{}
			if v := b.first.dims[i]; v != nil {
				vals = append(vals, *v)
			}
			cp.Dimensions[d] = vals
		}
		return cp
	}
	cp.Lat, cp.Lon = geohash.DecodeCenter(b.hash)
	for i, m := range req.Measures {
		if b.seen[i] > 0 {
			mean := b.sums[i] / float64(b.seen[i])
			cp.Measures[m] = &mean
		} else {
			cp.Measures[m] = nil
		}
	}
	for i, d := range req.Dimensions {
		vals := make([]string, 0, len(b.dims[i]))
		for v := range b.dims[i] {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		cp.Dimensions[d] = vals
	}
	return cp
}

type float64er interface {
	Float64() float64
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case int16:
		f = float64(val)
	case int8:
		f = float64(val)
	case int:
		f = float64(val)
	case uint64:
		f = float64(val)
	case uint32:
		f = float64(val)
	case uint16:
		f = float64(val)
	case uint8:
		f = float64(val)
	case *big.Int:
		f, _ = new(big.Float).SetInt(val).Float64()
	case float64er:
		f = val.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		return toFloat(string(val))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	case fmt.Stringer:
		return val.String(), true
	}
	return fmt.Sprint(v), true
}

func plain(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
