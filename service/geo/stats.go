package geo

import (
	"math"

	"github.com/gigapi/gigaview/model"
)

// Accumulator keeps count, sum, min, max and mean of a stream of values.
type Accumulator struct {
	count int64
	sum   float64
	min   float64
	max   float64
	mean  float64
}

func (a *Accumulator) Add(v float64) {
	a.count++
	a.sum += v
	if a.count == 1 || v < a.min {
		a.min = v
	}
	if a.count == 1 || v > a.max {
		a.max = v
	}
	a.mean += (v - a.mean) / float64(a.count)
}

func (a *Accumulator) Count() int64  { return a.count }
func (a *Accumulator) Sum() float64  { return a.sum }
func (a *Accumulator) Min() float64  { return a.min }
func (a *Accumulator) Max() float64  { return a.max }
func (a *Accumulator) Mean() float64 { return a.mean }

// Value reads the accumulator through an aggregation function.
func (a *Accumulator) Value(fn model.AggFunc) (float64, error) {
	switch fn {
	case model.AggAvg:
		return a.mean, nil
	case model.AggSum:
		return a.sum, nil
	case model.AggMin:
		return a.min, nil
	case model.AggMax:
		return a.max, nil
	case model.AggCount:
		return float64(a.count), nil
	}
	return 0, model.NewCompileErr("unsupported aggregation function", map[string]any{"function": fn})
}

// PairedAccumulator is a single pass (Welford) accumulator over (x, y) pairs.
// Variances and covariance are population ones.
type PairedAccumulator struct {
	n            int64
	meanX, meanY float64
	m2X, m2Y     float64
	cXY          float64
	x, y         Accumulator
}

func (p *PairedAccumulator) Add(x, y float64) {
	p.n++
	n := float64(p.n)
	dx := x - p.meanX
	p.meanX += dx / n
	dy := y - p.meanY
	p.meanY += dy / n
	p.m2X += dx * (x - p.meanX)
	p.m2Y += dy * (y - p.meanY)
	p.cXY += dx * (y - p.meanY)
	p.x.Add(x)
	p.y.Add(y)
}

func (p *PairedAccumulator) Count() int64 { return p.n }

func (p *PairedAccumulator) VarianceX() float64 { return p.div(p.m2X) }
func (p *PairedAccumulator) VarianceY() float64 { return p.div(p.m2Y) }
func (p *PairedAccumulator) Covariance() float64 { return p.div(p.cXY) }

// Correlation is the Pearson coefficient. ok is false with fewer than two
// pairs or when either side is constant.
func (p *PairedAccumulator) Correlation() (float64, bool) {
	if p.n < 2 || p.m2X == 0 || p.m2Y == 0 {
		return 0, false
	}
	r := p.cXY / math.Sqrt(p.m2X*p.m2Y)
	return math.Max(-1, math.Min(1, r)), true
}

func (p *PairedAccumulator) div(v float64) float64 {
	if p.n == 0 {
		return 0
	}
	return v / float64(p.n)
}

// Stats renders the accumulator. With no pairs only Count is set.
func (p *PairedAccumulator) Stats(xColumn, yColumn string) model.RectStats {
	res := model.RectStats{Count: p.n}
	if p.n == 0 {
		return res
	}
	axis := func(column string, acc *Accumulator, variance float64) *model.AxisStats {
		return &model.AxisStats{
			Column:   column,
			Mean:     acc.Mean(),
			Min:      acc.Min(),
			Max:      acc.Max(),
			Variance: variance,
			StdDev:   math.Sqrt(variance),
		}
	}
	res.X = axis(xColumn, &p.x, p.VarianceX())
	res.Y = axis(yColumn, &p.y, p.VarianceY())
	cov := p.Covariance()
	res.Covariance = &cov
	if r, ok := p.Correlation(); ok {
		res.Correlation = &r
	}
	return res
}
