package domain

import (
	"math"
	"sort"
)

const (
	// DefaultLowessFrac is the fraction of points in each local fit.
	DefaultLowessFrac = 2.0 / 3.0
	// DefaultLowessIters is the number of robustifying iterations.
	DefaultLowessIters = 3
)

// Lowess fits a locally weighted robust regression (Cleveland) through
// (xs, ys) and returns the fitted value at each x. For every point, the
// frac-nearest neighbours are weighted by tricube distance and a weighted
// line is fit; iters bisquare-reweighting passes down-weight outliers.
// xs must be sorted ascending.
func Lowess(xs, ys []float64, frac float64, iters int) []float64 {
	n := len(xs)
	fitted := make([]float64, n)
	if n == 0 {
		return fitted
	}
	if n < 3 {
		copy(fitted, ys)
		return fitted
	}

	r := int(math.Ceil(frac * float64(n)))
	if r < 2 {
		r = 2
	}
	if r > n {
		r = n
	}

	robust := make([]float64, n)
	for i := range robust {
		robust[i] = 1
	}

	for iter := 0; iter <= iters; iter++ {
		lo := 0
		for i := range xs {
			// Slide the window of r points to stay nearest xs[i].
			for lo+r < n && xs[i]-xs[lo] > xs[lo+r]-xs[i] {
				lo++
			}
			fitted[i] = fitLocal(xs, ys, robust, i, lo, lo+r)
		}
		if iter == iters {
			break
		}

		res := make([]float64, n)
		for i := range res {
			res[i] = math.Abs(ys[i] - fitted[i])
		}
		s := median(res)
		if s == 0 {
			break
		}
		for i := range robust {
			u := res[i] / (6 * s)
			if u >= 1 {
				robust[i] = 0
				continue
			}
			t := 1 - u*u
			robust[i] = t * t
		}
	}
	return fitted
}

// fitLocal runs one tricube-weighted linear fit over xs[lo:hi], evaluated at
// xs[i]. Coordinates are centred on xs[i] for numerical stability.
func fitLocal(xs, ys, robust []float64, i, lo, hi int) float64 {
	xi := xs[i]
	h := math.Max(xi-xs[lo], xs[hi-1]-xi)

	var sw, swx, swy, swxx, swxy float64
	for j := lo; j < hi; j++ {
		dx := xs[j] - xi
		w := robust[j]
		if h > 0 {
			u := math.Abs(dx) / h
			if u >= 1 {
				continue
			}
			t := 1 - u*u*u
			w *= t * t * t
		}
		if w <= 0 {
			continue
		}
		sw += w
		swx += w * dx
		swy += w * ys[j]
		swxx += w * dx * dx
		swxy += w * dx * ys[j]
	}

	if sw == 0 {
		return ys[i]
	}
	denom := sw*swxx - swx*swx
	if denom <= 1e-12*math.Abs(sw*swxx) {
		return swy / sw
	}
	slope := (sw*swxy - swx*swy) / denom
	// Value at dx = 0 is the intercept.
	return (swy - slope*swx) / sw
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
