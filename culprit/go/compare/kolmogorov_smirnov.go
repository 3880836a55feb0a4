package compare

import (
	"math"
	"sort"

	"go.skia.org/culprit/go/skerr"
)

// KolmogorovSmirnov returns the p-value of the two-sample Kolmogorov-Smirnov
// test on x and y, using the asymptotic distribution of the statistic with
// the Stephens small sample correction.
func KolmogorovSmirnov(x, y []float64) (float64, error) {
	if len(x) == 0 || len(y) == 0 {
		return 0, skerr.Fmt("KS test needs non-empty samples, got %d and %d values", len(x), len(y))
	}
	d := ksStatistic(x, y)
	n1, n2 := float64(len(x)), float64(len(y))
	en := math.Sqrt(n1 * n2 / (n1 + n2))
	return ksProbability((en + 0.12 + 0.11/en) * d), nil
}

// ksStatistic is the largest distance between the empirical CDFs of x and y.
func ksStatistic(x, y []float64) float64 {
	xs := append([]float64{}, x...)
	ys := append([]float64{}, y...)
	sort.Float64s(xs)
	sort.Float64s(ys)
	n1, n2 := float64(len(xs)), float64(len(ys))

	d := 0.0
	i, j := 0, 0
	for i < len(xs) && j < len(ys) {
		vx, vy := xs[i], ys[j]
		if vx <= vy {
			for i < len(xs) && xs[i] == vx {
				i++
			}
		}
		if vy <= vx {
			for j < len(ys) && ys[j] == vy {
				j++
			}
		}
		d = math.Max(d, math.Abs(float64(i)/n1-float64(j)/n2))
	}
	return d
}

// ksProbability is the Kolmogorov distribution's survival function. The
// alternating series doesn't converge for lambda near zero, in which case
// the samples are indistinguishable and 1 is returned.
func ksProbability(lambda float64) float64 {
	const (
		eps1 = 0.001
		eps2 = 1e-8
	)
	a2 := -2.0 * lambda * lambda
	fac := 2.0
	sum := 0.0
	prev := 0.0
	for k := 1; k <= 100; k++ {
		term := fac * math.Exp(a2*float64(k*k))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return sum
		}
		fac = -fac
		prev = math.Abs(term)
	}
	return 1.0
}
