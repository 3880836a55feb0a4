package compare

import (
	"math"
	"sort"
)

// MannWhitneyU returns the two-sided p-value of the Mann-Whitney rank test on
// samples x and y, using the tie-corrected normal approximation with
// continuity correction, the same as scipy's method="asymptotic".
//
// go-moremath's MannWhitneyUTest is not used since it refuses to produce a
// p-value when every value is tied, which happens with bimodal benchmarks and
// with failure rates.
func MannWhitneyU(x, y []float64) float64 {
	n1 := float64(len(x))
	n2 := float64(len(y))
	all := make([]float64, 0, len(x)+len(y))
	all = append(all, x...)
	all = append(all, y...)
	ranks, tieSum := rankData(all)

	s := 0.0
	for _, r := range ranks[:len(x)] {
		s += r
	}
	u1 := n1*n2 + n1*(n1+1)/2.0 - s
	u2 := n1*n2 - u1

	t := 1.0
	if size := float64(len(all)); size >= 2 {
		t = 1.0 - tieSum/(size*size*size-size)
	}
	if t == 0 {
		return 1.0
	}
	sd := math.Sqrt(t * n1 * n2 * (n1 + n2 + 1) / 12.0)
	meanRank := n1*n2/2.0 + 0.5
	z := (math.Max(u1, u2) - meanRank) / sd
	return 2 * normSf(math.Abs(z))
}

// rankData returns the 1-based rank of each value, with ties given the mean of
// their ranks, along with the sum of t^3-t over each group of t ties.
func rankData(a []float64) ([]float64, float64) {
	idx := make([]int, len(a))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return a[idx[i]] < a[idx[j]]
	})

	ranks := make([]float64, len(a))
	tieSum := 0.0
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && a[idx[end]] == a[idx[start]] {
			end++
		}
		// Positions start..end-1 hold ranks start+1..end.
		mean := float64(start+1+end) / 2.0
		for _, k := range idx[start:end] {
			ranks[k] = mean
		}
		t := float64(end - start)
		tieSum += t*t*t - t
		start = end
	}
	return ranks, tieSum
}

func normSf(x float64) float64 {
	return (1 - math.Erf(x/math.Sqrt(2))) / 2
}
