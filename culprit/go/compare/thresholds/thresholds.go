// Package thresholds provides the p-value thresholds used to decide whether
// two samples are different, the same, or need more data.
//
// Below LowThreshold the samples are different. Above the high threshold they
// are the same. In between, more data is needed. The high threshold is the
// p-value that a real shift of the expected magnitude would produce on
// average with the given sample size, so small expected shifts and small
// samples give a high threshold close to 1.
package thresholds

import (
	"math"

	"github.com/aclements/go-moremath/stats"
	"go.skia.org/culprit/go/skerr"
)

const (
	// LowThreshold is the significance level, alpha.
	LowThreshold = 0.01

	// MaxHighThreshold caps the high threshold so that identical samples can
	// still be called the same.
	MaxHighThreshold = 0.99
)

var (
	// sigmaPerIQR converts a shift measured in interquartile ranges into one
	// measured in standard deviations, assuming normal data.
	sigmaPerIQR = 2 * stats.StdNormal.InvCDF(0.75)

	// mwuEfficiency is the asymptotic relative efficiency of the Mann-Whitney
	// U test against the t-test on normal data.
	mwuEfficiency = math.Sqrt(3 / math.Pi)
)

// HighThresholdPerformance returns the high threshold for a shift of
// normalizedMagnitude interquartile ranges with sampleSize values per sample.
func HighThresholdPerformance(normalizedMagnitude float64, sampleSize int) (float64, error) {
	if normalizedMagnitude < 0 || math.IsNaN(normalizedMagnitude) {
		return 0, skerr.Fmt("magnitude must be non-negative, got %v", normalizedMagnitude)
	}
	if sampleSize <= 0 {
		return 0, skerr.Fmt("sample size must be positive, got %d", sampleSize)
	}
	z := normalizedMagnitude * sigmaPerIQR * math.Sqrt(float64(sampleSize)/2) * mwuEfficiency
	return fromZ(z), nil
}

// HighThresholdFunctional returns the high threshold for an increase of
// expectedErrRate in failure rate with sampleSize values per sample.
func HighThresholdFunctional(expectedErrRate float64, sampleSize int) (float64, error) {
	if expectedErrRate < 0 || expectedErrRate > 1 || math.IsNaN(expectedErrRate) {
		return 0, skerr.Fmt("error rate must be between 0 and 1, got %v", expectedErrRate)
	}
	if sampleSize <= 0 {
		return 0, skerr.Fmt("sample size must be positive, got %d", sampleSize)
	}
	// Cohen's h against a baseline that never fails.
	h := 2 * math.Asin(math.Sqrt(expectedErrRate))
	return fromZ(h * math.Sqrt(float64(sampleSize)/2)), nil
}

func fromZ(z float64) float64 {
	p := 2 * (1 - stats.StdNormal.CDF(z))
	return math.Min(math.Max(p, LowThreshold), MaxHighThreshold)
}
