// Package compare decides whether two samples of measurements are
// statistically different, the same, or whether more data is needed.
//
// The method is:
//   - Calculate the p-value using the KS test and the MWU test.
//   - Take the minimum of the two p-values.
//   - If the p-value <= the low threshold (the significance level), the
//     samples are Different.
//   - Else if the p-value <= the high threshold, the verdict is Unknown.
//   - Else the samples are the Same.
//
// See [thresholds] for how the high threshold is chosen.
//
// # Functional vs performance comparisons
//
// Performance comparisons look at measured values. Functional comparisons
// look at failure rates, where each value is 1 for a failed run and 0 for a
// passing one. The tests are identical, only the high threshold differs.
package compare

import (
	"math"
	"sort"

	"go.skia.org/culprit/culprit/go/compare/thresholds"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// Verdict is the outcome of comparing two samples.
type Verdict int

const (
	// Unknown means that there is not enough evidence to reject
	// either hypothesis. Collect more data before making a final decision.
	Unknown Verdict = iota
	// Same means that the samples likely come from the same distribution.
	Same
	// Different means that the samples are unlikely to come from the same
	// distribution.
	Different
)

func (v Verdict) String() string {
	switch v {
	case Same:
		return "same"
	case Different:
		return "different"
	}
	return "unknown"
}

// Mode selects which high threshold is used.
type Mode string

const (
	Performance Mode = "performance"
	Functional  Mode = "functional"
)

// DefaultFunctionalErrRate is used when a functional comparison is given an
// error rate outside of [0, 1].
const DefaultFunctionalErrRate = 1.0

// CompareResults contains the results of a comparison between two samples.
type CompareResults struct {
	Verdict Verdict `json:"verdict"`
	// PValue is the smaller of PValueKS and PValueMWU.
	PValue    float64 `json:"p_value"`
	PValueKS  float64 `json:"p_value_ks"`
	PValueMWU float64 `json:"p_value_mwu"`
	// LowThreshold is the significance level.
	LowThreshold  float64 `json:"low_threshold"`
	HighThreshold float64 `json:"high_threshold"`
}

// CompareFunctional compares failure rates. expectedErrRate is how much more
// often the culprit is expected to make the benchmark fail, e.g. 0.5 means
// 50% more failures.
func CompareFunctional(valuesA, valuesB []float64, expectedErrRate, lowThreshold float64) (*CompareResults, error) {
	if len(valuesA) == 0 || len(valuesB) == 0 {
		return &CompareResults{Verdict: Unknown}, nil
	}
	if expectedErrRate < 0.0 || expectedErrRate > 1.0 {
		sklog.Warningf("Error rate %v used in functional analysis is outside of [0, 1]; using %v.", expectedErrRate, DefaultFunctionalErrRate)
		expectedErrRate = DefaultFunctionalErrRate
	}
	// The samples may be imbalanced depending on the success of individual runs.
	avgSampleSize := (len(valuesA) + len(valuesB)) / 2
	highThreshold, err := thresholds.HighThresholdFunctional(expectedErrRate, avgSampleSize)
	if err != nil {
		return nil, skerr.Wrapf(err, "Could not get functional high threshold")
	}
	return compare(valuesA, valuesB, lowThreshold, highThreshold)
}

// ComparePerformance compares measured values, given the expected size of
// the shift in the units of the values.
func ComparePerformance(valuesA, valuesB []float64, rawMagnitude, lowThreshold float64) (*CompareResults, error) {
	if len(valuesA) == 0 || len(valuesB) == 0 {
		return &CompareResults{Verdict: Unknown}, nil
	}
	all := make([]float64, 0, len(valuesA)+len(valuesB))
	all = append(all, valuesA...)
	all = append(all, valuesB...)
	sort.Float64s(all)
	iqr := all[len(all)*3/4] - all[len(all)/4]
	normalizedMagnitude := 0.0
	if iqr == 0 {
		if rawMagnitude != 0 {
			normalizedMagnitude = math.Inf(1)
		}
	} else {
		normalizedMagnitude = math.Abs(rawMagnitude / iqr)
	}
	avgSampleSize := len(all) / 2

	highThreshold, err := thresholds.HighThresholdPerformance(normalizedMagnitude, avgSampleSize)
	if err != nil {
		return nil, skerr.Wrapf(err, "Could not get high threshold for bisection")
	}
	return compare(valuesA, valuesB, lowThreshold, highThreshold)
}

func compare(valuesA, valuesB []float64, lowThreshold, highThreshold float64) (*CompareResults, error) {
	if lowThreshold <= 0 {
		lowThreshold = thresholds.LowThreshold
	}
	if highThreshold < lowThreshold {
		highThreshold = lowThreshold
	}

	// MWU is bad at detecting changes in variance, and K-S is bad with discrete
	// distributions. So use both. We want low p-values for the below examples.
	//        a                     b               MWU(a, b)  KS(a, b)
	// [0]*20            [0]*15+[1]*5                0.0097     0.4973
	// range(10, 30)     range(10)+range(30, 40)     0.4946     0.0082
	pValueKS, err := KolmogorovSmirnov(valuesA, valuesB)
	if err != nil {
		return nil, skerr.Wrapf(err, "Failed KS test")
	}
	pValueMWU := MannWhitneyU(valuesA, valuesB)
	pValue := min(pValueKS, pValueMWU)

	result := &CompareResults{
		PValue:        pValue,
		PValueKS:      pValueKS,
		PValueMWU:     pValueMWU,
		LowThreshold:  lowThreshold,
		HighThreshold: highThreshold,
	}
	switch {
	case pValue <= lowThreshold:
		result.Verdict = Different
	case pValue <= highThreshold:
		// Suspicious, but not significant. Look closer.
		result.Verdict = Unknown
	default:
		result.Verdict = Same
	}
	return result, nil
}

// Options configures a Detector.
type Options struct {
	Mode Mode `json:"mode" yaml:"mode"`
	// Magnitude is the expected size of the shift: in the units of the
	// measurement for Performance, as a failure rate for Functional.
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
	// SignificanceLevel is the low threshold. Zero means
	// thresholds.LowThreshold.
	SignificanceLevel float64 `json:"significance_level" yaml:"significance_level"`
}

// Detector compares two samples using fixed Options.
type Detector struct {
	opts Options
}

// NewDetector returns a Detector for opts.
func NewDetector(opts Options) *Detector {
	return &Detector{opts: opts}
}

// Compare returns the verdict for the two samples. It is deterministic.
func (d *Detector) Compare(valuesA, valuesB []float64) (*CompareResults, error) {
	if d.opts.Mode == Functional {
		return CompareFunctional(valuesA, valuesB, d.opts.Magnitude, d.opts.SignificanceLevel)
	}
	return ComparePerformance(valuesA, valuesB, d.opts.Magnitude, d.opts.SignificanceLevel)
}
