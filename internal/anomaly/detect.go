// Package anomaly flags suspicious KPI actuals against their history using
// standard statistical tests (z-score, IQR fence, Grubbs) plus a couple of
// behavioral checks for reporting-period patterns.
package anomaly

import (
	"fmt"
	"math"
)

// Severity buckets for findings.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Finding is one detected anomaly.
type Finding struct {
	Method   string  `json:"method"`   // z-score | iqr | grubbs | spike | flatline
	Severity string  `json:"severity"` // low | medium | high
	Message  string  `json:"message"`
	Score    float64 `json:"score"` // method-specific magnitude
}

// Report is the result of analyzing one submitted actual.
type Report struct {
	Anomalous bool      `json:"anomalous"`
	Findings  []Finding `json:"findings"`
	Mean      float64   `json:"mean"`
	StdDev    float64   `json:"stdDev"`
	Samples   int       `json:"samples"`
}

// Options tune detection thresholds. Zero values select defaults.
type Options struct {
	ZThreshold  float64 // default 3.0
	IQRFactor   float64 // default 1.5
	SpikeFactor float64 // multiple of historical mean that counts as a spike, default 3.0
}

func (o Options) withDefaults() Options {
	if o.ZThreshold <= 0 {
		o.ZThreshold = 3.0
	}
	if o.IQRFactor <= 0 {
		o.IQRFactor = 1.5
	}
	if o.SpikeFactor <= 0 {
		o.SpikeFactor = 3.0
	}
	return o
}

// Detect analyzes the submitted actual against the historical values.
// Fewer than three history points yields an empty report: none of the tests
// are meaningful on that little data.
func Detect(history []float64, actual float64, opts Options) Report {
	opts = opts.withDefaults()

	rep := Report{
		Mean:    mean(history),
		StdDev:  stddev(history),
		Samples: len(history),
	}
	if len(history) < 3 {
		return rep
	}

	if f := zScoreCheck(history, actual, opts.ZThreshold); f != nil {
		rep.Findings = append(rep.Findings, *f)
	}
	if f := iqrCheck(history, actual, opts.IQRFactor); f != nil {
		rep.Findings = append(rep.Findings, *f)
	}
	if f := grubbsCheck(history, actual); f != nil {
		rep.Findings = append(rep.Findings, *f)
	}
	if f := spikeCheck(history, actual, opts.SpikeFactor); f != nil {
		rep.Findings = append(rep.Findings, *f)
	}
	if f := flatlineCheck(history, actual); f != nil {
		rep.Findings = append(rep.Findings, *f)
	}

	rep.Anomalous = len(rep.Findings) > 0
	return rep
}

func zScoreCheck(history []float64, actual, threshold float64) *Finding {
	sd := stddev(history)
	if sd == 0 {
		return nil
	}
	z := math.Abs(actual-mean(history)) / sd
	if z <= threshold {
		return nil
	}
	sev := SeverityMedium
	if z > threshold*1.5 {
		sev = SeverityHigh
	}
	return &Finding{
		Method:   "z-score",
		Severity: sev,
		Message:  fmt.Sprintf("value is %.1f standard deviations from the historical mean", z),
		Score:    z,
	}
}

func iqrCheck(history []float64, actual, factor float64) *Finding {
	q1, q3 := quartiles(history)
	iqr := q3 - q1
	if iqr == 0 {
		return nil
	}
	lo := q1 - factor*iqr
	hi := q3 + factor*iqr
	if actual >= lo && actual <= hi {
		return nil
	}
	dist := math.Max(lo-actual, actual-hi) / iqr
	return &Finding{
		Method:   "iqr",
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("value falls outside the interquartile fence [%.2f, %.2f]", lo, hi),
		Score:    dist,
	}
}

// grubbsCheck runs a single-outlier Grubbs test on history+actual and flags
// only when the submitted actual itself is the extreme point.
func grubbsCheck(history []float64, actual float64) *Finding {
	sample := append(append([]float64{}, history...), actual)
	sd := stddev(sample)
	if sd == 0 {
		return nil
	}
	m := mean(sample)

	var gMax float64
	var extreme float64
	for _, x := range sample {
		if g := math.Abs(x-m) / sd; g > gMax {
			gMax = g
			extreme = x
		}
	}

	if extreme != actual {
		return nil
	}
	crit := grubbsCritical(len(sample))
	if gMax <= crit {
		return nil
	}
	return &Finding{
		Method:   "grubbs",
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("Grubbs statistic %.2f exceeds the critical value %.2f", gMax, crit),
		Score:    gMax,
	}
}

func spikeCheck(history []float64, actual, factor float64) *Finding {
	m := mean(history)
	if m <= 0 || actual <= m*factor {
		return nil
	}
	return &Finding{
		Method:   "spike",
		Severity: SeverityMedium,
		Message:  fmt.Sprintf("value is %.1fx the historical mean", actual/m),
		Score:    actual / m,
	}
}

// flatlineCheck flags a sudden change after a perfectly constant history,
// which z-score and IQR cannot see (zero variance).
func flatlineCheck(history []float64, actual float64) *Finding {
	first := history[0]
	for _, x := range history[1:] {
		if x != first {
			return nil
		}
	}
	if actual == first {
		return nil
	}
	return &Finding{
		Method:   "flatline",
		Severity: SeverityLow,
		Message:  fmt.Sprintf("history was constant at %.2f, submitted value is %.2f", first, actual),
		Score:    math.Abs(actual - first),
	}
}
