package anomaly

import (
	"math"
	"sort"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// quartiles returns Q1 and Q3 using linear interpolation between ranks.
func quartiles(xs []float64) (q1, q3 float64) {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return percentile(sorted, 0.25), percentile(sorted, 0.75)
}

// percentile expects sorted input and p in [0, 1].
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// grubbsCritical returns the two-sided Grubbs test critical value at
// significance 0.05 for sample size n. Values for n in [3, 30] come from
// the standard table; larger samples use the asymptotic t-based formula.
func grubbsCritical(n int) float64 {
	table := map[int]float64{
		3: 1.1531, 4: 1.4625, 5: 1.6714, 6: 1.8221, 7: 1.9381,
		8: 2.0317, 9: 2.1096, 10: 2.1761, 11: 2.2339, 12: 2.2850,
		13: 2.3305, 14: 2.3717, 15: 2.4090, 16: 2.4433, 17: 2.4748,
		18: 2.5040, 19: 2.5312, 20: 2.5566, 21: 2.5802, 22: 2.6025,
		23: 2.6234, 24: 2.6432, 25: 2.6619, 26: 2.6796, 27: 2.6964,
		28: 2.7124, 29: 2.7275, 30: 2.7420,
	}
	if g, ok := table[n]; ok {
		return g
	}
	if n < 3 {
		return math.Inf(1) // Grubbs is undefined below n=3; never flags.
	}
	// Asymptotic approximation via the t quantile for large n.
	t := tQuantile(0.05/(2*float64(n)), n-2)
	nf := float64(n)
	return (nf - 1) / math.Sqrt(nf) * math.Sqrt(t*t/(nf-2+t*t))
}

// tQuantile approximates the upper-tail Student's t quantile via the
// Cornish-Fisher expansion around the normal quantile. Adequate for the
// large-n fallback above.
func tQuantile(alpha float64, df int) float64 {
	z := normQuantile(1 - alpha)
	d := float64(df)
	z3 := z * z * z
	z5 := z3 * z * z
	return z + (z3+z)/(4*d) + (5*z5+16*z3+3*z)/(96*d*d)
}

// normQuantile approximates the standard normal quantile using the
// Beasley-Springer-Moro rational approximation.
func normQuantile(p float64) float64 {
	a := []float64{-3.969683028665376e+01, 2.209460984245205e+02,
		-2.759285104469687e+02, 1.383577518672690e+02,
		-3.066479806614716e+01, 2.506628277459239e+00}
	b := []float64{-5.447609879822406e+01, 1.615858368580409e+02,
		-1.556989798598866e+02, 6.680131188771972e+01,
		-1.328068155288572e+01}
	c := []float64{-7.784894002430293e-03, -3.223964580411365e-01,
		-2.400758277161838e+00, -2.549732539343734e+00,
		4.374664141464968e+00, 2.938163982698783e+00}
	d := []float64{7.784695709041462e-03, 3.224671290700398e-01,
		2.445134137142996e+00, 3.754408661907416e+00}

	const pLow = 0.02425
	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= 1-pLow:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}
